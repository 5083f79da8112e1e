package actions

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome records what happened to one action of a batch.
type Outcome struct {
	Index  int
	Type   string
	Target string
	Status Status
	Err    error
}

type BatchResult struct {
	ID       string
	Outcomes []Outcome
}

func (r BatchResult) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r BatchResult) Sent() int    { return r.count(StatusSent) }
func (r BatchResult) Skipped() int { return r.count(StatusSkipped) }
func (r BatchResult) Failed() int  { return r.count(StatusFailed) }

// Err joins the errors of every failed action, or returns nil.
func (r BatchResult) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed && o.Err != nil {
			errs = append(errs, fmt.Errorf("action %d (%s -> %s): %w", o.Index, o.Type, o.Target, o.Err))
		}
	}
	return errors.Join(errs...)
}
