package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed action")

// Action types as sent by the decision service.
const (
	TypeText         = "text"
	TypeImage        = "image_b64"
	TypeSendToTarget = "send_to_jid"
	TypeQuickReply   = "quick_reply"
)

type Button struct {
	Text string `json:"text"`
	ID   string `json:"id"`
}

// Action is a single outbound instruction. Target falls back to the
// batch's default target when empty.
type Action struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Target  string   `json:"target_jid,omitempty"`
	Delay   Millis   `json:"delay,omitempty"`
	Caption string   `json:"caption,omitempty"`
	Footer  string   `json:"footer,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`

	// decodeErr is set when the element could not be decoded; the executor
	// reports it as a failed action.
	decodeErr error
}

// Batch decodes an action array element by element, so one bad entry
// becomes a failed action instead of rejecting the whole batch.
type Batch []Action

func (b *Batch) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("actions must be an array: %w", err)
	}

	out := make(Batch, 0, len(raws))
	for _, raw := range raws {
		var a Action
		if err := json.Unmarshal(raw, &a); err != nil {
			a = salvage(raw)
			a.decodeErr = fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out = append(out, a)
	}
	*b = out
	return nil
}

// salvage recovers the type and target of an undecodable action for logs.
func salvage(raw json.RawMessage) Action {
	var loose map[string]interface{}
	_ = json.Unmarshal(raw, &loose)
	a := Action{}
	if t, ok := loose["type"].(string); ok {
		a.Type = t
	}
	if t, ok := loose["target_jid"].(string); ok {
		a.Target = t
	}
	return a
}

// Millis is a delay in milliseconds. It accepts fractional JSON numbers,
// which Python services tend to produce, and numeric strings such as "500".
type Millis int

func (m *Millis) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = 0
		return nil
	}
	var f float64
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("delay must be a number: %w", err)
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*m = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("delay must be a number, got %q", str)
		}
		f = parsed
	} else if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("delay must be a number: %w", err)
	}
	if f < 0 || math.IsNaN(f) {
		f = 0
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	*m = Millis(math.Round(f))
	return nil
}

// simulatesTyping reports whether the action gets a composing/paused
// presence pair around its delay.
func (a Action) simulatesTyping() bool {
	if a.Delay <= 0 {
		return false
	}
	switch a.Type {
	case TypeText, TypeImage, TypeQuickReply:
		return true
	}
	return false
}

func (a Action) resolveTarget(defaultTarget string) string {
	if a.Target != "" {
		return a.Target
	}
	return defaultTarget
}

func knownType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeSendToTarget, TypeQuickReply:
		return true
	}
	return false
}
