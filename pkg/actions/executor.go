package actions

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhaopengme/hiperboot/pkg/logger"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

var (
	ErrNoTarget    = errors.New("no target conversation")
	ErrUnknownType = errors.New("unknown action type")
	ErrNoButtons   = errors.New("quick_reply requires at least one button")
)

// SenderSource hands out the sender of the live session. It is called
// at every send so a reconnect in the middle of a batch is picked up.
type SenderSource interface {
	Sender() (whatsapp.Sender, error)
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Executor struct {
	source SenderSource
	sleep  Sleeper
}

type Option func(*Executor)

func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

func NewExecutor(source SenderSource, opts ...Option) *Executor {
	e := &Executor{
		source: source,
		sleep:  contextSleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs batch strictly in order. A failing or skipped action never
// stops the ones after it; every action yields an Outcome.
func (e *Executor) Execute(ctx context.Context, batch []Action, defaultTarget string) BatchResult {
	result := BatchResult{
		ID:       uuid.NewString(),
		Outcomes: make([]Outcome, 0, len(batch)),
	}
	for i, action := range batch {
		result.Outcomes = append(result.Outcomes, e.runOne(ctx, i, action, defaultTarget))
	}
	logResult(result, defaultTarget)
	return result
}

func (e *Executor) runOne(ctx context.Context, index int, action Action, defaultTarget string) (out Outcome) {
	out = Outcome{
		Index:  index,
		Type:   action.Type,
		Target: action.resolveTarget(defaultTarget),
	}
	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	if action.decodeErr != nil {
		out.Status = StatusFailed
		out.Err = action.decodeErr
		return out
	}
	if out.Target == "" {
		out.Status = StatusSkipped
		out.Err = ErrNoTarget
		return out
	}
	if !knownType(action.Type) {
		out.Status = StatusSkipped
		out.Err = fmt.Errorf("%w: %q", ErrUnknownType, action.Type)
		return out
	}

	send, err := prepare(action)
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	if action.simulatesTyping() {
		if err := e.simulateTyping(ctx, out.Target, time.Duration(action.Delay)*time.Millisecond); err != nil {
			out.Status = StatusFailed
			out.Err = err
			return out
		}
	}

	sender, err := e.source.Sender()
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if err := send(ctx, sender, out.Target); err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	out.Status = StatusSent
	return out
}

// simulateTyping emits composing, waits, then emits paused. Presence is best
// effort: a failed update is logged and the send still happens. Only an
// interrupted wait aborts the action.
func (e *Executor) simulateTyping(ctx context.Context, target string, delay time.Duration) error {
	e.presence(ctx, target, whatsapp.PresenceComposing)
	if err := e.sleep(ctx, delay); err != nil {
		return fmt.Errorf("typing delay interrupted: %w", err)
	}
	e.presence(ctx, target, whatsapp.PresencePaused)
	return nil
}

func (e *Executor) presence(ctx context.Context, target string, p whatsapp.Presence) {
	sender, err := e.source.Sender()
	if err == nil {
		err = sender.SendPresence(ctx, target, p)
	}
	if err != nil {
		logger.WarnCF("actions", "Presence update failed", map[string]interface{}{
			"target":   target,
			"presence": string(p),
			"error":    err.Error(),
		})
	}
}

type sendFunc func(ctx context.Context, sender whatsapp.Sender, target string) error

// prepare validates and decodes an action before any side effect happens.
func prepare(action Action) (sendFunc, error) {
	switch action.Type {
	case TypeText, TypeSendToTarget:
		content := action.Content
		return func(ctx context.Context, s whatsapp.Sender, target string) error {
			return s.SendText(ctx, target, content)
		}, nil

	case TypeImage:
		data, err := DecodeImage(action.Content)
		if err != nil {
			return nil, err
		}
		caption := action.Caption
		return func(ctx context.Context, s whatsapp.Sender, target string) error {
			return s.SendImage(ctx, target, data, caption)
		}, nil

	case TypeQuickReply:
		if len(action.Buttons) == 0 {
			return nil, ErrNoButtons
		}
		msg := whatsapp.ButtonsMessage{
			Text:    action.Content,
			Footer:  action.Footer,
			Buttons: make([]whatsapp.Button, 0, len(action.Buttons)),
		}
		for _, b := range action.Buttons {
			msg.Buttons = append(msg.Buttons, whatsapp.Button{DisplayText: b.Text, ID: b.ID})
		}
		return func(ctx context.Context, s whatsapp.Sender, target string) error {
			return s.SendButtons(ctx, target, msg)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, action.Type)
}

// DecodeImage decodes standard base64, with or without padding, and strips
// a leading data URI header if present.
func DecodeImage(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "data:") {
		if i := strings.Index(content, ","); i >= 0 {
			content = content[i+1:]
		}
	}
	if content == "" {
		return nil, fmt.Errorf("image content is empty")
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(content, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}

func logResult(result BatchResult, defaultTarget string) {
	for _, o := range result.Outcomes {
		if o.Status == StatusSent {
			continue
		}
		fields := map[string]interface{}{
			"batch_id": result.ID,
			"index":    o.Index,
			"type":     o.Type,
			"target":   o.Target,
		}
		if o.Err != nil {
			fields["error"] = o.Err.Error()
		}
		if o.Status == StatusFailed {
			logger.ErrorCF("actions", "Action failed", fields)
		} else {
			logger.WarnCF("actions", "Action skipped", fields)
		}
	}

	logger.InfoCF("actions", "Action batch executed", map[string]interface{}{
		"batch_id":       result.ID,
		"default_target": defaultTarget,
		"total":          len(result.Outcomes),
		"sent":           result.Sent(),
		"skipped":        result.Skipped(),
		"failed":         result.Failed(),
	})
}
