package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zhaopengme/hiperboot/pkg/actions"
	"github.com/zhaopengme/hiperboot/pkg/bus"
	"github.com/zhaopengme/hiperboot/pkg/inbound"
	"github.com/zhaopengme/hiperboot/pkg/logger"
	"github.com/zhaopengme/hiperboot/pkg/relay"
	"github.com/zhaopengme/hiperboot/pkg/utils"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

// Relayer hands a normalized message to the decision service and returns
// the actions it asked for.
type Relayer interface {
	Relay(ctx context.Context, msg inbound.Message) ([]actions.Action, error)
}

type BatchExecutor interface {
	Execute(ctx context.Context, batch []actions.Action, defaultTarget string) actions.BatchResult
}

type relayRef struct {
	Relayer
}

// Bridge carries chat messages to the decision service and executes the
// reply. Each message runs on its own goroutine so conversations interleave.
type Bridge struct {
	normalizer *inbound.Normalizer
	executor   BatchExecutor
	pub        bus.Publisher

	relay atomic.Pointer[relayRef]

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewBridge(normalizer *inbound.Normalizer, relayer Relayer, executor BatchExecutor, pub bus.Publisher) *Bridge {
	b := &Bridge{
		normalizer: normalizer,
		executor:   executor,
		pub:        pub,
	}
	b.SetRelayer(relayer)
	return b
}

// SetRelayer swaps the decision-service client. Messages already in flight
// finish with the client they started with.
func (b *Bridge) SetRelayer(r Relayer) {
	b.relay.Store(&relayRef{Relayer: r})
}

func (b *Bridge) relayer() Relayer {
	return b.relay.Load().Relayer
}

// RelayURL returns the endpoint of the current decision-service client, or
// "" when the client does not expose one.
func (b *Bridge) RelayURL() string {
	if u, ok := b.relayer().(interface{ URL() string }); ok {
		return u.URL()
	}
	return ""
}

// HandleMessage filters raw synchronously and processes forwarded messages
// in the background. It never blocks on the network.
func (b *Bridge) HandleMessage(ctx context.Context, raw whatsapp.RawMessage) {
	if reason := b.normalizer.Filter(raw); reason != inbound.Forward {
		logger.DebugCF("bridge", "Message dropped", map[string]interface{}{
			"chat_id": raw.Chat,
			"reason":  string(reason),
			"kind":    raw.Kind,
		})
		return
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		logger.DebugCF("bridge", "Message dropped", map[string]interface{}{
			"chat_id": raw.Chat,
			"reason":  "shutting down",
		})
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("bridge", "Message processing panic", map[string]interface{}{
					"chat_id": raw.Chat,
					"panic":   fmt.Sprint(r),
				})
			}
		}()
		b.process(ctx, raw)
	}()
}

// Wait blocks until every message handed to HandleMessage is done.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Close stops accepting messages and waits for the ones in flight.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) process(ctx context.Context, raw whatsapp.RawMessage) {
	traceID := uuid.NewString()

	msg, reason, err := b.normalizer.Normalize(ctx, raw)
	if err != nil {
		b.fail(traceID, raw.Chat, "normalize", err)
		return
	}
	if reason != inbound.Forward {
		return
	}

	logger.InfoCF("bridge", "Relaying message", map[string]interface{}{
		"trace_id":  traceID,
		"chat_id":   msg.SenderID,
		"push_name": msg.PushName,
		"type":      msg.MessageType,
		"preview":   utils.Truncate(msg.Text, 50),
	})

	batch, err := b.relayer().Relay(ctx, msg)
	if err != nil {
		b.fail(traceID, msg.SenderID, "relay", err)
		return
	}
	if len(batch) == 0 {
		logger.DebugCF("bridge", "Decision service returned no actions", map[string]interface{}{
			"trace_id": traceID,
			"chat_id":  msg.SenderID,
		})
		return
	}

	result := b.executor.Execute(ctx, batch, msg.SenderID)
	logger.InfoCF("bridge", "Reply executed", map[string]interface{}{
		"trace_id": traceID,
		"batch_id": result.ID,
		"chat_id":  msg.SenderID,
		"sent":     result.Sent(),
		"failed":   result.Failed(),
		"skipped":  result.Skipped(),
	})
}

func (b *Bridge) fail(traceID, chatID, stage string, err error) {
	fields := map[string]interface{}{
		"trace_id": traceID,
		"chat_id":  chatID,
		"stage":    stage,
		"error":    err.Error(),
	}
	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		fields["status_code"] = relayErr.StatusCode
		if relayErr.Body != "" {
			fields["body"] = relayErr.Body
		}
	}
	logger.ErrorCF("bridge", "Message dropped after failure", fields)

	if b.pub != nil {
		b.pub.Publish(bus.StatusEvent{
			Type:   bus.EventRelay,
			Detail: fmt.Sprintf("%s failed for %s: %v", stage, chatID, err),
		})
	}
}
