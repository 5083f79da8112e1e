package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhaopengme/hiperboot/pkg/bus"
	"github.com/zhaopengme/hiperboot/pkg/logger"
	"github.com/zhaopengme/hiperboot/pkg/session"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

var (
	// ErrLoggedOut means the account unlinked this device. Only a fresh
	// connection with new credentials can recover.
	ErrLoggedOut      = errors.New("whatsapp session logged out")
	ErrReconnectLimit = errors.New("reconnect attempts exhausted")
	ErrPairingNeeded  = errors.New("device is not paired and no pairer is configured")
	ErrInvalidPhone   = errors.New("phone number has no digits")
)

// Pairer supplies the phone number used to link a new device and shows the
// resulting pairing code to the operator.
type Pairer interface {
	PhoneNumber(ctx context.Context) (string, error)
	ShowPairingCode(code string)
}

// MessageSink receives every inbound chat message. It must not block the
// event dispatcher.
type MessageSink interface {
	HandleMessage(ctx context.Context, msg whatsapp.RawMessage)
}

type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Controller struct {
	factory whatsapp.Factory
	creds   whatsapp.CredentialStore
	holder  *session.Holder

	pairer       Pairer
	sink         MessageSink
	pub          bus.Publisher
	policy       Policy
	sleep        Sleeper
	connectFloor time.Duration
}

type Option func(*Controller)

func WithPairer(p Pairer) Option {
	return func(c *Controller) { c.pairer = p }
}

func WithSink(s MessageSink) Option {
	return func(c *Controller) { c.sink = s }
}

func WithPublisher(p bus.Publisher) Option {
	return func(c *Controller) { c.pub = p }
}

func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.policy = p }
}

func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.sleep = s
		}
	}
}

func WithConnectRetryDelay(d time.Duration) Option {
	return func(c *Controller) { c.connectFloor = d }
}

func New(factory whatsapp.Factory, creds whatsapp.CredentialStore, holder *session.Holder, opts ...Option) *Controller {
	c := &Controller{
		factory:      factory,
		creds:        creds,
		holder:       holder,
		sleep:        contextSleep,
		connectFloor: DefaultConnectRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// closeResult describes how one connection attempt ended.
type closeResult struct {
	reason     whatsapp.DisconnectReason
	detail     string
	opened     bool
	connectErr error
}

// Run connects and keeps the session alive until ctx is cancelled, the
// account logs out (ErrLoggedOut) or the retry ceiling is hit. When fresh is
// true the stored credentials are wiped first.
func (c *Controller) Run(ctx context.Context, fresh bool) error {
	if fresh {
		if err := c.creds.Clear(); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}
		logger.InfoC("lifecycle", "Stored credentials cleared, a new pairing is required")
	}

	failures := 0
	for attempt := 1; ; attempt++ {
		res, err := c.attempt(ctx, attempt)
		if err != nil {
			return err
		}

		if res.opened {
			failures = 0
		}
		failures++
		if c.policy.Exhausted(failures) {
			return fmt.Errorf("%w after %d attempts", ErrReconnectLimit, failures)
		}

		delay := c.policy.Backoff(failures)
		if (res.connectErr != nil || res.reason.IsConnectFailure()) && delay < c.connectFloor {
			delay = c.connectFloor
		}
		logger.InfoCF("lifecycle", "Reconnecting", map[string]interface{}{
			"reason":  res.reason.String(),
			"attempt": attempt + 1,
			"delay":   delay.String(),
		})
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// attempt runs one session from creation to close. A nil error with a
// result means the close is recoverable.
func (c *Controller) attempt(ctx context.Context, attempt int) (closeResult, error) {
	client, err := c.factory.NewClient(ctx)
	if err != nil {
		return closeResult{}, fmt.Errorf("failed to create whatsapp client: %w", err)
	}

	sess := session.New(client)
	c.holder.Replace(sess)
	c.publish(sess, attempt, "")

	closed := make(chan whatsapp.ConnectionClosed, 1)
	client.AddEventHandler(c.handler(ctx, sess, closed))

	logger.InfoCF("lifecycle", "Connecting to WhatsApp", map[string]interface{}{
		"session_id": sess.ID,
		"attempt":    attempt,
		"registered": client.IsRegistered(),
	})

	if err := client.Connect(ctx); err != nil {
		c.retire(sess, session.StateClosedRecoverable)
		logger.WarnCF("lifecycle", "Connect failed", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		c.publish(sess, attempt, err.Error())
		return closeResult{reason: whatsapp.ReasonConnectFailure, detail: err.Error(), connectErr: err}, nil
	}

	if !client.IsRegistered() {
		if err := c.pair(ctx, sess, attempt); err != nil {
			c.retire(sess, session.StateIdle)
			return closeResult{}, err
		}
	}

	select {
	case <-ctx.Done():
		c.retire(sess, session.StateIdle)
		c.publish(sess, attempt, "stopped")
		return closeResult{}, ctx.Err()
	case evt := <-closed:
		opened := sess.OwnID() != ""
		if evt.Reason.IsLoggedOut() {
			c.retire(sess, session.StateClosedTerminal)
			logger.WarnCF("lifecycle", "Logged out, use a fresh connection to pair again", map[string]interface{}{
				"session_id": sess.ID,
				"detail":     evt.Detail,
			})
			c.publish(sess, attempt, evt.Reason.String())
			return closeResult{}, ErrLoggedOut
		}

		c.retire(sess, session.StateClosedRecoverable)
		logger.WarnCF("lifecycle", "Connection closed", map[string]interface{}{
			"session_id": sess.ID,
			"reason":     evt.Reason.String(),
			"detail":     evt.Detail,
		})
		c.publish(sess, attempt, evt.Reason.String())
		return closeResult{reason: evt.Reason, detail: evt.Detail, opened: opened}, nil
	}
}

func (c *Controller) pair(ctx context.Context, sess *session.Session, attempt int) error {
	if c.pairer == nil {
		return ErrPairingNeeded
	}
	if !sess.Transition(session.StateConnecting, session.StateAwaitingPairing) {
		return nil
	}
	c.publish(sess, attempt, "")

	raw, err := c.pairer.PhoneNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read phone number: %w", err)
	}
	phone := whatsapp.SanitizePhone(raw)
	if phone == "" {
		return ErrInvalidPhone
	}

	code, err := sess.Client.PairPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to request pairing code: %w", err)
	}
	c.pairer.ShowPairingCode(code)
	if c.pub != nil {
		c.pub.Publish(bus.StatusEvent{
			Type:      bus.EventPairing,
			State:     sess.State().String(),
			SessionID: sess.ID,
			Attempt:   attempt,
			Detail:    "pairing code issued",
		})
	}
	return nil
}

// retire deregisters every listener on a dead session before anything
// replaces it, then closes its socket.
func (c *Controller) retire(sess *session.Session, state session.State) {
	sess.Client.RemoveEventHandlers()
	sess.SetState(state)
	sess.Client.Disconnect()
}

func (c *Controller) handler(ctx context.Context, sess *session.Session, closed chan<- whatsapp.ConnectionClosed) whatsapp.EventHandler {
	return func(evt whatsapp.Event) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("lifecycle", "Event handler panic", map[string]interface{}{
					"event": evt.EventName(),
					"panic": fmt.Sprint(r),
				})
			}
		}()

		if c.holder.Current() != sess {
			return
		}

		switch e := evt.(type) {
		case whatsapp.CredentialsUpdated:
			if err := c.creds.Flush(ctx); err != nil {
				logger.ErrorCF("lifecycle", "Failed to persist credentials", map[string]interface{}{
					"session_id": sess.ID,
					"error":      err.Error(),
				})
			}
		case whatsapp.ConnectionOpened:
			own := e.OwnID
			if own == "" {
				own = sess.Client.OwnID()
			}
			sess.SetOwnID(whatsapp.UserPart(own))
			sess.SetState(session.StateOpen)
			logger.InfoCF("lifecycle", "Connected", map[string]interface{}{
				"session_id": sess.ID,
				"own_id":     sess.OwnID(),
			})
			c.publish(sess, 0, "")
		case whatsapp.ConnectionClosed:
			select {
			case closed <- e:
			default:
			}
		case whatsapp.MessageReceived:
			if c.sink != nil {
				c.sink.HandleMessage(ctx, e.Message)
			}
		}
	}
}

func (c *Controller) publish(sess *session.Session, attempt int, detail string) {
	if c.pub == nil {
		return
	}
	c.pub.Publish(bus.StatusEvent{
		Type:      bus.EventState,
		State:     sess.State().String(),
		SessionID: sess.ID,
		OwnID:     sess.OwnID(),
		Detail:    detail,
		Attempt:   attempt,
	})
}
