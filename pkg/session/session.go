package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

var ErrNotConnected = errors.New("whatsapp session is not connected")

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingPairing
	StateOpen
	StateClosedRecoverable
	StateClosedTerminal
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateConnecting:        "connecting",
	StateAwaitingPairing:   "awaiting_pairing",
	StateOpen:              "open",
	StateClosedRecoverable: "closed_recoverable",
	StateClosedTerminal:    "closed_terminal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Session is one connection attempt. It is built per attempt and replaced
// wholesale on reconnect; only the lifecycle controller changes its state.
type Session struct {
	ID      string
	Client  whatsapp.Client
	Created time.Time

	state atomic.Int32

	mu    sync.RWMutex
	ownID string
}

func New(client whatsapp.Client) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Client:  client,
		Created: time.Now(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) SetState(state State) {
	s.state.Store(int32(state))
}

// Transition moves the session from one state to another and reports
// whether it was still in from.
func (s *Session) Transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) OwnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownID
}

func (s *Session) SetOwnID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownID = id
}

// Ready reports whether the session is open with a registered identity.
func (s *Session) Ready() bool {
	if s == nil || s.Client == nil {
		return false
	}
	return s.State() == StateOpen && s.Client.IsRegistered() && s.OwnID() != ""
}

// Holder is the single slot through which every component reaches the live
// session. Callers fetch Current at the point of use and never keep the
// result across a suspension point.
type Holder struct {
	current atomic.Pointer[Session]
}

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Current() *Session {
	return h.current.Load()
}

// Replace installs s and returns the previous session, if any.
func (h *Holder) Replace(s *Session) *Session {
	return h.current.Swap(s)
}

func (h *Holder) State() State {
	if s := h.Current(); s != nil {
		return s.State()
	}
	return StateIdle
}

// Sender returns the current session's client when it is ready to send.
func (h *Holder) Sender() (whatsapp.Sender, error) {
	s := h.Current()
	if !s.Ready() {
		return nil, ErrNotConnected
	}
	return s.Client, nil
}

// OwnID returns the bot's own address of the current session, if open.
func (h *Holder) OwnID() string {
	if s := h.Current(); s != nil {
		return s.OwnID()
	}
	return ""
}
