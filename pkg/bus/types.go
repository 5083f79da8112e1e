package bus

import "time"

const (
	EventState   = "state"
	EventPairing = "pairing"
	EventRelay   = "relay"
)

// StatusEvent is one operator-visible status line: a lifecycle transition,
// a pairing prompt or a relay failure.
type StatusEvent struct {
	Type      string    `json:"type"`
	State     string    `json:"state,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	OwnID     string    `json:"own_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Time      time.Time `json:"time"`
}
