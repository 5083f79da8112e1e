package whatsapp

import "fmt"

type Event interface {
	EventName() string
}

type DisconnectReason int

const (
	ReasonConnectionLost DisconnectReason = iota
	ReasonStreamReplaced
	ReasonConnectFailure
	ReasonLoggedOut
	ReasonTemporaryBan
	ReasonClientOutdated
	ReasonCATRefresh
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonStreamReplaced:
		return "stream_replaced"
	case ReasonConnectFailure:
		return "connect_failure"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonTemporaryBan:
		return "temporary_ban"
	case ReasonClientOutdated:
		return "client_outdated"
	case ReasonCATRefresh:
		return "cat_refresh_failed"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

func (r DisconnectReason) IsLoggedOut() bool {
	return r == ReasonLoggedOut
}

// IsConnectFailure reports whether the server refused the connection, as
// opposed to an established connection dropping. These retry with a delay.
func (r DisconnectReason) IsConnectFailure() bool {
	switch r {
	case ReasonConnectFailure, ReasonTemporaryBan, ReasonClientOutdated, ReasonCATRefresh:
		return true
	}
	return false
}

type ConnectionOpened struct {
	OwnID string
}

type ConnectionClosed struct {
	Reason DisconnectReason
	Detail string
}

// CredentialsUpdated signals that the device credentials changed and must be
// flushed before the next event is handled.
type CredentialsUpdated struct{}

type MessageReceived struct {
	Message RawMessage
}

func (ConnectionOpened) EventName() string   { return "connection.open" }
func (ConnectionClosed) EventName() string   { return "connection.close" }
func (CredentialsUpdated) EventName() string { return "creds.update" }
func (MessageReceived) EventName() string    { return "messages.upsert" }

// Message kinds as named by the network protocol. Only the first four are
// forwarded to the decision service.
const (
	KindConversation    = "conversation"
	KindExtendedText    = "extendedTextMessage"
	KindImage           = "imageMessage"
	KindButtonsResponse = "buttonsResponseMessage"
)

// RawMessage is an inbound message as received, before normalization.
type RawMessage struct {
	ID        string
	Chat      string
	Sender    string
	PushName  string
	FromMe    bool
	HasBody   bool
	Kind      string
	Timestamp int64

	Text             string
	Caption          string
	SelectedButtonID string
	Media            MediaSource
}
