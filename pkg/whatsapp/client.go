// Package whatsapp is the relay's view of the chat network: a small
// capability surface over one authenticated session, plus the whatsmeow
// implementation of it.
package whatsapp

import (
	"context"
	"io"
)

type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

type Button struct {
	DisplayText string
	ID          string
}

type ButtonsMessage struct {
	Text    string
	Footer  string
	Buttons []Button
}

// Sender is the outbound half of a session. Targets are conversation
// identifiers; a bare phone number is treated as a user JID.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to string, data []byte, caption string) error
	SendButtons(ctx context.Context, to string, msg ButtonsMessage) error
	SendPresence(ctx context.Context, to string, presence Presence) error
}

type EventHandler func(Event)

// Client is one connection attempt against the network. A Client is never
// reused after it reported ConnectionClosed.
type Client interface {
	Sender

	Connect(ctx context.Context) error
	Disconnect()

	// IsRegistered reports whether the loaded credentials belong to a paired device.
	IsRegistered() bool
	// OwnID is the user part of the bot's own address, empty until paired.
	OwnID() string
	// PairPhone requests a pairing code for phone (digits only, with country code).
	PairPhone(ctx context.Context, phone string) (string, error)

	// AddEventHandler registers h. Handlers run sequentially on the client's
	// dispatcher, so a slow handler delays the next event.
	AddEventHandler(h EventHandler) uint32
	RemoveEventHandlers()
}

// Factory builds a fresh Client from the current credential state.
type Factory interface {
	NewClient(ctx context.Context) (Client, error)
}

// CredentialStore is the only contract the relay has with the on-disk
// credentials: wipe them entirely, or flush the latest state.
type CredentialStore interface {
	Clear() error
	Flush(ctx context.Context) error
}

// MediaSource yields the decrypted bytes of an attachment.
type MediaSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

type MediaFunc func(ctx context.Context) (io.ReadCloser, error)

func (f MediaFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}
