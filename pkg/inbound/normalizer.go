package inbound

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

// Message types forwarded to the decision service.
const (
	TypeConversation     = whatsapp.KindConversation
	TypeExtendedText     = whatsapp.KindExtendedText
	TypeImage            = whatsapp.KindImage
	TypeQuickReplyButton = "quickReplyButton"
)

// Message is the canonical payload POSTed to the decision service.
// ImageData is non-nil only for image messages.
type Message struct {
	SenderID    string  `json:"senderId"`
	PushName    string  `json:"pushName"`
	MessageType string  `json:"messageType"`
	Text        string  `json:"text"`
	ImageData   *string `json:"imageData"`
	Timestamp   int64   `json:"timestamp"`
}

type DropReason string

const (
	Forward         DropReason = ""
	DropNoBody      DropReason = "no_body"
	DropSelf        DropReason = "self"
	DropBroadcast   DropReason = "broadcast"
	DropUnsupported DropReason = "unsupported"
)

type Normalizer struct {
	ownID         func() string
	maxImageBytes int64
}

type Option func(*Normalizer)

// WithMaxImageBytes caps the drained image size; 0 means no limit.
func WithMaxImageBytes(n int64) Option {
	return func(nz *Normalizer) {
		nz.maxImageBytes = n
	}
}

// NewNormalizer builds a normalizer. ownID reports the bot's own address at
// the time of the call and may return "" before pairing.
func NewNormalizer(ownID func() string, opts ...Option) *Normalizer {
	if ownID == nil {
		ownID = func() string { return "" }
	}
	n := &Normalizer{ownID: ownID}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Filter applies the drop rules in order without touching any media.
func (n *Normalizer) Filter(raw whatsapp.RawMessage) DropReason {
	if !raw.HasBody {
		return DropNoBody
	}
	if raw.FromMe {
		return DropSelf
	}
	if own := n.ownID(); own != "" && whatsapp.UserPart(raw.Sender) == whatsapp.UserPart(own) {
		return DropSelf
	}
	if whatsapp.IsBroadcast(raw.Chat) {
		return DropBroadcast
	}
	switch raw.Kind {
	case whatsapp.KindConversation, whatsapp.KindExtendedText, whatsapp.KindImage, whatsapp.KindButtonsResponse:
		return Forward
	}
	return DropUnsupported
}

// Normalize converts raw into a Message. A non-empty DropReason means the
// event must not be forwarded. The only suspending step is draining an
// image; its failure is returned as an error and not retried.
func (n *Normalizer) Normalize(ctx context.Context, raw whatsapp.RawMessage) (Message, DropReason, error) {
	if reason := n.Filter(raw); reason != Forward {
		return Message{}, reason, nil
	}

	msg := Message{
		SenderID:    raw.Chat,
		PushName:    raw.PushName,
		MessageType: raw.Kind,
		Timestamp:   raw.Timestamp,
	}

	switch raw.Kind {
	case whatsapp.KindConversation, whatsapp.KindExtendedText:
		msg.Text = raw.Text
	case whatsapp.KindButtonsResponse:
		msg.MessageType = TypeQuickReplyButton
		msg.Text = raw.SelectedButtonID
	case whatsapp.KindImage:
		msg.Text = raw.Caption
		data, err := n.drain(ctx, raw.Media)
		if err != nil {
			return Message{}, Forward, fmt.Errorf("failed to read image from %s: %w", raw.Chat, err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		msg.ImageData = &encoded
	}
	return msg, Forward, nil
}

func (n *Normalizer) drain(ctx context.Context, src whatsapp.MediaSource) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("image has no media source")
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if n.maxImageBytes > 0 {
		r = io.LimitReader(rc, n.maxImageBytes+1)
	}

	var buf bytes.Buffer
	written, err := io.Copy(&buf, r)
	if err != nil {
		return nil, err
	}
	if n.maxImageBytes > 0 && written > n.maxImageBytes {
		return nil, fmt.Errorf("image too large: more than %d bytes", n.maxImageBytes)
	}
	return buf.Bytes(), nil
}
