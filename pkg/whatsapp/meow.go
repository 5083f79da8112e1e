package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type meowClient struct {
	cli         *whatsmeow.Client
	displayName string
}

func (c *meowClient) Connect(ctx context.Context) error {
	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *meowClient) Disconnect() {
	c.cli.Disconnect()
}

func (c *meowClient) IsRegistered() bool {
	return c.cli.Store.ID != nil
}

func (c *meowClient) OwnID() string {
	if id := c.cli.Store.ID; id != nil {
		return id.User
	}
	return ""
}

func (c *meowClient) PairPhone(ctx context.Context, phone string) (string, error) {
	code, err := c.cli.PairPhone(ctx, SanitizePhone(phone), true, whatsmeow.PairClientChrome, c.displayName)
	if err != nil {
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}
	return code, nil
}

func (c *meowClient) AddEventHandler(h EventHandler) uint32 {
	return c.cli.AddEventHandler(func(evt interface{}) {
		if e := c.translate(evt); e != nil {
			h(e)
		}
	})
}

func (c *meowClient) RemoveEventHandlers() {
	c.cli.RemoveEventHandlers()
}

func (c *meowClient) translate(evt interface{}) Event {
	switch v := evt.(type) {
	case *events.Connected:
		return ConnectionOpened{OwnID: c.OwnID()}
	case *events.PairSuccess:
		return CredentialsUpdated{}
	case *events.Disconnected:
		return ConnectionClosed{Reason: ReasonConnectionLost}
	case *events.StreamReplaced:
		return ConnectionClosed{Reason: ReasonStreamReplaced, Detail: "another client took over this session"}
	case *events.LoggedOut:
		return ConnectionClosed{Reason: ReasonLoggedOut, Detail: fmt.Sprint(v.Reason)}
	case *events.KeepAliveTimeout:
		// Auto-reconnect is off, so whatsmeow never drops a dead socket itself.
		if !v.LastSuccess.IsZero() && time.Since(v.LastSuccess) > whatsmeow.KeepAliveMaxFailTime {
			return ConnectionClosed{
				Reason: ReasonConnectionLost,
				Detail: fmt.Sprintf("keepalive failed %d times since %s", v.ErrorCount, v.LastSuccess.Format(time.RFC3339)),
			}
		}
		return nil
	case *events.TemporaryBan:
		return ConnectionClosed{Reason: ReasonTemporaryBan, Detail: v.String()}
	case *events.ClientOutdated:
		return ConnectionClosed{Reason: ReasonClientOutdated, Detail: "whatsapp rejected this client version"}
	case *events.CATRefreshError:
		return ConnectionClosed{Reason: ReasonCATRefresh, Detail: fmt.Sprint(v.Error)}
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return ConnectionClosed{Reason: ReasonLoggedOut, Detail: fmt.Sprint(v.Reason)}
		}
		return ConnectionClosed{Reason: ReasonConnectFailure, Detail: fmt.Sprint(v.Reason)}
	case *events.Message:
		return MessageReceived{Message: rawFromEvent(v, c.downloader)}
	}
	return nil
}

func (c *meowClient) downloader(img *waE2E.ImageMessage) MediaSource {
	return MediaFunc(func(ctx context.Context) (io.ReadCloser, error) {
		data, err := c.cli.Download(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// rawFromEvent flattens a whatsmeow message event. download is only invoked
// for image messages.
func rawFromEvent(evt *events.Message, download func(*waE2E.ImageMessage) MediaSource) RawMessage {
	raw := RawMessage{
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		HasBody:   evt.Message != nil,
		Timestamp: evt.Info.Timestamp.Unix(),
	}
	msg := evt.Message
	if msg == nil {
		return raw
	}

	switch {
	case msg.Conversation != nil:
		raw.Kind = KindConversation
		raw.Text = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		raw.Kind = KindExtendedText
		raw.Text = msg.GetExtendedTextMessage().GetText()
	case msg.ImageMessage != nil:
		raw.Kind = KindImage
		raw.Caption = msg.GetImageMessage().GetCaption()
		if download != nil {
			raw.Media = download(msg.GetImageMessage())
		}
	case msg.ButtonsResponseMessage != nil:
		raw.Kind = KindButtonsResponse
		raw.SelectedButtonID = msg.GetButtonsResponseMessage().GetSelectedButtonID()
	default:
		raw.Kind = unsupportedKind(msg)
	}
	return raw
}

func unsupportedKind(msg *waE2E.Message) string {
	switch {
	case msg.VideoMessage != nil:
		return "videoMessage"
	case msg.AudioMessage != nil:
		return "audioMessage"
	case msg.DocumentMessage != nil:
		return "documentMessage"
	case msg.StickerMessage != nil:
		return "stickerMessage"
	case msg.ReactionMessage != nil:
		return "reactionMessage"
	case msg.ProtocolMessage != nil:
		return "protocolMessage"
	default:
		return "unknown"
	}
}

func parseTarget(to string) (types.JID, error) {
	jid, err := types.ParseJID(NormalizeTarget(to))
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid target %q: %w", to, err)
	}
	return jid, nil
}

func (c *meowClient) send(ctx context.Context, to string, msg *waE2E.Message) error {
	jid, err := parseTarget(to)
	if err != nil {
		return err
	}
	if _, err := c.cli.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *meowClient) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
}

func (c *meowClient) SendImage(ctx context.Context, to string, data []byte, caption string) error {
	uploaded, err := c.cli.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	return c.send(ctx, to, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(http.DetectContentType(data)),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
		},
	})
}

func (c *meowClient) SendButtons(ctx context.Context, to string, msg ButtonsMessage) error {
	return c.send(ctx, to, &waE2E.Message{ButtonsMessage: buildButtonsMessage(msg)})
}

func buildButtonsMessage(msg ButtonsMessage) *waE2E.ButtonsMessage {
	buttons := make([]*waE2E.ButtonsMessage_Button, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		buttons = append(buttons, &waE2E.ButtonsMessage_Button{
			ButtonID: proto.String(b.ID),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{
				DisplayText: proto.String(b.DisplayText),
			},
			Type: waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}
	return &waE2E.ButtonsMessage{
		ContentText: proto.String(msg.Text),
		FooterText:  proto.String(msg.Footer),
		HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
		Buttons:     buttons,
	}
}

func (c *meowClient) SendPresence(ctx context.Context, to string, presence Presence) error {
	jid, err := parseTarget(to)
	if err != nil {
		return err
	}
	state := types.ChatPresencePaused
	if presence == PresenceComposing {
		state = types.ChatPresenceComposing
	}
	if err := c.cli.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText); err != nil {
		return fmt.Errorf("failed to send presence: %w", err)
	}
	return nil
}
