package whatsapp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func newMessageEvent(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("5511999999999", types.DefaultUserServer),
				Sender: types.NewJID("5511999999999", types.DefaultUserServer),
			},
			ID:        "3EB0ABCDEF",
			PushName:  "Maria",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: msg,
	}
}

func TestRawFromEvent_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		msg      *waE2E.Message
		wantKind string
		check    func(t *testing.T, raw RawMessage)
	}{
		{
			name:     "conversation",
			msg:      &waE2E.Message{Conversation: proto.String("oi")},
			wantKind: KindConversation,
			check: func(t *testing.T, raw RawMessage) {
				assert.Equal(t, "oi", raw.Text)
			},
		},
		{
			name: "extended text",
			msg: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("link https://example.com"),
			}},
			wantKind: KindExtendedText,
			check: func(t *testing.T, raw RawMessage) {
				assert.Equal(t, "link https://example.com", raw.Text)
			},
		},
		{
			name: "buttons response",
			msg: &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
				SelectedButtonID: proto.String("btn_yes"),
			}},
			wantKind: KindButtonsResponse,
			check: func(t *testing.T, raw RawMessage) {
				assert.Equal(t, "btn_yes", raw.SelectedButtonID)
			},
		},
		{
			name:     "sticker is unsupported",
			msg:      &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			wantKind: "stickerMessage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawFromEvent(newMessageEvent(tt.msg), nil)
			assert.True(t, raw.HasBody)
			assert.Equal(t, tt.wantKind, raw.Kind)
			assert.Equal(t, "5511999999999@s.whatsapp.net", raw.Chat)
			assert.Equal(t, "Maria", raw.PushName)
			assert.Equal(t, int64(1700000000), raw.Timestamp)
			if tt.check != nil {
				tt.check(t, raw)
			}
		})
	}
}

func TestRawFromEvent_ImageUsesDownloader(t *testing.T) {
	var requested *waE2E.ImageMessage
	download := func(img *waE2E.ImageMessage) MediaSource {
		requested = img
		return MediaFunc(func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("jpeg")), nil
		})
	}

	evt := newMessageEvent(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("nota fiscal")}})
	raw := rawFromEvent(evt, download)

	assert.Equal(t, KindImage, raw.Kind)
	assert.Equal(t, "nota fiscal", raw.Caption)
	require.NotNil(t, raw.Media)
	assert.Same(t, evt.Message.ImageMessage, requested)

	rc, err := raw.Media.Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestRawFromEvent_NoBody(t *testing.T) {
	raw := rawFromEvent(newMessageEvent(nil), nil)
	assert.False(t, raw.HasBody)
	assert.Empty(t, raw.Kind)
}

func TestBuildButtonsMessage(t *testing.T) {
	msg := buildButtonsMessage(ButtonsMessage{
		Text:   "Confirma o pedido?",
		Footer: "Loja",
		Buttons: []Button{
			{DisplayText: "Sim", ID: "yes"},
			{DisplayText: "Não", ID: "no"},
		},
	})

	assert.Equal(t, "Confirma o pedido?", msg.GetContentText())
	assert.Equal(t, "Loja", msg.GetFooterText())
	require.Len(t, msg.GetButtons(), 2)
	assert.Equal(t, "yes", msg.GetButtons()[0].GetButtonID())
	assert.Equal(t, "Sim", msg.GetButtons()[0].GetButtonText().GetDisplayText())
	assert.Equal(t, "no", msg.GetButtons()[1].GetButtonID())
}

func TestDisconnectReason(t *testing.T) {
	assert.True(t, ReasonLoggedOut.IsLoggedOut())
	assert.False(t, ReasonConnectionLost.IsLoggedOut())
	assert.Equal(t, "stream_replaced", ReasonStreamReplaced.String())
}

func TestTranslate_ConnectionLossEvents(t *testing.T) {
	c := &meowClient{}

	tests := []struct {
		name   string
		evt    interface{}
		reason DisconnectReason
	}{
		{"temporary ban", &events.TemporaryBan{Code: events.TempBanSentToTooManyPeople, Expire: time.Hour}, ReasonTemporaryBan},
		{"client outdated", &events.ClientOutdated{}, ReasonClientOutdated},
		{"cat refresh", &events.CATRefreshError{Error: errors.New("401")}, ReasonCATRefresh},
		{"keepalive dead", &events.KeepAliveTimeout{ErrorCount: 40, LastSuccess: time.Now().Add(-10 * time.Minute)}, ReasonConnectionLost},
		{"stream replaced", &events.StreamReplaced{}, ReasonStreamReplaced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.translate(tt.evt).(ConnectionClosed)
			require.True(t, ok, "got %#v", c.translate(tt.evt))
			assert.Equal(t, tt.reason, got.Reason)
			assert.NotEmpty(t, got.Detail)
		})
	}
}

func TestTranslate_RecentKeepAliveFailureIsIgnored(t *testing.T) {
	c := &meowClient{}
	assert.Nil(t, c.translate(&events.KeepAliveTimeout{ErrorCount: 1, LastSuccess: time.Now().Add(-30 * time.Second)}))
	assert.Nil(t, c.translate(&events.KeepAliveRestored{}))
}

func TestDisconnectReason_IsConnectFailure(t *testing.T) {
	for _, r := range []DisconnectReason{ReasonConnectFailure, ReasonTemporaryBan, ReasonClientOutdated, ReasonCATRefresh} {
		assert.True(t, r.IsConnectFailure(), r.String())
	}
	for _, r := range []DisconnectReason{ReasonConnectionLost, ReasonStreamReplaced, ReasonLoggedOut} {
		assert.False(t, r.IsConnectFailure(), r.String())
	}
	assert.Equal(t, "temporary_ban", ReasonTemporaryBan.String())
}
