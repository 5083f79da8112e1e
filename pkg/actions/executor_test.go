package actions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp/whatsapptest"
)

type staticSource struct {
	sender whatsapp.Sender
	err    error
}

func (s staticSource) Sender() (whatsapp.Sender, error) {
	return s.sender, s.err
}

func newTestExecutor(client *whatsapptest.Client, trace *whatsapptest.Trace) *Executor {
	return NewExecutor(staticSource{sender: client}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		trace.Add("sleep:%d", d.Milliseconds())
		return nil
	}))
}

const target = "5511988887777@s.whatsapp.net"

func TestExecute_TextWithoutDelay(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{{Type: TypeText, Content: "hi"}}, target)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "text", calls[0].Method)
	assert.Equal(t, target, calls[0].To)
	assert.Equal(t, "hi", calls[0].Text)
	assert.Empty(t, client.CallsOf("presence"))

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusSent, result.Outcomes[0].Status)
	assert.NotEmpty(t, result.ID)
	assert.NoError(t, result.Err())
}

func TestExecute_DelaySimulatesTypingInOrder(t *testing.T) {
	trace := &whatsapptest.Trace{}
	client := whatsapptest.NewClient()
	client.Trace = trace
	exec := newTestExecutor(client, trace)

	exec.Execute(context.Background(), []Action{{Type: TypeText, Content: "typing...", Delay: 500}}, target)

	assert.Equal(t, []string{
		"presence:composing:" + target,
		"sleep:500",
		"presence:paused:" + target,
		"text:" + target,
	}, trace.Entries())
}

func TestExecute_DelayIgnoredForSendToTarget(t *testing.T) {
	trace := &whatsapptest.Trace{}
	client := whatsapptest.NewClient()
	client.Trace = trace
	exec := newTestExecutor(client, trace)

	exec.Execute(context.Background(), []Action{{
		Type:    TypeSendToTarget,
		Content: "novo pedido",
		Target:  "5511977776666@s.whatsapp.net",
		Delay:   1000,
	}}, target)

	assert.Equal(t, []string{"text:5511977776666@s.whatsapp.net"}, trace.Entries())
}

func TestExecute_FailureIsIsolated(t *testing.T) {
	client := whatsapptest.NewClient()
	client.SendErr = func(call whatsapptest.Call) error {
		if call.Text == "boom" {
			return errors.New("socket closed")
		}
		return nil
	}
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{
		{Type: TypeText, Content: "boom"},
		{Type: TypeText, Content: "still sent"},
	}, target)

	texts := client.CallsOf("text")
	require.Len(t, texts, 2)
	assert.Equal(t, "still sent", texts[1].Text)

	assert.Equal(t, StatusFailed, result.Outcomes[0].Status)
	assert.Equal(t, StatusSent, result.Outcomes[1].Status)
	assert.Equal(t, 1, result.Failed())
	assert.ErrorContains(t, result.Err(), "socket closed")
}

func TestExecute_MalformedActionFailsAlone(t *testing.T) {
	var batch Batch
	require.NoError(t, json.Unmarshal([]byte(`[
		{"type": "text", "content": "first", "delay": "500"},
		{"type": "text", "content": "second", "delay": {"ms": 1}},
		{"type": "text", "content": "third"}
	]`), &batch))

	trace := &whatsapptest.Trace{}
	client := whatsapptest.NewClient()
	client.Trace = trace
	result := newTestExecutor(client, trace).Execute(context.Background(), batch, target)

	texts := client.CallsOf("text")
	require.Len(t, texts, 2)
	assert.Equal(t, "first", texts[0].Text)
	assert.Equal(t, "third", texts[1].Text)
	assert.Contains(t, trace.Entries(), "sleep:500")

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, StatusFailed, result.Outcomes[1].Status)
	assert.ErrorIs(t, result.Outcomes[1].Err, ErrMalformed)
	assert.Equal(t, TypeText, result.Outcomes[1].Type)
	assert.Equal(t, 2, result.Sent())
}

func TestExecute_TargetResolution(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{
		{Type: TypeText, Content: "to default"},
		{Type: TypeText, Content: "to override", Target: "5511900001111@s.whatsapp.net"},
	}, target)

	texts := client.CallsOf("text")
	require.Len(t, texts, 2)
	assert.Equal(t, target, texts[0].To)
	assert.Equal(t, "5511900001111@s.whatsapp.net", texts[1].To)
	assert.Equal(t, 2, result.Sent())
}

func TestExecute_NoTargetIsSkipped(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{
		{Type: TypeText, Content: "nowhere"},
		{Type: TypeText, Content: "somewhere", Target: target},
	}, "")

	require.Len(t, client.Calls(), 1)
	assert.Equal(t, StatusSkipped, result.Outcomes[0].Status)
	assert.ErrorIs(t, result.Outcomes[0].Err, ErrNoTarget)
	assert.Equal(t, StatusSent, result.Outcomes[1].Status)
}

func TestExecute_UnknownTypeIsSkipped(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{
		{Type: "video", Content: "x", Delay: 300},
		{Type: TypeText, Content: "after"},
	}, target)

	assert.Empty(t, client.CallsOf("presence"))
	assert.Len(t, client.CallsOf("text"), 1)
	assert.Equal(t, StatusSkipped, result.Outcomes[0].Status)
	assert.ErrorIs(t, result.Outcomes[0].Err, ErrUnknownType)
}

func TestExecute_Image(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)
	payload := []byte{0x89, 'P', 'N', 'G'}

	exec.Execute(context.Background(), []Action{
		{Type: TypeImage, Content: base64.StdEncoding.EncodeToString(payload), Caption: "comprovante"},
		{Type: TypeImage, Content: base64.StdEncoding.EncodeToString(payload)},
	}, target)

	images := client.CallsOf("image")
	require.Len(t, images, 2)
	assert.Equal(t, payload, images[0].Data)
	assert.Equal(t, "comprovante", images[0].Caption)
	assert.Equal(t, "", images[1].Caption)
}

func TestExecute_InvalidImageFailsWithoutPresence(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{{Type: TypeImage, Content: "%%%not base64", Delay: 200}}, target)

	assert.Empty(t, client.Calls())
	assert.Equal(t, StatusFailed, result.Outcomes[0].Status)
}

func TestExecute_QuickReply(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	exec.Execute(context.Background(), []Action{{
		Type:    TypeQuickReply,
		Content: "Escolha uma opção",
		Buttons: []Button{{Text: "Cardápio", ID: "menu"}, {Text: "Atendente", ID: "human"}},
	}}, target)

	buttons := client.CallsOf("buttons")
	require.Len(t, buttons, 1)
	msg := buttons[0].Buttons
	assert.Equal(t, "Escolha uma opção", msg.Text)
	assert.Equal(t, "", msg.Footer)
	assert.Equal(t, []whatsapp.Button{
		{DisplayText: "Cardápio", ID: "menu"},
		{DisplayText: "Atendente", ID: "human"},
	}, msg.Buttons)
}

func TestExecute_QuickReplyWithoutButtonsFails(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := newTestExecutor(client, nil)

	result := exec.Execute(context.Background(), []Action{{Type: TypeQuickReply, Content: "?"}}, target)

	assert.Empty(t, client.Calls())
	assert.ErrorIs(t, result.Outcomes[0].Err, ErrNoButtons)
}

func TestExecute_SessionGoneFailsEachAction(t *testing.T) {
	exec := NewExecutor(staticSource{err: errors.New("not connected")})

	result := exec.Execute(context.Background(), []Action{
		{Type: TypeText, Content: "a"},
		{Type: TypeText, Content: "b"},
	}, target)

	assert.Equal(t, 2, result.Failed())
}

func TestExecute_CanceledDelay(t *testing.T) {
	client := whatsapptest.NewClient()
	exec := NewExecutor(staticSource{sender: client})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := exec.Execute(ctx, []Action{{Type: TypeText, Content: "late", Delay: 60000}}, target)

	assert.Equal(t, StatusFailed, result.Outcomes[0].Status)
	assert.ErrorIs(t, result.Outcomes[0].Err, context.Canceled)
	assert.Empty(t, client.CallsOf("text"))
}

type panickySender struct{ whatsapp.Sender }

func (panickySender) SendText(ctx context.Context, to, text string) error {
	panic("nil pointer in transport")
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	exec := NewExecutor(staticSource{sender: panickySender{}})

	result := exec.Execute(context.Background(), []Action{{Type: TypeText, Content: "x"}}, target)

	assert.Equal(t, StatusFailed, result.Outcomes[0].Status)
	assert.ErrorContains(t, result.Outcomes[0].Err, "panic")
}

func TestDecodeImage(t *testing.T) {
	raw := []byte("hello image")
	std := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"padded", std, false},
		{"unpadded", base64.RawStdEncoding.EncodeToString(raw), false},
		{"data uri", "data:image/png;base64," + std, false},
		{"empty", "", true},
		{"garbage", "!!!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeImage(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}
}
