package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/hiperboot/pkg/bus"
	"github.com/zhaopengme/hiperboot/pkg/config"
	"github.com/zhaopengme/hiperboot/pkg/session"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp/whatsapptest"
)

func newTestServer(holder *session.Holder, feed Feed) *Server {
	cfg := config.DefaultConfig()
	return NewServer(cfg.API, holder, newExecutor(holder), feed)
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, reply) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, config.DefaultActionPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestActions_Success(t *testing.T) {
	client := whatsapptest.NewClient()
	srv := newTestServer(openHolder(t, client), nil)

	rec, out := post(t, srv.Handler(), `{
		"target_jid": "5511988887777@s.whatsapp.net",
		"actions": [
			{"type": "text", "content": "Pedido confirmado"},
			{"type": "send_to_jid", "content": "Novo pedido", "target_jid": "5511977776666@s.whatsapp.net"}
		]
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "success", out.Status)

	sends := client.CallsOf("text")
	require.Len(t, sends, 2)
	assert.Equal(t, chatJID, sends[0].To)
	assert.Equal(t, "5511977776666@s.whatsapp.net", sends[1].To)
}

func TestActions_SuccessEvenWhenActionsFail(t *testing.T) {
	client := whatsapptest.NewClient()
	srv := newTestServer(openHolder(t, client), nil)

	rec, out := post(t, srv.Handler(), `{"actions":[{"type":"image_b64","content":"***"},{"type":"text","content":"ok"}],"target_jid":"5511988887777@s.whatsapp.net"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", out.Status)
	assert.Len(t, client.CallsOf("text"), 1)
	assert.Empty(t, client.CallsOf("image"))
}

func TestActions_MalformedElementDoesNotRejectBatch(t *testing.T) {
	client := whatsapptest.NewClient()
	srv := newTestServer(openHolder(t, client), nil)

	rec, out := post(t, srv.Handler(), `{
		"target_jid": "5511988887777@s.whatsapp.net",
		"actions": [
			{"type": "text", "content": "first", "delay": "500"},
			{"type": "text", "content": "bad", "delay": "soon"},
			{"type": "text", "content": "second"}
		]
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", out.Status)

	sends := client.CallsOf("text")
	require.Len(t, sends, 2)
	assert.Equal(t, "first", sends[0].Text)
	assert.Equal(t, "second", sends[1].Text)
}

func TestActions_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"actions": [`},
		{"missing actions", `{"target_jid": "5511988887777@s.whatsapp.net"}`},
		{"empty actions", `{"actions": []}`},
		{"null actions", `{"actions": null}`},
		{"actions not an array", `{"actions": "text"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := whatsapptest.NewClient()
			srv := newTestServer(openHolder(t, client), nil)

			rec, out := post(t, srv.Handler(), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", out.Status)
			assert.NotEmpty(t, out.Message)
			assert.Empty(t, client.Calls())
		})
	}
}

func TestActions_NotConnected(t *testing.T) {
	client := whatsapptest.NewClient()

	states := map[string]*session.Holder{
		"no session": session.NewHolder(),
	}
	for _, st := range []session.State{session.StateConnecting, session.StateAwaitingPairing, session.StateClosedRecoverable, session.StateClosedTerminal} {
		holder := session.NewHolder()
		sess := session.New(client)
		sess.SetOwnID(ownJID)
		sess.SetState(st)
		holder.Replace(sess)
		states[st.String()] = holder
	}

	for name, holder := range states {
		t.Run(name, func(t *testing.T) {
			rec, out := post(t, newTestServer(holder, nil).Handler(), `{"actions":[{"type":"text","content":"hi"}],"target_jid":"5511988887777@s.whatsapp.net"}`)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "error", out.Status)
		})
	}
	assert.Empty(t, client.Calls())
}

func TestActions_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(session.NewHolder(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, config.DefaultActionPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(openHolder(t, whatsapptest.NewClient()), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))

	var h health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open", h.State)
	assert.Equal(t, ownJID, h.OwnID)
	assert.NotEmpty(t, h.SessionID)
}

func TestEvents_StreamsStatus(t *testing.T) {
	statusBus := bus.NewStatusBus()
	statusBus.Publish(bus.StatusEvent{Type: bus.EventState, State: "connecting"})

	srv := newTestServer(session.NewHolder(), statusBus)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + EventsPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first bus.StatusEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "connecting", first.State)

	statusBus.Publish(bus.StatusEvent{Type: bus.EventState, State: "open", OwnID: ownJID})

	var second bus.StatusEvent
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "open", second.State)
	assert.Equal(t, ownJID, second.OwnID)
}

func TestServer_StartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	holder := openHolder(t, whatsapptest.NewClient())
	srv := NewServer(cfg.API, holder, newExecutor(holder), nil)

	require.NoError(t, srv.Start())
	resp, err := http.Get("http://" + srv.Addr() + HealthPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(t.Context()))
	require.NoError(t, srv.Stop(t.Context()))
}
