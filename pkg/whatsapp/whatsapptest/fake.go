// Package whatsapptest provides an in-memory whatsapp.Client for tests.
package whatsapptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

type Call struct {
	Method   string
	To       string
	Text     string
	Caption  string
	Data     []byte
	Buttons  whatsapp.ButtonsMessage
	Presence whatsapp.Presence
}

// Trace is an ordered log shared between fakes, e.g. a client and a test
// sleeper, to assert interleaving.
type Trace struct {
	mu      sync.Mutex
	entries []string
}

func (t *Trace) Add(format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, fmt.Sprintf(format, args...))
}

func (t *Trace) Entries() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.entries))
	copy(out, t.entries)
	return out
}

type Client struct {
	Registered bool
	Own        string
	PairCode   string
	ConnectErr error
	PairErr    error
	// SendErr, when set, decides the result of every send and presence call.
	SendErr func(Call) error
	Trace   *Trace

	mu          sync.Mutex
	calls       []Call
	handlers    map[uint32]whatsapp.EventHandler
	nextID      uint32
	connects    int
	disconnects int
	pairedWith  []string
}

var _ whatsapp.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		Registered: true,
		Own:        "5511900000000",
		PairCode:   "ABCD-EFGH",
		handlers:   make(map[uint32]whatsapp.EventHandler),
	}
}

func (c *Client) record(call Call) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	sendErr := c.SendErr
	c.mu.Unlock()

	switch call.Method {
	case "presence":
		c.Trace.Add("presence:%s:%s", call.Presence, call.To)
	default:
		c.Trace.Add("%s:%s", call.Method, call.To)
	}
	if sendErr != nil {
		return sendErr(call)
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.record(Call{Method: "text", To: to, Text: text})
}

func (c *Client) SendImage(ctx context.Context, to string, data []byte, caption string) error {
	return c.record(Call{Method: "image", To: to, Data: data, Caption: caption})
}

func (c *Client) SendButtons(ctx context.Context, to string, msg whatsapp.ButtonsMessage) error {
	return c.record(Call{Method: "buttons", To: to, Text: msg.Text, Buttons: msg})
}

func (c *Client) SendPresence(ctx context.Context, to string, presence whatsapp.Presence) error {
	return c.record(Call{Method: "presence", To: to, Presence: presence})
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.ConnectErr
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *Client) IsRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Registered
}

func (c *Client) OwnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Registered {
		return ""
	}
	return c.Own
}

func (c *Client) PairPhone(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairedWith = append(c.pairedWith, phone)
	if c.PairErr != nil {
		return "", c.PairErr
	}
	return c.PairCode, nil
}

func (c *Client) AddEventHandler(h whatsapp.EventHandler) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[c.nextID] = h
	return c.nextID
}

func (c *Client) RemoveEventHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[uint32]whatsapp.EventHandler)
}

// Emit delivers evt to every registered handler, in registration order.
func (c *Client) Emit(evt whatsapp.Event) {
	c.mu.Lock()
	handlers := make([]whatsapp.EventHandler, 0, len(c.handlers))
	for id := uint32(1); id <= c.nextID; id++ {
		if h, ok := c.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *Client) CallsOf(method string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (c *Client) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *Client) PairedWith() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pairedWith...)
}

// Factory hands out clients built by New, one per NewClient call.
type Factory struct {
	New func(n int) *Client
	Err error

	mu      sync.Mutex
	clients []*Client
}

var _ whatsapp.Factory = (*Factory)(nil)

func (f *Factory) NewClient(ctx context.Context) (whatsapp.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var c *Client
	if f.New != nil {
		c = f.New(len(f.clients))
	} else {
		c = NewClient()
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

func (f *Factory) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

// CredentialStore counts Clear and Flush calls.
type CredentialStore struct {
	ClearErr error
	FlushErr error

	mu      sync.Mutex
	clears  int
	flushes int
}

var _ whatsapp.CredentialStore = (*CredentialStore)(nil)

func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return s.ClearErr
}

func (s *CredentialStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.FlushErr
}

func (s *CredentialStore) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *CredentialStore) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
