package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhaopengme/hiperboot/pkg/actions"
	"github.com/zhaopengme/hiperboot/pkg/bus"
	"github.com/zhaopengme/hiperboot/pkg/config"
	"github.com/zhaopengme/hiperboot/pkg/logger"
	"github.com/zhaopengme/hiperboot/pkg/session"
)

var ErrNotConnected = session.ErrNotConnected

const (
	EventsPath = "/relay-events"
	HealthPath = "/healthz"

	maxBodyBytes = 32 << 20
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

type actionRequest struct {
	Actions   actions.Batch `json:"actions"`
	TargetJID string        `json:"target_jid"`
}

type reply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type health struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	OwnID     string `json:"own_id,omitempty"`
}

// Feed is the status stream served on the events endpoint.
type Feed interface {
	bus.Subscriber
	Last() (bus.StatusEvent, bool)
}

// Server is the operator-port HTTP surface: the action push endpoint, the
// status websocket and a health probe.
type Server struct {
	addr     string
	path     string
	holder   *session.Holder
	executor BatchExecutor
	feed     Feed
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

func NewServer(cfg config.APIConfig, holder *session.Holder, executor BatchExecutor, feed Feed) *Server {
	path := cfg.Path
	if path == "" {
		path = config.DefaultActionPath
	}
	return &Server{
		addr:     cfg.Addr(),
		path:     path,
		holder:   holder,
		executor: executor,
		feed:     feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleActions)
	mux.HandleFunc(HealthPath, s.handleHealth)
	if s.feed != nil {
		mux.HandleFunc(EventsPath, s.handleEvents)
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		logger.InfoCF("gateway", "Relay action endpoint listening", map[string]interface{}{
			"addr": ln.Addr().String(),
			"path": s.path,
		})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("gateway", "HTTP server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return nil
}

// Addr is the bound address once started, the configured one otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	logger.InfoC("gateway", "HTTP server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("gateway", "Action dispatch panic", map[string]interface{}{
				"panic": fmt.Sprint(rec),
			})
			writeJSON(w, http.StatusInternalServerError, reply{Status: "error", Message: "failed to send messages through the bot"})
		}
	}()

	var req actionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		logger.WarnCF("gateway", "Malformed action request", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusBadRequest, reply{Status: "error", Message: "invalid request body"})
		return
	}
	if len(req.Actions) == 0 {
		writeJSON(w, http.StatusBadRequest, reply{Status: "error", Message: "no actions provided"})
		return
	}

	if _, err := s.holder.Sender(); err != nil {
		logger.WarnCF("gateway", "Action request rejected", map[string]interface{}{
			"state":   s.holder.State().String(),
			"actions": len(req.Actions),
		})
		writeJSON(w, http.StatusInternalServerError, reply{Status: "error", Message: "whatsapp bot is not connected"})
		return
	}

	logger.InfoCF("gateway", "Action batch received", map[string]interface{}{
		"actions":    len(req.Actions),
		"target_jid": req.TargetJID,
		"remote":     r.RemoteAddr,
	})

	// Every action is attempted even if the caller hangs up.
	s.executor.Execute(context.WithoutCancel(r.Context()), req.Actions, req.TargetJID)
	writeJSON(w, http.StatusOK, reply{Status: "success", Message: "messages processed for sending"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok", State: s.holder.State().String()}
	if sess := s.holder.Current(); sess != nil {
		h.SessionID = sess.ID
		h.OwnID = sess.OwnID()
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("gateway", "Websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	defer conn.Close()

	id, events := s.feed.Subscribe(32)
	defer s.feed.Unsubscribe(id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(evt bus.StatusEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(evt)
	}

	if last, ok := s.feed.Last(); ok {
		if err := send(last); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := send(evt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
