// Package server exposes the chess hub over HTTP: a plain status query and a
// WebSocket endpoint whose query string selects create, join or reconnect.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/internal/config"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/protocol"
	"github.com/park285/cheese-chess-server/internal/sockets"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Server struct {
	cfg   *config.AppConfig
	hub   *protocol.Hub
	reg   *sockets.Registry
	texts *msgcat.Catalog

	// parent of every connection context; cancelled last on shutdown
	baseCtx    context.Context
	baseCancel context.CancelFunc
	conns      sync.WaitGroup

	srvMu sync.Mutex
	srv   *http.Server
}

func New(cfg *config.AppConfig, hub *protocol.Hub, reg *sockets.Registry, texts *msgcat.Catalog) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{cfg: cfg, hub: hub, reg: reg, texts: texts, baseCtx: ctx, baseCancel: cancel}
}

// Handler routes WebSocket upgrades and plain GET requests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORS(w.Header())
		switch {
		case isWebSocketRequest(r):
			s.handleSocket(w, r)
		case r.Header.Get("Upgrade") == "":
			s.handleStatus(w, r)
		default:
			s.text(w, http.StatusBadRequest, "status.websocket_only")
		}
	})
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	obslog.L().Info("http_listen", zap.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every WebSocket with GoingAway,
// waits for their handlers and stops all lobby monitors. Connections still
// open when ctx expires are dropped without a close handshake.
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.reg.CloseAll(sockets.ReasonShutdown)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	s.baseCancel()
	s.hub.Lobbies().Close()
	obslog.L().Info("http_shutdown")
	return err
}

func isWebSocketRequest(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func (s *Server) setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		s.text(w, http.StatusMethodNotAllowed, "status.method_not_allowed")
		return
	}
	q := r.URL.Query()
	switch {
	case r.URL.Path == "/" && len(q) == 0:
		s.text(w, http.StatusOK, "status.running")
	case q.Has("lobbyId"):
		if s.hub.Exists(q.Get("lobbyId")) {
			s.text(w, http.StatusOK, "status.lobby_exists")
		} else {
			s.text(w, http.StatusNotFound, "status.lobby_not_found")
		}
	default:
		s.text(w, http.StatusBadRequest, "status.invalid_request")
	}
}

func (s *Server) text(w http.ResponseWriter, status int, key string) {
	writePlain(w, status, s.texts.Text(key, nil, http.StatusText(status)))
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *Server) reject(w http.ResponseWriter, err error) {
	var de chessdto.DomainError
	if errors.As(err, &de) {
		writePlain(w, de.HTTPStatus(), de.Error())
		return
	}
	obslog.L().Error("handshake_failed", zap.Error(err))
	s.text(w, http.StatusInternalServerError, "status.internal")
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r.URL.Query())
	if err != nil {
		s.reject(w, err)
		return
	}
	if err := s.hub.Admit(entry); err != nil {
		s.reject(w, err)
		return
	}

	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	if s.cfg.CORSOrigin == "*" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = strings.Split(s.cfg.CORSOrigin, ",")
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	c.SetReadLimit(s.cfg.MaxMessageBytes)

	s.conns.Add(1)
	defer s.conns.Done()

	ctx, cancel := context.WithCancel(s.baseCtx)
	conn := newWSConn(c, cancel)
	go conn.writeLoop(ctx)
	go conn.pingLoop(ctx, s.cfg.WSPingInterval)

	sess, err := s.hub.Open(conn, entry)
	if err != nil {
		conn.Close("join failed")
		<-conn.done
		return
	}
	defer func() {
		s.hub.Close(sess)
		conn.Close("bye")
		<-conn.done
	}()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				obslog.L().Debug("ws_read_failed", zap.String("lobby_id", sess.LobbyID), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.hub.Handle(sess, data)
	}
}
