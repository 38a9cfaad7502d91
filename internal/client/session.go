package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"nhooyr.io/websocket"
)

var ErrNotConnected = errors.New("session not connected")

type callbackEntry struct {
	id       int
	callback MessageCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Session holds one seat. It learns its token from CREATED or CONNECTED and
// uses it to reconnect after the connection drops.
type Session struct {
	wsURL string

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	lobbyID string
	token   string

	writeM sync.Mutex

	msgCbs   []callbackEntry
	stateCbs []stateCallbackEntry
	nextCbID int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration
	dialTimeout          time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type SessionOption func(*Session)

// WithReconnect sets how many reconnect attempts follow a dropped
// connection. Zero disables reconnecting.
func WithReconnect(attempts int) SessionOption {
	return func(s *Session) { s.maxReconnectAttempts = attempts }
}

func WithPingInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.pingInterval = d }
}

func WithDialTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.dialTimeout = d }
}

// NewSession takes the server's ws(s) base URL.
func NewSession(wsURL string, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		wsURL:                wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		dialTimeout:          10 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LobbyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobbyID
}

// Token is empty until the server has seated this session.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Connect opens the connection described by p. A handshake rejection is
// returned as is; no reconnect is scheduled before a seat is known.
func (s *Session) Connect(ctx context.Context, p Params) error {
	if s.isStopping() {
		return ErrNotConnected
	}
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	if p.Token != "" {
		s.token, s.lobbyID = p.Token, p.LobbyID
	}
	s.mu.Unlock()

	s.setState(StateConnecting)
	conn, err := s.dial(ctx, p)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.run(conn)
	return nil
}

func (s *Session) dial(ctx context.Context, p Params) (*websocket.Conn, error) {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = p.query().Encode()

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	conn, resp, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected: status=%d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

func (s *Session) run(conn *websocket.Conn) {
	if s.isStopping() {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateConnected)

	connCtx, cancel := context.WithCancel(s.rootCtx)
	s.wg.Add(2)
	go s.listen(connCtx, cancel, conn)
	go s.pingLoop(connCtx, conn)
}

func (s *Session) listen(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer s.wg.Done()
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.lost(conn, err)
			return
		}
		msg, err := chessdto.Decode(data)
		if err != nil {
			continue
		}
		if msg.Tag == chessdto.TagCreated || msg.Tag == chessdto.TagConnected {
			var p chessdto.JoinedPayload
			if json.Unmarshal(msg.Payload, &p) == nil && p.Player.Token != "" {
				s.mu.Lock()
				s.lobbyID, s.token = p.LobbyID, p.Player.Token
				s.mu.Unlock()
			}
		}

		s.cbM.RLock()
		callbacks := make([]callbackEntry, len(s.msgCbs))
		copy(callbacks, s.msgCbs)
		s.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(msg)
			}
		}
	}
}

// lost handles a dropped connection. A session superseded by another
// connection for the same seat does not come back.
func (s *Session) lost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	p := Params{Token: s.token, LobbyID: s.lobbyID}
	s.mu.Unlock()

	if s.isStopping() {
		return
	}
	_ = conn.Close(websocket.StatusGoingAway, "reconnect")
	if websocket.CloseStatus(err) == websocket.StatusPolicyViolation || p.Token == "" || s.maxReconnectAttempts <= 0 {
		s.setState(StateDisconnected)
		return
	}
	s.scheduleReconnect(p)
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := conn.Ping(pctx)
		cancel()
		if err == nil {
			consecutivePingFailures = 0
			continue
		}
		consecutivePingFailures++
		if consecutivePingFailures >= 2 {
			// the reader sees the close and takes over
			_ = conn.Close(websocket.StatusGoingAway, "ping failure")
			return
		}
	}
}

func (s *Session) scheduleReconnect(p Params) {
	s.setState(StateReconnecting)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			conn, err := s.dial(s.rootCtx, p)
			if err != nil {
				continue
			}
			s.run(conn)
			return
		}
		s.setState(StateFailed)
	}()
}

// Send writes one [tag,payload] frame.
func (s *Session) Send(ctx context.Context, tag chessdto.Tag, payload any) error {
	frame, err := chessdto.Encode(tag, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Session) OnMessage(cb MessageCallback) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	s.msgCbs = append(s.msgCbs, callbackEntry{id: s.nextCbID, callback: cb})
	return s.nextCbID
}

func (s *Session) RemoveMessageCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, cb := range s.msgCbs {
		if cb.id == id {
			s.msgCbs = append(s.msgCbs[:i], s.msgCbs[i+1:]...)
			break
		}
	}
}

func (s *Session) OnStateChange(cb StateCallback) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	s.stateCbs = append(s.stateCbs, stateCallbackEntry{id: s.nextCbID, callback: cb})
	return s.nextCbID
}

func (s *Session) RemoveStateCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, cb := range s.stateCbs {
		if cb.id == id {
			s.stateCbs = append(s.stateCbs[:i], s.stateCbs[i+1:]...)
			break
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(s.stateCbs))
	copy(callbacks, s.stateCbs)
	s.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

// Close stops reconnecting, closes the connection and waits for the
// background goroutines.
func (s *Session) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.rootCancel()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.setState(StateClosed)
		return nil
	}
}

func (s *Session) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
