package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"nhooyr.io/websocket"
)

func startHTTP(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return ts
}

func get(t *testing.T, method, rawURL string, header http.Header) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, rawURL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header
}

func TestStatusEndpoint(t *testing.T) {
	ts := startHTTP(t, newTestServer(t))

	tests := []struct {
		name   string
		method string
		path   string
		header http.Header
		status int
		body   string
	}{
		{"root", http.MethodGet, "/", nil, http.StatusOK, "Chess server is running."},
		{"unknown lobby", http.MethodGet, "/?lobbyId=ZZZZZZ", nil, http.StatusNotFound, "Lobby not found."},
		{"other query", http.MethodGet, "/?foo=bar", nil, http.StatusBadRequest, "Invalid request."},
		{"post", http.MethodPost, "/", nil, http.StatusMethodNotAllowed, "Only GET method is allowed."},
		{"preflight", http.MethodOptions, "/", nil, http.StatusNoContent, ""},
		{"foreign upgrade", http.MethodGet, "/", http.Header{"Upgrade": {"irc"}}, http.StatusBadRequest,
			"Only websocket or http GET requests are allowed."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body, header := get(t, tc.method, ts.URL+tc.path, tc.header)
			if status != tc.status || body != tc.body {
				t.Fatalf("got %d %q, want %d %q", status, body, tc.status, tc.body)
			}
			if got := header.Get("Access-Control-Allow-Origin"); got != "*" {
				t.Fatalf("CORS origin = %q", got)
			}
		})
	}
}

func wsURL(ts *httptest.Server, q url.Values) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/?" + q.Encode()
}

func dial(t *testing.T, ts *httptest.Server, q url.Values) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(ts, q), nil)
	if err != nil {
		t.Fatalf("Dial(%v): %v", q, err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func read(t *testing.T, c *websocket.Conn) chessdto.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	msg, err := chessdto.Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s): %v", data, err)
	}
	return msg
}

func expectTag(t *testing.T, c *websocket.Conn, tag chessdto.Tag) chessdto.Message {
	t.Helper()
	msg := read(t, c)
	if msg.Tag != tag {
		t.Fatalf("got %s (%s), want %s", msg.Tag, msg.Payload, tag)
	}
	return msg
}

func write(t *testing.T, c *websocket.Conn, tag chessdto.Tag, payload any) {
	t.Helper()
	b, err := chessdto.Encode(tag, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func joined(t *testing.T, msg chessdto.Message) chessdto.JoinedPayload {
	t.Helper()
	var p chessdto.JoinedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func TestHandshakeRejectedBeforeUpgrade(t *testing.T) {
	ts := startHTTP(t, newTestServer(t))

	tests := []struct {
		name   string
		q      url.Values
		status int
	}{
		{"bad name", query("name", "ab"), http.StatusBadRequest},
		{"unknown lobby", query("name", "alice", "lobbyId", "ZZZZZZ"), http.StatusNotFound},
		{"bad board", query("name", "alice", "board", "not a position", "remaining", "0", "increment", "0"), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c, resp, err := websocket.Dial(ctx, wsURL(ts, tc.q), nil)
			if err == nil {
				_ = c.Close(websocket.StatusNormalClosure, "")
				t.Fatalf("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("expected HTTP %d, got %+v (%v)", tc.status, resp, err)
			}
		})
	}
}

func TestGameOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	ts := startHTTP(t, s)

	white := dial(t, ts, query("name", "alice", "board", "Standard", "remaining", "0", "increment", "0"))
	created := joined(t, expectTag(t, white, chessdto.TagCreated))
	if len(created.LobbyID) != lobbyIDLength || created.Player.Token == "" {
		t.Fatalf("unexpected CREATED %+v", created)
	}

	status, body, _ := get(t, http.MethodGet, ts.URL+"/?lobbyId="+strings.ToLower(created.LobbyID), nil)
	if status != http.StatusOK || body != "Lobby is exist." {
		t.Fatalf("status query got %d %q", status, body)
	}

	black := dial(t, ts, query("name", "bob", "lobbyId", created.LobbyID))
	expectTag(t, black, chessdto.TagConnected)
	expectTag(t, black, chessdto.TagStarted)
	expectTag(t, white, chessdto.TagStarted)

	write(t, white, chessdto.TagMoved, chessdto.MovedPayload{From: 53, To: 37})
	moved := expectTag(t, black, chessdto.TagMoved)
	var mp chessdto.MovedPayload
	if err := json.Unmarshal(moved.Payload, &mp); err != nil || mp.From != 53 || mp.To != 37 {
		t.Fatalf("MOVED payload %s (%v)", moved.Payload, err)
	}

	// out of turn
	write(t, white, chessdto.TagMoved, chessdto.MovedPayload{From: 52, To: 36})
	expectTag(t, white, chessdto.TagError)

	// the seat is online, so a second connection with the same token is refused
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL(ts, query("token", created.Player.Token, "lobbyId", created.LobbyID)), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for online reconnect, got %+v (%v)", resp, err)
	}

	write(t, black, chessdto.TagResigned, nil)
	expectTag(t, white, chessdto.TagResigned)
	finished := expectTag(t, white, chessdto.TagFinished)
	if !strings.Contains(string(finished.Payload), "White") {
		t.Fatalf("FINISHED payload %s", finished.Payload)
	}
}

func TestDisconnectNotifiesOpponent(t *testing.T) {
	s := newTestServer(t)
	ts := startHTTP(t, s)

	white := dial(t, ts, query("name", "alice", "board", "Standard", "remaining", "0", "increment", "0"))
	created := joined(t, expectTag(t, white, chessdto.TagCreated))
	black := dial(t, ts, query("name", "bob", "lobbyId", created.LobbyID))
	expectTag(t, black, chessdto.TagConnected)
	expectTag(t, black, chessdto.TagStarted)
	expectTag(t, white, chessdto.TagStarted)

	if err := white.Close(websocket.StatusNormalClosure, "leaving"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectTag(t, black, chessdto.TagDisconnected)

	again := dial(t, ts, query("token", created.Player.Token, "lobbyId", created.LobbyID))
	expectTag(t, again, chessdto.TagConnected)
	expectTag(t, again, chessdto.TagStarted)
	expectTag(t, black, chessdto.TagReconnected)
}

func TestShutdownClosesSockets(t *testing.T) {
	s := newTestServer(t)
	ts := startHTTP(t, s)

	c := dial(t, ts, query("name", "alice", "board", "Standard", "remaining", "0", "increment", "0"))
	expectTag(t, c, chessdto.TagCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	_, _, err := c.Read(rctx)
	var ce websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.StatusGoingAway {
		t.Fatalf("expected GoingAway close, got %v", err)
	}
	if s.hub.Lobbies().Len() != 0 {
		t.Fatalf("lobbies left after shutdown: %d", s.hub.Lobbies().Len())
	}
}
