// Package sockets tracks the single live connection of every seat.
package sockets

import (
	"strings"
	"sync"

	"github.com/park285/cheese-chess-server/internal/obslog"
	"go.uber.org/zap"
)

// Close reasons understood by connection implementations.
const (
	ReasonSuperseded = "superseded"
	ReasonShutdown   = "server shutting down"
)

// Conn is an outbound message sink. Send must not block on the network.
type Conn interface {
	Send(frame []byte) error
	Close(reason string)
}

type key struct {
	lobby string
	token string
}

// Registry maps (lobby, token) to the connection currently serving it.
type Registry struct {
	mu    sync.RWMutex
	conns map[key]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[key]Conn)}
}

func newKey(lobbyID, token string) key {
	return key{lobby: strings.ToUpper(strings.TrimSpace(lobbyID)), token: strings.TrimSpace(token)}
}

// Add registers c and returns the connection it superseded, if any.
func (r *Registry) Add(lobbyID, token string, c Conn) Conn {
	k := newKey(lobbyID, token)
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[k]
	r.conns[k] = c
	if prev != nil && prev != c {
		obslog.L().Info("socket_superseded", zap.String("lobby_id", k.lobby))
		return prev
	}
	return nil
}

// Remove drops the entry only while c is still the registered connection.
func (r *Registry) Remove(lobbyID, token string, c Conn) bool {
	k := newKey(lobbyID, token)
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[k]; !ok || cur != c {
		return false
	}
	delete(r.conns, k)
	return true
}

func (r *Registry) Get(lobbyID, token string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[newKey(lobbyID, token)]
	return c, ok
}

// IsCurrent reports whether c is the registered connection for its seat.
// Messages from a superseded connection are dropped by callers.
func (r *Registry) IsCurrent(lobbyID, token string, c Conn) bool {
	cur, ok := r.Get(lobbyID, token)
	return ok && cur == c
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection and empties the registry.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[key]Conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close(reason)
	}
}
