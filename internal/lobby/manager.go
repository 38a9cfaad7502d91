package lobby

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"go.uber.org/zap"
)

const (
	idLength   = 6
	idAttempts = 5
)

var errIDExhausted = errors.New("could not allocate a lobby id")

// Manager is the process-wide registry of live lobbies. Lock order: a
// lobby's Exclusive section before mu.
type Manager struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	opts    []Option
	idGen   func() (string, error)
}

type ManagerOption func(*Manager)

// WithLobbyOptions applies opts to every lobby the manager creates.
func WithLobbyOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// WithIDGenerator replaces the lobby id generator.
func WithIDGenerator(fn func() (string, error)) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.idGen = fn
		}
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{lobbies: make(map[string]*Lobby), idGen: codeGen}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates the position and registers an empty lobby under a fresh id.
func (m *Manager) Create(position string, durations *chess.Durations) (*Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.allocateLocked()
	if err != nil {
		return nil, err
	}
	l, err := New(id, position, durations, m.opts...)
	if err != nil {
		return nil, err
	}
	m.lobbies[id] = l
	obslog.L().Info("lobby_create", zap.String("lobby_id", id), zap.Int("lobbies", len(m.lobbies)))
	return l, nil
}

func (m *Manager) allocateLocked() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id, err := m.idGen()
		if err != nil {
			return "", err
		}
		if _, taken := m.lobbies[id]; !taken {
			return id, nil
		}
	}
	return "", errIDExhausted
}

// Get looks up a lobby; ids are matched case-insensitively.
func (m *Manager) Get(id string) (*Lobby, error) {
	id = normalizeID(id)
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

func (m *Manager) Exists(id string) bool {
	_, err := m.Get(id)
	return err == nil
}

// DeleteIfDead removes the lobby only when IsDead holds. The check runs
// inside the lobby's Exclusive section, so it cannot interleave with a join
// or reconnect; callers must not already be inside that section.
func (m *Manager) DeleteIfDead(id string) bool {
	l, err := m.Get(id)
	if err != nil {
		return false
	}
	deleted := false
	l.Exclusive(func() { deleted = m.deleteIfDead(l) })
	return deleted
}

func (m *Manager) deleteIfDead(l *Lobby) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lobbies[l.ID()] != l || !l.IsDead() {
		return false
	}
	l.Close()
	delete(m.lobbies, l.ID())
	obslog.L().Info("lobby_delete", zap.String("lobby_id", l.ID()), zap.Int("lobbies", len(m.lobbies)))
	return true
}

// Holds reports whether l is still the lobby registered under its id. Called
// inside l's Exclusive section, the answer holds until the section ends.
func (m *Manager) Holds(l *Lobby) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lobbies[l.ID()] == l
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lobbies)
}

// Close stops every lobby's background work and empties the registry.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.lobbies {
		l.Close()
		delete(m.lobbies, id)
	}
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// codeGen returns 6 upper alnum characters.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
