package lobby

import (
	"context"
	"time"

	"github.com/park285/cheese-chess-server/internal/obslog"
	"go.uber.org/zap"
)

// monitor is the per-game flag-fall watcher.
type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// MonitorActive reports whether a flag-fall monitor is running for the
// current game.
func (l *Lobby) MonitorActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.monitor != nil
}

func (l *Lobby) startMonitorLocked() {
	l.stopMonitorLocked()
	if l.engine == nil || !l.engine.Timed() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{cancel: cancel, done: make(chan struct{})}
	l.monitor = m
	go l.watch(ctx, m)
}

// stopMonitorLocked cancels the watcher without waiting for it; the watcher
// may itself be the caller.
func (l *Lobby) stopMonitorLocked() {
	if l.monitor == nil {
		return
	}
	l.monitor.cancel()
	l.monitor = nil
}

func (l *Lobby) watch(ctx context.Context, m *monitor) {
	defer close(m.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		fell := false
		l.Exclusive(func() {
			status, ok := l.CheckTimeout()
			if !ok {
				return
			}
			fell = true
			obslog.L().Info("flag_fall", zap.String("lobby_id", l.id), zap.String("status", string(status)))
			if l.onExpire != nil {
				l.onExpire(l, status)
			}
		})
		if fell {
			return
		}
	}
}
