package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/sockets"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	sendQueueSize = 64
	writeTimeout  = 5 * time.Second
	pingTimeout   = 3 * time.Second
)

var errSendQueueFull = errors.New("send queue full")

// wsConn queues outbound frames for a single writer goroutine so that Send
// never blocks the caller.
type wsConn struct {
	c      *websocket.Conn
	out    chan []byte
	cancel context.CancelFunc

	closeOnce sync.Once
	closing   chan struct{}
	reason    string
	done      chan struct{}
}

func newWSConn(c *websocket.Conn, cancel context.CancelFunc) *wsConn {
	return &wsConn{
		c:       c,
		out:     make(chan []byte, sendQueueSize),
		cancel:  cancel,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *wsConn) Send(frame []byte) error {
	select {
	case <-w.closing:
		return errors.New("connection closing")
	default:
	}
	select {
	case w.out <- frame:
		return nil
	default:
		w.Close("slow consumer")
		return errSendQueueFull
	}
}

// Close flushes queued frames and then closes the socket.
func (w *wsConn) Close(reason string) {
	w.closeOnce.Do(func() {
		w.reason = reason
		close(w.closing)
	})
}

func closeStatus(reason string) websocket.StatusCode {
	switch reason {
	case sockets.ReasonShutdown:
		return websocket.StatusGoingAway
	case sockets.ReasonSuperseded, "slow consumer":
		return websocket.StatusPolicyViolation
	}
	return websocket.StatusNormalClosure
}

func (w *wsConn) writeLoop(ctx context.Context) {
	defer close(w.done)
	defer w.cancel()
	for {
		select {
		case frame := <-w.out:
			if err := w.write(ctx, frame); err != nil {
				obslog.L().Debug("ws_write_failed", zap.Error(err))
				_ = w.c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-w.closing:
			w.flush(ctx)
			_ = w.c.Close(closeStatus(w.reason), w.reason)
			return
		case <-ctx.Done():
			_ = w.c.Close(websocket.StatusGoingAway, sockets.ReasonShutdown)
			return
		}
	}
}

func (w *wsConn) flush(ctx context.Context) {
	for {
		select {
		case frame := <-w.out:
			if err := w.write(ctx, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (w *wsConn) write(ctx context.Context, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return w.c.Write(wctx, websocket.MessageText, frame)
}

// pingLoop closes the connection after two consecutive failed pings.
func (w *wsConn) pingLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-t.C:
		}
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := w.c.Ping(pctx)
		cancel()
		if err == nil {
			failures = 0
			continue
		}
		failures++
		if failures >= 2 {
			obslog.L().Info("ws_ping_timeout", zap.Error(err))
			w.Close("ping timeout")
			return
		}
	}
}
