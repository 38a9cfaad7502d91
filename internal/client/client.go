// Package client talks to a chess server: Client for the plain status query
// and Session for a seat over WebSocket.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrUnexpectedStatus is wrapped by every non-2xx, non-404 answer.
var ErrUnexpectedStatus = errors.New("unexpected status")

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// NewClient takes the server's http(s) base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health returns the server's running banner.
func (c *Client) Health(ctx context.Context) (string, error) {
	status, body, err := c.get(ctx, "/")
	if err != nil {
		return "", err
	}
	if status != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrUnexpectedStatus, status, truncate(body, 256))
	}
	return body, nil
}

// LobbyExists asks whether a lobby id is currently live.
func (c *Client) LobbyExists(ctx context.Context, lobbyID string) (bool, error) {
	status, body, err := c.get(ctx, "/?lobbyId="+url.QueryEscape(strings.TrimSpace(lobbyID)))
	if err != nil {
		return false, err
	}
	switch status {
	case fasthttp.StatusOK:
		return true, nil
	case fasthttp.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("%w: status=%d body=%s", ErrUnexpectedStatus, status, truncate(body, 256))
}

func (c *Client) get(ctx context.Context, path string) (int, string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil && !shouldRetryStatus(resp.StatusCode()) {
			return resp.StatusCode(), string(resp.Body()), nil
		}
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			lastErr = fmt.Errorf("%w: status=%d body=%s", ErrUnexpectedStatus, resp.StatusCode(), truncate(string(resp.Body()), 256))
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return 0, "", lastErr
		}
	}
	return 0, "", lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
