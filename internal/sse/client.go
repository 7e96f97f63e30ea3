// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// NoReconnect disables reconnection attempts entirely: the initial
// connection is the only one made.
const NoReconnect = -1

// Config controls transport behavior.
type Config struct {
	// MaxRetries is the number of reconnection attempts made after the
	// initial connection fails or drops. Zero selects the default (3);
	// NoReconnect disables reconnection.
	MaxRetries int

	// ReconnectDelay is the base backoff delay; attempt n waits
	// ReconnectDelay * 1.5^(n-1) (default: 3s).
	ReconnectDelay time.Duration

	// ChannelBuffer is the event channel capacity (default: 100).
	ChannelBuffer int

	// HTTPClient overrides the HTTP client. The default has no overall
	// timeout; stream lifetime is bounded by the caller's context.
	HTTPClient *http.Client
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		ReconnectDelay: 3 * time.Second,
		ChannelBuffer:  100,
	}
}

// normalize fills in zero values with defaults. NoReconnect (or any
// negative MaxRetries) clamps to zero attempts rather than the default.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = def.ChannelBuffer
	}
	return c
}

// =============================================================================
// CLIENT
// =============================================================================

// Client opens long-lived SSE connections and delivers parsed events on
// a channel. One Client serves one connection at a time: Connect while a
// stream is open supersedes it, and Disconnect tears the stream down.
//
// CONCURRENCY: all mutable state (connection generation, cancel func,
// last event id) lives behind one mutex. Every connection attempt is
// tagged with a generation; goroutines and timers belonging to a stale
// generation return without touching state or delivering events, so a
// reconnect timer can never race an explicit Disconnect.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	generation  int
	cancel      context.CancelFunc
	lastEventID string
}

// NewClient creates a transport client.
func NewClient(cfg Config) *Client {
	cfg = cfg.normalize()
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		cfg:        cfg,
		httpClient: hc,
	}
}

// Request describes one streaming request.
type Request struct {
	// Method is GET or POST.
	Method string

	// URL is the stream endpoint.
	URL string

	// Body is the JSON payload for POST requests (nil for GET).
	Body []byte

	// Header carries extra headers (e.g. Authorization).
	Header http.Header
}

// Connect opens the stream and returns a channel of events.
//
// Events are delivered in arrival order. The channel is closed when the
// stream terminates: a [DONE] sentinel, an "event: complete" frame, a
// caller Disconnect or context cancellation, or a terminal error (which
// is delivered as a final Event with Err set).
//
// Calling Connect while a previous stream is open supersedes it; the old
// stream's goroutine notices its stale generation and exits without
// delivering further events.
func (c *Client) Connect(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.generation++
	gen := c.generation
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.lastEventID = ""
	c.mu.Unlock()

	events := make(chan Event, c.cfg.ChannelBuffer)
	go c.run(ctx, gen, req, events)

	return events, nil
}

// Disconnect cancels the current stream. Idempotent; no events are
// delivered after it returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// LastEventID returns the id of the last successfully parsed event.
func (c *Client) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// current reports whether gen is still the live connection generation.
func (c *Client) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// backoffDelay returns the wait before reconnection attempt n (1-based):
// ReconnectDelay * 1.5^(n-1).
func (c *Client) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(c.cfg.ReconnectDelay) * math.Pow(1.5, float64(attempt-1))
	return time.Duration(scaled)
}

// =============================================================================
// STREAM LOOP
// =============================================================================

// run drives the connect/reconnect loop for one Connect call.
func (c *Client) run(ctx context.Context, gen int, req Request, events chan<- Event) {
	defer close(events)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			// The timer may have fired after a Disconnect or a newer
			// Connect; a stale generation must not reconnect.
			if !c.current(gen) {
				return
			}
		}

		done, err := c.streamOnce(ctx, gen, req, events)
		if done {
			return
		}
		lastErr = err
		if !isRetryable(err) {
			c.deliver(ctx, gen, events, Event{Err: err})
			return
		}
	}

	c.deliver(ctx, gen, events, Event{Err: fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)})
}

// streamOnce performs a single connection attempt and pumps events until
// the stream terminates. Returns done=true when the stream ended cleanly
// (terminal frame or caller cancellation) and no retry should happen.
func (c *Client) streamOnce(ctx context.Context, gen int, req Request, events chan<- Event) (done bool, err error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return false, &ServerError{Status: resp.StatusCode, Body: string(body)}
	}

	scanner := NewScanner()
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return true, nil
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			scanner.Feed(buf[:n])
			for {
				ev, ok := scanner.Next()
				if !ok {
					break
				}
				if ev.ID != "" {
					c.setLastEventID(gen, ev.ID)
				}
				if ev.IsDone() {
					return true, nil
				}
				if !c.deliver(ctx, gen, events, ev) {
					return true, nil
				}
			}
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			// The protocol ends streams with an explicit terminal
			// frame; a bare EOF is a dropped connection.
			return false, &NetworkError{Err: readErr}
		}
	}
}

// buildRequest constructs the HTTP request for one attempt, including the
// Last-Event-ID header when resuming.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Connection", "keep-alive")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id := c.LastEventID(); id != "" {
		httpReq.Header.Set("Last-Event-ID", id)
	}

	return httpReq, nil
}

// setLastEventID records the latest event id if gen is still current.
func (c *Client) setLastEventID(gen int, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.lastEventID = id
	}
}

// deliver sends an event unless the stream was cancelled or superseded.
// Returns false when delivery was abandoned.
func (c *Client) deliver(ctx context.Context, gen int, events chan<- Event, ev Event) bool {
	if !c.current(gen) {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
