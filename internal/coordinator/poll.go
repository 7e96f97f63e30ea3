// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/protocol"
)

// PollCoordinator is a fallback for servers (or proxies) that cannot
// hold an SSE connection open. It starts the run with a POST, then
// polls a status endpoint for the accumulated event list until the
// yield phase completes.
//
// Polled responses carry the full event list so far; already-applied
// events are harmless replays because status transitions are monotonic
// and content writes are last-write-wins.
type PollCoordinator struct {
	machine

	cfg        Config
	httpClient *http.Client
	interval   time.Duration
	thread     *model.Thread
	saver      ThreadSaver
	decoder    *protocol.Decoder

	cancel context.CancelFunc
}

var _ Coordinator = (*PollCoordinator)(nil)

// NewPollCoordinator creates a polling coordinator bound to one thread.
// saver and onUpdate may be nil.
func NewPollCoordinator(cfg Config, thread *model.Thread, saver ThreadSaver, interval time.Duration, onUpdate UpdateFunc) *PollCoordinator {
	cfg = cfg.withDefaults()
	if interval <= 0 {
		interval = time.Second
	}

	dec := protocol.NewDecoder()
	dec.LegacyExperiencePhase = cfg.LegacyExperiencePhase
	dec.Logger = cfg.Logger

	c := &PollCoordinator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		interval:   interval,
		thread:     thread,
		saver:      saver,
		decoder:    dec,
	}
	c.machine.onUpdate = onUpdate
	c.machine.logger = cfg.Logger
	return c
}

// Process implements Coordinator.
func (c *PollCoordinator) Process(ctx context.Context, query string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	gen, msgID := c.begin(c.thread.ID, query)

	c.thread.AppendMessage(model.ThreadMessage{
		ID: "user-" + msgID, Role: model.RoleUser, Content: query, Timestamp: time.Now(),
	})

	req := protocol.StreamRequest{
		UserQuery:    query,
		ThreadID:     c.thread.ID,
		ModelConfigs: c.cfg.ModelConfigs,
	}
	if c.saver != nil {
		history, err := c.saver.HistoryWindow(c.thread.ID, c.cfg.HistoryTurns)
		if err != nil {
			c.logf("COORD: history window unavailable: %v", err)
		} else {
			req.History = history
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.fail(gen)
		return err
	}
	if err := c.startRun(ctx, msgID, body); err != nil {
		c.fail(gen)
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.cancelRun()
			return context.Canceled
		case <-ticker.C:
		}

		raw, err := c.fetchEvents(ctx, msgID)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelRun()
				return context.Canceled
			}
			c.logf("COORD: poll failed, retrying: %v", err)
			continue
		}

		for _, frame := range raw {
			pe, decErr := c.decoder.Decode(frame)
			if decErr != nil {
				c.logf("COORD: skipping undecodable poll entry: %v", decErr)
				continue
			}
			done, applyErr := c.apply(gen, pe)
			if pe.Status.IsFinal() || applyErr != nil {
				c.saveThread(c.saver, c.thread)
			}
			if applyErr != nil {
				return applyErr
			}
			if done {
				c.recordCompletion(c.saver, c.thread, query)
				return nil
			}
		}
	}
}

// Cancel implements Coordinator.
func (c *PollCoordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.cancelRun()
}

// startRun POSTs the request, registering the run under msgID.
func (c *PollCoordinator) startRun(ctx context.Context, msgID string, body []byte) error {
	url := fmt.Sprintf("%s?message_id=%s", c.cfg.Endpoint, msgID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("start run: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// fetchEvents GETs the event list accumulated for the run so far.
func (c *PollCoordinator) fetchEvents(ctx context.Context, msgID string) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/%s", c.cfg.Endpoint, msgID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}

	var frames []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		return nil, errors.New("poll: malformed event list")
	}
	return frames, nil
}
