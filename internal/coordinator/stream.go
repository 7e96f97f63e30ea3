// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/protocol"
	"github.com/choirchat/choir-tui/internal/sse"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds settings for the live coordinator.
type Config struct {
	// Endpoint is the streaming API URL.
	Endpoint string

	// AuthToken, when set, is sent as a bearer credential.
	AuthToken string

	// HistoryTurns bounds the conversation context window sent with
	// each request (default: 10).
	HistoryTurns int

	// ModelConfigs selects per-phase providers, keyed by phase wire name.
	ModelConfigs map[string]protocol.ModelConfig

	// LegacyExperiencePhase maps the bare legacy "experience" phase
	// name (default: experienceVectors).
	LegacyExperiencePhase model.Phase

	// Transport tunes reconnection behavior.
	Transport sse.Config

	// Logger receives coordinator and decoder logs.
	Logger *log.Logger
}

// withDefaults fills in zero values.
func (c Config) withDefaults() Config {
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 10
	}
	if c.LegacyExperiencePhase == 0 {
		c.LegacyExperiencePhase = model.PhaseExperienceVectors
	}
	return c
}

// =============================================================================
// STREAM COORDINATOR
// =============================================================================

// StreamCoordinator is the live implementation: it opens an SSE stream
// per query and feeds decoded phase events through the state machine.
type StreamCoordinator struct {
	machine

	cfg     Config
	client  *sse.Client
	decoder *protocol.Decoder
	saver   ThreadSaver
	thread  *model.Thread
}

// assert interface compliance
var _ Coordinator = (*StreamCoordinator)(nil)

// NewStreamCoordinator creates a live coordinator bound to one thread.
// saver and onUpdate may be nil.
func NewStreamCoordinator(cfg Config, thread *model.Thread, saver ThreadSaver, onUpdate UpdateFunc) *StreamCoordinator {
	cfg = cfg.withDefaults()

	dec := protocol.NewDecoder()
	dec.LegacyExperiencePhase = cfg.LegacyExperiencePhase
	dec.Logger = cfg.Logger

	c := &StreamCoordinator{
		cfg:     cfg,
		client:  sse.NewClient(cfg.Transport),
		decoder: dec,
		saver:   saver,
		thread:  thread,
	}
	c.machine.onUpdate = onUpdate
	c.machine.logger = cfg.Logger
	return c
}

// Process implements Coordinator.
func (c *StreamCoordinator) Process(ctx context.Context, query string) error {
	gen, msgID := c.begin(c.thread.ID, query)

	c.thread.AppendMessage(model.ThreadMessage{
		ID: "user-" + msgID, Role: model.RoleUser, Content: query, Timestamp: time.Now(),
	})

	body, err := c.buildRequest(query)
	if err != nil {
		c.fail(gen)
		return err
	}

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	events, err := c.client.Connect(ctx, sse.Request{
		Method: http.MethodPost,
		URL:    c.cfg.Endpoint,
		Body:   body,
		Header: header,
	})
	if err != nil {
		c.fail(gen)
		return err
	}

	for ev := range events {
		if ev.Err != nil {
			// The transport already exhausted its reconnect budget;
			// the coordinator does not retry on top of it.
			c.fail(gen)
			return ev.Err
		}

		pe, decErr := c.decoder.Decode([]byte(ev.Data))
		if decErr != nil {
			// Recoverable: skip the frame, keep the stream alive.
			c.logf("COORD: skipping undecodable event: %v", decErr)
			continue
		}

		done, applyErr := c.apply(gen, pe)
		if pe.Status.IsFinal() || applyErr != nil {
			c.saveThread(c.saver, c.thread)
		}
		if applyErr != nil {
			c.client.Disconnect()
			return applyErr
		}
		if done {
			c.recordCompletion(c.saver, c.thread, query)
			return nil
		}
	}

	// Channel closed without a terminal yield event.
	if ctx.Err() != nil {
		return context.Canceled
	}
	if cur, streaming := c.streamingGen(); !streaming || cur != gen {
		// Cancelled or superseded mid-stream.
		return context.Canceled
	}
	c.fail(gen)
	return errors.New("stream ended before the yield phase completed")
}

// Cancel implements Coordinator.
func (c *StreamCoordinator) Cancel() {
	c.cancelRun()
	c.client.Disconnect()
}

// buildRequest marshals the streaming request payload.
func (c *StreamCoordinator) buildRequest(query string) ([]byte, error) {
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
		return nil, fmt.Errorf("%w: %v", sse.ErrInvalidRequest, err)
	}
	return body, nil
}
