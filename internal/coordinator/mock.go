// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"time"

	"github.com/choirchat/choir-tui/internal/protocol"
)

// MockCoordinator replays a scripted event sequence through the same
// state machine the live coordinator uses. It exists for offline demos
// and for tests that need deterministic streams without a server.
type MockCoordinator struct {
	machine

	// Script is the ordered event sequence replayed by Process.
	Script []protocol.PhaseEvent

	// StepDelay is an optional pause between events.
	StepDelay time.Duration

	// ThreadID labels the synthetic run.
	ThreadID string
}

var _ Coordinator = (*MockCoordinator)(nil)

// NewMockCoordinator creates a mock that replays script on each Process call.
func NewMockCoordinator(script []protocol.PhaseEvent, onUpdate UpdateFunc) *MockCoordinator {
	c := &MockCoordinator{Script: script, ThreadID: "mock-thread"}
	c.machine.onUpdate = onUpdate
	return c
}

// Process implements Coordinator.
func (c *MockCoordinator) Process(ctx context.Context, query string) error {
	gen, _ := c.begin(c.ThreadID, query)

	for i := range c.Script {
		if c.StepDelay > 0 {
			select {
			case <-time.After(c.StepDelay):
			case <-ctx.Done():
				c.cancelRun()
				return context.Canceled
			}
		}
		if ctx.Err() != nil {
			c.cancelRun()
			return context.Canceled
		}

		ev := c.Script[i]
		done, err := c.apply(gen, &ev)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	// Scripts are expected to end with a completed yield; anything else
	// leaves the run in whatever state the last event produced.
	c.cancelRun()
	return nil
}

// Cancel implements Coordinator.
func (c *MockCoordinator) Cancel() {
	c.cancelRun()
}
