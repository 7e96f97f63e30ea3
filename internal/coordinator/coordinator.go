// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/protocol"
)

// =============================================================================
// COORDINATOR INTERFACE
// =============================================================================

// Coordinator processes one query at a time through the phase pipeline.
// Starting a new Process while one is streaming cancels the prior run.
// Implementations: StreamCoordinator (live SSE), PollCoordinator (REST
// polling fallback), MockCoordinator (deterministic, for tests and
// offline development).
type Coordinator interface {
	// Process runs one query to completion. It returns nil on success,
	// context.Canceled when cancelled, or the terminal error.
	Process(ctx context.Context, query string) error

	// Cancel stops the in-flight run. Idempotent. Partial phase content
	// is retained; nothing mutates state after Cancel returns.
	Cancel()

	// CurrentPhase is the phase the pipeline is currently working.
	CurrentPhase() model.Phase

	// Responses maps each phase to its accumulated content.
	Responses() map[model.Phase]string

	// IsProcessing reports whether a run is in flight.
	IsProcessing() bool

	// ProcessingPhases lists phases currently in progress.
	ProcessingPhases() []model.Phase

	// Message returns a snapshot of the streaming message, or nil
	// before the first run.
	Message() *model.StreamingMessage
}

// ThreadSaver is the persistence collaborator. Saves are fire-and-forget
// from the coordinator's point of view: failures are logged and never
// surface into the streaming path.
type ThreadSaver interface {
	SaveThread(t *model.Thread) error
	UpdateTitle(threadID, title string) error
	TitleExists(title string) (bool, error)
	HistoryWindow(threadID string, n int) ([]model.Turn, error)
}

// UpdateFunc observes every applied phase event. snap is a deep copy;
// statusChanged marks a phase status transition (the projection layer
// must never coalesce those away).
type UpdateFunc func(snap *model.StreamingMessage, phase model.Phase, statusChanged bool)

// =============================================================================
// RUN STATE
// =============================================================================

// runState is the coordinator lifecycle for one request.
type runState int

const (
	stateIdle runState = iota
	stateStreaming
	stateCompleted
	stateCancelled
	stateErrored
)

// String returns the state name, for logs.
func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	case stateCompleted:
		return "completed"
	case stateCancelled:
		return "cancelled"
	case stateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// =============================================================================
// SHARED STATE MACHINE
// =============================================================================

// machine is the phase state machine shared by every Coordinator
// implementation. All fields are guarded by mu; every run is tagged with
// a generation so events from a cancelled or superseded run can never
// mutate state.
type machine struct {
	mu         sync.Mutex
	state      runState
	generation int
	msg        *model.StreamingMessage
	current    model.Phase

	onUpdate UpdateFunc
	logger   *log.Logger
}

// logf writes a coordinator log line.
func (m *machine) logf(format string, args ...any) {
	l := m.logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

// begin resets phase state for a new run and returns its generation.
// A run already streaming is superseded: its generation goes stale.
func (m *machine) begin(threadID, query string) (gen int, msgID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.state = stateStreaming
	m.msg = model.NewStreamingMessage(threadID, query)
	m.current = model.PhaseAction
	return m.generation, m.msg.ID
}

// apply feeds one decoded event into the machine. Returns done=true when
// the event completed the terminal phase, and a non-nil err when the
// event reported a phase error (which ends the whole run).
func (m *machine) apply(gen int, ev *protocol.PhaseEvent) (done bool, err error) {
	m.mu.Lock()

	if gen != m.generation || m.state != stateStreaming {
		// Late event from a cancelled or superseded connection.
		m.mu.Unlock()
		return false, nil
	}

	m.current = ev.Phase
	rec := m.msg.Record(ev.Phase)

	statusChanged := false
	if rec.Status != ev.Status {
		switch {
		case rec.Status.CanTransition(ev.Status):
			rec.Status = ev.Status
			statusChanged = true
		case ev.Status == model.StatusError:
			// A server error for an already-final phase cannot regress
			// the record, but it still fails the run below.
			m.logf("COORD: phase %s errored after reaching %s", ev.Phase, rec.Status)
		default:
			// Out-of-order event; statuses never regress.
			m.logf("COORD: dropping status regression %s -> %s for phase %s",
				rec.Status, ev.Status, ev.Phase)
			m.mu.Unlock()
			return false, nil
		}
	}

	// The protocol sends full-so-far content per update, so replacement
	// is correct and no merge logic exists.
	if content := ev.BestContent(); content != "" {
		rec.Content = content
	}
	if ev.Provider != "" {
		rec.Provider = ev.Provider
	}
	if ev.ModelName != "" {
		rec.ModelName = ev.ModelName
	}
	if len(ev.WebResults) > 0 {
		rec.WebResults = ev.WebResults
	}
	if len(ev.VectorResults) > 0 {
		rec.VectorResults = ev.VectorResults
	}
	if ev.NoveltyReward != 0 {
		rec.NoveltyReward = ev.NoveltyReward
	}
	if ev.CitationReward != 0 {
		rec.CitationReward = ev.CitationReward
	}

	switch {
	case ev.Status == model.StatusError:
		if rec.Status == model.StatusError {
			rec.ErrorMessage = ev.ErrorMessage
		}
		m.state = stateErrored
		m.msg.IsStreaming = false
		err = &protocol.StreamingError{Phase: ev.Phase, Message: ev.ErrorMessage}
	case ev.Phase.IsTerminal() && ev.Status == model.StatusComplete:
		// Only the terminal phase completing ends the run; earlier
		// phases completing still owe downstream updates.
		m.state = stateCompleted
		m.msg.IsStreaming = false
		done = true
	}

	var snap *model.StreamingMessage
	notify := m.onUpdate
	if notify != nil {
		snap = m.msg.Snapshot()
	}
	phase := ev.Phase
	m.mu.Unlock()

	if notify != nil {
		notify(snap, phase, statusChanged)
	}
	return done, err
}

// cancelRun transitions to cancelled if a run is streaming, invalidating
// its generation. Partial content stays visible: stop preserves what has
// been shown so far.
func (m *machine) cancelRun() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	if m.state == stateStreaming {
		m.state = stateCancelled
		if m.msg != nil {
			m.msg.IsStreaming = false
		}
	}
}

// fail transitions a streaming run to errored (transport-level failure).
func (m *machine) fail(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != stateStreaming {
		return false
	}
	m.state = stateErrored
	if m.msg != nil {
		m.msg.IsStreaming = false
	}
	return true
}

// streamingGen returns the active generation, or false when no run is
// streaming.
func (m *machine) streamingGen() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateStreaming {
		return 0, false
	}
	return m.generation, true
}

// =============================================================================
// ACCESSORS
// =============================================================================

// CurrentPhase implements Coordinator.
func (m *machine) CurrentPhase() model.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Responses implements Coordinator.
func (m *machine) Responses() map[model.Phase]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[model.Phase]string)
	if m.msg == nil {
		return out
	}
	for p, rec := range m.msg.Phases {
		if rec.Content != "" {
			out[p] = rec.Content
		}
	}
	return out
}

// IsProcessing implements Coordinator.
func (m *machine) IsProcessing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateStreaming
}

// ProcessingPhases implements Coordinator.
func (m *machine) ProcessingPhases() []model.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Phase
	if m.msg == nil {
		return out
	}
	for _, p := range model.AllPhases() {
		if rec, ok := m.msg.Phases[p]; ok && rec.Status == model.StatusInProgress {
			out = append(out, p)
		}
	}
	return out
}

// Message implements Coordinator.
func (m *machine) Message() *model.StreamingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msg == nil {
		return nil
	}
	return m.msg.Snapshot()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// saveThread persists the thread, fire-and-forget.
func (m *machine) saveThread(saver ThreadSaver, thread *model.Thread) {
	if saver == nil {
		return
	}
	if err := saver.SaveThread(thread); err != nil {
		m.logf("COORD: thread save failed: %v", err)
	}
}

// recordCompletion appends the finished response to the thread, saves
// it, and kicks off auto-naming. Shared by every transport's terminal
// path; never blocks completion.
func (m *machine) recordCompletion(saver ThreadSaver, thread *model.Thread, query string) {
	snap := m.Message()
	if snap != nil {
		thread.AppendMessage(model.ThreadMessage{
			ID:        snap.ID,
			Role:      model.RoleAssistant,
			Content:   snap.FinalContent(),
			Timestamp: time.Now(),
			Phases:    snap.Phases,
		})
	}
	m.saveThread(saver, thread)

	go m.nameThread(saver, thread, query)
}
