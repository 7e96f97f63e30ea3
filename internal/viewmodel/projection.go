// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package viewmodel

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/choirchat/choir-tui/internal/model"
)

// =============================================================================
// UPDATE TYPE
// =============================================================================

// Update is one rendered-facing change. Snapshot is a deep copy owned by
// the receiver.
type Update struct {
	Snapshot      *model.StreamingMessage
	Phase         model.Phase
	StatusChanged bool
}

// =============================================================================
// PROJECTION
// =============================================================================

// DefaultUpdatesPerSecond bounds how often content-only churn reaches
// subscribers. Streaming servers can emit far faster than a terminal
// can usefully repaint.
const DefaultUpdatesPerSecond = 30

// Projection sits between the coordinator and the UI. It rate-limits
// content-only updates, but status transitions and terminal events
// always pass through immediately: a phase flipping to complete or
// error must never be coalesced away.
//
// PERFORMANCE: because every update carries the full message snapshot,
// dropping an intermediate content frame loses nothing; the next frame
// that passes the limiter supersedes it.
type Projection struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	subs    map[int]chan Update
	nextSub int

	latest  *model.StreamingMessage
	pending *Update
	flush   *time.Timer

	webSeen    map[string]map[string]bool
	webHistory map[string][]model.SearchResult
}

// NewProjection creates a projection limiting content-only updates to
// perSecond (0 uses DefaultUpdatesPerSecond).
func NewProjection(perSecond float64) *Projection {
	if perSecond <= 0 {
		perSecond = DefaultUpdatesPerSecond
	}
	return &Projection{
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		subs:       make(map[int]chan Update),
		webSeen:    make(map[string]map[string]bool),
		webHistory: make(map[string][]model.SearchResult),
	}
}

// Apply is the coordinator's UpdateFunc. Safe for concurrent use.
func (p *Projection) Apply(snap *model.StreamingMessage, phase model.Phase, statusChanged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = snap
	p.recordSearchResultsLocked(snap)

	upd := Update{Snapshot: snap, Phase: phase, StatusChanged: statusChanged}

	if statusChanged || p.isTerminalLocked(snap, phase) {
		// Never coalesced. A newer full snapshot also supersedes any
		// pending content frame.
		p.clearPendingLocked()
		p.broadcastLocked(upd)
		return
	}

	if p.limiter.Allow() {
		p.clearPendingLocked()
		p.broadcastLocked(upd)
		return
	}

	// Over budget: hold the newest frame and flush it when the limiter
	// refills, so a stalled stream still shows its last content.
	p.pending = &upd
	if p.flush == nil {
		delay := p.limiter.Reserve().Delay()
		p.flush = time.AfterFunc(delay, p.flushPending)
	}
}

// flushPending delivers the most recent coalesced frame.
func (p *Projection) flushPending() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flush = nil
	if p.pending == nil {
		return
	}
	upd := *p.pending
	p.pending = nil
	p.broadcastLocked(upd)
}

// Subscribe registers a consumer. buffer <= 0 gets a small default.
func (p *Projection) Subscribe(buffer int) (int, <-chan Update) {
	if buffer <= 0 {
		buffer = 16
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSub++
	id := p.nextSub
	ch := make(chan Update, buffer)
	p.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (p *Projection) Unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(ch)
	}
}

// Latest returns the most recent snapshot, or nil before the first update.
func (p *Projection) Latest() *model.StreamingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// SearchHistory returns every distinct web result seen for a message,
// in arrival order. Events replace per-phase result lists, so the
// projection accumulates them here for the sources pane.
func (p *Projection) SearchHistory(messageID string) []model.SearchResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	history := p.webHistory[messageID]
	out := make([]model.SearchResult, len(history))
	copy(out, history)
	return out
}

// ForgetMessage drops accumulated history for a message.
func (p *Projection) ForgetMessage(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.webSeen, messageID)
	delete(p.webHistory, messageID)
}

// =============================================================================
// INTERNALS
// =============================================================================

// broadcastLocked fans the update out. A subscriber that has fallen
// behind loses its oldest queued frame, never the newest.
func (p *Projection) broadcastLocked(upd Update) {
	for _, ch := range p.subs {
		select {
		case ch <- upd:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- upd:
			default:
			}
		}
	}
}

func (p *Projection) clearPendingLocked() {
	p.pending = nil
	if p.flush != nil {
		p.flush.Stop()
		p.flush = nil
	}
}

// isTerminalLocked reports whether this update ends the run.
func (p *Projection) isTerminalLocked(snap *model.StreamingMessage, phase model.Phase) bool {
	if snap == nil {
		return false
	}
	rec, ok := snap.Phases[phase]
	if !ok {
		return false
	}
	if rec.Status == model.StatusError {
		return true
	}
	return phase.IsTerminal() && rec.Status == model.StatusComplete
}

// recordSearchResultsLocked accumulates distinct web results keyed by URL.
func (p *Projection) recordSearchResultsLocked(snap *model.StreamingMessage) {
	if snap == nil {
		return
	}
	seen := p.webSeen[snap.ID]
	if seen == nil {
		seen = make(map[string]bool)
		p.webSeen[snap.ID] = seen
	}
	for _, phase := range model.AllPhases() {
		rec, ok := snap.Phases[phase]
		if !ok {
			continue
		}
		for _, wr := range rec.WebResults {
			if wr.URL == "" || seen[wr.URL] {
				continue
			}
			seen[wr.URL] = true
			p.webHistory[snap.ID] = append(p.webHistory[snap.ID], wr)
		}
	}
}
