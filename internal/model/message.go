// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SEARCH RESULT TYPES
// =============================================================================

// SearchResult is a single web search hit attached to an experience phase.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	Provider string `json:"provider,omitempty"`
}

// VectorResult is a single vector-store hit attached to an experience phase.
type VectorResult struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Provider string         `json:"provider,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// =============================================================================
// PHASE RECORD
// =============================================================================

// PhaseRecord holds everything the client knows about one phase of one
// in-flight request. Records are owned by the coordinator while a request
// is streaming; everything handed to other layers is a copy.
type PhaseRecord struct {
	Content   string
	Status    Status
	Provider  string
	ModelName string

	// ErrorMessage holds the server's failure detail when Status is
	// error; empty otherwise.
	ErrorMessage string

	WebResults    []SearchResult
	VectorResults []VectorResult

	// Reward metadata, present only on events that grant them.
	NoveltyReward  float64
	CitationReward float64
}

// Clone returns a deep copy of the record.
func (r *PhaseRecord) Clone() *PhaseRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.WebResults != nil {
		out.WebResults = make([]SearchResult, len(r.WebResults))
		copy(out.WebResults, r.WebResults)
	}
	if r.VectorResults != nil {
		out.VectorResults = make([]VectorResult, len(r.VectorResults))
		copy(out.VectorResults, r.VectorResults)
		for i, vr := range r.VectorResults {
			if vr.Metadata != nil {
				md := make(map[string]any, len(vr.Metadata))
				for k, v := range vr.Metadata {
					md[k] = v
				}
				out.VectorResults[i].Metadata = md
			}
		}
	}
	return &out
}

// =============================================================================
// STREAMING MESSAGE
// =============================================================================

// StreamingMessage is one assistant response being assembled from the
// phase event stream. It is created when the user submits a query,
// mutated by the coordinator as events arrive, and frozen when the
// terminal phase completes or the request errors out.
type StreamingMessage struct {
	ID          string
	ThreadID    string
	Query       string
	Phases      map[Phase]*PhaseRecord
	IsStreaming bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewStreamingMessage creates a message with every phase reset to pending.
func NewStreamingMessage(threadID, query string) *StreamingMessage {
	now := time.Now()
	m := &StreamingMessage{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		Query:       query,
		Phases:      make(map[Phase]*PhaseRecord, len(AllPhases())),
		IsStreaming: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, p := range AllPhases() {
		m.Phases[p] = &PhaseRecord{Status: StatusPending}
	}
	return m
}

// Record returns the record for a phase, creating it if absent.
func (m *StreamingMessage) Record(p Phase) *PhaseRecord {
	rec, ok := m.Phases[p]
	if !ok {
		rec = &PhaseRecord{Status: StatusPending}
		m.Phases[p] = rec
	}
	return rec
}

// Snapshot returns a deep copy safe to hand across goroutine boundaries.
func (m *StreamingMessage) Snapshot() *StreamingMessage {
	out := &StreamingMessage{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		Query:       m.Query,
		Phases:      make(map[Phase]*PhaseRecord, len(m.Phases)),
		IsStreaming: m.IsStreaming,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for p, rec := range m.Phases {
		out.Phases[p] = rec.Clone()
	}
	return out
}

// FinalContent returns the yield phase content, or empty if not present.
func (m *StreamingMessage) FinalContent() string {
	if rec, ok := m.Phases[PhaseYield]; ok {
		return rec.Content
	}
	return ""
}
