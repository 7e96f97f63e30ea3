// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
)

// =============================================================================
// PHASE TESTS
// =============================================================================

func TestPhaseOrder(t *testing.T) {
	phases := AllPhases()
	if len(phases) != 7 {
		t.Fatalf("Expected 7 phases, got %d", len(phases))
	}
	if phases[0] != PhaseAction {
		t.Errorf("Expected action first, got %s", phases[0])
	}
	if phases[len(phases)-1] != PhaseYield {
		t.Errorf("Expected yield last, got %s", phases[len(phases)-1])
	}
}

func TestPhaseWireRoundTrip(t *testing.T) {
	for _, p := range AllPhases() {
		got, ok := PhaseFromWire(p.String())
		if !ok {
			t.Errorf("PhaseFromWire(%q) not recognized", p.String())
		}
		if got != p {
			t.Errorf("Round trip for %s returned %s", p, got)
		}
	}
}

func TestPhaseFromWireUnknown(t *testing.T) {
	p, ok := PhaseFromWire("metamorphosis")
	if ok {
		t.Error("Unknown phase name should not be recognized")
	}
	if p != PhaseAction {
		t.Errorf("Unknown phase should fall back to action, got %s", p)
	}
}

func TestPhaseNext(t *testing.T) {
	next, ok := PhaseAction.Next()
	if !ok || next != PhaseExperienceVectors {
		t.Errorf("Expected experience_vectors after action, got %s (ok=%v)", next, ok)
	}
	if _, ok := PhaseYield.Next(); ok {
		t.Error("Yield should have no next phase")
	}
	if !PhaseYield.IsTerminal() {
		t.Error("Yield should be terminal")
	}
	if PhaseAction.IsTerminal() {
		t.Error("Action should not be terminal")
	}
}

// =============================================================================
// STATUS TESTS
// =============================================================================

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusComplete, true},
		{StatusPending, StatusError, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusComplete, true},
		{StatusInProgress, StatusError, true},
		{StatusInProgress, StatusPending, false},
		{StatusComplete, StatusInProgress, false},
		{StatusComplete, StatusError, false},
		{StatusError, StatusInProgress, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusFromWire(t *testing.T) {
	if s, ok := StatusFromWire("queued"); !ok || s != StatusPending {
		t.Errorf("queued should map to pending, got %s", s)
	}
	if s, ok := StatusFromWire("in_progress"); !ok || s != StatusInProgress {
		t.Errorf("in_progress should map to inProgress, got %s", s)
	}
	if _, ok := StatusFromWire("exploded"); ok {
		t.Error("Unknown status should not be recognized")
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewStreamingMessage(t *testing.T) {
	m := NewStreamingMessage("thread-1", "what is choir?")

	if m.ID == "" {
		t.Error("Message should be assigned an ID")
	}
	if !m.IsStreaming {
		t.Error("New message should be streaming")
	}
	if len(m.Phases) != len(AllPhases()) {
		t.Errorf("Expected %d phase records, got %d", len(AllPhases()), len(m.Phases))
	}
	for p, rec := range m.Phases {
		if rec.Status != StatusPending {
			t.Errorf("Phase %s should start pending, got %s", p, rec.Status)
		}
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := NewStreamingMessage("thread-1", "q")
	m.Record(PhaseAction).Content = "original"
	m.Record(PhaseExperienceWeb).WebResults = []SearchResult{{Title: "a", URL: "http://a"}}

	snap := m.Snapshot()
	snap.Phases[PhaseAction].Content = "mutated"
	snap.Phases[PhaseExperienceWeb].WebResults[0].Title = "b"

	if m.Phases[PhaseAction].Content != "original" {
		t.Error("Snapshot mutation leaked into the source message content")
	}
	if m.Phases[PhaseExperienceWeb].WebResults[0].Title != "a" {
		t.Error("Snapshot mutation leaked into the source web results")
	}
}

// =============================================================================
// THREAD TESTS
// =============================================================================

func TestThreadNeedsNaming(t *testing.T) {
	th := NewThread()
	if !th.NeedsNaming() {
		t.Error("Fresh thread should need naming")
	}
	th.Title = "Quantum chat"
	if th.NeedsNaming() {
		t.Error("Renamed thread should not need naming")
	}
}

func TestRecentTurns(t *testing.T) {
	th := NewThread()
	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		th.AppendMessage(ThreadMessage{ID: "m", Role: role, Content: string(rune('a' + i))})
	}

	turns := th.RecentTurns(2)
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "d" || turns[1].Content != "e" {
		t.Errorf("Expected trailing turns d,e got %s,%s", turns[0].Content, turns[1].Content)
	}

	all := th.RecentTurns(0)
	if len(all) != 5 {
		t.Errorf("n=0 should return all turns, got %d", len(all))
	}
}
