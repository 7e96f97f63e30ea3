// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for Choir threads, messages,
// and the phase pipeline.
package model

// =============================================================================
// PHASE TYPE
// =============================================================================

// Phase identifies one stage of the Choir processing pipeline.
// Phases are ordered: a request walks them front to back, and the
// terminal phase (yield) carries the final answer.
type Phase int

const (
	PhaseAction Phase = iota
	PhaseExperienceVectors
	PhaseExperienceWeb
	PhaseIntention
	PhaseObservation
	PhaseUnderstanding
	PhaseYield
)

// phaseWireNames maps phases to their wire protocol names.
var phaseWireNames = map[Phase]string{
	PhaseAction:            "action",
	PhaseExperienceVectors: "experience_vectors",
	PhaseExperienceWeb:     "experience_web",
	PhaseIntention:         "intention",
	PhaseObservation:       "observation",
	PhaseUnderstanding:     "understanding",
	PhaseYield:             "yield",
}

// phaseDisplayNames maps phases to human-readable labels.
var phaseDisplayNames = map[Phase]string{
	PhaseAction:            "Action",
	PhaseExperienceVectors: "Experience (Vectors)",
	PhaseExperienceWeb:     "Experience (Web)",
	PhaseIntention:         "Intention",
	PhaseObservation:       "Observation",
	PhaseUnderstanding:     "Understanding",
	PhaseYield:             "Yield",
}

// AllPhases returns every phase in pipeline order.
func AllPhases() []Phase {
	return []Phase{
		PhaseAction,
		PhaseExperienceVectors,
		PhaseExperienceWeb,
		PhaseIntention,
		PhaseObservation,
		PhaseUnderstanding,
		PhaseYield,
	}
}

// String returns the wire name of the phase.
func (p Phase) String() string {
	if name, ok := phaseWireNames[p]; ok {
		return name
	}
	return "unknown"
}

// DisplayName returns a human-readable label for the phase.
func (p Phase) DisplayName() string {
	if name, ok := phaseDisplayNames[p]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal reports whether this is the final pipeline phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseYield
}

// Next returns the following phase and whether one exists.
func (p Phase) Next() (Phase, bool) {
	if p >= PhaseYield || p < PhaseAction {
		return p, false
	}
	return p + 1, true
}

// PhaseFromWire maps a wire protocol name to a Phase.
// Returns false when the name is not recognized; callers decide how to
// handle unknown names (the decoder logs them and falls back to action).
func PhaseFromWire(name string) (Phase, bool) {
	for p, wire := range phaseWireNames {
		if wire == name {
			return p, true
		}
	}
	return PhaseAction, false
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status represents the processing state of a single phase.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusComplete
	StatusError
)

// statusNames maps statuses to their string form.
var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusComplete:   "complete",
	StatusError:      "error",
}

// String returns the string form of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsFinal reports whether the status is terminal for its phase.
func (s Status) IsFinal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal,
// monotonic transition. Statuses only move forward:
// pending -> inProgress -> complete, with error reachable from any
// non-final state. Re-applying the current status is allowed so that
// repeated in_progress updates (each carrying more content) pass through.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusComplete || next == StatusError
	case StatusInProgress:
		return next == StatusComplete || next == StatusError
	default:
		// complete and error are final
		return false
	}
}

// StatusFromWire maps a wire status string to a Status.
// The wire uses "queued" where the client uses pending.
func StatusFromWire(name string) (Status, bool) {
	switch name {
	case "queued", "pending":
		return StatusPending, true
	case "in_progress":
		return StatusInProgress, true
	case "complete":
		return StatusComplete, true
	case "error":
		return StatusError, true
	default:
		return StatusPending, false
	}
}
