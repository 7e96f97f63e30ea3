// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/choirchat/choir-tui/internal/model"
)

// ErrEventDecode marks a frame that could not be decoded into a
// PhaseEvent. Recoverable: the coordinator skips the frame and the
// stream continues.
var ErrEventDecode = errors.New("event decode failed")

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns raw frame payloads into PhaseEvents.
//
// The payload shape has drifted over the protocol's life and strict
// decoding has dropped fields before, so the decoder extracts from a
// generic map with explicit presence checks first and only falls back to
// a strict struct decode when the generic pass cannot find the required
// phase and status fields.
type Decoder struct {
	// LegacyExperiencePhase is where a bare "experience" phase name
	// lands. The historical servers never qualified it; which variant
	// they meant is ambiguous, so it is configuration, not a constant.
	LegacyExperiencePhase model.Phase

	// Logger receives anomaly reports (unknown phases, fallback decodes).
	// Defaults to the package-level standard logger.
	Logger *log.Logger
}

// NewDecoder creates a decoder with the default legacy mapping
// (experience -> experienceVectors).
func NewDecoder() *Decoder {
	return &Decoder{LegacyExperiencePhase: model.PhaseExperienceVectors}
}

// logf writes an anomaly report.
func (d *Decoder) logf(format string, args ...any) {
	l := d.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

// strictEvent is the all-or-nothing wire schema used as a fallback.
type strictEvent struct {
	Phase          string             `json:"phase"`
	Status         string             `json:"status"`
	Content        string             `json:"content"`
	FinalContent   string             `json:"final_content"`
	Provider       string             `json:"provider"`
	ModelName      string             `json:"model_name"`
	WebResults     []strictWebResult  `json:"web_results"`
	VectorResults  []strictVecResult  `json:"vector_results"`
	NoveltyReward  float64            `json:"novelty_reward"`
	CitationReward float64            `json:"citation_reward"`
	Error          string             `json:"error"`
}

type strictWebResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	Provider string `json:"provider"`
}

type strictVecResult struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Provider string         `json:"provider"`
	Metadata map[string]any `json:"metadata"`
}

// Decode parses one frame payload into a PhaseEvent.
// Returns an error wrapping ErrEventDecode when the payload is not a
// usable event; such errors are recoverable and must not end the stream.
func (d *Decoder) Decode(data []byte) (*PhaseEvent, error) {
	// Generic pass: tolerant of absent optionals and shape drift.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventDecode, err)
	}

	phaseStr, phaseOK := stringField(raw, "phase")
	statusStr, statusOK := stringField(raw, "status")

	if !phaseOK || !statusOK {
		// The generic pass missed the minimum required fields; try the
		// strict schema before giving up.
		return d.decodeStrict(data)
	}

	ev := &PhaseEvent{
		Phase:  d.mapPhase(phaseStr),
		Status: d.mapStatus(phaseStr, statusStr),
	}

	if v, ok := stringField(raw, "content"); ok {
		ev.Content = v
	}
	if v, ok := stringField(raw, "final_content"); ok {
		ev.FinalContent = v
	}
	if v, ok := stringField(raw, "provider"); ok {
		ev.Provider = v
	}
	if v, ok := stringField(raw, "model_name"); ok {
		ev.ModelName = v
	}
	if v, ok := stringField(raw, "error"); ok {
		ev.ErrorMessage = v
	}
	if v, ok := floatField(raw, "novelty_reward"); ok {
		ev.NoveltyReward = v
	}
	if v, ok := floatField(raw, "citation_reward"); ok {
		ev.CitationReward = v
	}
	if items, ok := raw["web_results"].([]any); ok {
		ev.WebResults = decodeWebResults(items)
	}
	if items, ok := raw["vector_results"].([]any); ok {
		ev.VectorResults = decodeVectorResults(items)
	}

	return ev, nil
}

// decodeStrict is the fallback all-or-nothing decode path.
func (d *Decoder) decodeStrict(data []byte) (*PhaseEvent, error) {
	var se strictEvent
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventDecode, err)
	}
	if se.Phase == "" || se.Status == "" {
		return nil, fmt.Errorf("%w: missing phase or status", ErrEventDecode)
	}

	d.logf("DECODE: generic extraction missed required fields, strict fallback used (phase=%s)", se.Phase)

	ev := &PhaseEvent{
		Phase:          d.mapPhase(se.Phase),
		Status:         d.mapStatus(se.Phase, se.Status),
		Content:        se.Content,
		FinalContent:   se.FinalContent,
		Provider:       se.Provider,
		ModelName:      se.ModelName,
		NoveltyReward:  se.NoveltyReward,
		CitationReward: se.CitationReward,
		ErrorMessage:   se.Error,
	}
	for _, wr := range se.WebResults {
		ev.WebResults = append(ev.WebResults, model.SearchResult(wr))
	}
	for _, vr := range se.VectorResults {
		ev.VectorResults = append(ev.VectorResults, model.VectorResult(vr))
	}
	return ev, nil
}

// mapPhase resolves a wire phase name, handling the legacy bare
// "experience" name and logging anything unrecognized.
func (d *Decoder) mapPhase(name string) model.Phase {
	if name == "experience" {
		return d.LegacyExperiencePhase
	}
	p, ok := model.PhaseFromWire(name)
	if !ok {
		// Unknown phases are applied to action rather than dropped so
		// their content stays visible; the anomaly is always logged.
		d.logf("DECODE: unknown phase %q, applying to action", name)
		return model.PhaseAction
	}
	return p
}

// mapStatus resolves a wire status, logging unknown values.
func (d *Decoder) mapStatus(phase, status string) model.Status {
	s, ok := model.StatusFromWire(status)
	if !ok {
		d.logf("DECODE: unknown status %q for phase %q", status, phase)
	}
	return s
}

// =============================================================================
// FIELD EXTRACTION HELPERS
// =============================================================================

// stringField extracts a non-empty string field with presence checking.
func stringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// floatField extracts a numeric field with presence checking.
func floatField(raw map[string]any, key string) (float64, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// decodeWebResults extracts search results from a generic list,
// skipping malformed entries.
func decodeWebResults(items []any) []model.SearchResult {
	var out []model.SearchResult
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var r model.SearchResult
		r.Title, _ = stringField(m, "title")
		r.URL, _ = stringField(m, "url")
		r.Content, _ = stringField(m, "content")
		r.Provider, _ = stringField(m, "provider")
		if r.Title == "" && r.URL == "" && r.Content == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// decodeVectorResults extracts vector hits from a generic list,
// skipping malformed entries.
func decodeVectorResults(items []any) []model.VectorResult {
	var out []model.VectorResult
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var r model.VectorResult
		r.Content, _ = stringField(m, "content")
		r.Score, _ = floatField(m, "score")
		r.Provider, _ = stringField(m, "provider")
		if md, ok := m["metadata"].(map[string]any); ok {
			r.Metadata = md
		}
		if r.Content == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
