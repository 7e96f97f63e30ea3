// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the Choir wire protocol: the streaming request
// payload and the per-phase event frames the server emits.
package protocol

import (
	"fmt"

	"github.com/choirchat/choir-tui/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ModelConfig selects the provider/model for one phase.
type ModelConfig struct {
	Provider      string  `json:"provider"`
	ModelName     string  `json:"model_name"`
	Temperature   float64 `json:"temperature,omitempty"`
	OpenAIKey     string  `json:"openai_api_key,omitempty"`
	AnthropicKey  string  `json:"anthropic_api_key,omitempty"`
	GoogleKey     string  `json:"google_api_key,omitempty"`
	MistralKey    string  `json:"mistral_api_key,omitempty"`
	FireworksKey  string  `json:"fireworks_api_key,omitempty"`
	CohereKey     string  `json:"cohere_api_key,omitempty"`
	OpenRouterKey string  `json:"openrouter_api_key,omitempty"`
	GroqKey       string  `json:"groq_api_key,omitempty"`
}

// StreamRequest is the POST body that starts a streaming run.
// ModelConfigs is keyed by phase wire name.
type StreamRequest struct {
	UserQuery    string                 `json:"user_query"`
	ThreadID     string                 `json:"thread_id"`
	History      []model.Turn           `json:"history,omitempty"`
	ModelConfigs map[string]ModelConfig `json:"model_configs,omitempty"`
}

// =============================================================================
// PHASE EVENT
// =============================================================================

// PhaseEvent is one decoded frame of the phase stream.
type PhaseEvent struct {
	Phase  model.Phase
	Status model.Status

	// Content is the full-so-far text for the phase. The protocol sends
	// cumulative content per update, not deltas, so last-write-wins.
	Content string

	// FinalContent, when present, is preferred over Content for the
	// terminal yield event.
	FinalContent string

	Provider  string
	ModelName string

	WebResults    []model.SearchResult
	VectorResults []model.VectorResult

	NoveltyReward  float64
	CitationReward float64

	// ErrorMessage carries the server's message on status "error".
	ErrorMessage string
}

// BestContent returns FinalContent when set, otherwise Content.
func (e *PhaseEvent) BestContent() string {
	if e.FinalContent != "" {
		return e.FinalContent
	}
	return e.Content
}

// =============================================================================
// STREAMING ERROR
// =============================================================================

// StreamingError is an explicit status:"error" reported by the server
// for a phase. Fatal for the whole request.
type StreamingError struct {
	Phase   model.Phase
	Message string
}

// Error implements the error interface.
func (e *StreamingError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("phase %s failed: %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("phase %s failed", e.Phase)
}
