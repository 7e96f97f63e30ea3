// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UntitledPrefix marks a thread that has not yet been auto-named.
// The coordinator derives a title from the first completed response and
// only overwrites titles that still carry this prefix.
const UntitledPrefix = "New Thread"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// THREAD TYPES
// =============================================================================

// ThreadMessage is one persisted turn of a thread.
type ThreadMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Phases holds the per-phase breakdown for assistant messages.
	Phases map[Phase]*PhaseRecord `json:"-"`
}

// Thread is a persisted conversation.
type Thread struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []ThreadMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewThread creates an empty thread with the needs-naming marker set.
func NewThread() *Thread {
	now := time.Now()
	return &Thread{
		ID:        uuid.NewString(),
		Title:     UntitledPrefix,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NeedsNaming reports whether the thread still carries the auto-name marker.
func (t *Thread) NeedsNaming() bool {
	return strings.HasPrefix(t.Title, UntitledPrefix)
}

// AppendMessage adds a message and bumps the update time.
func (t *Thread) AppendMessage(msg ThreadMessage) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
}

// Turn is a (role, content) pair used for conversation history context.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RecentTurns returns the last n turns in chronological order.
func (t *Thread) RecentTurns(n int) []Turn {
	msgs := t.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
