// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/protocol"
)

// =============================================================================
// POLL COORDINATOR TESTS
// =============================================================================

// pollServer accepts the run start via POST and serves the full event
// list on every status GET.
func pollServer(t *testing.T, frames []string, capture *protocol.StreamRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if capture != nil {
				body, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(body, capture)
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}
		raw := make([]json.RawMessage, len(frames))
		for i, f := range frames {
			raw[i] = json.RawMessage(f)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(raw)
	}))
}

// TestPoll_FullRunPersistsThread drives a polled run end to end and
// verifies the thread records both turns, gets saved, and is
// auto-named, exactly as a live streamed run would be.
func TestPoll_FullRunPersistsThread(t *testing.T) {
	var frames []string
	for _, p := range model.AllPhases() {
		frames = append(frames,
			wireEvent(p.String(), "in_progress", ""),
			wireEvent(p.String(), "complete", p.String()+" done"),
		)
	}

	var captured protocol.StreamRequest
	srv := pollServer(t, frames, &captured)
	defer srv.Close()

	saver := newFakeSaver()
	saver.history = []model.Turn{{Role: model.RoleUser, Content: "earlier question"}}

	thread := model.NewThread()
	c := NewPollCoordinator(Config{Endpoint: srv.URL}, thread, saver, 10*time.Millisecond, nil)

	err := c.Process(context.Background(), "what is a canon?")
	require.NoError(t, err)

	require.False(t, c.IsProcessing())
	require.Equal(t, "yield done", c.Message().FinalContent())

	// The start request carried the query, thread id, and history window.
	require.Equal(t, "what is a canon?", captured.UserQuery)
	require.Equal(t, thread.ID, captured.ThreadID)
	require.Len(t, captured.History, 1)

	// Both turns landed on the thread and it was persisted.
	require.Len(t, thread.Messages, 2)
	require.Equal(t, model.RoleUser, thread.Messages[0].Role)
	require.Equal(t, "what is a canon?", thread.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, thread.Messages[1].Role)
	require.Equal(t, "yield done", thread.Messages[1].Content)

	saver.mu.Lock()
	saves := saver.saves
	saver.mu.Unlock()
	require.Greater(t, saves, 0)

	// Auto-naming is fire-and-forget; give it a moment.
	require.Eventually(t, func() bool {
		saver.mu.Lock()
		defer saver.mu.Unlock()
		return saver.renames[thread.ID] == "what is a canon?"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestPoll_ReplayedEventsAreIdempotent verifies that re-applying the
// accumulated event list across polls does not duplicate state.
func TestPoll_ReplayedEventsAreIdempotent(t *testing.T) {
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		gets++
		frames := []string{wireEvent("action", "complete", "settled")}
		if gets > 1 {
			// Second poll replays the first event plus the terminal one.
			frames = append(frames, wireEvent("yield", "complete", "answer"))
		}
		raw := make([]json.RawMessage, len(frames))
		for i, f := range frames {
			raw[i] = json.RawMessage(f)
		}
		_ = json.NewEncoder(w).Encode(raw)
	}))
	defer srv.Close()

	c := NewPollCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, 10*time.Millisecond, nil)
	err := c.Process(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "settled", c.Responses()[model.PhaseAction])
	require.Equal(t, "answer", c.Responses()[model.PhaseYield])
}

// TestPoll_StartRejectionFails surfaces a start-run failure without
// entering the poll loop.
func TestPoll_StartRejectionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewPollCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, 10*time.Millisecond, nil)
	err := c.Process(context.Background(), "q")
	require.Error(t, err)
	require.False(t, c.IsProcessing())
}

// TestPoll_CancelStopsPolling ends the loop between polls.
func TestPoll_CancelStopsPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	c := NewPollCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, 10*time.Millisecond, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Process(context.Background(), "q") }()

	require.Eventually(t, c.IsProcessing, 2*time.Second, 5*time.Millisecond)
	c.Cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, c.IsProcessing())
}
