// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/protocol"
	"github.com/choirchat/choir-tui/internal/sse"
)

// =============================================================================
// STREAM COORDINATOR TESTS
// =============================================================================

// sseServer streams the given data frames then the done sentinel.
func sseServer(t *testing.T, frames []string, capture *protocol.StreamRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, capture)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			fl.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	}))
}

func wireEvent(phase, status, content string) string {
	b, _ := json.Marshal(map[string]string{"phase": phase, "status": status, "content": content})
	return string(b)
}

// TestStream_FullRun drives a live run over HTTP end to end: contents
// land per phase, the run ends on yield complete, and the thread is
// saved and auto-named.
func TestStream_FullRun(t *testing.T) {
	var frames []string
	for _, p := range model.AllPhases() {
		frames = append(frames,
			wireEvent(p.String(), "in_progress", ""),
			wireEvent(p.String(), "complete", p.String()+" done"),
		)
	}

	var captured protocol.StreamRequest
	srv := sseServer(t, frames, &captured)
	defer srv.Close()

	saver := newFakeSaver()
	saver.history = []model.Turn{{Role: model.RoleUser, Content: "earlier question"}}

	thread := model.NewThread()
	c := NewStreamCoordinator(Config{Endpoint: srv.URL, AuthToken: "tok"}, thread, saver, nil)

	err := c.Process(context.Background(), "what is counterpoint?")
	require.NoError(t, err)

	require.False(t, c.IsProcessing())
	require.Equal(t, "yield done", c.Message().FinalContent())

	// Request carried the query, thread id, and history window.
	require.Equal(t, "what is counterpoint?", captured.UserQuery)
	require.Equal(t, thread.ID, captured.ThreadID)
	require.Len(t, captured.History, 1)

	// The thread recorded both turns and was persisted.
	require.Len(t, thread.Messages, 2)
	require.Equal(t, model.RoleAssistant, thread.Messages[1].Role)
	require.Equal(t, "yield done", thread.Messages[1].Content)
	require.Greater(t, saver.saves, 0)

	// Auto-naming is fire-and-forget; give it a moment.
	require.Eventually(t, func() bool {
		saver.mu.Lock()
		defer saver.mu.Unlock()
		return saver.renames[thread.ID] == "what is counterpoint?"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestStream_UndecodableEventSkipped keeps the stream alive across a
// malformed frame.
func TestStream_UndecodableEventSkipped(t *testing.T) {
	frames := []string{
		wireEvent("action", "in_progress", "thinking"),
		`{"phase": "action", "stat`, // truncated JSON
		wireEvent("action", "complete", "thought"),
		wireEvent("yield", "complete", "answer"),
	}
	srv := sseServer(t, frames, nil)
	defer srv.Close()

	c := NewStreamCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, nil)
	err := c.Process(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "answer", c.Responses()[model.PhaseYield])
}

// TestStream_PhaseErrorSurfaces ends the run when the server reports a
// phase failure, keeping earlier content.
func TestStream_PhaseErrorSurfaces(t *testing.T) {
	frames := []string{
		wireEvent("action", "complete", "done early"),
		`{"phase":"observation","status":"error","error":"upstream model failure"}`,
	}
	srv := sseServer(t, frames, nil)
	defer srv.Close()

	c := NewStreamCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, nil)
	err := c.Process(context.Background(), "q")

	var se *protocol.StreamingError
	require.True(t, errors.As(err, &se))
	require.Equal(t, model.PhaseObservation, se.Phase)
	require.Equal(t, "done early", c.Responses()[model.PhaseAction])
	require.False(t, c.IsProcessing())
}

// TestStream_TransportExhaustionFails propagates the transport error
// after the reconnect budget is spent.
func TestStream_TransportExhaustionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := Config{
		Endpoint:  srv.URL,
		Transport: sse.Config{MaxRetries: 1, ReconnectDelay: 10 * time.Millisecond},
	}
	c := NewStreamCoordinator(cfg, model.NewThread(), nil, nil)
	err := c.Process(context.Background(), "q")
	require.Error(t, err)
	require.False(t, c.IsProcessing())
}

// TestStream_EarlyDoneIsAnError treats a stream that ends before the
// yield phase completes as a failed run.
func TestStream_EarlyDoneIsAnError(t *testing.T) {
	frames := []string{wireEvent("action", "complete", "only the start")}
	srv := sseServer(t, frames, nil)
	defer srv.Close()

	c := NewStreamCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, nil)
	err := c.Process(context.Background(), "q")
	require.Error(t, err)
	require.NotErrorIs(t, err, context.Canceled)
	require.False(t, c.IsProcessing())

	// Partial content from the truncated run stays visible.
	require.Equal(t, "only the start", c.Responses()[model.PhaseAction])
}

// TestStream_CancelMidStream stops consumption and retains partials.
func TestStream_CancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", wireEvent("action", "in_progress", "partial"))
		fl.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewStreamCoordinator(Config{Endpoint: srv.URL}, model.NewThread(), nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Process(context.Background(), "q") }()

	require.Eventually(t, func() bool {
		return c.Responses()[model.PhaseAction] == "partial"
	}, 2*time.Second, 10*time.Millisecond)

	c.Cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, c.IsProcessing())
	require.Equal(t, "partial", c.Responses()[model.PhaseAction])
}
