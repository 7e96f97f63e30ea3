// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/choirchat/choir-tui/internal/coordinator"
	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/paginate"
	"github.com/choirchat/choir-tui/internal/ui/styles"
	"github.com/choirchat/choir-tui/internal/viewmodel"
)

// =============================================================================
// MESSAGES
// =============================================================================

// streamUpdateMsg carries one projection update into the Bubble Tea loop.
type streamUpdateMsg viewmodel.Update

// streamClosedMsg signals the projection subscription ended.
type streamClosedMsg struct{}

// processDoneMsg reports the outcome of a finished run.
type processDoneMsg struct{ err error }

// =============================================================================
// MODEL
// =============================================================================

// turn is one settled exchange shown above the live area.
type turn struct {
	Query  string
	Answer string
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	theme *styles.Theme
	coord coordinator.Coordinator
	proj  *viewmodel.Projection
	pages *paginate.Engine

	subID   int
	updates <-chan viewmodel.Update

	input textinput.Model
	spin  spinner.Model

	width  int
	height int

	thread      *model.Thread
	turns       []turn
	activeQuery string
	snapshot    *model.StreamingMessage

	selected    model.Phase
	follow      bool
	page        int
	processing  bool
	showDetails bool
	errText     string
}

// New creates the chat model. showDetails controls the provider/model
// meta line per phase.
func New(theme *styles.Theme, coord coordinator.Coordinator, proj *viewmodel.Projection, pages *paginate.Engine, thread *model.Thread, showDetails bool) *Model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	subID, updates := proj.Subscribe(64)

	m := &Model{
		theme:       theme,
		coord:       coord,
		proj:        proj,
		pages:       pages,
		subID:       subID,
		updates:     updates,
		input:       ti,
		spin:        sp,
		thread:      thread,
		selected:    model.PhaseYield,
		follow:      true,
		showDetails: showDetails,
	}
	m.loadThreadTurns()
	return m
}

// loadThreadTurns seeds the settled history from a persisted thread.
func (m *Model) loadThreadTurns() {
	var pending string
	for _, msg := range m.thread.Messages {
		switch msg.Role {
		case model.RoleUser:
			pending = msg.Content
		case model.RoleAssistant:
			m.turns = append(m.turns, turn{Query: pending, Answer: msg.Content})
			pending = ""
		}
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForUpdate())
}

// waitForUpdate blocks on the projection channel.
func (m *Model) waitForUpdate() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		upd, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamUpdateMsg(upd)
	}
}

// submit starts a run for the typed query.
func (m *Model) submit() tea.Cmd {
	query := m.input.Value()
	if query == "" || m.processing {
		return nil
	}
	m.input.Reset()
	m.activeQuery = query
	m.snapshot = nil
	m.processing = true
	m.errText = ""
	m.selected = model.PhaseAction
	m.follow = true
	m.page = 0

	coord := m.coord
	return tea.Batch(
		m.spin.Tick,
		func() tea.Msg {
			return processDoneMsg{err: coord.Process(context.Background(), query)}
		},
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampPage()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case streamUpdateMsg:
		m.applyUpdate(viewmodel.Update(msg))
		return m, m.waitForUpdate()

	case streamClosedMsg:
		return m, nil

	case processDoneMsg:
		m.processing = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.errText = msg.err.Error()
		}
		if msg.err == nil && m.snapshot != nil {
			m.turns = append(m.turns, turn{Query: m.activeQuery, Answer: m.snapshot.FinalContent()})
			m.pages.InvalidateMessage(m.snapshot.ID)
			m.proj.ForgetMessage(m.snapshot.ID)
			m.activeQuery = ""
			m.snapshot = nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if !m.processing {
			return m, nil
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey routes key presses.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.coord.Cancel()
		m.proj.Unsubscribe(m.subID)
		return m, tea.Quit

	case "esc":
		if m.processing {
			m.coord.Cancel()
		}
		return m, nil

	case "enter":
		return m, m.submit()

	case "tab":
		m.cyclePhase(1)
		return m, nil

	case "shift+tab":
		m.cyclePhase(-1)
		return m, nil

	case "pgdown", "right":
		if m.input.Value() == "" || msg.String() == "pgdown" {
			m.page++
			m.clampPage()
			return m, nil
		}

	case "pgup", "left":
		if m.input.Value() == "" || msg.String() == "pgup" {
			m.page--
			m.clampPage()
			return m, nil
		}

	case "ctrl+p":
		m.showDetails = !m.showDetails
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyUpdate folds a projection update into view state.
func (m *Model) applyUpdate(upd viewmodel.Update) {
	m.snapshot = upd.Snapshot

	// Follow the pipeline while the user has not picked a phase by hand.
	if m.follow && upd.StatusChanged {
		if rec, ok := upd.Snapshot.Phases[upd.Phase]; ok && rec.Status == model.StatusInProgress {
			m.selected = upd.Phase
			m.page = 0
		}
	}
	if rec, ok := upd.Snapshot.Phases[upd.Phase]; ok && rec.Status == model.StatusError {
		m.errText = phaseErrorText(upd.Phase, rec.ErrorMessage)
	}
	m.clampPage()
}

// phaseErrorText formats the inline error line for a failed phase.
func phaseErrorText(p model.Phase, detail string) string {
	if detail == "" {
		return p.DisplayName() + " phase failed"
	}
	return p.DisplayName() + " phase failed: " + detail
}

// cyclePhase moves the selected phase tab, pinning follow mode off so
// streaming stops yanking the view around.
func (m *Model) cyclePhase(dir int) {
	phases := model.AllPhases()
	idx := 0
	for i, p := range phases {
		if p == m.selected {
			idx = i
			break
		}
	}
	idx = (idx + dir + len(phases)) % len(phases)
	m.selected = phases[idx]
	m.follow = false
	m.page = 0
	m.clampPage()
}

// currentPages returns the paginated content for the selected phase.
func (m *Model) currentPages() []string {
	if m.snapshot == nil {
		return nil
	}
	rec, ok := m.snapshot.Phases[m.selected]
	if !ok || rec.Content == "" {
		return nil
	}
	w, h := m.contentSize()
	return m.pages.GetPaginated(m.snapshot.ID, m.selected, rec.Content, w, h)
}

// clampPage keeps the page index inside the current page count.
func (m *Model) clampPage() {
	n := len(m.currentPages())
	if n == 0 {
		m.page = 0
		return
	}
	if m.page >= n {
		m.page = n - 1
	}
	if m.page < 0 {
		m.page = 0
	}
}
