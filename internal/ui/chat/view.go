// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/ui/styles"
	"github.com/choirchat/choir-tui/internal/util"
)

// Layout constants. The content pane gets whatever vertical space the
// chrome leaves over.
const (
	minContentHeight = 4
	chromeHeight     = 8 // header, phase strip, page line, input, help
)

// contentSize returns the inner width/height the phase pane paginates to.
func (m *Model) contentSize() (int, int) {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	h := m.height - chromeHeight - len(m.turns)
	if h < minContentHeight {
		h = minContentHeight
	}
	return w, h
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if s := m.renderHistory(); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}

	if m.activeQuery != "" {
		b.WriteString(m.theme.UserLabel.Render("you: ") + m.activeQuery)
		b.WriteString("\n")
	}

	if m.snapshot != nil || m.processing {
		b.WriteString(m.renderPhaseStrip())
		b.WriteString("\n")
		b.WriteString(m.renderContent())
		b.WriteString("\n")
	}

	if m.errText != "" {
		b.WriteString(m.theme.ErrorToast.Render(styles.RenderError(m.errText)))
		b.WriteString("\n")
	}

	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.theme.HelpLine.Render("enter send · esc stop · tab phase · pgup/pgdn page · ctrl+p details · ctrl+c quit"))

	return b.String()
}

// renderHeader shows the app name and thread title.
func (m *Model) renderHeader() string {
	title := m.thread.Title
	maxTitle := m.width - 10
	if maxTitle > 0 {
		title = util.TruncateWidth(title, maxTitle)
	}
	return m.theme.Header.Render("choir") + m.theme.PhaseMeta.Render(" · "+title)
}

// renderHistory shows settled turns, most recent last.
func (m *Model) renderHistory() string {
	if len(m.turns) == 0 {
		return ""
	}
	// Only the latest settled turn stays on screen; the pagination pane
	// owns the rest of the vertical budget.
	t := m.turns[len(m.turns)-1]
	var b strings.Builder
	b.WriteString(m.theme.UserLabel.Render("you: ") + util.TruncateWidth(t.Query, m.width-6))
	b.WriteString("\n")
	answer := util.TruncateWidth(strings.ReplaceAll(t.Answer, "\n", " "), m.width-6)
	b.WriteString(m.theme.SystemNotice.Render(answer))
	return b.String()
}

// renderPhaseStrip draws one tab per phase with its status indicator.
func (m *Model) renderPhaseStrip() string {
	var tabs []string
	for _, p := range model.AllPhases() {
		label := styles.StatusIndicator(m.statusOf(p)) + " " + p.DisplayName()
		style := m.theme.PhaseTab
		if p == m.selected {
			style = m.theme.PhaseTabActive.Background(styles.PhaseColor(p))
		}
		tabs = append(tabs, style.Render(label))
	}
	strip := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.processing {
		strip += " " + m.spin.View()
	}
	return strip
}

// statusOf reads a phase status off the snapshot.
func (m *Model) statusOf(p model.Phase) model.Status {
	if m.snapshot == nil {
		return model.StatusPending
	}
	if rec, ok := m.snapshot.Phases[p]; ok {
		return rec.Status
	}
	return model.StatusPending
}

// renderContent draws the selected phase's current page plus meta lines.
func (m *Model) renderContent() string {
	pages := m.currentPages()

	var body string
	if len(pages) == 0 {
		body = m.theme.SystemNotice.Render("waiting for " + m.selected.DisplayName() + "...")
	} else {
		body = pages[m.page]
	}

	w, _ := m.contentSize()
	pane := m.theme.Assistant.Width(w).Render(body)

	var lines []string
	lines = append(lines, pane)

	if len(pages) > 1 {
		lines = append(lines, m.theme.PageIndicator.Render(
			fmt.Sprintf("page %d/%d", m.page+1, len(pages))))
	}
	if meta := m.renderMeta(); meta != "" {
		lines = append(lines, meta)
	}
	return strings.Join(lines, "\n")
}

// renderMeta shows provider, model, and reward scores for the selected
// phase when details are on.
func (m *Model) renderMeta() string {
	if !m.showDetails || m.snapshot == nil {
		return ""
	}
	rec, ok := m.snapshot.Phases[m.selected]
	if !ok {
		return ""
	}

	var parts []string
	if rec.Provider != "" {
		parts = append(parts, rec.Provider)
	}
	if rec.ModelName != "" {
		parts = append(parts, rec.ModelName)
	}
	if rec.NoveltyReward != 0 {
		parts = append(parts, "novelty "+util.FloatToStringPrec(rec.NoveltyReward, 2))
	}
	if rec.CitationReward != 0 {
		parts = append(parts, "citations "+util.FloatToStringPrec(rec.CitationReward, 2))
	}
	if n := len(rec.WebResults); n > 0 {
		parts = append(parts, util.IntToString(n)+" sources")
	}
	if len(parts) == 0 {
		return ""
	}
	return m.theme.PhaseMeta.Render(strings.Join(parts, " · "))
}

// renderInput draws the query box.
func (m *Model) renderInput() string {
	style := m.theme.InputBox
	if m.input.Focused() {
		style = m.theme.InputBoxActive
	}
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return style.Width(w).Render(m.input.View())
}
