// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/choirchat/choir-tui/internal/model"
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds every style the chat view renders with, resolved once at
// startup against the detected terminal capabilities.
type Theme struct {
	ColorProfile termenv.Profile
	IsDark       bool

	// Chrome
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	HelpLine  lipgloss.Style

	// Messages
	UserBubble    lipgloss.Style
	UserLabel     lipgloss.Style
	Assistant     lipgloss.Style
	ErrorToast    lipgloss.Style
	SystemNotice  lipgloss.Style
	PageIndicator lipgloss.Style

	// Phase strip
	PhaseTab       lipgloss.Style
	PhaseTabActive lipgloss.Style
	PhaseMeta      lipgloss.Style

	// Input
	InputBox       lipgloss.Style
	InputBoxActive lipgloss.Style
}

// NewTheme builds a theme for the current terminal. forceDark overrides
// background detection ("dark"/"light"); anything else means auto.
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	isDark := termenv.HasDarkBackground()
	switch mode {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		ColorProfile: profile,
		IsDark:       isDark,
	}
	t.initStyles()
	return t
}

// initStyles resolves the style set.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HelpLine = lipgloss.NewStyle().
		Foreground(TextMuted).
		Padding(0, 1)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.Assistant = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBorder).
		Padding(0, 1)

	t.ErrorToast = lipgloss.NewStyle().
		Foreground(Rose).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Rose).
		Padding(0, 1).
		Bold(true)

	t.SystemNotice = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.PageIndicator = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.PhaseTab = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)

	t.PhaseTabActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple).
		Bold(true).
		Padding(0, 1)

	t.PhaseMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.InputBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputBoxActive = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(0, 1)
}

// PhaseColor returns the accent color for a pipeline phase.
func PhaseColor(p model.Phase) lipgloss.AdaptiveColor {
	switch p {
	case model.PhaseAction:
		return PhaseAction
	case model.PhaseExperienceVectors:
		return PhaseExperienceVec
	case model.PhaseExperienceWeb:
		return PhaseExperienceWeb
	case model.PhaseIntention:
		return PhaseIntention
	case model.PhaseObservation:
		return PhaseObservation
	case model.PhaseUnderstanding:
		return PhaseUnderstanding
	case model.PhaseYield:
		return PhaseYield
	default:
		return Purple
	}
}

// StatusIndicator returns the shape indicator for a phase status.
func StatusIndicator(s model.Status) string {
	switch s {
	case model.StatusInProgress:
		return StatusIndicators.InProgress
	case model.StatusComplete:
		return StatusIndicators.Complete
	case model.StatusError:
		return StatusIndicators.Error
	default:
		return StatusIndicators.Pending
	}
}
