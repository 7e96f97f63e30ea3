// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/choirchat/choir-tui/internal/model"
)

func TestNewTheme_Modes(t *testing.T) {
	if theme := NewTheme("dark"); !theme.IsDark {
		t.Error("dark mode should force a dark theme")
	}
	if theme := NewTheme("light"); theme.IsDark {
		t.Error("light mode should force a light theme")
	}
	// auto must not panic without a real terminal
	_ = NewTheme("auto")
}

func TestPhaseColor_DistinctPerPhase(t *testing.T) {
	seen := make(map[string]model.Phase)
	for _, p := range model.AllPhases() {
		c := PhaseColor(p)
		key := c.Light + "/" + c.Dark
		if prev, dup := seen[key]; dup {
			t.Errorf("Phases %s and %s share color %s", prev, p, key)
		}
		seen[key] = p
	}
}

func TestStatusIndicator_AllStatuses(t *testing.T) {
	statuses := []model.Status{
		model.StatusPending, model.StatusInProgress,
		model.StatusComplete, model.StatusError,
	}
	seen := make(map[string]bool)
	for _, s := range statuses {
		ind := StatusIndicator(s)
		if ind == "" {
			t.Errorf("Status %s has no indicator", s)
		}
		if seen[ind] {
			t.Errorf("Indicator %q reused", ind)
		}
		seen[ind] = true
	}
}
