// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the choir TUI.
//
// Colors are declared once as lipgloss.AdaptiveColor pairs and resolve
// against the detected terminal background. Theme bundles the concrete
// styles the chat view renders with; each pipeline phase carries a
// stable accent color so the phase strip reads at a glance, and status
// indicators always include an ASCII shape for colorblind users.
package styles
