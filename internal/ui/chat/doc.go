// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The model consumes projection updates over a channel bridged into
// the Bubble Tea loop, renders the staged pipeline as a phase strip
// with one selectable pane, and paginates long phase content through
// the layout engine instead of scrolling. While a run streams, the view
// follows whichever phase just went active; any manual phase selection
// pins the view until the next query.
package chat
