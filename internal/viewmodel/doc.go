// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package viewmodel projects coordinator state into UI-consumable
// updates.
//
// The coordinator can apply hundreds of content frames per second on a
// fast stream; a terminal repaints usefully at a fraction of that. The
// Projection coalesces content-only churn behind a token bucket while
// guaranteeing that status transitions, phase errors, and terminal
// completion are delivered the moment they happen. It also accumulates
// per-message web search results, which the wire protocol replaces on
// every event rather than appending.
package viewmodel
