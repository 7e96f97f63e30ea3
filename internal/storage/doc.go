// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides thread persistence for the Choir TUI.
//
// Threads and messages live in a SQLite database (pure Go driver) under
// ~/.choir/. The coordinator treats saves as fire-and-forget: a failed
// save is logged, never surfaced into the streaming path. The store also
// answers the conversation history window sent with each request and the
// title-uniqueness check used by thread auto-naming.
package storage
