// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for Choir threads, messages,
// and the phase pipeline.
//
// # Key Types
//
//   - Phase: ordered enumeration of the processing pipeline stages
//   - Status: per-phase processing state with monotonic transitions
//   - PhaseRecord: content and metadata for one phase of one request
//   - StreamingMessage: an assistant response being assembled from events
//   - Thread: a persisted conversation with auto-naming support
//
// # Ownership
//
// PhaseRecords are owned by the coordinator while a request streams.
// Every value that crosses a goroutine boundary is a deep copy made with
// Clone or Snapshot; nothing in this package is guarded by locks.
package model
