// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator drives a multi-phase streaming run end to end.
//
// A run moves one user query through the staged pipeline (action,
// experience, intention, observation, understanding, yield), mirroring
// server-sent phase events into an in-memory StreamingMessage. Three
// implementations share one state machine:
//
//   - StreamCoordinator: live SSE transport (the normal path)
//   - PollCoordinator: REST polling fallback
//   - MockCoordinator: scripted replays for demos and tests
//
// CONCURRENCY: the state machine serializes all mutation behind a
// mutex and tags every run with a generation counter, so events from
// a cancelled or superseded run can never touch current state. Update
// callbacks receive deep snapshots and are invoked outside the lock.
package coordinator
