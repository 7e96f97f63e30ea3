// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse implements the Server-Sent Events transport for the Choir
// streaming API.
//
// # Key Types
//
//   - Event: one parsed wire frame (id, event, data, retry)
//   - Scanner: incremental frame extraction from a byte stream
//   - Client: connection lifecycle, reconnection with exponential
//     backoff, and channel-based event delivery
//
// # Reconnection
//
// Transport-level failures (connection drops, 5xx responses) are retried
// up to Config.MaxRetries times with ReconnectDelay * 1.5^(n-1) backoff.
// Reconnect attempts send the Last-Event-ID header so servers that
// support resumption can skip already-delivered events. Client errors
// (4xx, bad URLs) and context cancellation are never retried.
//
// # Termination
//
// A stream ends on a "data: [DONE]" payload, an "event: complete" frame,
// caller Disconnect, or a terminal error; the terminal error is delivered
// as a final Event with Err set before the channel closes.
package sse
