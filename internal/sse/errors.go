// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Sentinel errors for the transport layer.
var (
	// ErrInvalidRequest indicates a malformed URL or unencodable body.
	// Never retried.
	ErrInvalidRequest = errors.New("invalid stream request")

	// ErrMaxRetries indicates the reconnect budget was exhausted.
	ErrMaxRetries = errors.New("max reconnection attempts exceeded")
)

// ServerError is a non-2xx HTTP response from the stream endpoint.
type ServerError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// NetworkError wraps a connection-level failure (dial error, dropped
// connection, read timeout). Retried by the transport with backoff.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// isRetryable determines whether a transport failure should trigger a
// reconnect attempt. Context cancellation and client-side request errors
// never retry; 5xx responses and network failures do.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) {
		return false
	}

	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		// 4xx means the request itself is bad; retrying cannot help.
		return srvErr.Status >= 500
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	return true
}
