// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse implements the Server-Sent Events transport for the Choir
// streaming API.
package sse

import (
	"strconv"
	"strings"
)

// =============================================================================
// EVENT TYPE
// =============================================================================

// Event is one wire-level Server-Sent Event frame.
type Event struct {
	// ID is the value of the last "id:" field, used for Last-Event-ID
	// resumption on reconnect.
	ID string

	// Name is the value of the "event:" field ("" for unnamed events).
	Name string

	// Data is the newline-joined value of all "data:" fields in the frame.
	Data string

	// Retry is the server-suggested reconnect delay in milliseconds,
	// 0 when the frame carried no retry field.
	Retry int

	// Err carries a terminal transport error. When set, no further
	// events follow and the other fields are zero.
	Err error
}

// IsDone reports whether the event is a stream-terminating frame:
// either the [DONE] sentinel payload or an event named "complete".
func (e *Event) IsDone() bool {
	return e.Data == DoneSentinel || e.Name == "complete"
}

// DoneSentinel is the data payload that terminates a stream.
const DoneSentinel = "[DONE]"

// =============================================================================
// FRAME SCANNER
// =============================================================================

// Scanner incrementally extracts complete SSE frames from a byte stream.
// Bytes are appended with Feed as they arrive from the network; Next
// returns frames as soon as their blank-line terminator has been seen.
// A partial frame stays buffered until more bytes complete it.
type Scanner struct {
	// pending is the unconsumed portion of the receive buffer.
	pending []byte
}

// NewScanner creates an empty frame scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed appends raw bytes received from the connection.
func (s *Scanner) Feed(p []byte) {
	s.pending = append(s.pending, p...)
}

// Next extracts the next complete frame from the buffer.
// Returns (event, true) when a full blank-line-terminated frame was
// available, (zero, false) otherwise. Frames that contain no id, event,
// data, or retry field (comment-only frames) are skipped.
func (s *Scanner) Next() (Event, bool) {
	for {
		raw, rest, found := cutFrame(string(s.pending))
		if !found {
			return Event{}, false
		}
		s.pending = []byte(rest)

		ev, ok := parseFrame(raw)
		if ok {
			return ev, true
		}
		// Comment-only frame, keep scanning.
	}
}

// Buffered returns the number of bytes waiting for a frame terminator.
func (s *Scanner) Buffered() int {
	return len(s.pending)
}

// Reset discards all buffered bytes. Used when a connection is replaced.
func (s *Scanner) Reset() {
	s.pending = nil
}

// cutFrame splits buf at the first double-newline frame terminator.
// Handles both "\n\n" and "\r\n\r\n" delimiters.
func cutFrame(buf string) (frame, rest string, found bool) {
	iLF := strings.Index(buf, "\n\n")
	iCRLF := strings.Index(buf, "\r\n\r\n")

	switch {
	case iLF == -1 && iCRLF == -1:
		return "", buf, false
	case iCRLF != -1 && (iLF == -1 || iCRLF < iLF):
		return buf[:iCRLF], buf[iCRLF+4:], true
	default:
		return buf[:iLF], buf[iLF+2:], true
	}
}

// parseFrame parses the lines of one frame into an Event.
// Returns false when the frame carried no recognized fields.
func parseFrame(raw string) (Event, bool) {
	var ev Event
	var dataLines []string
	seenField := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		// Comment line
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = line[i+1:]
			// A single leading space after the colon is part of the
			// delimiter, not the value.
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "id":
			ev.ID = value
			seenField = true
		case "event":
			ev.Name = value
			seenField = true
		case "data":
			dataLines = append(dataLines, value)
			seenField = true
		case "retry":
			if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				ev.Retry = ms
			}
			seenField = true
		}
	}

	ev.Data = strings.Join(dataLines, "\n")
	return ev, seenField
}
