// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paginate splits streaming phase text into viewport-sized pages
// and caches the results.
package paginate

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// TEXT MEASUREMENT
// =============================================================================

// Measurer reports how many rendered lines a piece of text occupies at a
// given width. Pagination is a pure function of text and measurement, so
// any Measurer implementation must be deterministic.
type Measurer interface {
	// Height returns the number of rendered lines for text wrapped to
	// width columns. Width <= 0 returns the raw line count.
	Height(text string, width int) int
}

// MonospaceMeasurer measures text in terminal display cells, accounting
// for double-width (CJK) runes.
type MonospaceMeasurer struct{}

// NewMonospaceMeasurer creates a display-cell measurer.
func NewMonospaceMeasurer() *MonospaceMeasurer {
	return &MonospaceMeasurer{}
}

// Height implements Measurer.
func (m *MonospaceMeasurer) Height(text string, width int) int {
	if text == "" {
		return 0
	}

	lines := 0
	for _, line := range strings.Split(text, "\n") {
		lines += wrappedLines(line, width)
	}
	return lines
}

// wrappedLines counts the rendered lines for one logical line.
func wrappedLines(line string, width int) int {
	if width <= 0 {
		return 1
	}
	if line == "" {
		return 1
	}

	lines := 1
	col := 0
	for _, r := range line {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > width {
			lines++
			col = 0
		}
		col += w
	}
	return lines
}
