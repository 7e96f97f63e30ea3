// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package paginate

import (
	"strings"
	"unicode"
)

// =============================================================================
// PAGINATOR CONFIGURATION
// =============================================================================

// Options tunes the pagination algorithm. Zero values take defaults.
type Options struct {
	// TargetFill closes a page once its height crosses this fraction of
	// the viewport; leaving headroom lets the next streaming update
	// extend the current page instead of a stale one (default: 0.80).
	TargetFill float64

	// MaxFill is the hard packing ceiling as a fraction of viewport
	// height (default: 0.95).
	MaxFill float64

	// MinFill is the low-fill ratio under which a page is merged into a
	// neighbor during post-processing (default: 0.30).
	MinFill float64

	// SafetyLines is subtracted from the packing ceiling (default: 1).
	SafetyLines int

	// LongParagraph is the character length above which a paragraph is
	// split into sentence units (default: 200).
	LongParagraph int
}

// withDefaults fills in zero values.
func (o Options) withDefaults() Options {
	if o.TargetFill <= 0 {
		o.TargetFill = 0.80
	}
	if o.MaxFill <= 0 {
		o.MaxFill = 0.95
	}
	if o.MinFill <= 0 {
		o.MinFill = 0.30
	}
	if o.SafetyLines <= 0 {
		o.SafetyLines = 1
	}
	if o.LongParagraph <= 0 {
		o.LongParagraph = 200
	}
	return o
}

// Paginator splits text into pages for a viewport.
type Paginator struct {
	opts     Options
	measurer Measurer
}

// NewPaginator creates a paginator. A nil measurer gets the monospace
// default.
func NewPaginator(opts Options, m Measurer) *Paginator {
	if m == nil {
		m = NewMonospaceMeasurer()
	}
	return &Paginator{opts: opts.withDefaults(), measurer: m}
}

// =============================================================================
// PAGINATION
// =============================================================================

// Paginate splits text into pages for a width x height viewport.
//
// Deterministic: identical inputs produce identical pages, and the
// concatenation of all pages reproduces the input byte for byte (units
// keep their separators, so no characters are lost or invented).
func (p *Paginator) Paginate(text string, width, height int) []string {
	if text == "" {
		return nil
	}
	if height <= 0 {
		return []string{text}
	}

	maxLines := int(float64(height)*p.opts.MaxFill) - p.opts.SafetyLines
	if maxLines < 1 {
		maxLines = 1
	}
	targetLines := int(float64(height) * p.opts.TargetFill)
	if targetLines < 1 {
		targetLines = 1
	}

	units := p.splitUnits(text)
	pages := p.fillPages(units, width, maxLines, targetLines)
	return p.mergeSmallPages(pages, width, height, maxLines)
}

// fillPages greedily accumulates units into pages.
func (p *Paginator) fillPages(units []string, width, maxLines, targetLines int) []string {
	var pages []string
	var cur strings.Builder

	for _, unit := range units {
		if cur.Len() == 0 {
			// A page is never empty: an oversized single unit still
			// gets its own page.
			cur.WriteString(unit)
		} else {
			tentative := cur.String() + unit
			if p.measurer.Height(tentative, width) > maxLines {
				pages = append(pages, cur.String())
				cur.Reset()
				cur.WriteString(unit)
			} else {
				cur.WriteString(unit)
			}
		}

		// Close the page at the target threshold rather than packing
		// to the ceiling.
		if p.measurer.Height(cur.String(), width) >= targetLines {
			pages = append(pages, cur.String())
			cur.Reset()
		}
	}

	if cur.Len() > 0 {
		pages = append(pages, cur.String())
	}
	return pages
}

// mergeSmallPages folds pages under the low-fill threshold into their
// neighbor when the merged page still fits. The final page gets a second
// try with a relaxed ceiling, since a lone trailing sentence on its own
// page reads badly.
func (p *Paginator) mergeSmallPages(pages []string, width, height, maxLines int) []string {
	if len(pages) < 2 {
		return pages
	}

	minLines := int(float64(height) * p.opts.MinFill)
	relaxedMax := int(float64(height) * p.opts.MaxFill)

	out := make([]string, 0, len(pages))
	out = append(out, pages[0])

	for i := 1; i < len(pages); i++ {
		page := pages[i]
		prev := out[len(out)-1]
		isLast := i == len(pages)-1

		if p.measurer.Height(page, width) >= minLines {
			out = append(out, page)
			continue
		}

		merged := prev + page
		mergedHeight := p.measurer.Height(merged, width)
		limit := maxLines
		if isLast && mergedHeight > limit {
			limit = relaxedMax
		}
		if mergedHeight <= limit {
			out[len(out)-1] = merged
		} else {
			out = append(out, page)
		}
	}
	return out
}

// =============================================================================
// SEMANTIC UNIT SPLITTING
// =============================================================================

// splitUnits breaks text into paragraphs, splitting long paragraphs at
// sentence boundaries. Every unit retains its original separators so the
// units concatenate back to the input exactly.
func (p *Paginator) splitUnits(text string) []string {
	var units []string
	for _, para := range splitParagraphs(text) {
		if len(para) > p.opts.LongParagraph {
			units = append(units, splitSentences(para)...)
		} else {
			units = append(units, para)
		}
	}
	return units
}

// splitParagraphs splits on blank lines, keeping each "\n\n" separator
// attached to the paragraph before it.
func splitParagraphs(text string) []string {
	var out []string
	rest := text
	for {
		i := strings.Index(rest, "\n\n")
		if i == -1 {
			if rest != "" {
				out = append(out, rest)
			}
			return out
		}
		// Swallow any extra blank lines into the same separator.
		end := i + 2
		for end < len(rest) && rest[end] == '\n' {
			end++
		}
		out = append(out, rest[:end])
		rest = rest[end:]
	}
}

// splitSentences splits a paragraph at sentence boundaries: '.', '!' or
// '?' followed by whitespace. The boundary whitespace stays with the
// preceding sentence so the pieces concatenate back exactly.
func splitSentences(para string) []string {
	var out []string
	runes := []rune(para)
	start := 0

	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if !unicode.IsSpace(runes[i+1]) {
			continue
		}
		// Attach the run of whitespace to this sentence.
		end := i + 1
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
		i = end - 1
	}

	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
