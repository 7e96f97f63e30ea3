// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package paginate

import (
	"fmt"
	"strings"
	"testing"
)

func testPaginator() *Paginator {
	return NewPaginator(Options{}, nil)
}

// longParagraph builds a single paragraph of short sentences totalling
// at least n characters.
func longParagraph(n int) string {
	var sb strings.Builder
	i := 0
	for sb.Len() < n {
		fmt.Fprintf(&sb, "This is sentence number %d in the paragraph. ", i)
		i++
	}
	return strings.TrimRight(sb.String()[:n], " ")
}

// =============================================================================
// UNIT SPLITTING TESTS
// =============================================================================

func TestSplitParagraphsRoundTrip(t *testing.T) {
	text := "first para\n\nsecond para\n\n\nthird with extra blank\n\nlast"
	parts := splitParagraphs(text)
	if len(parts) != 4 {
		t.Fatalf("Expected 4 paragraphs, got %d: %q", len(parts), parts)
	}
	if strings.Join(parts, "") != text {
		t.Error("Paragraph units must concatenate back to the input exactly")
	}
}

func TestSplitSentencesRoundTrip(t *testing.T) {
	para := "One sentence. Two sentences! Is this three? Yes.  Double spaced. trailing"
	parts := splitSentences(para)
	if len(parts) < 5 {
		t.Fatalf("Expected at least 5 sentence units, got %d: %q", len(parts), parts)
	}
	if strings.Join(parts, "") != para {
		t.Errorf("Sentence units must concatenate back to the input exactly, got %q", strings.Join(parts, ""))
	}
}

func TestSplitSentencesNoBoundaryInsideWord(t *testing.T) {
	// Dots not followed by whitespace (versions, URLs) are not boundaries.
	para := "Use v1.2.3 from example.com today. Second sentence here."
	parts := splitSentences(para)
	if len(parts) != 2 {
		t.Fatalf("Expected 2 sentences, got %d: %q", len(parts), parts)
	}
	if !strings.HasPrefix(parts[0], "Use v1.2.3") {
		t.Errorf("Version number split incorrectly: %q", parts[0])
	}
}

// =============================================================================
// PAGINATION TESTS
// =============================================================================

func TestPaginateDeterministic(t *testing.T) {
	p := testPaginator()
	text := longParagraph(3000)

	a := p.Paginate(text, 50, 10)
	b := p.Paginate(text, 50, 10)

	if len(a) != len(b) {
		t.Fatalf("Page counts differ across identical calls: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Page %d differs between identical calls", i)
		}
	}
}

func TestPaginateRoundTrip(t *testing.T) {
	p := testPaginator()
	texts := []string{
		longParagraph(4000),
		"short text",
		"para one\n\npara two\n\npara three",
		longParagraph(250) + "\n\n" + longParagraph(250),
	}
	for _, text := range texts {
		pages := p.Paginate(text, 50, 10)
		if strings.Join(pages, "") != text {
			t.Errorf("Pages must concatenate back to the input (len %d)", len(text))
		}
	}
}

func TestPaginateNoEmptyPages(t *testing.T) {
	p := testPaginator()
	pages := p.Paginate(longParagraph(4000), 50, 10)
	for i, page := range pages {
		if page == "" {
			t.Errorf("Page %d is empty", i)
		}
	}
}

func TestPaginateLongSingleParagraph(t *testing.T) {
	// A 4000-char single paragraph at ~500 chars per viewport.
	p := testPaginator()
	m := NewMonospaceMeasurer()
	text := longParagraph(4000)

	const width, height = 50, 10
	pages := p.Paginate(text, width, height)

	if len(pages) < 7 {
		t.Fatalf("Expected at least 7 pages, got %d", len(pages))
	}
	if strings.Join(pages, "") != text {
		t.Error("Concatenated pages must reproduce the original text exactly")
	}

	// No page except possibly the last may sit under the merge threshold.
	minLines := int(float64(height) * 0.30)
	for i, page := range pages[:len(pages)-1] {
		if m.Height(page, width) < minLines {
			t.Errorf("Page %d is under the minimum fill (%d lines)", i, m.Height(page, width))
		}
	}
}

func TestPaginateNoTinyTrailingFragment(t *testing.T) {
	p := testPaginator()
	m := NewMonospaceMeasurer()
	const width, height = 40, 12

	// Many lengths, to shake out off-by-one fragments at page edges.
	for n := 500; n <= 3500; n += 271 {
		text := longParagraph(n)
		pages := p.Paginate(text, width, height)
		if len(pages) < 2 {
			continue
		}

		last := pages[len(pages)-1]
		prev := pages[len(pages)-2]
		fh := float64(height)
		minLines := int(fh * 0.30)
		relaxedMax := int(fh * 0.95)

		if m.Height(last, width) < minLines {
			// Acceptable only if merging would overflow the relaxed
			// ceiling.
			if m.Height(prev+last, width) <= relaxedMax {
				t.Errorf("len=%d: tiny final page (%d lines) though merge fits", n, m.Height(last, width))
			}
		}
	}
}

func TestPaginateOversizedUnitGetsOwnPage(t *testing.T) {
	p := testPaginator()
	// One unbreakable unit taller than a page (no sentence boundaries).
	text := strings.Repeat("x", 1200)
	pages := p.Paginate(text, 30, 5)

	if len(pages) != 1 {
		t.Fatalf("Unbreakable oversized unit should produce one page, got %d", len(pages))
	}
	if pages[0] != text {
		t.Error("Oversized page must carry the full unit")
	}
}

func TestPaginateEmptyText(t *testing.T) {
	p := testPaginator()
	if pages := p.Paginate("", 50, 10); pages != nil {
		t.Errorf("Empty input should produce no pages, got %d", len(pages))
	}
}

// =============================================================================
// MEASURER TESTS
// =============================================================================

func TestMonospaceMeasurerWrapping(t *testing.T) {
	m := NewMonospaceMeasurer()

	if h := m.Height("", 10); h != 0 {
		t.Errorf("Empty text should measure 0 lines, got %d", h)
	}
	if h := m.Height("short", 10); h != 1 {
		t.Errorf("Expected 1 line, got %d", h)
	}
	if h := m.Height(strings.Repeat("a", 25), 10); h != 3 {
		t.Errorf("25 cells at width 10 should be 3 lines, got %d", h)
	}
	if h := m.Height("one\ntwo\nthree", 10); h != 3 {
		t.Errorf("Three logical lines should be 3 lines, got %d", h)
	}
}

func TestMonospaceMeasurerWideRunes(t *testing.T) {
	m := NewMonospaceMeasurer()
	// CJK runes occupy two cells each: ten of them need 20 cells.
	if h := m.Height(strings.Repeat("歌", 10), 10); h != 2 {
		t.Errorf("Ten double-width runes at width 10 should be 2 lines, got %d", h)
	}
}
