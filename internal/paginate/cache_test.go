// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package paginate

import (
	"fmt"
	"testing"
	"time"

	"github.com/choirchat/choir-tui/internal/model"
)

func testKey(msg string, i int) Key {
	return NewKey(msg, model.PhaseAction, 80, 24, fmt.Sprintf("content-%d", i))
}

// =============================================================================
// KEY TESTS
// =============================================================================

func TestKeyDimensionRounding(t *testing.T) {
	a := NewKey("m", model.PhaseAction, 80.04, 24.04, "text")
	b := NewKey("m", model.PhaseAction, 80.01, 24.02, "text")
	if a != b {
		t.Error("Sub-decimal jitter should collapse to the same key")
	}

	c := NewKey("m", model.PhaseAction, 80.2, 24.0, "text")
	if a == c {
		t.Error("A real dimension change should produce a different key")
	}
}

func TestKeyContentHashNormalized(t *testing.T) {
	// "é" precomposed vs combining sequence should hash identically.
	a := NewKey("m", model.PhaseAction, 80, 24, "café")
	b := NewKey("m", model.PhaseAction, 80, 24, "café")
	if a != b {
		t.Error("NFC-equivalent content should share a cache key")
	}
}

func TestKeyDistinguishesPhases(t *testing.T) {
	a := NewKey("m", model.PhaseAction, 80, 24, "text")
	b := NewKey("m", model.PhaseYield, 80, 24, "text")
	if a == b {
		t.Error("Different phases must not collide")
	}
}

// =============================================================================
// LRU TESTS
// =============================================================================

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(3, time.Hour)

	for i := 0; i < 3; i++ {
		c.Put(testKey("m", i), []string{fmt.Sprintf("page-%d", i)})
	}

	// Touch entry 0 so entry 1 becomes the least recently used.
	if _, ok := c.Get(testKey("m", 0)); !ok {
		t.Fatal("Entry 0 should be cached")
	}

	// Inserting a 4th entry must evict exactly entry 1.
	c.Put(testKey("m", 3), []string{"page-3"})

	if _, ok := c.Get(testKey("m", 1)); ok {
		t.Error("Entry 1 should have been evicted as least recently used")
	}
	for _, i := range []int{0, 2, 3} {
		if _, ok := c.Get(testKey("m", i)); !ok {
			t.Errorf("Entry %d should have survived eviction", i)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Cache should hold exactly 3 entries, got %d", c.Len())
	}
}

func TestCacheUpdateDoesNotEvict(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put(testKey("m", 0), []string{"a"})
	c.Put(testKey("m", 1), []string{"b"})

	// Overwriting an existing key is not an insertion.
	c.Put(testKey("m", 0), []string{"a2"})

	if _, ok := c.Get(testKey("m", 1)); !ok {
		t.Error("Updating an entry must not evict its neighbor")
	}
	pages, _ := c.Get(testKey("m", 0))
	if len(pages) != 1 || pages[0] != "a2" {
		t.Errorf("Expected updated pages, got %v", pages)
	}
}

func TestCacheInvalidateMessage(t *testing.T) {
	c := NewCache(10, time.Hour)
	for i := 0; i < 3; i++ {
		c.Put(testKey("doomed", i), []string{"x"})
		c.Put(testKey("kept", i), []string{"y"})
	}

	c.InvalidateMessage("doomed")

	for i := 0; i < 3; i++ {
		if _, ok := c.Get(testKey("doomed", i)); ok {
			t.Errorf("Entry %d of invalidated message still cached", i)
		}
		if _, ok := c.Get(testKey("kept", i)); !ok {
			t.Errorf("Entry %d of the other message was wrongly removed", i)
		}
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Put(testKey("m", 0), []string{"x"})
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Clear should empty the cache, got %d entries", c.Len())
	}
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestCacheSweepRemovesAgedColdEntries(t *testing.T) {
	c := NewCache(10, 30*time.Minute)

	cold := testKey("m", 0)
	hot := testKey("m", 1)
	fresh := testKey("m", 2)
	c.Put(cold, []string{"cold"})
	c.Put(hot, []string{"hot"})
	c.Put(fresh, []string{"fresh"})

	// Make the hot entry earn its keep.
	for i := 0; i < 5; i++ {
		c.Get(hot)
	}

	// Age the cold and hot entries past the TTL.
	c.mu.Lock()
	c.entries[cold].cachedAt = time.Now().Add(-time.Hour)
	c.entries[hot].cachedAt = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	removed := c.Sweep(time.Now())
	if removed != 1 {
		t.Errorf("Expected exactly 1 sweep removal, got %d", removed)
	}
	if _, ok := c.Get(cold); ok {
		t.Error("Aged cold entry should be swept")
	}
	if _, ok := c.Get(hot); !ok {
		t.Error("Aged but frequently-accessed entry should survive")
	}
	if _, ok := c.Get(fresh); !ok {
		t.Error("Fresh entry should survive")
	}
}

// =============================================================================
// ENGINE TESTS
// =============================================================================

func TestEngineCachesResults(t *testing.T) {
	e := NewEngine(nil, nil)
	text := longParagraph(1000)

	first := e.GetPaginated("m1", model.PhaseYield, text, 50, 10)
	second := e.GetPaginated("m1", model.PhaseYield, text, 50, 10)

	if len(first) != len(second) {
		t.Fatal("Cached result should match the computed one")
	}
	stats := e.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
}

func TestEngineAsyncDelivery(t *testing.T) {
	e := NewEngine(nil, nil)
	done := make(chan []string, 1)

	e.GetPaginatedAsync("m1", model.PhaseYield, longParagraph(1000), 50, 10, func(pages []string) {
		done <- pages
	})

	select {
	case pages := <-done:
		if len(pages) == 0 {
			t.Error("Async pagination should deliver pages")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for async pagination")
	}
}

func TestEngineInvalidateMessage(t *testing.T) {
	e := NewEngine(nil, nil)
	e.GetPaginated("m1", model.PhaseYield, "some text", 50, 10)
	e.InvalidateMessage("m1")

	e.GetPaginated("m1", model.PhaseYield, "some text", 50, 10)
	if stats := e.Stats(); stats.Hits != 0 {
		t.Errorf("Invalidated entry must recompute, got %d hits", stats.Hits)
	}
}
