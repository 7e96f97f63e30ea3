// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package paginate

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/choirchat/choir-tui/internal/model"
)

// =============================================================================
// CACHE KEY
// =============================================================================

// Key identifies one pagination result. Identical keys always map to
// identical page slices: pagination is pure over text and geometry.
type Key struct {
	MessageID string
	Phase     model.Phase

	// Dimensions rounded to one decimal to keep floating-point jitter
	// from fragmenting the cache.
	Width  float64
	Height float64

	// ContentHash is an FNV-1a hash of the NFC-normalized text.
	ContentHash uint64
}

// NewKey builds a cache key from raw geometry and content.
func NewKey(messageID string, phase model.Phase, width, height float64, text string) Key {
	return Key{
		MessageID:   messageID,
		Phase:       phase,
		Width:       roundDim(width),
		Height:      roundDim(height),
		ContentHash: hashContent(text),
	}
}

// roundDim rounds a dimension to one decimal place.
func roundDim(v float64) float64 {
	return math.Round(v*10) / 10
}

// hashContent hashes NFC-normalized text so visually identical content
// shares an entry regardless of Unicode composition.
func hashContent(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(norm.NFC.String(text)))
	return h.Sum64()
}

// =============================================================================
// PAGE CACHE
// =============================================================================

// cacheEntry is one cached pagination result.
type cacheEntry struct {
	pages       []string
	cachedAt    time.Time
	accessedAt  time.Time
	accessCount int
}

// Cache is an LRU cache of pagination results with TTL-based sweeping.
//
// CONCURRENCY: the cache is hit from the UI goroutine and from
// background preloads; one mutex guards both the map and the LRU order
// so concurrent access cannot lose updates.
type Cache struct {
	mu          sync.Mutex
	entries     map[Key]*cacheEntry
	accessOrder []Key // front = least recently used
	maxEntries  int

	ttl            time.Duration
	sweepMinAccess int

	hits   int
	misses int
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits       int
	Misses     int
	EntryCount int
	HitRate    float64
}

// NewCache creates a page cache.
// maxEntries: LRU capacity (default: 100)
// ttl: sweep age threshold (default: 30 minutes)
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{
		entries:        make(map[Key]*cacheEntry),
		accessOrder:    make([]Key, 0, maxEntries),
		maxEntries:     maxEntries,
		ttl:            ttl,
		sweepMinAccess: 3,
	}
}

// Get returns the cached pages for a key, if present.
func (c *Cache) Get(key Key) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry.accessedAt = time.Now()
	entry.accessCount++
	c.touchLocked(key)
	c.hits++

	// Callers must not mutate the cached slice.
	return entry.pages, true
}

// Put stores a pagination result, evicting the least recently used entry
// when over capacity.
func (c *Cache) Put(key Key, pages []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxEntries {
			if len(c.accessOrder) == 0 {
				break
			}
			c.removeLocked(c.accessOrder[0])
		}
	}

	now := time.Now()
	c.entries[key] = &cacheEntry{
		pages:      pages,
		cachedAt:   now,
		accessedAt: now,
	}
	c.touchLocked(key)
}

// InvalidateMessage removes all and only the entries for a message.
// Called when a message is deleted or its thread is discarded.
func (c *Cache) InvalidateMessage(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.MessageID == messageID {
			c.removeLocked(key)
		}
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*cacheEntry)
	c.accessOrder = c.accessOrder[:0]
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: len(c.entries),
		HitRate:    hitRate,
	}
}

// Sweep removes entries older than the TTL that have not earned their
// keep (fewer than sweepMinAccess hits). Hot entries survive regardless
// of age so currently-streaming content stays fast.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.cachedAt) > c.ttl && entry.accessCount < c.sweepMinAccess {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

// removeLocked removes an entry (must hold lock).
func (c *Cache) removeLocked(key Key) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
}

// touchLocked moves key to the most-recently-used position (must hold lock).
func (c *Cache) touchLocked(key Key) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	c.accessOrder = append(c.accessOrder, key)
}
