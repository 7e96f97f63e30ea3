// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package paginate

import (
	"context"
	"time"

	"github.com/choirchat/choir-tui/internal/model"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine ties the paginator to the page cache and owns the background
// sweep. Synchronous lookups serve the UI goroutine; the async entry
// point runs the measurement off that goroutine and delivers pages via
// callback, for preloading adjacent phases without blocking rendering.
type Engine struct {
	paginator *Paginator
	cache     *Cache

	sweepEvery time.Duration
}

// NewEngine creates an engine with the given paginator and cache.
// Nil arguments get defaults (monospace measurement, 100-entry cache
// with a 30 minute TTL).
func NewEngine(p *Paginator, c *Cache) *Engine {
	if p == nil {
		p = NewPaginator(Options{}, nil)
	}
	if c == nil {
		c = NewCache(0, 0)
	}
	return &Engine{
		paginator:  p,
		cache:      c,
		sweepEvery: 5 * time.Minute,
	}
}

// GetPaginated returns the pages for a phase's text, computing and
// caching them on miss.
func (e *Engine) GetPaginated(messageID string, phase model.Phase, text string, width, height int) []string {
	key := NewKey(messageID, phase, float64(width), float64(height), text)
	if pages, ok := e.cache.Get(key); ok {
		return pages
	}

	pages := e.paginator.Paginate(text, width, height)
	e.cache.Put(key, pages)
	return pages
}

// GetPaginatedAsync computes pages on a background goroutine and hands
// them to the callback. The callback runs on that goroutine; callers
// bridge the result back onto their own loop (the TUI does this with a
// program message).
func (e *Engine) GetPaginatedAsync(messageID string, phase model.Phase, text string, width, height int, deliver func([]string)) {
	go func() {
		deliver(e.GetPaginated(messageID, phase, text, width, height))
	}()
}

// InvalidateMessage drops every cached result for a message.
func (e *Engine) InvalidateMessage(messageID string) {
	e.cache.InvalidateMessage(messageID)
}

// Clear drops the whole cache.
func (e *Engine) Clear() {
	e.cache.Clear()
}

// Stats returns cache statistics.
func (e *Engine) Stats() CacheStats {
	return e.cache.Stats()
}

// RunSweeper periodically sweeps aged, little-used cache entries until
// the context is cancelled. Run it on its own goroutine.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.cache.Sweep(now)
		}
	}
}
