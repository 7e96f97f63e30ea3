// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paginate splits streaming phase text into viewport-sized pages
// and caches the results.
//
// # Algorithm
//
// Text is broken into semantic units: paragraphs, with long paragraphs
// further split at sentence boundaries. Units are greedily packed into
// pages up to a hard ceiling, but a page closes as soon as it crosses a
// lower target threshold so the next streaming update extends the
// current page rather than reflowing a packed one. A post-pass merges
// under-filled pages into neighbors, with a relaxed ceiling for the
// final page to avoid a lone trailing fragment.
//
// Every unit keeps its original separators, so the concatenation of all
// pages reproduces the input byte for byte.
//
// # Caching
//
// Results are cached under (message, phase, rounded geometry, content
// hash) with LRU eviction and a periodic sweep of aged, little-used
// entries. One mutex guards the map and the LRU order; the cache is the
// only pagination state shared between the UI goroutine and background
// preloads.
package paginate
