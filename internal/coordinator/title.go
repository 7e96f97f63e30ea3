// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"fmt"
	"strings"

	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/util"
)

// titleWordLimit caps how much of the query becomes the thread title.
const titleWordLimit = 10

// titleMaxRunes is a hard cap for pathological single-word queries.
const titleMaxRunes = 80

// deriveTitle builds a thread title from the first words of a query.
func deriveTitle(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return model.UntitledPrefix
	}
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	return util.TruncateRunes(strings.Join(words, " "), titleMaxRunes)
}

// uniqueTitle dedupes a candidate against existing thread titles by
// appending an incrementing counter suffix: " (2)", " (3)", and so on.
func uniqueTitle(candidate string, exists func(string) (bool, error)) (string, error) {
	taken, err := exists(candidate)
	if err != nil {
		return "", err
	}
	if !taken {
		return candidate, nil
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s (%d)", candidate, n)
		taken, err := exists(name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
}

// nameThread derives and persists a title for a freshly-answered thread.
// Runs fire-and-forget after terminal completion; it re-checks the
// needs-naming marker so re-runs cannot clobber a customized title, and
// failures are logged, never propagated.
func (m *machine) nameThread(saver ThreadSaver, thread *model.Thread, query string) {
	if saver == nil || thread == nil || !thread.NeedsNaming() {
		return
	}

	title, err := uniqueTitle(deriveTitle(query), saver.TitleExists)
	if err != nil {
		m.logf("TITLE: dedup lookup failed for thread %s: %v", thread.ID, err)
		return
	}
	if err := saver.UpdateTitle(thread.ID, title); err != nil {
		m.logf("TITLE: rename failed for thread %s: %v", thread.ID, err)
		return
	}
	thread.Title = title
}
