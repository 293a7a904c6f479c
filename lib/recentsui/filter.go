// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"
)

// FilterModel implements fzf-style fuzzy matching across the fields a
// user knows a conversation by: contact name, remote address, local
// account, and event type. The filter narrows the recency list
// client-side; the backing list is untouched.
type FilterModel struct {
	// Input is the current filter query text.
	Input string

	// Active is true when the filter input has keyboard focus
	// (the user pressed / to start typing).
	Active bool
}

// FilterResult pairs an entry with its match quality. NamePositions
// are rune indices into the entry's display name for highlighting;
// empty when the match came from another field.
type FilterResult struct {
	Entry         Entry
	Score         int
	NamePositions []int
}

// ApplyFuzzy matches the filter against each entry and returns the
// matches sorted by score descending, recency order preserved for
// ties. An empty filter returns every entry unscored. The slab is the
// fzf scratch buffer from [NewSlab]; nil is accepted.
func (filter *FilterModel) ApplyFuzzy(entries []Entry, slab *util.Slab) []FilterResult {
	if filter.Input == "" {
		results := make([]FilterResult, len(entries))
		for i, entry := range entries {
			results[i] = FilterResult{Entry: entry}
		}
		return results
	}

	pattern := []rune(filter.Input)
	var results []FilterResult
	for _, entry := range entries {
		result := FilterResult{Entry: entry}

		name := fuzzyMatch(entry.Name(), pattern, slab)
		if name.Score > 0 {
			result.Score = name.Score
			result.NamePositions = name.Positions
		}

		// The remote address matters when the name resolved to
		// something else; the local account and type let queries like
		// "sim1" or "call" narrow the list.
		for _, field := range []string{entry.Event.RemoteUID, entry.Event.LocalUID, entry.Event.Type.String()} {
			if field == "" {
				continue
			}
			if match := fuzzyMatch(field, pattern, slab); match.Score > result.Score {
				result.Score = match.Score
			}
		}

		if result.Score > 0 {
			results = append(results, result)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// HandleRune processes a character typed while the filter is active.
// Returns true if the input changed.
func (filter *FilterModel) HandleRune(character rune) bool {
	filter.Input += string(character)
	return true
}

// HandleBackspace removes the last character from the filter input.
// Returns true if the input changed.
func (filter *FilterModel) HandleBackspace() bool {
	if len(filter.Input) == 0 {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the filter input and deactivates it.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. When active, shows the input with a
// cursor. When inactive with text, shows the filter text. When
// inactive with no text, returns empty string (hidden).
func (filter *FilterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}

	style := lipgloss.NewStyle().
		Foreground(theme.NormalText).
		Width(width)

	if filter.Active {
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return style.Render(" / " + filter.Input + cursor)
	}

	// Inactive but has text — show the filter as a subtle indicator.
	dimStyle := lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width)
	return dimStyle.Render(" filter: " + filter.Input)
}
