// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"sort"
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// fzf requires algo.Init before any matcher call: it fills the
// package-level character-class and bonus tables that FuzzyMatchV2
// reads (fzf's own main does this at startup). "default" is fzf's
// default scheme; without this, uppercase text never case-folds and
// case-insensitive matching silently fails.
func init() {
	algo.Init("default")
}

// FuzzyResult holds the outcome of matching a pattern against one text
// field. Score is fzf's match quality (0 means no match); Positions are
// rune indices of the matched characters, ascending, for highlighting.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// NewSlab allocates a reusable scratch buffer for the fzf algorithm.
// One slab serves any number of sequential fuzzyMatch calls; sharing a
// slab across goroutines is not safe.
func NewSlab() *util.Slab {
	return util.MakeSlab(100*1024, 2048)
}

// fuzzyMatch runs fzf's V2 algorithm case-insensitively. The pattern
// must be handed in as typed; it is lowercased here because fzf expects
// a pre-lowered pattern when matching case-insensitively. A nil slab is
// accepted (the algorithm allocates per call).
func fuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 || text == "" {
		return FuzzyResult{}
	}
	lowered := []rune(strings.ToLower(string(pattern)))
	chars := util.ToChars([]byte(text))
	match, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if match.Score <= 0 {
		return FuzzyResult{}
	}
	result := FuzzyResult{Score: match.Score}
	if positions != nil {
		result.Positions = *positions
		sort.Ints(result.Positions)
	}
	return result
}
