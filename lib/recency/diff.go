// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recency

import (
	"fmt"
	"slices"

	"github.com/commtrail/commtrail/lib/event"
)

// Range is an inclusive span of list indices.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d]", r.Start, r.End) }

// Len returns the number of indices the range covers.
func (r Range) Len() int { return r.End - r.Start + 1 }

// Diff describes one list transition. Removed ranges are index spans
// into the list as it was before the transition, ordered descending
// so an observer can apply them one by one without adjusting the
// indices of later ranges. Inserted entries go in at InsertedAt in
// the order given, after all removals.
type Diff struct {
	Removed    []Range
	InsertedAt int
	Inserted   []event.Event
}

// Empty reports whether the diff changes nothing.
func (d Diff) Empty() bool { return len(d.Removed) == 0 && len(d.Inserted) == 0 }

// collapseDescending folds a sorted ascending index list into maximal
// contiguous ranges, returned in descending order.
func collapseDescending(indices []int) []Range {
	var ranges []Range
	for len(indices) > 0 {
		end := indices[len(indices)-1]
		start := end
		i := len(indices) - 2
		for i >= 0 && indices[i] == start-1 {
			start--
			i--
		}
		indices = indices[:i+1]
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

// Apply mirrors the diff onto an external copy of the list and
// returns the updated slice. Observers that keep their own backing
// slice can use it instead of hand-rolling index arithmetic.
func (d Diff) Apply(entries []event.Event) []event.Event {
	for _, r := range d.Removed {
		entries = slices.Delete(entries, r.Start, r.End+1)
	}
	return slices.Insert(entries, d.InsertedAt, d.Inserted...)
}
