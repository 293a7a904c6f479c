// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recipient

import "strings"

// List is an ordered set of recipients, used for batch submission to
// the resolver and for directory change notifications.
type List []*Recipient

// AllResolved reports whether every recipient has a known resolution
// outcome. True for the empty list.
func (l List) AllResolved() bool {
	for _, r := range l {
		if !r.IsResolved() {
			return false
		}
	}
	return true
}

// ContactIDs returns the resolved contact IDs in list order,
// including zeros for unresolved or contactless entries.
func (l List) ContactIDs() []int {
	ids := make([]int, len(l))
	for i, r := range l {
		ids[i] = r.ContactID()
	}
	return ids
}

// ContactID returns the first recipient's contact ID, 0 for an empty
// list. Events in this system carry a single correspondent, so "the
// event's contact" is the first entry's.
func (l List) ContactID() int {
	if len(l) == 0 {
		return 0
	}
	return l[0].ContactID()
}

// String formats the list for logs.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, r := range l {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
