// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package recipient models the correspondent identity of a
// communication event: a (localUID, remoteUID) address pair plus the
// outcome of resolving that pair against the contact directory.
//
// Instances are interned through a [Registry] so every event naming
// the same pair shares one instance, and resolving the pair once
// resolves it everywhere. The registry is an explicit collaborator
// passed to decode boundaries; there is no process-wide instance.
//
// Resolution state is owned by the task loop the resolver runs on:
// SetResolved and the state accessors must only be called from loop
// tasks. Creating recipients (Registry.Recipient) is safe from any
// goroutine.
package recipient

import (
	"fmt"
	"sync"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/phone"
)

// Pair is the comparable address identity of a recipient, usable as a
// map key. Equality is exact string equality on both fields; phone
// spelling equivalence is a matching concern (MatchesPhoneNumber), not
// an identity concern.
type Pair struct {
	LocalUID  string
	RemoteUID string
}

// String formats the pair for logs.
func (p Pair) String() string {
	return p.LocalUID + "/" + p.RemoteUID
}

// Recipient is one correspondent address and its resolution state.
// An address pair with an empty localUID or remoteUID can never match
// a contact and is constructed already resolved-to-nothing.
type Recipient struct {
	localUID  string
	remoteUID string

	// isPhone records whether localUID addresses the cellular service,
	// fixing how remoteUID is matched against the directory.
	isPhone bool
	match   phone.MatchDetails

	// Resolution outcome. Written by SetResolved on the task loop.
	resolved    bool
	contactID   int
	flags       directory.AddressFlags
	displayName string
}

func newRecipient(localUID, remoteUID string) *Recipient {
	r := &Recipient{
		localUID:  localUID,
		remoteUID: remoteUID,
		isPhone:   phone.IsPhoneLocalUID(localUID),
	}
	if r.isPhone {
		r.match = phone.NewMatchDetails(remoteUID)
	}
	if localUID == "" || remoteUID == "" {
		r.resolved = true
	}
	return r
}

// LocalUID returns the local account UID ("tel/sim1",
// "xmpp/alice@example.org").
func (r *Recipient) LocalUID() string { return r.localUID }

// RemoteUID returns the remote address as it appeared on the event.
func (r *Recipient) RemoteUID() string { return r.remoteUID }

// Pair returns the address identity.
func (r *Recipient) Pair() Pair {
	return Pair{LocalUID: r.localUID, RemoteUID: r.remoteUID}
}

// IsPhoneNumber reports whether the remote address is a phone number,
// which is a property of the local account rather than of the address
// text.
func (r *Recipient) IsPhoneNumber() bool { return r.isPhone }

// MatchDetails returns the precomputed phone lookup forms. Zero for
// non-phone recipients.
func (r *Recipient) MatchDetails() phone.MatchDetails { return r.match }

// MatchesPhoneNumber reports whether this recipient's address
// identifies the same line as the given details. Always false for
// non-phone recipients.
func (r *Recipient) MatchesPhoneNumber(details phone.MatchDetails) bool {
	return r.isPhone && details.Minimized != "" && r.match.Minimized == details.Minimized
}

// IsResolved reports whether a resolution outcome is known, including
// the resolved-to-nothing outcome.
func (r *Recipient) IsResolved() bool { return r.resolved }

// ContactID returns the resolved contact, 0 when unresolved or
// resolved to nothing.
func (r *Recipient) ContactID() int { return r.contactID }

// DisplayName returns the resolved contact's presentable name, ""
// when there is none.
func (r *Recipient) DisplayName() string { return r.displayName }

// AddressFlags returns the resolved contact's address capabilities.
func (r *Recipient) AddressFlags() directory.AddressFlags { return r.flags }

// MatchesAddressFlags reports whether the resolved contact satisfies a
// capability requirement mask. Unresolved and contactless recipients
// satisfy only the empty mask.
func (r *Recipient) MatchesAddressFlags(required directory.AddressFlags) bool {
	return r.flags.Matches(required)
}

// SetResolved records a resolution outcome. A nil item means resolved
// to nothing. Intended for resolver and directory code; must run on
// the task loop.
func (r *Recipient) SetResolved(item *directory.Item) {
	r.resolved = true
	if item == nil {
		r.contactID = 0
		r.flags = 0
		r.displayName = ""
		return
	}
	r.contactID = item.ContactID
	r.flags = item.Flags
	r.displayName = item.DisplayName
}

// ClearResolution forgets the resolution outcome so the pair is
// looked up again, except for structurally unresolvable pairs (empty
// UID), which stay resolved-to-nothing. Used when the directory
// reports that contact links changed.
func (r *Recipient) ClearResolution() {
	if r.localUID == "" || r.remoteUID == "" {
		return
	}
	r.resolved = false
	r.contactID = 0
	r.flags = 0
	r.displayName = ""
}

// String formats the recipient for logs.
func (r *Recipient) String() string {
	if r.resolved && r.contactID != 0 {
		return fmt.Sprintf("%s/%s#%d", r.localUID, r.remoteUID, r.contactID)
	}
	return r.localUID + "/" + r.remoteUID
}

// Registry interns recipients by address pair. All decode boundaries
// feeding one task loop must share one registry; the loop's resolver
// then sees a single instance per pair.
type Registry struct {
	mu     sync.Mutex
	byPair map[Pair]*Recipient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPair: make(map[Pair]*Recipient)}
}

// Recipient returns the canonical instance for an address pair,
// creating it on first use. Safe from any goroutine.
func (reg *Registry) Recipient(localUID, remoteUID string) *Recipient {
	key := Pair{LocalUID: localUID, RemoteUID: remoteUID}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if existing, ok := reg.byPair[key]; ok {
		return existing
	}
	created := newRecipient(localUID, remoteUID)
	reg.byPair[key] = created
	return created
}

// Len returns the number of interned pairs.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byPair)
}
