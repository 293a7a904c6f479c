// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory defines the contact directory contract consumed by
// the resolver and the recency list. A directory answers "which
// contact owns this address" with synchronous-cache-hit-or-
// asynchronous-resolve semantics: a resolve call either returns the
// item immediately or returns nil and invokes the listener's callback
// later, on the same task loop the caller runs on.
//
// Implementations live elsewhere (lib/contactdb provides the
// SQLite-backed one); this package carries only the contract and the
// item snapshot type so core packages depend on no storage code.
package directory

import "fmt"

// AddressFlags describes which address kinds a contact carries. Used
// as a capability requirement mask by the recency list: a mask matches
// when the contact has at least one of the required kinds.
type AddressFlags uint64

const (
	// HasPhoneNumber marks contacts reachable by telephony.
	HasPhoneNumber AddressFlags = 1 << iota

	// HasEmailAddress marks contacts with an email address.
	HasEmailAddress

	// HasOnlineAccount marks contacts with an instant-messaging
	// account.
	HasOnlineAccount
)

// Matches reports whether the flags satisfy a requirement mask. An
// empty mask requires nothing.
func (flags AddressFlags) Matches(required AddressFlags) bool {
	return required == 0 || flags&required != 0
}

// String renders the flags as a comma-joined list of capability names.
func (flags AddressFlags) String() string {
	names := ""
	appendName := func(bit AddressFlags, name string) {
		if flags&bit == 0 {
			return
		}
		if names != "" {
			names += ","
		}
		names += name
	}
	appendName(HasPhoneNumber, "phone")
	appendName(HasEmailAddress, "email")
	appendName(HasOnlineAccount, "account")
	return names
}

// ParseAddressFlag parses a single capability name.
func ParseAddressFlag(name string) (AddressFlags, error) {
	switch name {
	case "phone":
		return HasPhoneNumber, nil
	case "email":
		return HasEmailAddress, nil
	case "account":
		return HasOnlineAccount, nil
	default:
		return 0, fmt.Errorf("unknown address capability: %q", name)
	}
}

// ParseAddressFlags folds a list of capability names into one
// requirement mask. An empty list yields the empty mask, which
// requires nothing.
func ParseAddressFlags(names []string) (AddressFlags, error) {
	var mask AddressFlags
	for _, name := range names {
		f, err := ParseAddressFlag(name)
		if err != nil {
			return 0, err
		}
		mask |= f
	}
	return mask, nil
}

// Item is a directory-owned contact snapshot. Consumers read it and
// never mutate it; the directory may hand the same pointer to multiple
// callers.
type Item struct {
	// ContactID identifies the contact. Always nonzero on a real item;
	// a nil *Item stands for "no matching contact".
	ContactID int

	// DisplayName is the presentable contact name.
	DisplayName string

	// Flags describes the contact's address capabilities.
	Flags AddressFlags

	// Favorite is the contact's favorite mark at snapshot time. Use
	// [Directory.IsFavorite] for the current status.
	Favorite bool
}

// ResolveListener receives asynchronous resolution results. The
// callback's address pair identifies the query, not the contact's
// canonical address:
//
//   - account lookups deliver the exact (localUID, remoteUID) pair
//     that was queried;
//   - phone lookups deliver an empty localUID and the normalized
//     number, because the directory matches phone numbers by
//     minimized key and one result can answer several spellings.
//
// item is nil when no contact matched. Callbacks arrive on the task
// loop the directory was configured with, never concurrently with it.
type ResolveListener interface {
	AddressResolved(localUID, remoteUID string, item *Item)
}

// Directory is the contact lookup service.
type Directory interface {
	// ResolvePhone looks up the contact owning a phone number. A
	// non-nil return is a synchronous cache hit and no callback will
	// follow; nil means the listener will be called when the lookup
	// completes.
	ResolvePhone(listener ResolveListener, number string) *Item

	// ResolveAccount looks up the contact owning an online-account
	// address pair, with the same hit-or-callback contract as
	// ResolvePhone.
	ResolveAccount(listener ResolveListener, localUID, remoteUID string) *Item

	// CachedByPhone returns the best already-cached match for a full
	// phone number, or nil. Never triggers a lookup; used by the
	// resolver's fan-out path to give each pending spelling its own
	// best match.
	CachedByPhone(number string) *Item

	// Unregister removes a listener from the callback registry. After
	// it returns the listener will not be called again; resolvers call
	// it on teardown so late callbacks are impossible.
	Unregister(listener ResolveListener)

	// IsFavorite reports the contact's current favorite status. A
	// directory miss reads as false.
	IsFavorite(contactID int) bool
}
