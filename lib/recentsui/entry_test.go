// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/recency"
	"github.com/commtrail/commtrail/lib/recipient"
)

// favDirectory answers only favorite lookups; the observer never
// issues resolution requests.
type favDirectory struct {
	favorites map[int]bool
}

func (d *favDirectory) ResolvePhone(directory.ResolveListener, string) *directory.Item {
	return nil
}

func (d *favDirectory) ResolveAccount(directory.ResolveListener, string, string) *directory.Item {
	return nil
}

func (d *favDirectory) CachedByPhone(string) *directory.Item { return nil }

func (d *favDirectory) Unregister(directory.ResolveListener) {}

func (d *favDirectory) IsFavorite(contactID int) bool { return d.favorites[contactID] }

// collectObserver returns an observer whose messages accumulate in the
// returned slice pointer.
func collectObserver(dir directory.Directory) (*Observer, *[]tea.Msg) {
	var messages []tea.Msg
	observer := NewObserver(dir, func(message tea.Msg) {
		messages = append(messages, message)
	})
	return observer, &messages
}

// resolvedEvent builds an event carrying a recipient resolved to the
// given contact.
func resolvedEvent(t *testing.T, id int64, contactID int, name string) event.Event {
	t.Helper()
	registry := recipient.NewRegistry()
	r := registry.Recipient("ring/tel/ring", "+358501234567")
	r.SetResolved(&directory.Item{
		ContactID:   contactID,
		DisplayName: name,
		Flags:       directory.HasPhoneNumber,
	})
	return event.Event{
		ID:        id,
		Type:      event.TypeCall,
		LocalUID:  "ring/tel/ring",
		RemoteUID: "+358501234567",
		Recipient: r,
	}
}

func TestEntryName(t *testing.T) {
	resolved := Entry{DisplayName: "Alice Johnson", Event: event.Event{RemoteUID: "+358501111111"}}
	if resolved.Name() != "Alice Johnson" {
		t.Errorf("Name() = %q, want the display name", resolved.Name())
	}

	unresolved := Entry{Event: event.Event{RemoteUID: "+358501111111"}}
	if unresolved.Name() != "+358501111111" {
		t.Errorf("Name() = %q, want the remote address", unresolved.Name())
	}

	withheld := Entry{}
	if withheld.Name() != "(unknown)" {
		t.Errorf("Name() = %q, want the placeholder", withheld.Name())
	}
}

func TestObserverSnapshotResolved(t *testing.T) {
	dir := &favDirectory{favorites: map[int]bool{7: true}}
	observer, messages := collectObserver(dir)

	observer.EntryUpdated(0, resolvedEvent(t, 1, 7, "Alice Johnson"))

	if len(*messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*messages))
	}
	message, ok := (*messages)[0].(EntryUpdatedMsg)
	if !ok {
		t.Fatalf("expected EntryUpdatedMsg, got %T", (*messages)[0])
	}

	entry := message.Entry
	if !entry.Resolved {
		t.Error("snapshot of a resolved recipient should be resolved")
	}
	if entry.ContactID != 7 {
		t.Errorf("ContactID = %d, want 7", entry.ContactID)
	}
	if entry.DisplayName != "Alice Johnson" {
		t.Errorf("DisplayName = %q, want Alice Johnson", entry.DisplayName)
	}
	if !entry.Favorite {
		t.Error("favorite contact should be flagged")
	}
	if entry.Event.Recipient != nil {
		t.Error("snapshot must not leak the live recipient across goroutines")
	}
}

func TestObserverSnapshotUnresolved(t *testing.T) {
	dir := &favDirectory{favorites: map[int]bool{0: true}}
	observer, messages := collectObserver(dir)

	registry := recipient.NewRegistry()
	pending := event.Event{
		ID:        2,
		Type:      event.TypeSMS,
		LocalUID:  "ring/tel/ring",
		RemoteUID: "+358509999999",
		Recipient: registry.Recipient("ring/tel/ring", "+358509999999"),
	}
	observer.EntryUpdated(0, pending)

	entry := (*messages)[0].(EntryUpdatedMsg).Entry
	if entry.Resolved {
		t.Error("snapshot of a pending recipient should not be resolved")
	}
	if entry.DisplayName != "" {
		t.Errorf("pending snapshot should have no name, got %q", entry.DisplayName)
	}
	if entry.Favorite {
		t.Error("pending snapshot should never consult the favorite flag")
	}
}

func TestObserverSnapshotNilRecipient(t *testing.T) {
	observer, messages := collectObserver(nil)

	observer.EntryUpdated(0, event.Event{ID: 3, RemoteUID: "+358501111111"})

	entry := (*messages)[0].(EntryUpdatedMsg).Entry
	if entry.Resolved {
		t.Error("event without a recipient should snapshot as unresolved")
	}
	if entry.Event.RemoteUID != "+358501111111" {
		t.Error("event fields should be carried through")
	}
}

func TestObserverApplyDiff(t *testing.T) {
	observer, messages := collectObserver(nil)

	observer.ApplyDiff(recency.Diff{
		Removed:    []recency.Range{{Start: 4, End: 5}, {Start: 1, End: 1}},
		InsertedAt: 0,
		Inserted:   []event.Event{{ID: 10}, {ID: 11}},
	})

	if len(*messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*messages))
	}
	diff, ok := (*messages)[0].(DiffMsg)
	if !ok {
		t.Fatalf("expected DiffMsg, got %T", (*messages)[0])
	}

	if len(diff.Removed) != 2 || diff.Removed[0].Start != 4 || diff.Removed[1].End != 1 {
		t.Errorf("removal ranges not carried through: %+v", diff.Removed)
	}
	if diff.InsertedAt != 0 {
		t.Errorf("InsertedAt = %d, want 0", diff.InsertedAt)
	}
	if len(diff.Inserted) != 2 || diff.Inserted[0].Event.ID != 10 || diff.Inserted[1].Event.ID != 11 {
		t.Errorf("inserted entries not carried through: %+v", diff.Inserted)
	}
}

func TestObserverResolvingChanged(t *testing.T) {
	observer, messages := collectObserver(nil)

	observer.ResolvingChanged(true)
	observer.ResolvingChanged(false)

	if len(*messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(*messages))
	}
	if !(*messages)[0].(ResolvingMsg).Resolving {
		t.Error("first message should report resolving")
	}
	if (*messages)[1].(ResolvingMsg).Resolving {
		t.Error("second message should report idle")
	}
}

func TestObserverReplace(t *testing.T) {
	observer, messages := collectObserver(nil)

	observer.Replace([]event.Event{{ID: 1}, {ID: 2}})
	observer.Replace(nil)

	first := (*messages)[0].(ReplaceMsg)
	if len(first.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(first.Entries))
	}

	second := (*messages)[1].(ReplaceMsg)
	if second.Entries != nil {
		t.Error("Replace(nil) should send nil entries to clear the view")
	}
}
