// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/recency"
)

// Entry is an immutable row snapshot for the TUI. Resolution state
// lives on recipients owned by the recency list's runloop; the
// [Observer] copies it into plain fields on that loop so the bubbletea
// goroutine never touches a live recipient. Event.Recipient is nil in
// a snapshot.
type Entry struct {
	Event       event.Event
	DisplayName string
	ContactID   int
	Favorite    bool
	Resolved    bool
}

// Name returns the best display string for the row: the resolved
// contact name, falling back to the remote address, falling back to a
// placeholder for events with a withheld counterpart.
func (e Entry) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.Event.RemoteUID != "" {
		return e.Event.RemoteUID
	}
	return "(unknown)"
}

// DiffMsg reports one recency list transition. Removal ranges index
// the list as it was before the transition, ordered descending;
// insertions go in at InsertedAt after all removals. Mirrors
// [recency.Diff] with entries converted to snapshots.
type DiffMsg struct {
	Removed    []recency.Range
	InsertedAt int
	Inserted   []Entry
}

// EntryUpdatedMsg reports an in-place refresh of one row. Positions
// are unchanged.
type EntryUpdatedMsg struct {
	Index int
	Entry Entry
}

// ResolvingMsg reports transitions of the list's resolution-in-flight
// state. The model shows a spinner while true.
type ResolvingMsg struct {
	Resolving bool
}

// ReplaceMsg swaps the entire entry set. Sent when the backing list is
// rebuilt, for example after a feed resync. Nil entries clear the view.
type ReplaceMsg struct {
	Entries []Entry
}

// ConnectionMsg reports the feed connection state for the status bar.
// Empty state means a local store with no connection to report.
type ConnectionMsg struct {
	State string
}

// Observer adapts recency list callbacks into bubbletea messages. All
// methods run on the list's runloop; each converts its arguments into
// immutable snapshots before handing them to send. The send function
// must be safe to call from the loop goroutine (tea.Program.Send is).
type Observer struct {
	directory directory.Directory
	send      func(tea.Msg)
}

// NewObserver creates an observer that forwards list transitions to
// send. The directory supplies favorite flags for resolved contacts;
// it is only consulted on the loop.
func NewObserver(dir directory.Directory, send func(tea.Msg)) *Observer {
	return &Observer{directory: dir, send: send}
}

// ApplyDiff implements recency.Observer.
func (o *Observer) ApplyDiff(diff recency.Diff) {
	o.send(DiffMsg{
		Removed:    diff.Removed,
		InsertedAt: diff.InsertedAt,
		Inserted:   o.snapshotAll(diff.Inserted),
	})
}

// ResolvingChanged implements recency.Observer.
func (o *Observer) ResolvingChanged(resolving bool) {
	o.send(ResolvingMsg{Resolving: resolving})
}

// EntryUpdated implements recency.UpdateObserver.
func (o *Observer) EntryUpdated(index int, e event.Event) {
	o.send(EntryUpdatedMsg{Index: index, Entry: o.snapshot(e)})
}

// Replace sends a full entry set, converting each event. Call with nil
// to clear the view before rebuilding the backing list.
func (o *Observer) Replace(events []event.Event) {
	o.send(ReplaceMsg{Entries: o.snapshotAll(events)})
}

func (o *Observer) snapshotAll(events []event.Event) []Entry {
	if len(events) == 0 {
		return nil
	}
	entries := make([]Entry, len(events))
	for i := range events {
		entries[i] = o.snapshot(events[i])
	}
	return entries
}

func (o *Observer) snapshot(e event.Event) Entry {
	entry := Entry{Event: e}
	entry.Event.Recipient = nil
	r := e.Recipient
	if r == nil || !r.IsResolved() {
		return entry
	}
	entry.Resolved = true
	entry.ContactID = r.ContactID()
	entry.DisplayName = r.DisplayName()
	if entry.ContactID != 0 && o.directory != nil {
		entry.Favorite = o.directory.IsFavorite(entry.ContactID)
	}
	return entry
}
