// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/recency"
)

var testBase = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

// testEntry builds a resolved inbound SMS entry. Recency age is in
// minutes before the fixed base time.
func testEntry(id int64, name, remoteUID string, age int) Entry {
	return Entry{
		Event: event.Event{
			ID:        id,
			Type:      event.TypeSMS,
			StartTime: testBase.Add(-time.Duration(age) * time.Minute),
			EndTime:   testBase.Add(-time.Duration(age) * time.Minute),
			Direction: event.DirectionInbound,
			IsRead:    true,
			LocalUID:  "ring/tel/ring",
			RemoteUID: remoteUID,
			FreeText:  "hello from " + name,
		},
		DisplayName: name,
		ContactID:   int(id) * 100,
		Resolved:    true,
	}
}

// testEntries is the standard three-conversation starting list:
// Alice newest, then Bob, then Carol.
func testEntries() []Entry {
	return []Entry{
		testEntry(1, "Alice Johnson", "+358501111111", 5),
		testEntry(2, "Bob Smith", "+358502222222", 30),
		testEntry(3, "Carol Davies", "+358503333333", 90),
	}
}

// sizedModel returns a model that has received entries and terminal
// dimensions, ready for interaction tests.
func sizedModel(t *testing.T, entries []Entry) Model {
	t.Helper()
	model := NewModel()
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)
	updated, _ = model.Update(DiffMsg{Inserted: entries})
	return updated.(Model)
}

func TestNewModelEmpty(t *testing.T) {
	model := NewModel()
	if len(model.entries) != 0 {
		t.Errorf("new model should have no entries, got %d", len(model.entries))
	}
	if model.focusRegion != FocusList {
		t.Errorf("new model should focus the list, got %d", model.focusRegion)
	}
}

func TestModelDiffInsert(t *testing.T) {
	model := sizedModel(t, testEntries())

	if len(model.entries) != 3 {
		t.Fatalf("expected 3 entries after insert diff, got %d", len(model.entries))
	}
	if model.entries[0].Event.ID != 1 || model.entries[2].Event.ID != 3 {
		t.Errorf("entries out of order: got IDs %d, %d, %d",
			model.entries[0].Event.ID, model.entries[1].Event.ID, model.entries[2].Event.ID)
	}

	// With no filter, items alias the entries mirror.
	if len(model.items) != 3 {
		t.Errorf("items should mirror entries, got %d", len(model.items))
	}
}

func TestModelDiffPromotion(t *testing.T) {
	model := sizedModel(t, testEntries())

	// A newer event from Carol promotes her conversation to the top:
	// remove index 2, insert the replacement at index 0. This is the
	// shape recency.List emits for a same-contact newer event.
	promoted := testEntry(9, "Carol Davies", "+358503333333", 1)
	updated, _ := model.Update(DiffMsg{
		Removed:    []recency.Range{{Start: 2, End: 2}},
		InsertedAt: 0,
		Inserted:   []Entry{promoted},
	})
	model = updated.(Model)

	if len(model.entries) != 3 {
		t.Fatalf("expected 3 entries after promotion, got %d", len(model.entries))
	}
	wantOrder := []int64{9, 1, 2}
	for index, want := range wantOrder {
		if model.entries[index].Event.ID != want {
			t.Errorf("entries[%d].ID = %d, want %d", index, model.entries[index].Event.ID, want)
		}
	}
}

func TestModelDiffDescendingRanges(t *testing.T) {
	entries := []Entry{
		testEntry(1, "Alice Johnson", "+358501111111", 5),
		testEntry(2, "Bob Smith", "+358502222222", 30),
		testEntry(3, "Carol Davies", "+358503333333", 90),
		testEntry(4, "Dan Evans", "+358504444444", 120),
	}
	model := sizedModel(t, entries)

	// Removal ranges arrive in descending order so each applies
	// without adjusting for the previous one.
	updated, _ := model.Update(DiffMsg{
		Removed: []recency.Range{
			{Start: 3, End: 3},
			{Start: 1, End: 1},
		},
	})
	model = updated.(Model)

	if len(model.entries) != 2 {
		t.Fatalf("expected 2 entries after removals, got %d", len(model.entries))
	}
	if model.entries[0].Event.ID != 1 || model.entries[1].Event.ID != 3 {
		t.Errorf("expected IDs [1 3], got [%d %d]",
			model.entries[0].Event.ID, model.entries[1].Event.ID)
	}
}

func TestModelDiffOutOfRangeIgnored(t *testing.T) {
	model := sizedModel(t, testEntries())

	// A stale range past the end must not panic or corrupt the mirror.
	updated, _ := model.Update(DiffMsg{
		Removed: []recency.Range{{Start: 5, End: 9}},
	})
	model = updated.(Model)

	if len(model.entries) != 3 {
		t.Errorf("out-of-range removal should be ignored, got %d entries", len(model.entries))
	}
}

func TestModelEntryUpdated(t *testing.T) {
	model := sizedModel(t, testEntries())

	// Resolution completing rewrites a row in place.
	resolved := testEntry(2, "Robert Smith", "+358502222222", 30)
	updated, _ := model.Update(EntryUpdatedMsg{Index: 1, Entry: resolved})
	model = updated.(Model)

	if model.entries[1].DisplayName != "Robert Smith" {
		t.Errorf("entries[1].DisplayName = %q, want Robert Smith", model.entries[1].DisplayName)
	}
	if len(model.entries) != 3 {
		t.Errorf("in-place update should not change length, got %d", len(model.entries))
	}

	// Out-of-range index is dropped.
	updated, _ = model.Update(EntryUpdatedMsg{Index: 7, Entry: resolved})
	model = updated.(Model)
	if len(model.entries) != 3 {
		t.Errorf("out-of-range update should be ignored, got %d entries", len(model.entries))
	}
}

func TestModelReplace(t *testing.T) {
	model := sizedModel(t, testEntries())

	replacement := []Entry{testEntry(8, "Erin Frost", "+358505555555", 2)}
	updated, _ := model.Update(ReplaceMsg{Entries: replacement})
	model = updated.(Model)

	if len(model.entries) != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", len(model.entries))
	}
	if model.entries[0].Event.ID != 8 {
		t.Errorf("entries[0].ID = %d, want 8", model.entries[0].Event.ID)
	}

	// Nil clears the list entirely.
	updated, _ = model.Update(ReplaceMsg{})
	model = updated.(Model)
	if len(model.entries) != 0 {
		t.Errorf("nil replace should clear entries, got %d", len(model.entries))
	}
}

func TestModelNavigation(t *testing.T) {
	model := sizedModel(t, testEntries())

	if model.cursor != 0 {
		t.Errorf("initial cursor should be 0, got %d", model.cursor)
	}

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.cursor != 1 {
		t.Errorf("cursor after j should be 1, got %d", model.cursor)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	model = updated.(Model)
	if model.cursor != 2 {
		t.Errorf("cursor after G should be 2 (last), got %d", model.cursor)
	}

	// Down at the end stays put.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.cursor != 2 {
		t.Errorf("cursor after j at end should stay 2, got %d", model.cursor)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor after g should be 0, got %d", model.cursor)
	}

	// Up at the top stays put.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor after k at top should stay 0, got %d", model.cursor)
	}
}

func TestModelSelectionSurvivesInsertAbove(t *testing.T) {
	model := sizedModel(t, testEntries())

	// Select Bob (index 1, event ID 2).
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.selectedID != 2 {
		t.Fatalf("selectedID = %d, want 2", model.selectedID)
	}

	// A new conversation arrives at the top. Bob shifts to index 2 and
	// the cursor must follow him, not the index.
	newcomer := testEntry(10, "Frank Grant", "+358506666666", 1)
	updated, _ = model.Update(DiffMsg{InsertedAt: 0, Inserted: []Entry{newcomer}})
	model = updated.(Model)

	if model.cursor != 2 {
		t.Errorf("cursor should follow selected entry to index 2, got %d", model.cursor)
	}
	if model.selectedID != 2 {
		t.Errorf("selectedID should still be 2, got %d", model.selectedID)
	}
}

func TestModelSelectionRemovedClamps(t *testing.T) {
	model := sizedModel(t, testEntries())

	// Select the last entry (Carol, index 2).
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	model = updated.(Model)
	if model.selectedID != 3 {
		t.Fatalf("selectedID = %d, want 3", model.selectedID)
	}

	// Carol's conversation leaves the list. The cursor clamps to the
	// new last row.
	updated, _ = model.Update(DiffMsg{Removed: []recency.Range{{Start: 2, End: 2}}})
	model = updated.(Model)

	if model.cursor != 1 {
		t.Errorf("cursor should clamp to 1 after removal, got %d", model.cursor)
	}
}

func TestModelFocusToggle(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusRegion != FocusDetail {
		t.Errorf("tab should focus detail, got %d", model.focusRegion)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("second tab should focus list, got %d", model.focusRegion)
	}
}

func TestModelSplitRatio(t *testing.T) {
	model := sizedModel(t, testEntries())

	initial := model.splitRatio
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{']'}})
	model = updated.(Model)
	if model.splitRatio <= initial {
		t.Errorf("] should grow split ratio, was %v now %v", initial, model.splitRatio)
	}

	// Shrinking repeatedly clamps at the minimum.
	for range 20 {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'['}})
		model = updated.(Model)
	}
	if model.splitRatio < splitRatioMin {
		t.Errorf("split ratio below minimum: %v", model.splitRatio)
	}

	for range 20 {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{']'}})
		model = updated.(Model)
	}
	if model.splitRatio > splitRatioMax {
		t.Errorf("split ratio above maximum: %v", model.splitRatio)
	}
}

func TestModelQuit(t *testing.T) {
	model := sizedModel(t, testEntries())

	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if command == nil {
		t.Fatal("q should return a command")
	}
	message := command()
	if _, isQuit := message.(tea.QuitMsg); !isQuit {
		t.Errorf("expected QuitMsg, got %T", message)
	}
}

func TestModelFilter(t *testing.T) {
	model := sizedModel(t, testEntries())

	// Activate filter.
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)
	if model.focusRegion != FocusFilter {
		t.Fatalf("after /, focus should be FocusFilter, got %d", model.focusRegion)
	}

	// Type "bob".
	for _, character := range "bob" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}

	if len(model.items) != 1 {
		t.Fatalf("filter 'bob' should match 1 entry, got %d", len(model.items))
	}
	if model.items[0].Event.ID != 2 {
		t.Errorf("filter 'bob' should match Bob Smith (ID 2), got ID %d", model.items[0].Event.ID)
	}
	if model.cursor != 0 {
		t.Errorf("cursor should snap to top while typing, got %d", model.cursor)
	}

	// Enter confirms the filter and returns focus to the list; the
	// filter text stays applied.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("enter should focus list, got %d", model.focusRegion)
	}
	if len(model.items) != 1 {
		t.Errorf("confirmed filter should stay applied, got %d items", len(model.items))
	}

	// Esc from the list clears the applied filter.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEscape})
	model = updated.(Model)
	if len(model.items) != 3 {
		t.Errorf("after clearing filter, should see 3 entries, got %d", len(model.items))
	}
}

func TestModelFilterMatchesAddress(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)

	// Digits only match the remote address, never the display names.
	for _, character := range "50333" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}

	if len(model.items) != 1 {
		t.Fatalf("filter '50333' should match 1 entry, got %d", len(model.items))
	}
	if model.items[0].Event.ID != 3 {
		t.Errorf("filter '50333' should match Carol (ID 3), got ID %d", model.items[0].Event.ID)
	}
}

func TestModelFilterEscSequence(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)
	for _, character := range "bob" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}

	// First Esc clears the text but stays in filter mode.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEscape})
	model = updated.(Model)
	if model.filter.Input != "" {
		t.Errorf("first esc should clear input, got %q", model.filter.Input)
	}
	if model.focusRegion != FocusFilter {
		t.Errorf("first esc should stay in filter mode, got %d", model.focusRegion)
	}

	// Second Esc exits filter mode back to the prior focus.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEscape})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("second esc should return to list focus, got %d", model.focusRegion)
	}
}

func TestModelFilterTypesQ(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)

	// 'q' is a regular character while filtering, not quit.
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	model = updated.(Model)
	if command != nil {
		t.Error("q in filter mode should not produce a command")
	}
	if model.filter.Input != "q" {
		t.Errorf("q should be typed into the filter, got %q", model.filter.Input)
	}

	// ctrl+c still quits from filter mode.
	_, command = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if command == nil {
		t.Fatal("ctrl+c in filter mode should quit")
	}
	if _, isQuit := command().(tea.QuitMsg); !isQuit {
		t.Error("ctrl+c in filter mode should produce QuitMsg")
	}
}

func TestModelFilterSurvivesDiff(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)
	for _, character := range "bob" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}
	if len(model.items) != 1 {
		t.Fatalf("filter 'bob' should match 1 entry, got %d", len(model.items))
	}

	// A diff arriving while the filter is applied re-filters the new
	// mirror: the newcomer doesn't match and stays hidden.
	newcomer := testEntry(10, "Frank Grant", "+358506666666", 1)
	updated, _ = model.Update(DiffMsg{InsertedAt: 0, Inserted: []Entry{newcomer}})
	model = updated.(Model)

	if len(model.entries) != 4 {
		t.Errorf("mirror should have 4 entries, got %d", len(model.entries))
	}
	if len(model.items) != 1 {
		t.Errorf("filtered view should still show 1 entry, got %d", len(model.items))
	}
	if model.items[0].Event.ID != 2 {
		t.Errorf("filtered view should still show Bob (ID 2), got %d", model.items[0].Event.ID)
	}
}

func TestModelResolvingSpinner(t *testing.T) {
	model := sizedModel(t, testEntries())

	// Resolution starting kicks off the spinner tick loop.
	updated, command := model.Update(ResolvingMsg{Resolving: true})
	model = updated.(Model)
	if !model.resolving {
		t.Error("model should be resolving")
	}
	if command == nil {
		t.Fatal("resolving=true should start the spinner tick")
	}

	// A second resolving=true must not start a second tick loop.
	_, command = model.Update(ResolvingMsg{Resolving: true})
	if command != nil {
		t.Error("repeated resolving=true should not start another tick")
	}

	// Once resolution finishes, the next tick is dropped and the loop
	// stops.
	updated, _ = model.Update(ResolvingMsg{Resolving: false})
	model = updated.(Model)
	tick := model.spinner.Tick()
	_, command = model.Update(tick)
	if command != nil {
		t.Error("tick after resolving=false should not continue the loop")
	}
}

func TestModelReplaceResetsResolving(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(ResolvingMsg{Resolving: true})
	model = updated.(Model)

	// A replace marks a list rebuild; the old generation's resolving
	// state must not survive it, or the spinner never stops when the
	// new generation resolves entirely from cache.
	updated, _ = model.Update(ReplaceMsg{Entries: nil})
	model = updated.(Model)
	if model.resolving {
		t.Error("replace should reset resolving")
	}

	// The new generation starting its own resolution restarts the
	// tick loop.
	_, command := model.Update(ResolvingMsg{Resolving: true})
	if command == nil {
		t.Error("resolving=true after replace should start the spinner tick")
	}
}

func TestModelConnectionState(t *testing.T) {
	model := sizedModel(t, testEntries())

	updated, _ := model.Update(ConnectionMsg{State: "reconnecting"})
	model = updated.(Model)
	if model.connection != "reconnecting" {
		t.Errorf("connection = %q, want reconnecting", model.connection)
	}

	view := model.View()
	if !strings.Contains(view, "feed: reconnecting") {
		t.Error("header should show the connection state")
	}
}

func TestModelSetConnectionState(t *testing.T) {
	model := NewModel()
	model.SetConnectionState("connecting")

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)
	if !strings.Contains(model.View(), "Connecting to event service") {
		t.Error("seeded connection state should drive the empty view")
	}
}

func TestModelView(t *testing.T) {
	model := NewModel()

	// Before the first WindowSizeMsg, View renders the loading text.
	if view := model.View(); view != "Loading..." {
		t.Errorf("expected 'Loading...' before WindowSizeMsg, got %q", view)
	}

	model = sizedModel(t, testEntries())
	view := model.View()

	if !strings.Contains(view, "Alice Johnson") {
		t.Error("view should contain the first conversation name")
	}
	if !strings.Contains(view, "Recents") {
		t.Error("view should contain the header title")
	}
	if !strings.Contains(view, "3 shown") {
		t.Error("view should contain the shown count")
	}
	if !strings.Contains(view, "q quit") {
		t.Error("view should contain the help text")
	}
	if !strings.Contains(view, "1/3") {
		t.Error("view should contain the position indicator")
	}
}

func TestModelEmptyState(t *testing.T) {
	model := NewModel()
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)

	if !strings.Contains(model.View(), "No conversations") {
		t.Error("empty view should say there are no conversations")
	}

	// While connecting to a feed, the empty state says so instead.
	updated, _ = model.Update(ConnectionMsg{State: "connecting"})
	model = updated.(Model)
	if !strings.Contains(model.View(), "Connecting") {
		t.Error("empty view should show the connecting state")
	}
}

func TestModelSelected(t *testing.T) {
	model := sizedModel(t, testEntries())

	selected, ok := model.Selected()
	if !ok {
		t.Fatal("Selected() should report an entry")
	}
	if selected.Event.ID != 1 {
		t.Errorf("Selected().Event.ID = %d, want 1", selected.Event.ID)
	}

	empty := NewModel()
	if _, ok := empty.Selected(); ok {
		t.Error("Selected() on an empty model should report none")
	}
}
