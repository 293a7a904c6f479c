// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"
)

// FocusRegion identifies which pane has keyboard focus.
type FocusRegion int

const (
	// FocusList means navigation keys move the conversation list cursor.
	FocusList FocusRegion = iota
	// FocusDetail means navigation keys scroll the detail viewport.
	FocusDetail
	// FocusFilter means keystrokes go to the filter input.
	FocusFilter
)

// Split ratio bounds and step size.
const (
	splitRatioMin  = 0.20
	splitRatioMax  = 0.80
	splitRatioStep = 0.05
)

// Model is the top-level bubbletea model for the recents browser TUI.
//
// The model never reads the recency list directly: entries is a mirror
// maintained by applying [DiffMsg] transitions in arrival order, the
// same contract recency.Diff defines. The [Observer] converts list
// callbacks into these messages on the runloop and tea.Program.Send
// delivers them here.
type Model struct {
	theme Theme
	keys  KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// Filter state. slab is the fzf scratch buffer reused across
	// ApplyFuzzy calls; the bubbletea loop is single-threaded so one
	// slab suffices.
	filter FilterModel
	slab   *util.Slab

	// List state. entries is the diff-maintained mirror of the recency
	// list. items is the displayed subset after filtering (aliases
	// entries when no filter is active).
	entries      []Entry
	items        []Entry
	cursor       int
	scrollOffset int
	selectedID   int64 // Stable focus: track selection by event ID.

	// Filter match highlighting: maps event ID to matched rune
	// positions in the display name. Nil when no filter is active.
	filterHighlights map[int64][]int

	// Two-pane layout.
	focusRegion FocusRegion
	priorFocus  FocusRegion // Saved focus when entering filter mode.
	splitRatio  float64     // Fraction of width for the list pane.
	detailPane  DetailPane  // Right pane: scrollable event detail.

	// Resolution-in-flight indicator.
	resolving bool
	spinner   spinner.Model

	// Feed connection state for the status line. Empty for local
	// stores with no connection to report.
	connection string
}

// NewModel creates an empty Model. Entries arrive through [DiffMsg]
// and [ReplaceMsg] messages sent by an [Observer].
func NewModel() Model {
	resolvingSpinner := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(DefaultTheme.Resolving)),
	)

	return Model{
		theme:      DefaultTheme,
		keys:       DefaultKeyMap,
		slab:       NewSlab(),
		splitRatio: 0.40,
		detailPane: NewDetailPane(DefaultTheme),
		spinner:    resolvingSpinner,
	}
}

// SetConnectionState seeds the feed state shown in the status bar.
// Called before the program starts; later transitions arrive as
// [ConnectionMsg]. The empty string means no feed (local store).
func (model *Model) SetConnectionState(state string) {
	model.connection = state
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model. Routes keyboard events based on the
// current focus region and applies list transitions.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		// When filter is active, route all input to the filter first,
		// except for Esc (clear) and Enter (confirm and return to list).
		if model.focusRegion == FocusFilter {
			return model.handleFilterKeys(message)
		}

		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.FocusToggle):
			if model.focusRegion == FocusList {
				model.focusRegion = FocusDetail
			} else {
				model.focusRegion = FocusList
			}

		case key.Matches(message, model.keys.SplitGrow):
			model.splitRatio += splitRatioStep
			if model.splitRatio > splitRatioMax {
				model.splitRatio = splitRatioMax
			}
			model.updatePaneSizes()

		case key.Matches(message, model.keys.SplitShrink):
			model.splitRatio -= splitRatioStep
			if model.splitRatio < splitRatioMin {
				model.splitRatio = splitRatioMin
			}
			model.updatePaneSizes()

		case key.Matches(message, model.keys.FilterActivate):
			model.priorFocus = model.focusRegion
			model.focusRegion = FocusFilter
			model.filter.Active = true
			// Reset list position to the top so the user sees
			// results from the beginning as they type.
			model.cursor = 0
			model.scrollOffset = 0

		case key.Matches(message, model.keys.FilterClear):
			if model.filter.Input != "" {
				model.filter.Clear()
				model.refreshItems()
				model.restoreSelection()
				model.ensureCursorVisible()
				model.syncDetailPane()
			}

		default:
			if model.focusRegion == FocusList {
				model.handleListKeys(message)
			} else {
				model.handleDetailKeys(message)
			}
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.updatePaneSizes()

	case DiffMsg:
		model.applyDiff(message)

	case EntryUpdatedMsg:
		model.applyEntryUpdate(message)

	case ReplaceMsg:
		// A replace is a generation boundary: the backing list was
		// rebuilt and re-reports its own resolving state, so a stale
		// true from the old generation must not pin the spinner.
		model.entries = message.Entries
		model.resolving = false
		model.refreshItems()
		model.restoreSelection()
		model.ensureCursorVisible()
		model.syncDetailPane()

	case ResolvingMsg:
		wasResolving := model.resolving
		model.resolving = message.Resolving
		if model.resolving && !wasResolving {
			return model, model.spinner.Tick
		}

	case ConnectionMsg:
		model.connection = message.State

	case spinner.TickMsg:
		// Keep the spinner ticking only while resolution is in
		// flight; dropping the tick stops the loop.
		if !model.resolving {
			return model, nil
		}
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command
	}
	return model, nil
}

// applyDiff applies one list transition to the entries mirror:
// removal ranges first (descending, so indices stay valid), then the
// insertion block.
func (model *Model) applyDiff(message DiffMsg) {
	for _, r := range message.Removed {
		if r.Start < 0 || r.End >= len(model.entries) {
			continue
		}
		model.entries = slices.Delete(model.entries, r.Start, r.End+1)
	}
	at := message.InsertedAt
	if at < 0 {
		at = 0
	}
	if at > len(model.entries) {
		at = len(model.entries)
	}
	model.entries = slices.Insert(model.entries, at, message.Inserted...)

	model.refreshItems()
	model.restoreSelection()
	model.ensureCursorVisible()
	model.syncDetailPane()
}

// applyEntryUpdate refreshes one row in place. Positions are unchanged
// so selection and scroll state survive as-is.
func (model *Model) applyEntryUpdate(message EntryUpdatedMsg) {
	if message.Index < 0 || message.Index >= len(model.entries) {
		return
	}
	model.entries[message.Index] = message.Entry

	model.refreshItems()
	model.restoreSelection()
	if model.selectedID != 0 && message.Entry.Event.ID == model.selectedID {
		model.syncDetailPane()
	}
}

// refreshItems recomputes the displayed items from the entries mirror,
// applying the fuzzy filter when active.
func (model *Model) refreshItems() {
	if model.filter.Input == "" {
		model.items = model.entries
		model.filterHighlights = nil
		return
	}

	results := model.filter.ApplyFuzzy(model.entries, model.slab)
	model.items = make([]Entry, len(results))
	model.filterHighlights = make(map[int64][]int, len(results))
	for index, result := range results {
		model.items[index] = result.Entry
		if len(result.NamePositions) > 0 {
			model.filterHighlights[result.Entry.Event.ID] = result.NamePositions
		}
	}
}

// restoreSelection moves the cursor back to the selected event after
// the items changed. Falls back to clamping when the event left the
// list.
func (model *Model) restoreSelection() {
	if model.selectedID == 0 {
		model.cursor = model.clampedIndex(model.cursor)
		return
	}

	for index, item := range model.items {
		if item.Event.ID == model.selectedID {
			model.cursor = index
			return
		}
	}

	model.cursor = model.clampedIndex(model.cursor)
}

// clampedIndex returns position clamped to valid item bounds.
func (model *Model) clampedIndex(position int) int {
	if len(model.items) == 0 {
		return 0
	}
	if position < 0 {
		return 0
	}
	if position >= len(model.items) {
		return len(model.items) - 1
	}
	return position
}

// handleFilterKeys processes keystrokes when the filter input has
// focus. Regular characters go to the input, Esc clears/exits, Enter
// confirms and returns focus to the list.
func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		// ctrl+c always quits, even in filter mode.
		if message.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		// 'q' is a regular character in filter mode.
		model.filter.HandleRune('q')
		model.applyFilterInput()
		return model, nil

	case key.Matches(message, model.keys.FilterClear):
		// Esc: if there's filter text, clear it; if already empty,
		// exit filter mode.
		if model.filter.Input != "" {
			model.filter.Clear()
			model.filter.Active = true
			model.applyFilterInput()
		} else {
			model.filter.Active = false
			model.focusRegion = model.priorFocus
		}
		return model, nil

	case message.Type == tea.KeyEnter:
		// Confirm filter and return focus to the list.
		model.filter.Active = false
		model.focusRegion = FocusList
		return model, nil

	case message.Type == tea.KeyBackspace:
		if model.filter.HandleBackspace() {
			model.applyFilterInput()
		}
		return model, nil

	case message.Type == tea.KeyRunes || message.Type == tea.KeySpace:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
		model.applyFilterInput()
		return model, nil
	}

	return model, nil
}

// applyFilterInput re-filters after the query text changed. Snaps the
// cursor to the top so the highest-scored matches are visible as the
// user types.
func (model *Model) applyFilterInput() {
	model.refreshItems()

	if model.filter.Input != "" {
		model.cursor = 0
		model.scrollOffset = 0
		if len(model.items) > 0 {
			model.selectedID = model.items[0].Event.ID
		}
	} else {
		model.restoreSelection()
	}
	model.ensureCursorVisible()
	model.syncDetailPane()
}

// handleListKeys processes navigation keys when the list has focus.
func (model *Model) handleListKeys(message tea.KeyMsg) {
	prevCursor := model.cursor

	switch {
	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.items)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.PageUp):
		target := model.cursor - model.visibleHeight()
		if target < 0 {
			target = 0
		}
		model.cursor = model.clampedIndex(target)

	case key.Matches(message, model.keys.PageDown):
		target := model.cursor + model.visibleHeight()
		if len(model.items) > 0 && target >= len(model.items) {
			target = len(model.items) - 1
		}
		model.cursor = model.clampedIndex(target)

	case key.Matches(message, model.keys.Home):
		model.cursor = 0

	case key.Matches(message, model.keys.End):
		if len(model.items) > 0 {
			model.cursor = len(model.items) - 1
		}
	}

	model.ensureCursorVisible()

	// Update detail pane if selection changed.
	if model.cursor != prevCursor {
		model.syncDetailPane()
	}
}

// handleDetailKeys processes navigation keys when the detail pane has
// focus.
func (model *Model) handleDetailKeys(message tea.KeyMsg) {
	switch {
	case key.Matches(message, model.keys.Up):
		model.detailPane.viewport.LineUp(1)

	case key.Matches(message, model.keys.Down):
		model.detailPane.viewport.LineDown(1)

	case key.Matches(message, model.keys.PageUp):
		model.detailPane.ScrollUp()

	case key.Matches(message, model.keys.PageDown):
		model.detailPane.ScrollDown()

	case key.Matches(message, model.keys.Home):
		model.detailPane.viewport.GotoTop()

	case key.Matches(message, model.keys.End):
		model.detailPane.viewport.GotoBottom()
	}
}

// syncDetailPane pushes the entry under the cursor into the detail
// pane, tracking it as the stable selection.
func (model *Model) syncDetailPane() {
	if model.cursor < 0 || model.cursor >= len(model.items) {
		model.detailPane.Clear()
		return
	}

	item := model.items[model.cursor]
	model.selectedID = item.Event.ID
	model.detailPane.SetContent(item)
}

// updatePaneSizes recalculates pane dimensions after a resize or
// split ratio change.
func (model *Model) updatePaneSizes() {
	contentHeight := model.visibleHeight()
	// 1 column for the vertical divider between panes.
	detailWidth := model.width - model.listWidth() - 1
	if detailWidth < 10 {
		detailWidth = 10
	}
	model.detailPane.SetSize(detailWidth, contentHeight)
}

// listWidth returns the width of the list pane in columns.
func (model Model) listWidth() int {
	return int(float64(model.width) * model.splitRatio)
}

// visibleHeight returns the number of list rows that fit between the
// chrome elements: the top header/filter line, the bottom separator,
// and the help bar.
func (model Model) visibleHeight() int {
	return model.height - 3
}

// ensureCursorVisible adjusts scrollOffset so the cursor is within
// the visible window.
func (model *Model) ensureCursorVisible() {
	visible := model.visibleHeight()
	if visible <= 0 {
		return
	}

	// Clamp scrollOffset so we never scroll past the end of the list.
	// This handles transitions where the new list is shorter than the
	// old scrollOffset.
	maxOffset := len(model.items) - visible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if model.scrollOffset > maxOffset {
		model.scrollOffset = maxOffset
	}

	// Ensure the cursor is within the visible window.
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
}

// View implements tea.Model. Renders the full TUI frame with two panes.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	if len(model.items) == 0 && model.filter.Input == "" {
		return model.renderEmpty()
	}

	var sections []string

	// Top chrome line: either the header rule or the filter bar. The
	// filter bar replaces the header so the layout doesn't shift.
	filterView := model.filter.View(model.theme, model.width)
	if filterView != "" {
		sections = append(sections, filterView)
	} else {
		sections = append(sections, model.renderHeader())
	}

	// Two-pane content area with vertical divider.
	listView := model.renderListPane()
	divider := model.renderDivider()
	detailFocused := model.focusRegion == FocusDetail
	detailView := model.detailPane.View(detailFocused)
	contentArea := lipgloss.JoinHorizontal(lipgloss.Top, listView, divider, detailView)
	sections = append(sections, contentArea)

	// Bottom separator.
	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))
	sections = append(sections, separator)

	// Help bar.
	sections = append(sections, model.renderHelp())

	return strings.Join(sections, "\n")
}

// renderListPane renders the conversation list with scrollbar.
func (model Model) renderListPane() string {
	listWidth := model.listWidth()

	// Always reserve 1 column for the scrollbar so content stays at a
	// fixed position regardless of focus state.
	focused := model.focusRegion == FocusList
	rowWidth := listWidth - 1

	renderer := NewListRenderer(model.theme, rowWidth)

	visible := model.visibleHeight()
	if visible < 0 {
		visible = 0
	}

	now := time.Now()
	var rows []string
	for index := model.scrollOffset; index < model.scrollOffset+visible && index < len(model.items); index++ {
		item := model.items[index]
		selected := index == model.cursor
		rows = append(rows, renderer.RenderRow(item, selected, now, model.filterHighlights[item.Event.ID]))
	}

	// Pad empty rows.
	rendered := len(rows)
	if rendered < visible {
		emptyStyle := lipgloss.NewStyle().Width(rowWidth)
		for padding := rendered; padding < visible; padding++ {
			rows = append(rows, emptyStyle.Render(""))
		}
	}

	// Right scrollbar: shows scroll position and focus state.
	scrollbar := renderScrollbar(
		model.theme, visible,
		len(model.items), visible, model.scrollOffset,
		focused,
	)

	contentStyle := lipgloss.NewStyle().
		Width(rowWidth).
		Height(visible)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		contentStyle.Render(strings.Join(rows, "\n")),
		scrollbar,
	)
}

// renderDivider renders the single-column vertical divider between the
// list and detail panes.
func (model Model) renderDivider() string {
	visible := model.visibleHeight()
	if visible < 0 {
		visible = 0
	}

	dividerStyle := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor)

	lines := make([]string, visible)
	for index := range lines {
		lines[index] = "│"
	}

	return dividerStyle.Width(1).Height(visible).Render(strings.Join(lines, "\n"))
}

// renderEmpty renders the empty state before any conversation arrives.
func (model Model) renderEmpty() string {
	text := "No conversations."
	if model.connection != "" && model.connection != "connected" {
		text = "Connecting to event service..."
	} else if model.resolving {
		text = model.spinner.View() + " Resolving contacts..."
	}

	messageStyle := lipgloss.NewStyle().
		Foreground(model.theme.FaintText)

	return lipgloss.Place(
		model.width, model.height,
		lipgloss.Center, lipgloss.Center,
		messageStyle.Render(text),
	)
}

// renderHeader renders the top line in the btop style: the title
// embedded in a horizontal rule with stats on the right.
//
// Example: ─── Recents ───────────── 12 shown  3 unread  ⠋ resolving ─
func (model Model) renderHeader() string {
	separatorStyle := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor)
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground)
	statsStyle := lipgloss.NewStyle().
		Foreground(model.theme.FaintText)

	sep := separatorStyle.Render("─")

	title := "Recents"
	left := sep + sep + sep + " " + titleStyle.Render(title) + " "
	leftWidth := 3 + 1 + lipgloss.Width(title) + 1

	unreadCount := 0
	for _, entry := range model.entries {
		if unread(entry.Event) {
			unreadCount++
		}
	}

	var statsParts []string
	statsParts = append(statsParts, fmt.Sprintf("%d shown", len(model.items)))
	if unreadCount > 0 {
		statsParts = append(statsParts, fmt.Sprintf("%d unread", unreadCount))
	}
	if model.connection != "" {
		statsParts = append(statsParts, "feed: "+model.connection)
	}
	statsText := strings.Join(statsParts, "  ")
	statsRendered := statsStyle.Render(statsText)
	statsWidth := lipgloss.Width(statsText)

	if model.resolving {
		indicator := model.spinner.View() + " " + statsStyle.Render("resolving")
		statsRendered += "  " + indicator
		statsWidth += 2 + lipgloss.Width(model.spinner.View()) + 1 + len("resolving")
	}

	// Fill the gap between the title and stats with separator chars,
	// leaving 1 space on each side of the stats.
	rightWidth := 1 + statsWidth + 1 + 1
	fillCount := model.width - leftWidth - rightWidth
	if fillCount < 1 {
		fillCount = 1
	}
	fill := strings.Repeat("─", fillCount)

	return left + separatorStyle.Render(fill) + " " + statsRendered + " " + sep
}

// renderHelp renders the bottom help bar with key hints and position.
func (model Model) renderHelp() string {
	style := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	focusIndicator := "LIST"
	switch model.focusRegion {
	case FocusDetail:
		focusIndicator = "DETAIL"
	case FocusFilter:
		focusIndicator = "FILTER"
	}

	help := fmt.Sprintf(" [%s] q quit  ↑↓ navigate  Tab focus  ]/[ resize  / filter",
		focusIndicator)

	if len(model.items) > 0 {
		help += fmt.Sprintf("  %d/%d", model.cursor+1, len(model.items))
	}

	return style.Width(model.width).MaxWidth(model.width).Render(help)
}

// Entries returns the current entries mirror. Intended for tests.
func (model Model) Entries() []Entry {
	return model.entries
}

// Selected returns the entry under the cursor, if any.
func (model Model) Selected() (Entry, bool) {
	if model.cursor < 0 || model.cursor >= len(model.items) {
		return Entry{}, false
	}
	return model.items[model.cursor], true
}
