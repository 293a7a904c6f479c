// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/commtrail/commtrail/lib/event"
)

// detailHeaderLines is the fixed number of lines consumed by the
// detail pane header. This is constant so the scrollable body never
// shifts vertically when switching entries.
//
// Layout:
//
//	Line 1: 💬 sms  ← inbound  unread                      #42
//	Line 2: Alice Example ★
//	Line 3: +15550123  via tel/sim1
//	Line 4: 2026-04-09 10:32  len 14m32s
//	Line 5: separator
const detailHeaderLines = 5

// DetailRenderer builds the content for the detail pane: a fixed
// header describing the event and counterpart, and a scrollable body
// holding the rendered message text.
type DetailRenderer struct {
	theme Theme
	width int
}

// NewDetailRenderer creates a DetailRenderer for the given width.
func NewDetailRenderer(theme Theme, width int) DetailRenderer {
	return DetailRenderer{theme: theme, width: width}
}

// RenderHeader produces the fixed header lines for an entry. Always
// exactly [detailHeaderLines] lines tall regardless of content.
func (renderer DetailRenderer) RenderHeader(entry Entry) string {
	line1 := renderer.renderMetaLine(entry.Event)
	line2 := renderer.renderNameLine(entry)
	line3 := renderer.renderAddressLine(entry.Event)
	line4 := renderer.renderTimeLine(entry.Event)

	separatorStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.BorderColor).
		Width(renderer.width)
	separator := separatorStyle.Render(strings.Repeat("─", renderer.width))

	return strings.Join([]string{line1, line2, line3, line4, separator}, "\n")
}

// RenderBody produces the scrollable body content: the message text
// rendered as markdown. Calls and other bodiless events yield an
// empty body.
func (renderer DetailRenderer) RenderBody(entry Entry) string {
	return renderMarkdown(entry.Event.FreeText, renderer.theme, renderer.width)
}

// renderMetaLine builds the first header line: event type, direction,
// and attention badges, with the event ID right-aligned.
func (renderer DetailRenderer) renderMetaLine(e event.Event) string {
	typeStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.TypeColor(e.Type)).
		Bold(true)

	var parts []string
	parts = append(parts, typeStyle.Render(typeIcon(e.Type)+" "+e.Type.String()))

	faint := lipgloss.NewStyle().Foreground(renderer.theme.FaintText)
	switch e.Direction {
	case event.DirectionInbound:
		parts = append(parts, faint.Render("← inbound"))
	case event.DirectionOutbound:
		parts = append(parts, faint.Render("→ outbound"))
	}

	if missedCall(e) {
		missedStyle := lipgloss.NewStyle().
			Foreground(renderer.theme.MissedCall).
			Bold(true)
		parts = append(parts, missedStyle.Render("missed"))
	} else if unread(e) {
		unreadStyle := lipgloss.NewStyle().
			Foreground(renderer.theme.Unread).
			Bold(true)
		parts = append(parts, unreadStyle.Render("unread"))
	}

	left := strings.Join(parts, "  ")
	id := faint.Render(fmt.Sprintf("#%d", e.ID))

	padding := renderer.width - lipgloss.Width(left) - lipgloss.Width(id)
	if padding < 1 {
		return lipgloss.NewStyle().MaxWidth(renderer.width).Render(left)
	}
	return left + strings.Repeat(" ", padding) + id
}

// renderNameLine builds the second header line: the counterpart's
// resolved name (or address fallback) with a favorite star.
func (renderer DetailRenderer) renderNameLine(entry Entry) string {
	nameStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(renderer.theme.HeaderForeground)

	name := entry.Name()
	starWidth := 0
	if entry.Favorite {
		starWidth = 2 // " ★"
	}
	if lipgloss.Width(name) > renderer.width-starWidth {
		name = truncateString(name, renderer.width-starWidth-1) + "…"
	}

	line := nameStyle.Render(name)
	if entry.Favorite {
		line += " " + lipgloss.NewStyle().Foreground(renderer.theme.Favorite).Render("★")
	}
	return lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(line)
}

// renderAddressLine builds the third header line: the remote address
// and the local account it arrived on.
func (renderer DetailRenderer) renderAddressLine(e event.Event) string {
	faint := lipgloss.NewStyle().Foreground(renderer.theme.FaintText)

	remote := e.RemoteUID
	if remote == "" {
		remote = "(withheld)"
	}

	var parts []string
	parts = append(parts, remote)
	if e.LocalUID != "" {
		parts = append(parts, "via "+e.LocalUID)
	}

	line := strings.Join(parts, "  ")
	return faint.Render(lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(line))
}

// renderTimeLine builds the fourth header line: the event timestamp,
// plus the call length when start and end differ.
func (renderer DetailRenderer) renderTimeLine(e event.Event) string {
	faint := lipgloss.NewStyle().Foreground(renderer.theme.FaintText)

	var parts []string
	if !e.EndTime.IsZero() {
		parts = append(parts, e.EndTime.Format("2006-01-02 15:04"))
	}
	if e.Type == event.TypeCall && !e.StartTime.IsZero() && e.EndTime.After(e.StartTime) {
		length := e.EndTime.Sub(e.StartTime).Truncate(time.Second)
		parts = append(parts, "len "+length.String())
	}

	line := strings.Join(parts, "  ")
	return faint.Render(lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(line))
}

// DetailPane wraps a bubbles viewport for scrollable detail content.
// The pane has a fixed header ([detailHeaderLines] tall) rendered
// above the viewport, and a scrollable message body below.
type DetailPane struct {
	viewport viewport.Model
	theme    Theme
	width    int
	height   int

	// Retained for re-rendering on resize. entry is set by SetContent
	// and cleared by Clear. When hasEntry is true, SetSize re-renders
	// the content at the new width so markdown word wrap adapts to
	// splitter changes.
	hasEntry bool
	entry    Entry

	// Pre-rendered header string, set by SetContent and rerender.
	header string
}

// NewDetailPane creates an empty detail pane.
func NewDetailPane(theme Theme) DetailPane {
	return DetailPane{
		theme: theme,
	}
}

// bodyHeight returns the number of lines available for the scrollable
// viewport body (total height minus the fixed header).
func (pane DetailPane) bodyHeight() int {
	result := pane.height - detailHeaderLines
	if result < 1 {
		result = 1
	}
	return result
}

// contentWidth returns the usable width for text content (total width
// minus the left padding column and right scrollbar column).
func (pane DetailPane) contentWidth() int {
	return pane.width - 2
}

// SetSize updates the detail pane dimensions. If the width changed and
// there is content displayed, the content is re-rendered at the new
// width so markdown wrapping stays correct.
func (pane *DetailPane) SetSize(width, height int) {
	previousWidth := pane.width
	pane.width = width
	pane.height = height
	pane.viewport.Width = pane.contentWidth()
	pane.viewport.Height = pane.bodyHeight()

	if pane.hasEntry && width != previousWidth {
		pane.rerender()
	}
}

// SetContent updates the detail pane with rendered content for an
// entry. When the displayed event changes the body scrolls back to the
// top; in-place refreshes of the same event (resolution completing,
// read state flipping) keep the scroll position.
func (pane *DetailPane) SetContent(entry Entry) {
	sameEvent := pane.hasEntry && entry.Event.ID == pane.entry.Event.ID
	previousOffset := pane.viewport.YOffset

	pane.hasEntry = true
	pane.entry = entry
	pane.render()

	if sameEvent {
		pane.clampOffset(previousOffset)
	} else {
		pane.viewport.GotoTop()
	}
}

// Clear removes the detail pane content.
func (pane *DetailPane) Clear() {
	pane.hasEntry = false
	pane.entry = Entry{}
	pane.header = ""
	pane.viewport.SetContent("")
}

// rerender regenerates the content at the current width, preserving
// the scroll position as closely as possible.
func (pane *DetailPane) rerender() {
	previousOffset := pane.viewport.YOffset
	pane.render()
	pane.clampOffset(previousOffset)
}

func (pane *DetailPane) render() {
	contentWidth := pane.contentWidth()
	renderer := NewDetailRenderer(pane.theme, contentWidth)
	pane.header = renderer.RenderHeader(pane.entry)

	// Wrap the body to contentWidth so no line exceeds the viewport
	// width; markdown code blocks can carry long unwrapped lines.
	body := renderer.RenderBody(pane.entry)
	body = lipgloss.NewStyle().Width(contentWidth).Render(body)
	pane.viewport.SetContent(body)
}

func (pane *DetailPane) clampOffset(offset int) {
	maxOffset := pane.viewport.TotalLineCount() - pane.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	pane.viewport.SetYOffset(offset)
}

// View renders the detail pane as a docked panel with a fixed header,
// scrollable body, left padding, and a right scrollbar.
func (pane DetailPane) View(focused bool) string {
	contentWidth := pane.contentWidth()

	if !pane.hasEntry {
		emptyStyle := lipgloss.NewStyle().
			Foreground(pane.theme.FaintText)

		contentStyle := lipgloss.NewStyle().
			PaddingLeft(1).
			Width(pane.width - 1).
			Height(pane.height)

		content := contentStyle.Render(
			lipgloss.Place(
				contentWidth, pane.height,
				lipgloss.Center, lipgloss.Center,
				emptyStyle.Render("Select a conversation"),
			),
		)

		scrollbar := renderScrollbar(
			pane.theme, pane.height,
			0, pane.height, 0,
			focused,
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, content, scrollbar)
	}

	// Build the content column as exactly pane.height lines: fixed
	// header (detailHeaderLines) + scrollable body (remainder).
	paddingStyle := lipgloss.NewStyle().
		PaddingLeft(1).
		Width(pane.width - 1)

	headerView := paddingStyle.Height(detailHeaderLines).Render(pane.header)
	bodyView := paddingStyle.Height(pane.bodyHeight()).Render(pane.viewport.View())
	content := headerView + "\n" + bodyView

	// Scrollbar: blank column for the header rows, actual scrollbar
	// for the body rows. This way the scrollbar only covers the
	// region it actually scrolls.
	headerColumn := lipgloss.NewStyle().
		Width(1).
		Height(detailHeaderLines).
		Render("")
	bodyScrollbar := renderScrollbar(
		pane.theme, pane.bodyHeight(),
		pane.viewport.TotalLineCount(), pane.viewport.Height, pane.viewport.YOffset,
		focused,
	)
	scrollColumn := headerColumn + "\n" + bodyScrollbar

	return lipgloss.JoinHorizontal(lipgloss.Top, content, scrollColumn)
}

// ScrollUp scrolls the detail pane up by half a page.
func (pane *DetailPane) ScrollUp() {
	pane.viewport.HalfViewUp()
}

// ScrollDown scrolls the detail pane down by half a page.
func (pane *DetailPane) ScrollDown() {
	pane.viewport.HalfViewDown()
}

// renderScrollbar produces a single-column scrollbar of the given
// height. The thumb indicates the visible region within the total
// content.
//
// The scrollbar is always fully rendered: track + thumb. When content
// fits within the visible area the thumb spans the entire height. The
// thumb uses the accent color when focused, and a dim color when
// unfocused.
func renderScrollbar(theme Theme, height, totalItems, visibleItems, scrollOffset int, focused bool) string {
	if height <= 0 {
		return ""
	}

	trackColor := theme.BorderColor
	thumbColor := theme.BorderColor
	if focused {
		thumbColor = theme.Favorite
	}

	trackStyle := lipgloss.NewStyle().Foreground(trackColor)
	thumbStyle := lipgloss.NewStyle().Foreground(thumbColor)

	lines := make([]string, height)

	// Content fits — thumb spans the full height.
	if totalItems <= visibleItems || totalItems <= 0 {
		for index := range lines {
			lines[index] = thumbStyle.Render("┃")
		}
		return strings.Join(lines, "\n")
	}

	// Thumb size: proportional to visible/total, minimum 1 row.
	thumbSize := height * visibleItems / totalItems
	if thumbSize < 1 {
		thumbSize = 1
	}

	// Thumb position: proportional to scroll offset within scrollable range.
	scrollableRange := totalItems - visibleItems
	trackRange := height - thumbSize
	thumbOffset := 0
	if scrollableRange > 0 && trackRange > 0 {
		thumbOffset = scrollOffset * trackRange / scrollableRange
	}
	if thumbOffset+thumbSize > height {
		thumbOffset = height - thumbSize
	}

	for index := range lines {
		if index >= thumbOffset && index < thumbOffset+thumbSize {
			lines[index] = thumbStyle.Render("┃")
		} else {
			lines[index] = trackStyle.Render("│")
		}
	}

	return strings.Join(lines, "\n")
}
