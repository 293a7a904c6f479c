// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/commtrail/commtrail/lib/event"
)

// Column widths for the list table. The name column fills remaining
// space; all others are fixed.
const (
	// maxLeftWidth is the width of the left portion before the name
	// column: 1 (indent) + 1 (star) + 1 (space) + 2 (emoji) + 1
	// (space) + 1 (direction glyph) + 1 (space) = 8.
	maxLeftWidth = 8

	// timeColumnWidth is the right-aligned age column including its
	// separating space. The widest value is a short date ("Dec 31").
	timeColumnWidth = 7
)

// typeIcon returns a double-width emoji representing the event type.
// Each icon is visually distinct so the channel is recognizable at a
// glance without reading text.
func typeIcon(eventType event.Type) string {
	switch eventType {
	case event.TypeCall:
		return "📞"
	case event.TypeVoicemail:
		return "📼"
	case event.TypeSMS:
		return "💬"
	case event.TypeIM:
		return "💭"
	case event.TypeMMS:
		return "📷"
	case event.TypeStatusMessage:
		return "📣"
	default:
		return "  " // 2 spaces to match emoji width
	}
}

// directionGlyph returns a single-width arrow for the event direction.
func directionGlyph(direction event.Direction) string {
	switch direction {
	case event.DirectionInbound:
		return "←"
	case event.DirectionOutbound:
		return "→"
	default:
		return " "
	}
}

// ListRenderer handles the table-style rendering of recency entries
// within a given width.
type ListRenderer struct {
	theme Theme
	width int
}

// NewListRenderer creates a ListRenderer for the given width.
func NewListRenderer(theme Theme, width int) ListRenderer {
	return ListRenderer{theme: theme, width: width}
}

// RenderRow renders a single entry as a formatted table row. The
// selected flag controls whether the row gets highlight styling. The
// now parameter anchors the age column. The matchPositions parameter
// contains rune indices in the display name that matched the current
// fuzzy filter query; when non-nil, those characters are highlighted
// with the search highlight background.
//
// Row layout: indent + star + emoji + direction + name [· preview] + age
//
//	 ★ 📞 ← Alice Example · see you tomorrow        12m
//	   💬 → +15550123 · ok                           3d
func (renderer ListRenderer) RenderRow(entry Entry, selected bool, now time.Time, matchPositions []int) string {
	nameWidth := renderer.width - maxLeftWidth - timeColumnWidth
	if nameWidth < 10 {
		nameWidth = 10
	}

	// Build the name portion with an optional message preview suffix.
	nameText := entry.Name()
	previewText := ""
	if preview := previewLine(entry.Event.FreeText); preview != "" {
		previewText = " · " + preview
	}

	// Truncate name+preview to fit the available width, preferring to
	// show the name over the preview.
	combined := nameText + previewText
	if lipgloss.Width(combined) > nameWidth {
		if lipgloss.Width(nameText) >= nameWidth-1 {
			combined = truncateString(nameText, nameWidth-1) + "…"
		} else {
			combined = nameText + truncateString(previewText, nameWidth-lipgloss.Width(nameText)-1) + "…"
		}
	}

	age := fmt.Sprintf("%*s", timeColumnWidth-1, formatRelativeTime(now, entry.Event.EndTime))

	if selected {
		return renderer.renderSelectedRow(entry, combined, age, matchPositions)
	}
	return renderer.renderNormalRow(entry, combined, age, matchPositions)
}

// renderNormalRow renders a row with per-component foreground colors.
// No background color (default terminal background). matchPositions
// contains rune indices in the display name that should be highlighted.
func (renderer ListRenderer) renderNormalRow(entry Entry, namePreview string, age string, matchPositions []int) string {
	star := " "
	if entry.Favorite {
		star = lipgloss.NewStyle().Foreground(renderer.theme.Favorite).Render("★")
	}

	directionColor := renderer.theme.FaintText
	if missedCall(entry.Event) {
		directionColor = renderer.theme.MissedCall
	}
	direction := lipgloss.NewStyle().
		Foreground(directionColor).
		Render(directionGlyph(entry.Event.Direction))

	nameStyle := lipgloss.NewStyle().Foreground(renderer.theme.NormalText)
	if unread(entry.Event) {
		nameStyle = nameStyle.Foreground(renderer.theme.Unread).Bold(true)
	}

	var nameRendered string
	if len(matchPositions) > 0 {
		highlightStyle := nameStyle.Background(renderer.theme.SearchHighlightBackground)
		nameRendered = highlightName(namePreview, entry.Name(), matchPositions, nameStyle, highlightStyle)
	} else {
		nameRendered = nameStyle.Render(namePreview)
	}

	padding := renderer.width - maxLeftWidth - lipgloss.Width(namePreview) - timeColumnWidth
	if padding < 0 {
		padding = 0
	}

	row := " " + star + " " +
		typeIcon(entry.Event.Type) + " " +
		direction + " " +
		nameRendered +
		strings.Repeat(" ", padding) +
		" " + lipgloss.NewStyle().Foreground(renderer.theme.FaintText).Render(age)

	return lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(row)
}

// renderSelectedRow renders the selected row with a highlight
// background. All text uses the selected foreground color.
// matchPositions contains rune indices in the display name that should
// be highlighted (with bold+underline on the selection bg).
func (renderer ListRenderer) renderSelectedRow(entry Entry, namePreview string, age string, matchPositions []int) string {
	baseStyle := lipgloss.NewStyle().
		Background(renderer.theme.SelectedBackground).
		Foreground(renderer.theme.SelectedForeground)

	star := " "
	if entry.Favorite {
		star = baseStyle.Render("★")
	}

	var nameRendered string
	if len(matchPositions) > 0 {
		// On a selected row the background is already the selection
		// color, so a different background tint would be subtle.
		// Use bold+underline to make matches pop against the
		// selection highlight.
		highlightStyle := baseStyle.Bold(true).Underline(true)
		nameRendered = highlightName(namePreview, entry.Name(), matchPositions, baseStyle, highlightStyle)
	} else {
		nameRendered = baseStyle.Render(namePreview)
	}

	padding := renderer.width - maxLeftWidth - lipgloss.Width(namePreview) - timeColumnWidth
	if padding < 0 {
		padding = 0
	}

	row := " " + star + " " +
		typeIcon(entry.Event.Type) + " " +
		baseStyle.Render(directionGlyph(entry.Event.Direction)) + " " +
		nameRendered +
		strings.Repeat(" ", padding) +
		" " + baseStyle.Render(age)

	return baseStyle.Width(renderer.width).MaxWidth(renderer.width).Render(row)
}

// missedCall reports whether the event is an unattended inbound call.
func missedCall(e event.Event) bool {
	return e.Type == event.TypeCall && e.Direction == event.DirectionInbound && !e.IsRead
}

// unread reports whether the row should carry unread emphasis. Only
// inbound events count; outbound ones are the user's own.
func unread(e event.Event) bool {
	return e.Direction == event.DirectionInbound && !e.IsRead
}

// previewLine extracts the first non-empty line of a message body for
// the row preview.
func previewLine(text string) string {
	for line := range strings.Lines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// formatRelativeTime renders an event age as a compact column value:
// "now" under a minute, then minutes, hours, and days, then a short
// date once the event is over a month old.
func formatRelativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "now"
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	case age < 31*24*time.Hour:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// highlightName renders a name+preview string with character-level
// highlighting at the given rune positions. Positions index into the
// original name (before the preview was appended); preview characters
// are never highlighted. Consecutive runs of same-style characters are
// batched into a single Render call to keep ANSI output compact.
func highlightName(namePreview string, originalName string, positions []int, baseStyle, highlightStyle lipgloss.Style) string {
	if len(positions) == 0 {
		return baseStyle.Render(namePreview)
	}

	// Build a set of matched rune indices for O(1) lookup.
	positionSet := make(map[int]bool, len(positions))
	for _, position := range positions {
		positionSet[position] = true
	}

	nameRunes := []rune(originalName)
	combinedRunes := []rune(namePreview)
	nameLength := len(nameRunes)

	var result strings.Builder
	runStart := 0
	isHighlighted := runStart < nameLength && positionSet[0]

	for index := 1; index <= len(combinedRunes); index++ {
		currentHighlighted := index < nameLength && positionSet[index]
		if currentHighlighted != isHighlighted || index == len(combinedRunes) {
			chunk := string(combinedRunes[runStart:index])
			if isHighlighted {
				result.WriteString(highlightStyle.Render(chunk))
			} else {
				result.WriteString(baseStyle.Render(chunk))
			}
			runStart = index
			isHighlighted = currentHighlighted
		}
	}

	return result.String()
}

// truncateString truncates a string to maxWidth visual characters.
// Handles multi-byte characters correctly via lipgloss width
// measurement.
func truncateString(text string, maxWidth int) string {
	if lipgloss.Width(text) <= maxWidth {
		return text
	}
	// Truncate by runes until we fit.
	runes := []rune(text)
	for length := len(runes) - 1; length >= 0; length-- {
		candidate := string(runes[:length])
		if lipgloss.Width(candidate) <= maxWidth {
			return candidate
		}
	}
	return ""
}
