// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package recentsui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/commtrail/commtrail/lib/event"
)

func TestRenderHeaderContent(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 60)
	entry := testEntry(42, "Alice Johnson", "+358501111111", 5)
	entry.Favorite = true

	header := ansi.Strip(renderer.RenderHeader(entry))

	if !strings.Contains(header, "sms") {
		t.Error("header should contain the event type")
	}
	if !strings.Contains(header, "← inbound") {
		t.Error("header should contain the direction")
	}
	if !strings.Contains(header, "#42") {
		t.Error("header should contain the event ID")
	}
	if !strings.Contains(header, "Alice Johnson") {
		t.Error("header should contain the display name")
	}
	if !strings.Contains(header, "★") {
		t.Error("header should contain the favorite star")
	}
	if !strings.Contains(header, "+358501111111") {
		t.Error("header should contain the remote address")
	}
	if !strings.Contains(header, "via ring/tel/ring") {
		t.Error("header should contain the local account")
	}
	if !strings.Contains(header, "2026-03-14 11:55") {
		t.Error("header should contain the event time")
	}
}

func TestRenderHeaderFixedHeight(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 60)

	// A sparse event (no name, no body, no read flags) still renders
	// exactly the fixed line count so the body never shifts.
	sparse := Entry{Event: event.Event{ID: 1, Type: event.TypeCall}}
	full := testEntry(2, "Alice Johnson", "+358501111111", 5)
	full.Favorite = true

	for _, entry := range []Entry{sparse, full} {
		header := renderer.RenderHeader(entry)
		lines := strings.Count(header, "\n") + 1
		if lines != detailHeaderLines {
			t.Errorf("header for entry %d has %d lines, want %d", entry.Event.ID, lines, detailHeaderLines)
		}
	}
}

func TestRenderHeaderMissedCallBadge(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 60)

	missed := Entry{Event: event.Event{
		ID:        1,
		Type:      event.TypeCall,
		Direction: event.DirectionInbound,
		IsRead:    false,
		RemoteUID: "+358501234567",
		EndTime:   testBase,
	}}
	header := ansi.Strip(renderer.RenderHeader(missed))
	if !strings.Contains(header, "missed") {
		t.Error("unattended inbound call should show the missed badge")
	}

	answered := missed
	answered.Event.IsRead = true
	header = ansi.Strip(renderer.RenderHeader(answered))
	if strings.Contains(header, "missed") {
		t.Error("answered call should not show the missed badge")
	}
	if strings.Contains(header, "unread") {
		t.Error("read event should not show the unread badge")
	}
}

func TestRenderHeaderCallLength(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 60)

	call := Entry{Event: event.Event{
		ID:        1,
		Type:      event.TypeCall,
		Direction: event.DirectionOutbound,
		StartTime: testBase.Add(-10 * time.Minute),
		EndTime:   testBase.Add(-10*time.Minute + 3*time.Minute + 20*time.Second),
		RemoteUID: "+358501234567",
	}}

	header := ansi.Strip(renderer.RenderHeader(call))
	if !strings.Contains(header, "len 3m20s") {
		t.Errorf("call header should show the call length, got:\n%s", header)
	}

	// Messages have equal start and end times: no length shown.
	message := testEntry(2, "Alice Johnson", "+358501111111", 5)
	header = ansi.Strip(renderer.RenderHeader(message))
	if strings.Contains(header, "len ") {
		t.Error("message header should not show a length")
	}
}

func TestRenderHeaderWithheldAddress(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 60)

	anonymous := Entry{Event: event.Event{
		ID:        1,
		Type:      event.TypeCall,
		Direction: event.DirectionInbound,
		EndTime:   testBase,
	}}

	header := ansi.Strip(renderer.RenderHeader(anonymous))
	if !strings.Contains(header, "(withheld)") {
		t.Error("missing remote address should render as withheld")
	}
}

// longBodyEntry builds an entry whose rendered body is many lines so
// the viewport has something to scroll.
func longBodyEntry(id int64) Entry {
	var body strings.Builder
	for paragraph := 1; paragraph <= 20; paragraph++ {
		fmt.Fprintf(&body, "Paragraph number %d of the message.\n\n", paragraph)
	}
	entry := testEntry(id, "Alice Johnson", "+358501111111", 5)
	entry.Event.FreeText = body.String()
	return entry
}

func TestDetailPaneScrollPreservedOnSameEvent(t *testing.T) {
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(40, 12)
	pane.SetContent(longBodyEntry(1))

	pane.ScrollDown()
	offset := pane.viewport.YOffset
	if offset == 0 {
		t.Fatal("scroll down should move the viewport")
	}

	// An in-place refresh of the same event (resolution finishing,
	// read flag flipping) keeps the reading position.
	updated := longBodyEntry(1)
	updated.DisplayName = "Alice J. Johnson"
	pane.SetContent(updated)
	if pane.viewport.YOffset != offset {
		t.Errorf("same-event refresh moved scroll from %d to %d", offset, pane.viewport.YOffset)
	}

	// Switching to a different event starts reading from the top.
	pane.SetContent(longBodyEntry(2))
	if pane.viewport.YOffset != 0 {
		t.Errorf("new event should reset scroll to top, got %d", pane.viewport.YOffset)
	}
}

func TestDetailPaneClear(t *testing.T) {
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(40, 12)
	pane.SetContent(testEntry(1, "Alice Johnson", "+358501111111", 5))
	pane.Clear()

	view := ansi.Strip(pane.View(false))
	if !strings.Contains(view, "Select a conversation") {
		t.Error("cleared pane should show the empty state")
	}
	if strings.Contains(view, "Alice Johnson") {
		t.Error("cleared pane should not retain entry content")
	}
}

func TestDetailPaneViewShowsEntry(t *testing.T) {
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(60, 16)
	pane.SetContent(testEntry(1, "Alice Johnson", "+358501111111", 5))

	view := ansi.Strip(pane.View(true))
	if !strings.Contains(view, "Alice Johnson") {
		t.Error("pane view should contain the display name")
	}
	if !strings.Contains(view, "hello from Alice Johnson") {
		t.Error("pane view should contain the message body")
	}
}

func TestDetailPaneResizeKeepsContent(t *testing.T) {
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(60, 16)
	pane.SetContent(testEntry(1, "Alice Johnson", "+358501111111", 5))

	// Narrowing re-renders the markdown at the new width.
	pane.SetSize(34, 16)
	view := ansi.Strip(pane.View(false))
	if !strings.Contains(view, "Alice Johnson") {
		t.Error("resized pane should keep the entry content")
	}

	for _, line := range strings.Split(view, "\n") {
		if width := ansi.StringWidth(line); width > 34 {
			t.Errorf("line exceeds pane width after resize: %d > 34 (%q)", width, line)
		}
	}
}
