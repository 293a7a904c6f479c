// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/eventfeed"
	"github.com/commtrail/commtrail/lib/recency"
	"github.com/commtrail/commtrail/lib/recentsui"
	"github.com/commtrail/commtrail/lib/recipient"
	"github.com/commtrail/commtrail/lib/runloop"
)

// liveSession binds the subscribe stream to a recency list. Every
// snapshot starts a fresh list generation: the UI is cleared with a
// ReplaceMsg and the snapshot batch is ingested into a new list whose
// diffs rebuild the view. Between a resync and the next snapshot the
// session has no list and live frames are dropped; the snapshot that
// ends the gap carries the complete current state.
//
// onFrame runs on the session's run loop (the feed posts frames
// there), which is also where the list, resolver, and directory
// callbacks live. The observer's send side is goroutine-safe.
type liveSession struct {
	view     viewSettings
	dir      directory.Directory
	loop     *runloop.Loop
	registry *recipient.Registry
	observer *recentsui.Observer
	send     func(tea.Msg)
	logger   *slog.Logger

	list *recency.List
}

func newLiveSession(view viewSettings, dir directory.Directory, loop *runloop.Loop, send func(tea.Msg), logger *slog.Logger) *liveSession {
	return &liveSession{
		view:     view,
		dir:      dir,
		loop:     loop,
		registry: recipient.NewRegistry(),
		observer: recentsui.NewObserver(dir, send),
		send:     send,
		logger:   logger,
	}
}

// onFrame is the eventfeed.Config.OnFrame callback.
func (s *liveSession) onFrame(frame eventfeed.Frame) {
	switch frame.Type {
	case eventfeed.FrameSnapshot:
		s.rebuild(frame.Events)
	case eventfeed.FrameCaughtUp:
		s.send(recentsui.ConnectionMsg{State: "connected"})
	case eventfeed.FrameAdded:
		if s.list != nil && frame.Event != nil {
			s.list.EventsAdded([]event.Event{*frame.Event})
		}
	case eventfeed.FrameUpdated:
		if s.list != nil && frame.Event != nil {
			s.list.EventsUpdated([]event.Event{*frame.Event})
		}
	case eventfeed.FrameDeleted:
		if s.list != nil {
			s.list.EventDeleted(frame.ID)
		}
	case eventfeed.FrameResync:
		// The stream fell behind or dropped. Keep showing the stale
		// entries; the next snapshot replaces them wholesale.
		s.send(recentsui.ConnectionMsg{State: "reconnecting"})
		s.teardown()
	}
}

// rebuild replaces the current list generation with one built from a
// fresh snapshot. The registry is shared across generations, so
// already-resolved recipients carry over and the new list fills
// without re-querying the directory for known addresses.
func (s *liveSession) rebuild(snapshot []event.Event) {
	s.teardown()
	s.observer.Replace(nil)

	s.list = recency.New(recency.Config{
		Limit:            s.view.limit,
		Categories:       s.view.categories,
		RequiredFlags:    s.view.required,
		ExcludeFavorites: s.view.excludeFavorites,
		Directory:        s.dir,
		Loop:             s.loop,
		Registry:         s.registry,
		Observer:         s.observer,
		Logger:           s.logger,
	})
	s.list.EventsAdded(snapshot)
}

// teardown closes the current list generation, if any. Close releases
// the resolver's directory registration so no callback reaches a dead
// generation.
func (s *liveSession) teardown() {
	if s.list == nil {
		return
	}
	s.list.Close()
	s.list = nil
}
