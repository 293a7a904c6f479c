// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventfeed carries the CBOR-over-Unix-socket protocol between
// the event service and its clients: one-shot request/response actions
// for event CRUD, and a subscribe stream that pushes live changes.
//
// Every request is a CBOR map with an "action" field naming the
// operation plus action-specific fields. One-shot actions answer with
// a Response envelope; "subscribe" upgrades the connection to a frame
// stream that stays open until either side closes it.
package eventfeed

import (
	"github.com/commtrail/commtrail/lib/event"
)

// Action names accepted by the event service.
const (
	ActionPing        = "ping"
	ActionAddEvent    = "add-event"
	ActionAddEvents   = "add-events"
	ActionUpdateEvent = "update-event"
	ActionDeleteEvent = "delete-event"
	ActionGetEvent    = "get-event"
	ActionQueryRecent = "query-recent"
	ActionSubscribe   = "subscribe"
)

// AddEventRequest carries one event for "add-event". The event's ID
// field is ignored; the service assigns one.
type AddEventRequest struct {
	Event event.Event `cbor:"event"`
}

// AddEventsRequest carries a batch for "add-events". The batch is
// stored in one transaction.
type AddEventsRequest struct {
	Events []event.Event `cbor:"events"`
}

// UpdateEventRequest replaces the stored event with the given ID.
type UpdateEventRequest struct {
	Event event.Event `cbor:"event"`
}

// DeleteEventRequest removes the event with the given ID.
type DeleteEventRequest struct {
	ID int64 `cbor:"id"`
}

// GetEventRequest fetches the event with the given ID.
type GetEventRequest struct {
	ID int64 `cbor:"id"`
}

// QueryRecentRequest runs the grouped recency query: the newest event
// per conversation, filtered by category mask, limited (zero means
// unbounded).
type QueryRecentRequest struct {
	Categories event.Category `cbor:"categories"`
	Limit      int            `cbor:"limit"`
}

// SubscribeRequest opens the live stream. The snapshot phase sends
// the recency candidates for the given categories and limit; live
// frames afterwards carry every mutation regardless of category (the
// client filters).
type SubscribeRequest struct {
	Categories event.Category `cbor:"categories"`
	Limit      int            `cbor:"limit"`
}

// PingResponse answers "ping". It also appears verbatim in CLI JSON
// output, hence json tags (which the CBOR codec reads as fallback).
type PingResponse struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Events        int64   `json:"events"`
}

// EventIDResponse answers "add-event" with the assigned ID.
type EventIDResponse struct {
	ID int64 `cbor:"id"`
}

// EventIDsResponse answers "add-events" with the assigned IDs in
// batch order.
type EventIDsResponse struct {
	IDs []int64 `cbor:"ids"`
}

// EventsResponse answers "query-recent".
type EventsResponse struct {
	Events []event.Event `cbor:"events"`
}

// Frame types written on the subscribe stream.
const (
	// FrameSnapshot carries a recency-descending batch of the
	// current candidates. Sent once after subscribing and again
	// after a resync.
	FrameSnapshot = "snapshot"

	// FrameCaughtUp marks the end of the snapshot; live frames
	// follow.
	FrameCaughtUp = "caught_up"

	// FrameAdded carries one newly stored event. A batch insert
	// produces one frame per event.
	FrameAdded = "added"

	// FrameUpdated carries the new content of one event.
	FrameUpdated = "updated"

	// FrameDeleted names a removed event.
	FrameDeleted = "deleted"

	// FrameHeartbeat is a liveness probe. A client should treat the
	// stream as dead when no frame of any type arrives within twice
	// the heartbeat interval.
	FrameHeartbeat = "heartbeat"

	// FrameResync tells the client its stream fell behind; local
	// state must be discarded and a fresh snapshot follows.
	FrameResync = "resync"

	// FrameError is terminal; the connection closes after it.
	FrameError = "error"
)

// Frame is a single CBOR value on the subscribe stream.
type Frame struct {
	Type string `cbor:"type"`

	// Events is populated for snapshot frames.
	Events []event.Event `cbor:"events,omitempty"`

	// Event is populated for added and updated frames.
	Event *event.Event `cbor:"event,omitempty"`

	// ID is populated for deleted frames.
	ID int64 `cbor:"id,omitempty"`

	// Message is populated for error frames.
	Message string `cbor:"message,omitempty"`
}
