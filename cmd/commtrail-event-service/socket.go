// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/commtrail/commtrail/lib/codec"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/eventfeed"
)

// registerActions wires the service's handlers into the socket server.
func (es *EventService) registerActions(server *eventfeed.Server) {
	server.Handle(eventfeed.ActionPing, es.handlePing)
	server.Handle(eventfeed.ActionAddEvent, es.handleAddEvent)
	server.Handle(eventfeed.ActionAddEvents, es.handleAddEvents)
	server.Handle(eventfeed.ActionUpdateEvent, es.handleUpdateEvent)
	server.Handle(eventfeed.ActionDeleteEvent, es.handleDeleteEvent)
	server.Handle(eventfeed.ActionGetEvent, es.handleGetEvent)
	server.Handle(eventfeed.ActionQueryRecent, es.handleQueryRecent)
	server.HandleStream(eventfeed.ActionSubscribe, es.handleSubscribe)
}

// validateEvent checks the fields every stored event must carry.
// Remote UID may be empty (withheld caller ID); the recency list
// resolves such events to no contact rather than rejecting them.
func validateEvent(e event.Event) error {
	if e.Type == event.TypeUnknown {
		return fmt.Errorf("event type is required")
	}
	if e.EndTime.IsZero() {
		return fmt.Errorf("event end time is required")
	}
	if e.LocalUID == "" {
		return fmt.Errorf("event local uid is required")
	}
	return nil
}

func (es *EventService) handlePing(ctx context.Context, raw []byte) (any, error) {
	count, err := es.store.CountEvents(ctx)
	if err != nil {
		return nil, err
	}
	return eventfeed.PingResponse{
		UptimeSeconds: es.clock.Now().Sub(es.startedAt).Seconds(),
		Events:        count,
	}, nil
}

// handleAddEvent stores one event. The lock spans the insert and the
// notifier fan-out the store performs on commit.
func (es *EventService) handleAddEvent(ctx context.Context, raw []byte) (any, error) {
	var request eventfeed.AddEventRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if err := validateEvent(request.Event); err != nil {
		return nil, err
	}

	e := request.Event
	es.mu.Lock()
	err := es.store.AddEvent(ctx, &e)
	es.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return eventfeed.EventIDResponse{ID: e.ID}, nil
}

// handleAddEvents stores a batch atomically. The whole batch fans out
// under one critical section, so subscribers see it contiguously.
func (es *EventService) handleAddEvents(ctx context.Context, raw []byte) (any, error) {
	var request eventfeed.AddEventsRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	for i, e := range request.Events {
		if err := validateEvent(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	events := request.Events
	es.mu.Lock()
	err := es.store.AddEvents(ctx, events)
	es.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	return eventfeed.EventIDsResponse{IDs: ids}, nil
}

func (es *EventService) handleUpdateEvent(ctx context.Context, raw []byte) (any, error) {
	var request eventfeed.UpdateEventRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Event.ID <= 0 {
		return nil, fmt.Errorf("event id is required")
	}
	if err := validateEvent(request.Event); err != nil {
		return nil, err
	}

	es.mu.Lock()
	err := es.store.UpdateEvent(ctx, request.Event)
	es.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (es *EventService) handleDeleteEvent(ctx context.Context, raw []byte) (any, error) {
	var request eventfeed.DeleteEventRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.ID <= 0 {
		return nil, fmt.Errorf("event id is required")
	}

	es.mu.Lock()
	err := es.store.DeleteEvent(ctx, request.ID)
	es.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (es *EventService) handleGetEvent(ctx context.Context, raw []byte) (any, error) {
	var request eventfeed.GetEventRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.ID <= 0 {
		return nil, fmt.Errorf("event id is required")
	}

	e, err := es.store.GetEvent(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return eventfeed.EventsResponse{Events: []event.Event{e}}, nil
}

func (es *EventService) handleQueryRecent(ctx context.Context, raw []byte) (any, error) {
	var request eventfeed.QueryRecentRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}

	events, err := es.store.RecentCandidates(ctx, request.Categories, request.Limit)
	if err != nil {
		return nil, err
	}
	return eventfeed.EventsResponse{Events: events}, nil
}
