// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package eventfeed

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/commtrail/commtrail/lib/codec"
	"github.com/commtrail/commtrail/lib/event"
)

const (
	dialTimeout = 5 * time.Second

	// responseTimeout bounds the full request/response exchange.
	// Generous because a query-recent against a large history can
	// take a while on a cold page cache.
	responseTimeout = 45 * time.Second

	maxResponseSize = 8 * 1024 * 1024
)

// ServiceError is a failure reported by the event service itself, as
// opposed to a transport failure reaching it.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("event service: %s: %s", e.Action, e.Message)
}

// Client issues one-shot requests to the event service socket. Each
// call is one connection; the zero-value-free constructor is the only
// setup needed and the client is safe for concurrent use.
type Client struct {
	socketPath string
}

// NewClient creates a client for the event service at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends a single action request and decodes the response data
// into result (which may be nil for actions without a payload). The
// action field is injected into the request; fields holds the rest.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connecting to event service: %w", err)
	}
	defer conn.Close()

	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	deadline := time.Now().Add(responseTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending %s request: %w", action, err)
	}
	// Half-close tells the service the request is complete while
	// keeping the read side open for the response.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("reading %s response: %w", action, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && response.Data != nil {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", action, err)
		}
	}
	return nil
}

// Ping checks that the service is alive and returns its status.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var status PingResponse
	if err := c.Call(ctx, ActionPing, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AddEvent stores a single event and returns its assigned ID.
func (c *Client) AddEvent(ctx context.Context, e event.Event) (int64, error) {
	var response EventIDResponse
	err := c.Call(ctx, ActionAddEvent, map[string]any{"event": e}, &response)
	if err != nil {
		return 0, err
	}
	return response.ID, nil
}

// AddEvents stores a batch of events in one transaction and returns
// the assigned IDs in input order.
func (c *Client) AddEvents(ctx context.Context, events []event.Event) ([]int64, error) {
	var response EventIDsResponse
	err := c.Call(ctx, ActionAddEvents, map[string]any{"events": events}, &response)
	if err != nil {
		return nil, err
	}
	return response.IDs, nil
}

// UpdateEvent replaces the stored event with e.ID.
func (c *Client) UpdateEvent(ctx context.Context, e event.Event) error {
	return c.Call(ctx, ActionUpdateEvent, map[string]any{"event": e}, nil)
}

// DeleteEvent removes the event with the given ID.
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.Call(ctx, ActionDeleteEvent, map[string]any{"id": id}, nil)
}

// GetEvent fetches a single event by ID.
func (c *Client) GetEvent(ctx context.Context, id int64) (event.Event, error) {
	var response EventsResponse
	err := c.Call(ctx, ActionGetEvent, map[string]any{"id": id}, &response)
	if err != nil {
		return event.Event{}, err
	}
	if len(response.Events) != 1 {
		return event.Event{}, fmt.Errorf("event service: get-event returned %d events, want 1", len(response.Events))
	}
	return response.Events[0], nil
}

// QueryRecent returns recency candidates: the newest event of each
// conversation matching the category mask, newest first. A limit of
// zero means unlimited; otherwise the service overfetches so the
// caller can absorb contact-level deduplication.
func (c *Client) QueryRecent(ctx context.Context, categories event.Category, limit int) ([]event.Event, error) {
	var response EventsResponse
	err := c.Call(ctx, ActionQueryRecent, map[string]any{
		"categories": categories,
		"limit":      limit,
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.Events, nil
}
