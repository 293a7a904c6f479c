// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/commtrail/commtrail/lib/codec"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/eventfeed"
)

// subscriber is one connected subscribe stream. The fan-out path
// (notifySubscribers) feeds frames into channel with non-blocking
// sends; the stream's own goroutine drains it and writes to the
// connection. resync is set when a send would block, meaning frames
// were dropped and the client needs a fresh snapshot. done is closed
// when the stream goroutine exits so the fan-out path can drop the
// subscriber without waiting for it.
type subscriber struct {
	categories event.Category
	limit      int
	channel    chan eventfeed.Frame
	resync     atomic.Bool
	done       <-chan struct{}
}

// addSubscriber registers a stream for fan-out.
//
// Must be called with es.mu held.
func (es *EventService) addSubscriber(sub *subscriber) {
	es.subscribers = append(es.subscribers, sub)
}

// removeSubscriber drops a stream from fan-out. Takes the lock itself;
// called from the stream goroutine's cleanup path.
func (es *EventService) removeSubscriber(sub *subscriber) {
	es.mu.Lock()
	defer es.mu.Unlock()
	for i, registered := range es.subscribers {
		if registered == sub {
			es.subscribers = append(es.subscribers[:i], es.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers fans a frame out to all registered streams whose
// category filter covers it. category is the changed event's category;
// CategoryAny means the frame applies to every subscriber (deletions
// carry only an ID, so no filter can exclude them). Sends are
// non-blocking: a full channel marks the subscriber for resync instead
// of stalling the mutation that is fanning out. Subscribers whose
// stream goroutine has exited are removed.
//
// Must be called with es.mu held.
func (es *EventService) notifySubscribers(frame eventfeed.Frame, category event.Category) {
	// Iterate in reverse so that removals don't shift unvisited elements.
	for i := len(es.subscribers) - 1; i >= 0; i-- {
		sub := es.subscribers[i]

		select {
		case <-sub.done:
			es.subscribers = append(es.subscribers[:i], es.subscribers[i+1:]...)
			continue
		default:
		}

		if category != event.CategoryAny && !category.Matches(sub.categories) {
			continue
		}

		select {
		case sub.channel <- frame:
		default:
			sub.resync.Store(true)
		}
	}
}

// --- Store notifier ---

// The store invokes these synchronously after each committed mutation,
// from the action handler that performed it. That handler holds es.mu,
// so the fan-out runs under the same critical section as the commit:
// a subscriber registered before the mutation gets the frame, one
// registered after gets the event in its snapshot, never both.

// EventsAdded fans out one added frame per stored event.
func (es *EventService) EventsAdded(events []event.Event) {
	for i := range events {
		e := events[i]
		es.notifySubscribers(eventfeed.Frame{
			Type:  eventfeed.FrameAdded,
			Event: &e,
		}, e.Category())
	}
}

// EventUpdated fans out an updated frame.
func (es *EventService) EventUpdated(e event.Event) {
	es.notifySubscribers(eventfeed.Frame{
		Type:  eventfeed.FrameUpdated,
		Event: &e,
	}, e.Category())
}

// EventDeleted fans out a deleted frame to every subscriber.
func (es *EventService) EventDeleted(id int64) {
	es.notifySubscribers(eventfeed.Frame{
		Type: eventfeed.FrameDeleted,
		ID:   id,
	}, event.CategoryAny)
}

// --- Subscribe handler ---

// handleSubscribe is the stream handler for the "subscribe" action.
// It registers the subscriber and collects a snapshot of the recent
// candidates atomically, writes the snapshot, then enters a live loop
// forwarding mutations.
//
// The lock covers subscriber registration and the snapshot query.
// All network I/O happens outside the lock. Mutations that land during
// the snapshot write are buffered in the subscriber channel and
// written after caught_up.
func (es *EventService) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	var request eventfeed.SubscribeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		encoder.Encode(eventfeed.Frame{
			Type:    eventfeed.FrameError,
			Message: "invalid request: " + err.Error(),
		})
		return
	}
	if request.Limit < 0 {
		encoder.Encode(eventfeed.Frame{
			Type:    eventfeed.FrameError,
			Message: "limit must not be negative",
		})
		return
	}

	done := make(chan struct{})
	sub := &subscriber{
		categories: request.Categories,
		limit:      request.Limit,
		channel:    make(chan eventfeed.Frame, es.subscriberBuffer),
		done:       done,
	}

	es.mu.Lock()
	es.addSubscriber(sub)
	snapshot, err := es.store.RecentCandidates(ctx, sub.categories, sub.limit)
	es.mu.Unlock()

	defer func() {
		close(done)
		es.removeSubscriber(sub)
		es.logger.Info("subscribe stream ended")
	}()

	if err != nil {
		encoder.Encode(eventfeed.Frame{
			Type:    eventfeed.FrameError,
			Message: err.Error(),
		})
		return
	}

	es.logger.Info("subscribe stream started",
		"categories", sub.categories.String(),
		"limit", sub.limit,
		"snapshot_events", len(snapshot),
	)

	if err := writeSnapshot(encoder, snapshot); err != nil {
		es.logger.Debug("subscribe stream write error during snapshot", "error", err)
		return
	}

	es.subscribeEventLoop(ctx, encoder, sub)
}

// writeSnapshot writes the snapshot frame followed by caught_up. The
// snapshot is a single frame: recency candidate sets are small (the
// list limit times a fixed overfetch factor), so there is no need for
// the phased delivery a large collection would want.
func writeSnapshot(encoder *codec.Encoder, events []event.Event) error {
	if err := encoder.Encode(eventfeed.Frame{
		Type:   eventfeed.FrameSnapshot,
		Events: events,
	}); err != nil {
		return err
	}
	return encoder.Encode(eventfeed.Frame{Type: eventfeed.FrameCaughtUp})
}

// subscribeEventLoop forwards frames from the subscriber channel to
// the connection. Runs until the context is cancelled (server
// shutdown) or the connection fails.
//
// On channel overflow (resync flag set), the loop writes a resync
// frame, drains the stale buffer, collects a fresh snapshot, and
// writes it before resuming live forwarding. The drain and the
// snapshot query happen under es.mu: senders hold the lock, so after
// it is released anything in the channel is strictly newer than the
// snapshot and no frame is duplicated or lost.
func (es *EventService) subscribeEventLoop(ctx context.Context, encoder *codec.Encoder, sub *subscriber) {
	heartbeat := es.clock.NewTicker(es.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-sub.channel:
			if sub.resync.CompareAndSwap(true, false) {
				// The frame just received and everything buffered
				// behind it predate the snapshot we are about to
				// collect; drop them all.
				if err := encoder.Encode(eventfeed.Frame{Type: eventfeed.FrameResync}); err != nil {
					es.logger.Debug("subscribe stream write error", "error", err)
					return
				}

				es.mu.Lock()
				for len(sub.channel) > 0 {
					<-sub.channel
				}
				snapshot, err := es.store.RecentCandidates(ctx, sub.categories, sub.limit)
				es.mu.Unlock()

				if err != nil {
					encoder.Encode(eventfeed.Frame{
						Type:    eventfeed.FrameError,
						Message: err.Error(),
					})
					return
				}
				if err := writeSnapshot(encoder, snapshot); err != nil {
					es.logger.Debug("subscribe stream write error during resync", "error", err)
					return
				}
				continue
			}

			if err := encoder.Encode(frame); err != nil {
				es.logger.Debug("subscribe stream write error", "error", err)
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(eventfeed.Frame{Type: eventfeed.FrameHeartbeat}); err != nil {
				es.logger.Debug("subscribe stream heartbeat error", "error", err)
				return
			}
		}
	}
}
