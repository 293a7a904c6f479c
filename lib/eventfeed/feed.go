// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package eventfeed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/commtrail/commtrail/lib/codec"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/runloop"
)

// Backoff parameters for reconnection after stream disconnects.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// staleConnectionTimeout is how long the feed waits for any frame
// before declaring the connection dead. The service sends heartbeats
// every 30 seconds; three missed heartbeats means the peer is gone.
const staleConnectionTimeout = 90 * time.Second

// Config configures a Feed.
type Config struct {
	// SocketPath is the event service socket to subscribe to.
	SocketPath string

	// Categories and Limit shape the snapshot the service sends on
	// subscribe. Live frames are unfiltered; the consumer applies
	// its own filtering.
	Categories event.Category
	Limit      int

	// Loop is the run loop frames are delivered on. Required.
	Loop *runloop.Loop

	// OnFrame receives every delivered frame, called on Loop.
	// Required. On disconnection the feed synthesizes a resync
	// frame so the consumer discards state built from the lost
	// stream; the next connection starts with a fresh snapshot.
	OnFrame func(Frame)

	// Logger receives connection lifecycle logs. Optional.
	Logger *slog.Logger
}

// Feed maintains a live subscription to the event service. It dials
// the subscribe stream, decodes frames, and posts them to the run
// loop, reconnecting with exponential backoff whenever the stream
// drops. The background goroutine starts immediately; call [Close]
// to shut it down.
type Feed struct {
	socketPath string
	categories event.Category
	limit      int
	loop       *runloop.Loop
	onFrame    func(Frame)
	logger     *slog.Logger

	loadingState atomic.Value // stores string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a feed and starts its connection goroutine.
func NewFeed(cfg Config) (*Feed, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("event feed: SocketPath is required")
	}
	if cfg.Loop == nil {
		return nil, fmt.Errorf("event feed: Loop is required")
	}
	if cfg.OnFrame == nil {
		return nil, fmt.Errorf("event feed: OnFrame is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	feed := &Feed{
		socketPath: cfg.SocketPath,
		categories: cfg.Categories,
		limit:      cfg.Limit,
		loop:       cfg.Loop,
		onFrame:    cfg.OnFrame,
		logger:     logger,
		done:       make(chan struct{}),
	}
	feed.loadingState.Store("connecting")

	ctx, cancel := context.WithCancel(context.Background())
	feed.cancel = cancel
	go feed.streamLoop(ctx)

	return feed, nil
}

// LoadingState returns the current phase of the subscribe stream:
//
//   - "connecting": not yet connected to the service
//   - "loading": connected, receiving the snapshot
//   - "live": caught up, live mutations flowing
func (f *Feed) LoadingState() string {
	return f.loadingState.Load().(string)
}

// Close shuts down the background goroutine and waits for it to
// finish. No frames are delivered after Close returns, though frames
// already posted to the run loop may still be pending there.
func (f *Feed) Close() {
	f.cancel()
	<-f.done
}

// streamLoop manages the subscribe connection lifecycle with
// exponential backoff reconnection.
func (f *Feed) streamLoop(ctx context.Context) {
	defer close(f.done)

	backoff := initialBackoff
	for {
		f.loadingState.Store("connecting")
		err := f.runStream(ctx)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("subscribe stream disconnected",
			"error", err,
			"backoff", backoff,
		)

		// Tell the consumer to discard state from the lost stream.
		// The next successful connection delivers a complete
		// snapshot that replaces it.
		f.deliver(Frame{Type: FrameResync})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// runStream establishes a single subscribe connection, sends the
// handshake, and processes frames until the connection ends or the
// context is cancelled. Returns the error that ended the stream.
func (f *Feed) runStream(ctx context.Context) error {
	conn, err := net.DialTimeout("unix", f.socketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context is cancelled. This
	// unblocks the decoder's Read call in processFrames.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	request := map[string]any{
		"action":     ActionSubscribe,
		"categories": f.categories,
		"limit":      f.limit,
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending subscribe request: %w", err)
	}

	f.loadingState.Store("loading")
	f.logger.Info("subscribe stream connected", "path", f.socketPath)

	return f.processFrames(conn)
}

// processFrames reads CBOR frames from the connection and posts them
// to the run loop. Returns when the connection closes, an error frame
// arrives, or no frame arrives within the stale timeout.
func (f *Feed) processFrames(conn net.Conn) error {
	decoder := codec.NewDecoder(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(staleConnectionTimeout))

		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}

		switch frame.Type {
		case FrameSnapshot, FrameAdded, FrameUpdated, FrameDeleted:
			f.deliver(frame)
		case FrameCaughtUp:
			f.loadingState.Store("live")
			f.logger.Info("subscribe stream caught up")
			f.deliver(frame)
		case FrameResync:
			f.loadingState.Store("loading")
			f.logger.Info("subscribe stream resync")
			f.deliver(frame)
		case FrameHeartbeat:
			// Connection liveness — resets the read deadline above,
			// nothing to deliver.
		case FrameError:
			return fmt.Errorf("server error: %s", frame.Message)
		default:
			// Forward compatibility: ignore unknown frame types.
			f.logger.Debug("unknown subscribe frame type", "type", frame.Type)
		}
	}
}

// deliver posts a frame to the run loop for the consumer callback.
func (f *Feed) deliver(frame Frame) {
	f.loop.Post(func() {
		f.onFrame(frame)
	})
}
