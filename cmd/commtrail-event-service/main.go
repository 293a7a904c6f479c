// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Command commtrail-event-service is the communication history daemon.
// It owns the event database and serves the CBOR socket protocol:
// one-shot mutations and queries, plus the subscribe stream that keeps
// viewers live. One instance runs per user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/commtrail/commtrail/lib/clock"
	"github.com/commtrail/commtrail/lib/config"
	"github.com/commtrail/commtrail/lib/eventfeed"
	"github.com/commtrail/commtrail/lib/eventstore"
	"github.com/commtrail/commtrail/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "configuration file (default $COMMTRAIL_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("commtrail-event-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	clk := clock.Real()
	service := &EventService{
		clock:             clk,
		startedAt:         clk.Now(),
		heartbeatInterval: cfg.Feed.HeartbeatInterval(),
		subscriberBuffer:  cfg.Feed.Buffer,
		logger:            logger,
	}

	// The service is the store's notifier: every committed mutation
	// fans out to subscribe streams.
	store, err := eventstore.Open(ctx, eventstore.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Notifier: service,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	service.store = store

	server := eventfeed.NewServer(cfg.SocketPath, logger)
	service.registerActions(server)

	logger.Info("event service running",
		"socket", cfg.SocketPath,
		"database", cfg.Database.Path,
	)

	err = server.Serve(ctx)
	logger.Info("event service stopped")
	return err
}

// loadConfig reads the configuration from --config when given,
// otherwise from COMMTRAIL_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the service logger from the log configuration.
// "auto" format picks human-readable text on a terminal and JSON when
// the output is redirected (journald, log files).
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == "auto" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

// EventService is the core daemon state: the store, the subscriber
// registry, and the clock the heartbeat runs on.
//
// mu serializes store mutations with subscriber registration and
// fan-out. Mutating action handlers hold it across the store call,
// which invokes the notifier methods synchronously after commit; the
// subscribe handler holds it across registration and the snapshot
// query. A mutation therefore lands either entirely before a new
// subscriber (in its snapshot) or entirely after (in its channel),
// never both and never neither.
type EventService struct {
	store *eventstore.Store
	clock clock.Clock

	startedAt         time.Time
	heartbeatInterval time.Duration
	subscriberBuffer  int

	mu          sync.Mutex
	subscribers []*subscriber

	logger *slog.Logger
}
