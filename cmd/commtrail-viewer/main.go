// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// commtrail-viewer is a terminal UI for browsing communication
// history: a recency-ordered conversation list with live contact
// resolution, fuzzy filtering, and a detail pane for the selected
// event.
//
// Two modes of operation:
//
// Live mode (default): connects to the commtrail event service over
// its Unix socket and subscribes to the event stream. The list stays
// current as calls and messages arrive, reconnecting with backoff
// when the service restarts.
//
// Standalone mode (--database): opens an event database directly and
// fills the list with one query. No service required — works on a
// copied or archived database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/commtrail/commtrail/lib/config"
	"github.com/commtrail/commtrail/lib/contactdb"
	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/eventfeed"
	"github.com/commtrail/commtrail/lib/eventstore"
	"github.com/commtrail/commtrail/lib/recency"
	"github.com/commtrail/commtrail/lib/recentsui"
	"github.com/commtrail/commtrail/lib/runloop"
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
		configPath       string
		socketPath       string
		databasePath     string
		contactsPath     string
		viewName         string
		viewsPath        string
		limit            int
		categories       []string
		required         []string
		excludeFavorites bool
		logOutput        string
	)

	flagSet := pflag.NewFlagSet("commtrail-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default $COMMTRAIL_CONFIG)")
	flagSet.StringVar(&socketPath, "socket", "", "event service socket (default from config)")
	flagSet.StringVar(&databasePath, "database", "", "open this event database directly instead of the service")
	flagSet.StringVar(&contactsPath, "contacts", "", "contact database (default from config)")
	flagSet.StringVar(&viewName, "view", "", "named view preset from the views file")
	flagSet.StringVar(&viewsPath, "views", "", "views file (default commtrail/views.jsonc under the user config dir)")
	flagSet.IntVar(&limit, "limit", 0, "maximum conversations shown, 0 for unbounded")
	flagSet.StringSliceVar(&categories, "categories", nil, "event categories to show (voicecall, voicemail, sms, im, mms, other)")
	flagSet.StringSliceVar(&required, "required", nil, "required contact capabilities (phone, email, account)")
	flagSet.BoolVar(&excludeFavorites, "exclude-favorites", false, "hide conversations with favorite contacts")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other
	// commtrail binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("commtrail-viewer %s\n", version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	view, err := resolveViewSettings(flagSet, viewName, viewsPath, limit, categories, required, excludeFavorites)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if socketPath == "" {
		socketPath = cfg.SocketPath
	}
	if contactsPath == "" {
		contactsPath = cfg.Contacts.Path
	}

	logger, closeLogger, err := newBackgroundLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLogger()

	if databasePath != "" {
		return runStandalone(databasePath, contactsPath, view, logger)
	}
	return runLive(socketPath, contactsPath, view, logger)
}

// resolveViewSettings merges the preset named by --view with explicit
// flag overrides. An explicit flag wins over the preset field it
// shadows; preset fields without an override keep their file values.
func resolveViewSettings(flagSet *pflag.FlagSet, viewName, viewsPath string, limit int, categories, required []string, excludeFavorites bool) (viewSettings, error) {
	var view viewSettings
	if viewName != "" {
		loaded, err := loadNamedView(viewsPath, viewName)
		if err != nil {
			return viewSettings{}, err
		}
		view = loaded
	}
	if flagSet.Changed("limit") {
		if limit < 0 {
			return viewSettings{}, fmt.Errorf("--limit must not be negative")
		}
		view.limit = limit
	}
	if flagSet.Changed("categories") {
		mask, err := event.ParseCategories(categories)
		if err != nil {
			return viewSettings{}, err
		}
		view.categories = mask
	}
	if flagSet.Changed("required") {
		mask, err := directory.ParseAddressFlags(required)
		if err != nil {
			return viewSettings{}, err
		}
		view.required = mask
	}
	if flagSet.Changed("exclude-favorites") {
		view.excludeFavorites = excludeFavorites
	}
	return view, nil
}

// runLive subscribes to the event service and keeps the list current.
// The run loop owns the recency list, the resolver, and the contact
// directory's callbacks; the feed posts frames there and the observer
// forwards snapshots to the bubbletea program, which runs on the main
// goroutine.
func runLive(socketPath, contactsPath string, view viewSettings, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := runloop.New()
	go loop.Run(ctx)

	dir, err := contactdb.Open(ctx, contactdb.Config{
		Path:   contactsPath,
		Loop:   loop,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer dir.Close()

	model := recentsui.NewModel()
	model.SetConnectionState("connecting")
	program := tea.NewProgram(model, tea.WithAltScreen())

	session := newLiveSession(view, dir, loop, program.Send, logger)

	feed, err := eventfeed.NewFeed(eventfeed.Config{
		SocketPath: socketPath,
		Categories: view.categories,
		Limit:      view.limit,
		Loop:       loop,
		OnFrame:    session.onFrame,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer feed.Close()

	_, err = program.Run()
	return err
}

// runStandalone browses an event database directly: one query fills
// the list, after which only contact resolution changes it.
func runStandalone(databasePath, contactsPath string, view viewSettings, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := runloop.New()
	go loop.Run(ctx)

	dir, err := contactdb.Open(ctx, contactdb.Config{
		Path:   contactsPath,
		Loop:   loop,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer dir.Close()

	store, err := eventstore.Open(ctx, eventstore.Config{
		Path:   databasePath,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	model := recentsui.NewModel()
	program := tea.NewProgram(model, tea.WithAltScreen())

	observer := recentsui.NewObserver(dir, program.Send)
	list := recency.New(recency.Config{
		Limit:            view.limit,
		Categories:       view.categories,
		RequiredFlags:    view.required,
		ExcludeFavorites: view.excludeFavorites,
		Directory:        dir,
		Loop:             loop,
		Source:           store,
		Observer:         observer,
		Logger:           logger,
	})
	loop.Post(func() {
		if err := list.Fill(ctx); err != nil {
			logger.Error("filling recents list", "error", err)
		}
	})

	_, err = program.Run()
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Commtrail viewer — interactive terminal UI for recent conversations.

By default, connects to the commtrail event service and subscribes to
the live event stream; the list stays current as calls and messages
arrive. With --database, opens an event database directly instead —
no service required.

A views.jsonc file names reusable filter presets: limit, categories,
required capabilities, exclude-favorites. Select one with --view;
explicit flags override the chosen preset field by field.

Usage:
  commtrail-viewer [flags]

Examples:
  # Live view against the default service socket
  commtrail-viewer

  # Calls only, bounded to the 20 most recent conversations
  commtrail-viewer --categories voicecall,voicemail --limit 20

  # A named preset, overriding its limit
  commtrail-viewer --view messages --limit 50

  # Browse a database copy without a running service
  commtrail-viewer --database ./events.db --contacts ./contacts.db

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// newBackgroundLogger builds the logger for connection and lookup
// diagnostics. Records go to the --log-output file when given and are
// dropped otherwise: stderr belongs to the alt-screen display while
// the program runs, and log lines there would corrupt it.
func newBackgroundLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), func() { file.Close() }, nil
}
