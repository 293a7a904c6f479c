// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/eventfeed"
	"github.com/commtrail/commtrail/lib/runloop"
)

func watchCommand() *cli.Command {
	var (
		connection Connection
		categories []string
		limit      int
	)

	return &cli.Command{
		Name:    "watch",
		Summary: "Follow the event stream",
		Usage:   "commtrail watch [flags]",
		Description: `Follow the service's subscribe stream and print one line per
frame: the initial snapshot, then every add, update and delete as it
happens. Reconnects automatically when the service restarts; a resync
line marks the gap. Interrupt to stop.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.StringSliceVar(&categories, "categories", nil, "event categories to follow (default all)")
			flagSet.IntVar(&limit, "limit", 0, "snapshot size (0 uses the service default)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Follow everything",
				Command:     "commtrail watch",
			},
			{
				Description: "Follow calls only",
				Command:     "commtrail watch --categories voicecall",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			mask, err := event.ParseCategories(categories)
			if err != nil {
				return err
			}
			if err := connection.resolve(); err != nil {
				return err
			}

			loop := runloop.New()
			feed, err := eventfeed.NewFeed(eventfeed.Config{
				SocketPath: connection.SocketPath,
				Categories: mask,
				Limit:      limit,
				Loop:       loop,
				OnFrame:    func(frame eventfeed.Frame) { printFrame(os.Stdout, frame) },
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			defer feed.Close()

			// The feed posts frames to the loop; running it here makes
			// watch single-threaded until the interrupt arrives.
			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// printFrame renders one subscribe frame as a line. Heartbeats never
// reach here; the feed consumes them for connection liveness.
func printFrame(w io.Writer, frame eventfeed.Frame) {
	switch frame.Type {
	case eventfeed.FrameSnapshot:
		fmt.Fprintf(w, "snapshot: %d events\n", len(frame.Events))
	case eventfeed.FrameCaughtUp:
		fmt.Fprintln(w, "caught up, following live updates")
	case eventfeed.FrameAdded:
		if frame.Event != nil {
			fmt.Fprintf(w, "added: %s\n", formatEventLine(*frame.Event))
		}
	case eventfeed.FrameUpdated:
		if frame.Event != nil {
			fmt.Fprintf(w, "updated: %s\n", formatEventLine(*frame.Event))
		}
	case eventfeed.FrameDeleted:
		fmt.Fprintf(w, "deleted: event %d\n", frame.ID)
	case eventfeed.FrameResync:
		fmt.Fprintln(w, "resync: stream interrupted, a fresh snapshot follows")
	}
}

// formatEventLine is the compact one-line rendering used for live
// frames.
func formatEventLine(e event.Event) string {
	line := fmt.Sprintf("event %d %s %s %s at %s",
		e.ID, e.Type, e.Direction, eventWho(e),
		e.EndTime.Local().Format("15:04:05"))
	if e.FreeText != "" {
		line += fmt.Sprintf(" %q", preview(e.FreeText, 48))
	}
	return line
}
