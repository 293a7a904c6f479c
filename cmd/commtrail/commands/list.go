// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
	"github.com/commtrail/commtrail/lib/event"
)

func listCommand() *cli.Command {
	var (
		connection Connection
		categories []string
		limit      int
		jsonOut    bool
	)

	return &cli.Command{
		Name:    "list",
		Summary: "Show recent conversations",
		Usage:   "commtrail list [flags]",
		Description: `Show the most recent conversations, newest first.

This is the raw store view: one row per conversation, holding its
newest event, with no contact deduplication. The interactive viewer
(commtrail-viewer) shows the contact-collapsed recents list.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddDatabaseFlag(flagSet)
			flagSet.StringSliceVar(&categories, "categories", nil, "event categories to include (default all)")
			flagSet.IntVar(&limit, "limit", 20, "maximum number of conversations to show")
			flagSet.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Show the 20 most recent conversations",
				Command:     "commtrail list",
			},
			{
				Description: "Show the last 50 call conversations as JSON",
				Command:     "commtrail list --categories voicecall,voicemail --limit 50 --json",
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
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			var events []event.Event
			if connection.Database != "" {
				store, err := connection.openStore(ctx, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				events, err = store.RecentCandidates(ctx, mask, limit)
				if err != nil {
					return err
				}
			} else {
				client, err := connection.client()
				if err != nil {
					return err
				}
				callCtx, cancel := callContext(ctx)
				defer cancel()
				events, err = client.QueryRecent(callCtx, mask, limit)
				if err != nil {
					return err
				}
			}

			// The store query overfetches so the recency merger has
			// collapse headroom; this command shows conversations
			// as-is, so the cap applies literally.
			if limit > 0 && len(events) > limit {
				events = events[:limit]
			}

			if jsonOut {
				return cli.WriteJSON(events)
			}
			printEvents(os.Stdout, events)
			return nil
		},
	}
}

// printEvents renders events as an aligned table, one row per event.
func printEvents(w io.Writer, events []event.Event) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tWHEN\tTYPE\tDIR\tWHO\tTEXT\n")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.EndTime.Local().Format("2006-01-02 15:04"),
			e.Type,
			e.Direction,
			eventWho(e),
			preview(e.FreeText, 48))
	}
	tw.Flush()
}

// eventWho names the correspondent: the remote address, or the local
// account for events without one (withheld caller ID).
func eventWho(e event.Event) string {
	if e.RemoteUID != "" {
		return e.RemoteUID
	}
	if e.LocalUID != "" {
		return "(unknown) via " + e.LocalUID
	}
	return "(unknown)"
}

// preview returns the first line of text, truncated to max runes.
func preview(text string, max int) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		text = text[:index]
	}
	runes := []rune(text)
	if len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return text
}
