// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
	"github.com/commtrail/commtrail/lib/event"
)

func addCommand() *cli.Command {
	var (
		connection Connection
		eventType  string
		direction  string
		localUID   string
		remoteUID  string
		text       string
		when       string
		duration   time.Duration
		read       bool
	)

	return &cli.Command{
		Name:    "add",
		Summary: "Record a communication event",
		Usage:   "commtrail add --type TYPE --remote UID [flags]",
		Description: `Record a single communication event.

The event is submitted to the running service, which assigns its ID,
stores it, and pushes it to live subscribers. With --database the
event is written to the file directly; use that only when the service
is stopped, since subscribers are not notified of direct writes.

The assigned event ID is printed on stdout.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddDatabaseFlag(flagSet)
			flagSet.StringVar(&eventType, "type", "", "event type: im, sms, call, voicemail, status or mms")
			flagSet.StringVar(&direction, "direction", "out", "who initiated the event: in or out")
			flagSet.StringVar(&localUID, "local", "", "local account UID (e.g. xmpp/me@example.org)")
			flagSet.StringVar(&remoteUID, "remote", "", "correspondent address (account UID or phone number)")
			flagSet.StringVar(&text, "text", "", "message body or call annotation")
			flagSet.StringVar(&when, "when", "", "event end time as RFC 3339 (default now)")
			flagSet.DurationVar(&duration, "duration", 0, "event duration; the start time is end minus duration")
			flagSet.BoolVar(&read, "read", false, "mark the event as already read")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Record an outgoing text message",
				Command:     `commtrail add --type sms --remote +358501234567 --text "on my way"`,
			},
			{
				Description: "Record a missed call from a withheld number",
				Command:     "commtrail add --type call --direction in --local ring/tel/ring --when 2026-03-14T12:00:00Z",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			e, err := buildEvent(eventType, direction, localUID, remoteUID, text, when, duration, read)
			if err != nil {
				return err
			}

			if connection.Database != "" {
				store, err := connection.openStore(ctx, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.AddEvent(ctx, &e); err != nil {
					return err
				}
				fmt.Println(e.ID)
				return nil
			}

			client, err := connection.client()
			if err != nil {
				return err
			}
			callCtx, cancel := callContext(ctx)
			defer cancel()
			id, err := client.AddEvent(callCtx, e)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

// buildEvent assembles an event from flag values. The end time
// defaults to now; the start time is the end minus --duration, so
// instantaneous events (messages) have StartTime == EndTime.
func buildEvent(eventType, direction, localUID, remoteUID, text, when string, duration time.Duration, read bool) (event.Event, error) {
	parsedType, err := event.ParseType(eventType)
	if err != nil {
		if eventType == "" {
			return event.Event{}, fmt.Errorf("--type is required")
		}
		return event.Event{}, err
	}
	parsedDirection, err := event.ParseDirection(direction)
	if err != nil {
		return event.Event{}, err
	}
	if localUID == "" && remoteUID == "" {
		return event.Event{}, fmt.Errorf("at least one of --local and --remote is required")
	}
	if duration < 0 {
		return event.Event{}, fmt.Errorf("--duration must not be negative")
	}

	end := time.Now().UTC().Truncate(time.Second)
	if when != "" {
		end, err = time.Parse(time.RFC3339, when)
		if err != nil {
			return event.Event{}, fmt.Errorf("parsing --when: %w", err)
		}
	}

	return event.Event{
		Type:      parsedType,
		StartTime: end.Add(-duration),
		EndTime:   end,
		Direction: parsedDirection,
		IsRead:    read,
		LocalUID:  localUID,
		RemoteUID: remoteUID,
		FreeText:  text,
	}, nil
}
