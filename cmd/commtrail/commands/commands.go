// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the commtrail CLI command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
	"github.com/commtrail/commtrail/lib/version"
)

// Root builds and returns the complete commtrail command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "commtrail",
		Description: `Commtrail: communication event history.

Record calls and messages in the event service, inspect and follow
the recents stream, archive event databases, and manage the contact
directory used for recipient resolution.`,
		Subcommands: []*cli.Command{
			addCommand(),
			listCommand(),
			watchCommand(),
			pingCommand(),
			exportCommand(),
			importCommand(),
			contactCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("commtrail %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Check that the service is reachable",
				Command:     "commtrail ping",
			},
			{
				Description: "Record an outgoing text message",
				Command:     `commtrail add --type sms --remote +358501234567 --text "on my way"`,
			},
			{
				Description: "Show the 20 most recent conversations",
				Command:     "commtrail list",
			},
			{
				Description: "Follow calls as they happen",
				Command:     "commtrail watch --categories voicecall",
			},
			{
				Description: "Back up a database to an encrypted archive",
				Command:     "commtrail export --database events.db --out backup.archive --encrypt-to age1xk...",
			},
			{
				Description: "Name a correspondent in the contact directory",
				Command:     `commtrail contact add --name "Alice" --phone +358501234567`,
			},
		},
	}
}
