// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
	"github.com/commtrail/commtrail/lib/eventstore"
)

// importBatchSize bounds one add-events call when importing through
// the service, keeping each request comfortably under the socket
// message limit.
const importBatchSize = 500

func exportCommand() *cli.Command {
	var (
		connection Connection
		out        string
		codecName  string
		encryptTo  []string
	)

	return &cli.Command{
		Name:    "export",
		Summary: "Write an event database to an archive",
		Usage:   "commtrail export --database PATH [flags]",
		Description: `Export every event in a database to a portable archive: a CBOR
container with a compressed, integrity-hashed payload, optionally
encrypted to one or more age recipients.

Export reads the database file directly and is safe to run against a
live service; readers never block the writer.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			connection.AddDatabaseFlag(flagSet)
			flagSet.StringVar(&out, "out", "-", "archive destination (- for stdout)")
			flagSet.StringVar(&codecName, "codec", string(eventstore.DefaultCodec), "payload compression: zstd, lz4 or none")
			flagSet.StringArrayVar(&encryptTo, "encrypt-to", nil, "age recipient to encrypt to (repeatable)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Export to a file with default compression",
				Command:     "commtrail export --database events.db --out events.archive",
			},
			{
				Description: "Export encrypted for a backup key",
				Command:     "commtrail export --database events.db --out events.archive --encrypt-to age1xk...",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if connection.Database == "" {
				return fmt.Errorf("--database is required")
			}
			selected, err := eventstore.ParseCodec(codecName)
			if err != nil {
				return err
			}
			recipients, err := parseRecipients(encryptTo)
			if err != nil {
				return err
			}

			store, err := connection.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			output := io.Writer(os.Stdout)
			var file *os.File
			if out != "-" {
				file, err = os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				output = file
			}

			count, err := store.Export(ctx, output, eventstore.ExportOptions{
				Codec:      selected,
				Recipients: recipients,
			})
			if err != nil {
				if file != nil {
					file.Close()
					os.Remove(out)
				}
				return err
			}
			if file != nil {
				if err := file.Close(); err != nil {
					return fmt.Errorf("closing %s: %w", out, err)
				}
			}
			logger.Info("archive written", "events", count, "destination", out)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	var (
		connection    Connection
		identityFiles []string
	)

	return &cli.Command{
		Name:    "import",
		Summary: "Load events from an archive",
		Usage:   "commtrail import [flags] ARCHIVE",
		Description: `Import the events from an archive created by export. Events get
fresh IDs on import.

By default the archive is submitted to the running service, which
stores the events and notifies live subscribers. With --database the
events are written to the file directly; use that only when the
service is stopped.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddDatabaseFlag(flagSet)
			flagSet.StringArrayVar(&identityFiles, "identity", nil, "age identity file for encrypted archives (repeatable)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Import into the running service",
				Command:     "commtrail import events.archive",
			},
			{
				Description: "Import an encrypted archive into a fresh database",
				Command:     "commtrail import --database restored.db --identity backup-key.txt events.archive",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one archive path is required")
			}
			identities, err := loadIdentities(identityFiles)
			if err != nil {
				return err
			}

			input := io.Reader(os.Stdin)
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening archive: %w", err)
				}
				defer file.Close()
				input = file
			}
			opts := eventstore.ImportOptions{Identities: identities}

			if connection.Database != "" {
				store, err := connection.openStore(ctx, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				count, err := store.Import(ctx, input, opts)
				if err != nil {
					return err
				}
				logger.Info("archive imported", "events", count)
				return nil
			}

			events, err := eventstore.ReadArchive(input, opts)
			if err != nil {
				return err
			}
			client, err := connection.client()
			if err != nil {
				return err
			}
			for start := 0; start < len(events); start += importBatchSize {
				batch := events[start:min(start+importBatchSize, len(events))]
				callCtx, cancel := callContext(ctx)
				_, err := client.AddEvents(callCtx, batch)
				cancel()
				if err != nil {
					return fmt.Errorf("submitting events %d-%d: %w", start, start+len(batch)-1, err)
				}
			}
			logger.Info("archive imported", "events", len(events))
			return nil
		},
	}
}

// parseRecipients parses --encrypt-to values as age X25519 recipients.
func parseRecipients(values []string) ([]age.Recipient, error) {
	var recipients []age.Recipient
	for _, value := range values {
		parsed, err := age.ParseX25519Recipient(value)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", value, err)
		}
		recipients = append(recipients, parsed)
	}
	return recipients, nil
}

// loadIdentities reads age identities from the given files.
func loadIdentities(paths []string) ([]age.Identity, error) {
	var identities []age.Identity
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening identity file: %w", err)
		}
		parsed, err := age.ParseIdentities(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing identities from %s: %w", path, err)
		}
		identities = append(identities, parsed...)
	}
	return identities, nil
}
