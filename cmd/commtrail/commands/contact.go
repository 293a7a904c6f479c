// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
	"github.com/commtrail/commtrail/lib/contactdb"
)

func contactCommand() *cli.Command {
	return &cli.Command{
		Name:    "contact",
		Summary: "Manage the contact directory",
		Description: `Manage the contact directory used for recipient resolution.

Contacts map addresses (phone numbers, online accounts, email) to
display names. The recents list collapses events by contact, so a
correspondent reachable on several addresses shows up once.`,
		Subcommands: []*cli.Command{
			contactAddCommand(),
			contactListCommand(),
			contactFavoriteCommand(),
			contactRemoveCommand(),
		},
	}
}

func contactAddCommand() *cli.Command {
	var (
		connection Connection
		id         int
		name       string
		phones     []string
		accounts   []string
		emails     []string
		favorite   bool
	)

	return &cli.Command{
		Name:    "add",
		Summary: "Create or replace a contact",
		Usage:   "commtrail contact add --name NAME [flags]",
		Description: `Create a contact, or replace one completely when --id names an
existing contact. The contact's addresses are always replaced as a
set, so repeat every address the contact should keep.

The contact ID is printed on stdout.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("contact add", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddContactsFlag(flagSet)
			flagSet.IntVar(&id, "id", 0, "contact ID to replace (0 creates a new contact)")
			flagSet.StringVar(&name, "name", "", "display name")
			flagSet.StringArrayVar(&phones, "phone", nil, "phone number (repeatable)")
			flagSet.StringArrayVar(&accounts, "account", nil, "online account as LOCAL=REMOTE (repeatable)")
			flagSet.StringArrayVar(&emails, "email", nil, "email address (repeatable)")
			flagSet.BoolVar(&favorite, "favorite", false, "mark as favorite")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Add a contact reachable by phone and XMPP",
				Command:     `commtrail contact add --name "Alice" --phone +358501234567 --account xmpp/me@example.org=alice@example.org`,
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if id < 0 {
				return fmt.Errorf("--id must not be negative")
			}
			parsedAccounts, err := parseAccounts(accounts)
			if err != nil {
				return err
			}

			db, err := connection.openContacts(ctx, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			contact := contactdb.Contact{
				ID:          id,
				DisplayName: name,
				Favorite:    favorite,
				Phones:      phones,
				Accounts:    parsedAccounts,
				Emails:      emails,
			}
			if err := db.UpsertContact(ctx, &contact); err != nil {
				return err
			}
			fmt.Println(contact.ID)
			return nil
		},
	}
}

func contactListCommand() *cli.Command {
	var (
		connection Connection
		jsonOut    bool
	)

	return &cli.Command{
		Name:    "list",
		Summary: "List all contacts",
		Usage:   "commtrail contact list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("contact list", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddContactsFlag(flagSet)
			flagSet.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			db, err := connection.openContacts(ctx, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			contacts, err := db.ListContacts(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return cli.WriteJSON(contacts)
			}
			printContacts(os.Stdout, contacts)
			return nil
		},
	}
}

func contactFavoriteCommand() *cli.Command {
	var (
		connection Connection
		remove     bool
	)

	return &cli.Command{
		Name:    "favorite",
		Summary: "Mark or unmark a contact as favorite",
		Usage:   "commtrail contact favorite [flags] ID",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("contact favorite", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddContactsFlag(flagSet)
			flagSet.BoolVar(&remove, "remove", false, "clear the favorite mark instead of setting it")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			id, err := contactIDArg(args)
			if err != nil {
				return err
			}
			db, err := connection.openContacts(ctx, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.SetFavorite(ctx, id, !remove)
		},
	}
}

func contactRemoveCommand() *cli.Command {
	var connection Connection

	return &cli.Command{
		Name:    "remove",
		Summary: "Delete a contact",
		Usage:   "commtrail contact remove ID",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("contact remove", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			connection.AddContactsFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			id, err := contactIDArg(args)
			if err != nil {
				return err
			}
			db, err := connection.openContacts(ctx, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.DeleteContact(ctx, id)
		},
	}
}

// contactIDArg parses the single positional contact ID argument.
func contactIDArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("exactly one contact ID is required")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid contact ID %q", args[0])
	}
	return id, nil
}

// parseAccounts splits --account values on the first '=' into
// (local, remote) UID pairs.
func parseAccounts(values []string) ([]contactdb.Account, error) {
	var accounts []contactdb.Account
	for _, value := range values {
		local, remote, found := strings.Cut(value, "=")
		if !found || local == "" || remote == "" {
			return nil, fmt.Errorf(`account %q must be LOCAL=REMOTE (e.g. "xmpp/me@example.org=alice@example.org")`, value)
		}
		accounts = append(accounts, contactdb.Account{LocalUID: local, RemoteUID: remote})
	}
	return accounts, nil
}

// printContacts renders contacts as an aligned table, one row per
// contact with a comma-joined address summary.
func printContacts(w io.Writer, contacts []contactdb.Contact) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tFAV\tADDRESSES\n")
	for _, c := range contacts {
		favorite := ""
		if c.Favorite {
			favorite = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.DisplayName, favorite, contactAddresses(c))
	}
	tw.Flush()
}

// contactAddresses joins a contact's addresses for table display:
// phones, then account remote UIDs, then emails.
func contactAddresses(c contactdb.Contact) string {
	var parts []string
	parts = append(parts, c.Phones...)
	for _, account := range c.Accounts {
		parts = append(parts, account.RemoteUID)
	}
	parts = append(parts, c.Emails...)
	return strings.Join(parts, ", ")
}
