// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/lib/config"
	"github.com/commtrail/commtrail/lib/contactdb"
	"github.com/commtrail/commtrail/lib/eventfeed"
	"github.com/commtrail/commtrail/lib/eventstore"
	"github.com/commtrail/commtrail/lib/runloop"
)

// Connection carries the flags shared by commands that talk to the
// event service or open its databases directly. Unset fields fall
// back to the configuration file, which itself falls back to built-in
// defaults when COMMTRAIL_CONFIG is not set.
type Connection struct {
	ConfigPath string
	SocketPath string
	Database   string
	Contacts   string
}

// AddFlags registers the connection flags every service-facing command
// accepts.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.ConfigPath, "config", "", "configuration file (default $COMMTRAIL_CONFIG)")
	flagSet.StringVar(&c.SocketPath, "socket", "", "event service socket path (default from configuration)")
}

// AddDatabaseFlag registers --database for commands that can bypass
// the service and operate on an event database file directly.
func (c *Connection) AddDatabaseFlag(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Database, "database", "", "operate on this event database file instead of the running service")
}

// AddContactsFlag registers --contacts for commands that open the
// contact database.
func (c *Connection) AddContactsFlag(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Contacts, "contacts", "", "contact database path (default from configuration)")
}

// resolve fills unset fields from the configuration.
func (c *Connection) resolve() error {
	cfg, err := config.Resolve(c.ConfigPath)
	if err != nil {
		return err
	}
	if c.SocketPath == "" {
		c.SocketPath = cfg.SocketPath
	}
	if c.Contacts == "" {
		c.Contacts = cfg.Contacts.Path
	}
	return nil
}

// client returns a client for the event service socket. The client
// dials lazily, so this never blocks.
func (c *Connection) client() (*eventfeed.Client, error) {
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return eventfeed.NewClient(c.SocketPath), nil
}

// openStore opens the event database named by --database. The caller
// owns Close.
func (c *Connection) openStore(ctx context.Context, logger *slog.Logger) (*eventstore.Store, error) {
	return eventstore.Open(ctx, eventstore.Config{Path: c.Database, Logger: logger})
}

// openContacts opens the contact database. The task loop is required
// by the directory wiring but never run: CLI commands only mutate and
// list contacts, they never schedule asynchronous lookups.
func (c *Connection) openContacts(ctx context.Context, logger *slog.Logger) (*contactdb.DB, error) {
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return contactdb.Open(ctx, contactdb.Config{
		Path:   c.Contacts,
		Loop:   runloop.New(),
		Logger: logger,
	})
}

// callContext returns a context with a reasonable timeout for one-shot
// service calls derived from the provided parent. Mutations and recency
// queries complete in milliseconds; the margin covers a service that is
// busy compacting or importing.
func callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}
