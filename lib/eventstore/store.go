// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventstore persists communication events in SQLite and
// serves the grouped recency query that feeds the recent-contacts
// list. Writes go through a connection pool with WAL enabled; reads
// can run concurrently with writes.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/commtrail/commtrail/lib/event"
	"github.com/commtrail/commtrail/lib/sqlitepool"
)

// schemaVersion is the current schema generation, stored in
// PRAGMA user_version. Opening a database written by a newer
// generation fails rather than guessing at the layout.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY,
	type INTEGER NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	direction INTEGER NOT NULL DEFAULT 0,
	is_read INTEGER NOT NULL DEFAULT 0,
	local_uid TEXT NOT NULL DEFAULT '',
	remote_uid TEXT NOT NULL DEFAULT '',
	free_text TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS events_conversation
	ON events (remote_uid, local_uid, end_time);

CREATE INDEX IF NOT EXISTS events_end_time
	ON events (end_time);
`

// ErrNotFound is returned when an event ID does not exist.
var ErrNotFound = errors.New("event store: event not found")

// Notifier receives change notifications after a store mutation has
// committed. The event service registers its feed hub here so that
// subscribed clients see live updates. Methods may be called from
// any goroutine that mutates the store.
type Notifier interface {
	EventsAdded(events []event.Event)
	EventUpdated(e event.Event)
	EventDeleted(id int64)
}

// Config holds event store configuration.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Zero uses the
	// sqlitepool default.
	PoolSize int

	// Notifier receives post-commit change notifications.
	// Optional; nil disables notifications (CLI tools that open
	// the database directly have no subscribers to tell).
	Notifier Notifier

	// Logger receives store diagnostics. Optional.
	Logger *slog.Logger
}

// Store is a SQLite-backed event store.
type Store struct {
	pool     *sqlitepool.Pool
	path     string
	notifier Notifier
	logger   *slog.Logger
}

// Open opens (creating if necessary) the event database at cfg.Path
// and migrates it to the current schema version.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("event store: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}

	store := &Store{
		pool:     pool,
		path:     cfg.Path,
		notifier: cfg.Notifier,
		logger:   logger,
	}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// migrate brings the database to the current schema version. A fresh
// database gets the full schema; a database from a newer generation
// is rejected.
func (s *Store) migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("event store: migrate: %w", err)
	}
	defer s.pool.Put(conn)

	var version int
	err = sqlitex.Execute(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("event store: read schema version: %w", err)
	}

	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("event store: database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("event store: apply schema: %w", err)
	}
	pragma := fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)
	if err := sqlitex.Execute(conn, pragma, nil); err != nil {
		return fmt.Errorf("event store: set schema version: %w", err)
	}
	s.logger.Info("event database migrated",
		"path", s.path,
		"from_version", version,
		"to_version", schemaVersion)
	return nil
}

// AddEvent inserts a single event and assigns its ID.
func (s *Store) AddEvent(ctx context.Context, e *event.Event) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("event store: add event: %w", err)
	}
	defer s.pool.Put(conn)

	if err := insertEvent(conn, e); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.EventsAdded([]event.Event{*e})
	}
	return nil
}

// AddEvents inserts a batch of events in one transaction and assigns
// their IDs. Either all events are stored or none are. The notifier
// fires once for the whole batch, after commit.
func (s *Store) AddEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("event store: add events: %w", err)
	}
	defer s.pool.Put(conn)

	if err := insertBatch(conn, events); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.EventsAdded(events)
	}
	return nil
}

func insertBatch(conn *sqlite.Conn, events []event.Event) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("event store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range events {
		if err = insertEvent(conn, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertEvent(conn *sqlite.Conn, e *event.Event) error {
	err := sqlitex.Execute(conn, `INSERT INTO events
		(type, start_time, end_time, direction, is_read,
		 local_uid, remote_uid, free_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				int(e.Type),
				e.StartTime.Unix(),
				e.EndTime.Unix(),
				int(e.Direction),
				boolToInt(e.IsRead),
				e.LocalUID,
				e.RemoteUID,
				e.FreeText,
			},
		})
	if err != nil {
		return fmt.Errorf("event store: insert event: %w", err)
	}
	e.ID = conn.LastInsertRowID()
	return nil
}

// UpdateEvent replaces the stored row for e.ID. Returns ErrNotFound
// when no such event exists.
func (s *Store) UpdateEvent(ctx context.Context, e event.Event) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("event store: update event: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE events SET
		type = ?, start_time = ?, end_time = ?, direction = ?,
		is_read = ?, local_uid = ?, remote_uid = ?, free_text = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				int(e.Type),
				e.StartTime.Unix(),
				e.EndTime.Unix(),
				int(e.Direction),
				boolToInt(e.IsRead),
				e.LocalUID,
				e.RemoteUID,
				e.FreeText,
				e.ID,
			},
		})
	if err != nil {
		return fmt.Errorf("event store: update event %d: %w", e.ID, err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	if s.notifier != nil {
		s.notifier.EventUpdated(e)
	}
	return nil
}

// DeleteEvent removes the event with the given ID. Returns
// ErrNotFound when no such event exists.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("event store: delete event: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM events WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("event store: delete event %d: %w", id, err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	if s.notifier != nil {
		s.notifier.EventDeleted(id)
	}
	return nil
}

// GetEvent loads a single event by ID. Returns ErrNotFound when no
// such event exists.
func (s *Store) GetEvent(ctx context.Context, id int64) (event.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return event.Event{}, fmt.Errorf("event store: get event: %w", err)
	}
	defer s.pool.Put(conn)

	var found bool
	var e event.Event
	err = sqlitex.Execute(conn, selectColumns+" FROM events WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				e = scanEvent(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return event.Event{}, fmt.Errorf("event store: get event %d: %w", id, err)
	}
	if !found {
		return event.Event{}, ErrNotFound
	}
	return e, nil
}

// CountEvents returns the total number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("event store: count events: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, "SELECT count(*) FROM events", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("event store: count events: %w", err)
	}
	return count, nil
}

// recentOverfetch multiplies the caller's limit for the grouped
// recency query. The recency merger discards rows for duplicate
// contacts, favorites, and contactless addresses, so the raw
// conversation list needs headroom to still fill the visible list.
const recentOverfetch = 4

// RecentCandidates returns the newest event of each conversation,
// ordered by recency. A conversation is a distinct (local_uid,
// remote_uid) pair. The categories mask restricts event types;
// event.CategoryAny returns all. A positive limit caps the result at
// recentOverfetch times the limit; zero means unbounded.
//
// This is the feed for the recency merger, which deduplicates the
// conversations by contact and applies its own capacity.
func (s *Store) RecentCandidates(ctx context.Context, categories event.Category, limit int) ([]event.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("event store: recent candidates: %w", err)
	}
	defer s.pool.Put(conn)

	var args []any
	inner := "SELECT id, max(end_time) FROM events"
	if types := categories.Types(); types != nil {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, int(t))
		}
		inner += " WHERE type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	inner += " GROUP BY local_uid, remote_uid"

	query := selectColumns + " FROM events WHERE id IN (SELECT id FROM (" + inner + "))" +
		" ORDER BY end_time DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit*recentOverfetch)
	}

	var events []event.Event
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			events = append(events, scanEvent(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("event store: recent candidates: %w", err)
	}
	return events, nil
}

const selectColumns = "SELECT id, type, start_time, end_time, direction, is_read, local_uid, remote_uid, free_text"

func scanEvent(stmt *sqlite.Stmt) event.Event {
	return event.Event{
		ID:        stmt.ColumnInt64(0),
		Type:      event.Type(stmt.ColumnInt(1)),
		StartTime: time.Unix(stmt.ColumnInt64(2), 0),
		EndTime:   time.Unix(stmt.ColumnInt64(3), 0),
		Direction: event.Direction(stmt.ColumnInt(4)),
		IsRead:    stmt.ColumnInt(5) != 0,
		LocalUID:  stmt.ColumnText(6),
		RemoteUID: stmt.ColumnText(7),
		FreeText:  stmt.ColumnText(8),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
