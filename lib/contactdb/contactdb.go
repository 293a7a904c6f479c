// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package contactdb implements the contact directory on SQLite. It
// answers address lookups through an in-memory item cache: cache hits
// are synchronous, misses run the SQL on a background goroutine and
// deliver the result to the caller's task loop, matching the
// directory.Directory contract.
//
// Phone addresses are matched by minimized key (see lib/phone), so
// different spellings of one number land on the same contact. Account
// addresses match on the exact (localUID, remoteUID) pair.
package contactdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/commtrail/commtrail/lib/directory"
	"github.com/commtrail/commtrail/lib/phone"
	"github.com/commtrail/commtrail/lib/runloop"
	"github.com/commtrail/commtrail/lib/sqlitepool"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	favorite INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS addresses (
	contact_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	local_uid TEXT NOT NULL DEFAULT '',
	remote_uid TEXT NOT NULL,
	match_key TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS addresses_contact
	ON addresses (contact_id);

CREATE INDEX IF NOT EXISTS addresses_match_key
	ON addresses (match_key) WHERE kind = 'phone';

CREATE INDEX IF NOT EXISTS addresses_pair
	ON addresses (local_uid, remote_uid) WHERE kind = 'account';
`

// Address kinds stored in the addresses table.
const (
	kindPhone   = "phone"
	kindAccount = "account"
	kindEmail   = "email"
)

// ErrNotFound is returned when a contact ID does not exist.
var ErrNotFound = errors.New("contact db: contact not found")

// Account is an online-account address: the local account it is
// reachable from and the remote identifier.
type Account struct {
	LocalUID  string `json:"local_uid"`
	RemoteUID string `json:"remote_uid"`
}

// Contact is a directory entry with its addresses.
type Contact struct {
	ID          int       `json:"id"`
	DisplayName string    `json:"display_name"`
	Favorite    bool      `json:"favorite,omitempty"`
	Phones      []string  `json:"phones,omitempty"`
	Accounts    []Account `json:"accounts,omitempty"`
	Emails      []string  `json:"emails,omitempty"`
}

// Config holds contact database configuration.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Zero uses the
	// sqlitepool default.
	PoolSize int

	// Loop is the task loop lookup callbacks are delivered on.
	// Required.
	Loop *runloop.Loop

	// Logger receives lookup diagnostics. Optional.
	Logger *slog.Logger
}

// cacheEntry is a completed lookup. A nil item records that no
// contact owns the address.
type cacheEntry struct {
	item *directory.Item
}

// DB is a SQLite-backed directory.Directory.
type DB struct {
	pool   *sqlitepool.Pool
	loop   *runloop.Loop
	logger *slog.Logger

	lookups sync.WaitGroup

	mu        sync.Mutex
	listeners map[directory.ResolveListener]struct{}
	byPhone   map[string]cacheEntry
	byAccount map[Account]cacheEntry
	favorites map[int]bool
}

// Open opens (creating if necessary) the contact database at
// cfg.Path and migrates it to the current schema version.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("contact db: path is required")
	}
	if cfg.Loop == nil {
		return nil, fmt.Errorf("contact db: loop is required")
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
		return nil, fmt.Errorf("contact db: %w", err)
	}

	db := &DB{
		pool:      pool,
		loop:      cfg.Loop,
		logger:    logger,
		listeners: make(map[directory.ResolveListener]struct{}),
		byPhone:   make(map[string]cacheEntry),
		byAccount: make(map[Account]cacheEntry),
		favorites: make(map[int]bool),
	}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close waits for in-flight lookups and releases the pool.
func (db *DB) Close() error {
	db.lookups.Wait()
	return db.pool.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("contact db: migrate: %w", err)
	}
	defer db.pool.Put(conn)

	var version int
	err = sqlitex.Execute(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("contact db: read schema version: %w", err)
	}

	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("contact db: database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("contact db: apply schema: %w", err)
	}
	pragma := fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)
	if err := sqlitex.Execute(conn, pragma, nil); err != nil {
		return fmt.Errorf("contact db: set schema version: %w", err)
	}
	return nil
}

// ResolvePhone implements directory.Directory. A cached number
// answers synchronously; anything else goes through an asynchronous
// lookup keyed on the minimized number.
func (db *DB) ResolvePhone(listener directory.ResolveListener, number string) *directory.Item {
	matchKey := phone.Minimize(number)
	canonical := storedNumber(number)

	db.mu.Lock()
	entry, cached := db.byPhone[matchKey]
	if cached && entry.item != nil {
		db.mu.Unlock()
		return entry.item
	}
	db.listeners[listener] = struct{}{}
	db.mu.Unlock()

	// Known misses and empty addresses skip storage; the contract
	// still wants the answer as a callback.
	if cached || matchKey == "" {
		db.deliver(listener, "", canonical, nil)
		return nil
	}

	db.lookups.Add(1)
	go func() {
		defer db.lookups.Done()
		item, err := db.lookupPhone(matchKey, canonical)
		if err != nil {
			db.logger.Warn("phone lookup failed", "number", canonical, "error", err)
			return
		}
		db.mu.Lock()
		db.byPhone[matchKey] = cacheEntry{item: item}
		if item != nil {
			db.favorites[item.ContactID] = item.Favorite
		}
		db.mu.Unlock()
		db.deliver(listener, "", canonical, item)
	}()
	return nil
}

// ResolveAccount implements directory.Directory with the exact-pair
// match used for online accounts.
func (db *DB) ResolveAccount(listener directory.ResolveListener, localUID, remoteUID string) *directory.Item {
	key := Account{LocalUID: localUID, RemoteUID: remoteUID}

	db.mu.Lock()
	entry, cached := db.byAccount[key]
	if cached && entry.item != nil {
		db.mu.Unlock()
		return entry.item
	}
	db.listeners[listener] = struct{}{}
	db.mu.Unlock()

	if cached {
		db.deliver(listener, localUID, remoteUID, nil)
		return nil
	}

	db.lookups.Add(1)
	go func() {
		defer db.lookups.Done()
		item, err := db.lookupAccount(key)
		if err != nil {
			db.logger.Warn("account lookup failed",
				"local_uid", localUID, "remote_uid", remoteUID, "error", err)
			return
		}
		db.mu.Lock()
		db.byAccount[key] = cacheEntry{item: item}
		if item != nil {
			db.favorites[item.ContactID] = item.Favorite
		}
		db.mu.Unlock()
		db.deliver(listener, localUID, remoteUID, item)
	}()
	return nil
}

// CachedByPhone implements directory.Directory: cache-only, no
// lookups triggered.
func (db *DB) CachedByPhone(number string) *directory.Item {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.byPhone[phone.Minimize(number)].item
}

// Unregister implements directory.Directory. Pending deliveries to
// the listener are dropped on arrival.
func (db *DB) Unregister(listener directory.ResolveListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.listeners, listener)
}

// IsFavorite implements directory.Directory, reading through the
// favorites cache.
func (db *DB) IsFavorite(contactID int) bool {
	db.mu.Lock()
	favorite, ok := db.favorites[contactID]
	db.mu.Unlock()
	if ok {
		return favorite
	}

	conn, err := db.pool.Take(context.Background())
	if err != nil {
		return false
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, "SELECT favorite FROM contacts WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{contactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				favorite = stmt.ColumnInt(0) != 0
				return nil
			},
		})
	if err != nil {
		db.logger.Warn("favorite lookup failed", "contact_id", contactID, "error", err)
		return false
	}

	db.mu.Lock()
	db.favorites[contactID] = favorite
	db.mu.Unlock()
	return favorite
}

// deliver posts a resolution callback to the task loop. The listener
// registry is consulted at delivery time so Unregister wins any race
// with an in-flight lookup.
func (db *DB) deliver(listener directory.ResolveListener, localUID, remoteUID string, item *directory.Item) {
	db.loop.Post(func() {
		db.mu.Lock()
		_, registered := db.listeners[listener]
		db.mu.Unlock()
		if !registered {
			return
		}
		listener.AddressResolved(localUID, remoteUID, item)
	})
}

// lookupPhone finds the contact owning a phone number by minimized
// key. When several contacts share the key (shared last digits), an
// exact canonical-spelling match wins; otherwise the lowest contact
// ID keeps the choice stable.
func (db *DB) lookupPhone(matchKey, canonical string) (*directory.Item, error) {
	conn, err := db.pool.Take(context.Background())
	if err != nil {
		return nil, err
	}
	defer db.pool.Put(conn)

	type candidate struct {
		contactID int
		remoteUID string
	}
	var candidates []candidate
	err = sqlitex.Execute(conn, `SELECT contact_id, remote_uid FROM addresses
		WHERE kind = ? AND match_key = ? ORDER BY contact_id`,
		&sqlitex.ExecOptions{
			Args: []any{kindPhone, matchKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				candidates = append(candidates, candidate{
					contactID: stmt.ColumnInt(0),
					remoteUID: stmt.ColumnText(1),
				})
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	chosen := candidates[0]
	for _, c := range candidates {
		if c.remoteUID == canonical {
			chosen = c
			break
		}
	}
	return db.loadItem(conn, chosen.contactID)
}

// lookupAccount finds the contact owning an exact account pair.
func (db *DB) lookupAccount(key Account) (*directory.Item, error) {
	conn, err := db.pool.Take(context.Background())
	if err != nil {
		return nil, err
	}
	defer db.pool.Put(conn)

	contactID := 0
	err = sqlitex.Execute(conn, `SELECT contact_id FROM addresses
		WHERE kind = ? AND local_uid = ? AND remote_uid = ?
		ORDER BY contact_id LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{kindAccount, key.LocalUID, key.RemoteUID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				contactID = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	if contactID == 0 {
		return nil, nil
	}
	return db.loadItem(conn, contactID)
}

// loadItem builds the directory item snapshot for a contact.
func (db *DB) loadItem(conn *sqlite.Conn, contactID int) (*directory.Item, error) {
	item := &directory.Item{ContactID: contactID}
	found := false
	err := sqlitex.Execute(conn, "SELECT display_name, favorite FROM contacts WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{contactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				item.DisplayName = stmt.ColumnText(0)
				item.Favorite = stmt.ColumnInt(1) != 0
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	if !found {
		// Address row without its contact: treat as no match.
		return nil, nil
	}

	err = sqlitex.Execute(conn, "SELECT DISTINCT kind FROM addresses WHERE contact_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{contactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				switch stmt.ColumnText(0) {
				case kindPhone:
					item.Flags |= directory.HasPhoneNumber
				case kindAccount:
					item.Flags |= directory.HasOnlineAccount
				case kindEmail:
					item.Flags |= directory.HasEmailAddress
				}
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// invalidate drops the item caches. Contact writes are rare next to
// lookups; dropping everything beats tracking which addresses moved.
func (db *DB) invalidate() {
	db.mu.Lock()
	defer db.mu.Unlock()
	clear(db.byPhone)
	clear(db.byAccount)
}

// UpsertContact inserts or replaces a contact and its addresses in
// one transaction. A zero ID inserts and assigns one.
func (db *DB) UpsertContact(ctx context.Context, c *Contact) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("contact db: upsert: %w", err)
	}
	defer db.pool.Put(conn)

	if err := upsertContact(conn, c); err != nil {
		return err
	}

	db.invalidate()
	db.mu.Lock()
	db.favorites[c.ID] = c.Favorite
	db.mu.Unlock()
	return nil
}

func upsertContact(conn *sqlite.Conn, c *Contact) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("contact db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if c.ID == 0 {
		err = sqlitex.Execute(conn,
			"INSERT INTO contacts (display_name, favorite) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{c.DisplayName, boolToInt(c.Favorite)}})
		if err != nil {
			return fmt.Errorf("contact db: insert contact: %w", err)
		}
		c.ID = int(conn.LastInsertRowID())
	} else {
		err = sqlitex.Execute(conn, `INSERT INTO contacts (id, display_name, favorite)
			VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				display_name = excluded.display_name,
				favorite = excluded.favorite`,
			&sqlitex.ExecOptions{Args: []any{c.ID, c.DisplayName, boolToInt(c.Favorite)}})
		if err != nil {
			return fmt.Errorf("contact db: upsert contact %d: %w", c.ID, err)
		}
	}

	err = sqlitex.Execute(conn, "DELETE FROM addresses WHERE contact_id = ?",
		&sqlitex.ExecOptions{Args: []any{c.ID}})
	if err != nil {
		return fmt.Errorf("contact db: clear addresses: %w", err)
	}

	insert := func(kind, localUID, remoteUID, matchKey string) error {
		return sqlitex.Execute(conn, `INSERT INTO addresses
			(contact_id, kind, local_uid, remote_uid, match_key)
			VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{c.ID, kind, localUID, remoteUID, matchKey}})
	}
	for _, number := range c.Phones {
		if err = insert(kindPhone, "", storedNumber(number), phone.Minimize(number)); err != nil {
			return fmt.Errorf("contact db: insert phone: %w", err)
		}
	}
	for _, account := range c.Accounts {
		if err = insert(kindAccount, account.LocalUID, account.RemoteUID, ""); err != nil {
			return fmt.Errorf("contact db: insert account: %w", err)
		}
	}
	for _, email := range c.Emails {
		if err = insert(kindEmail, "", email, ""); err != nil {
			return fmt.Errorf("contact db: insert email: %w", err)
		}
	}
	return nil
}

// SetFavorite updates a contact's favorite mark.
func (db *DB) SetFavorite(ctx context.Context, contactID int, favorite bool) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("contact db: set favorite: %w", err)
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, "UPDATE contacts SET favorite = ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{boolToInt(favorite), contactID}})
	if err != nil {
		return fmt.Errorf("contact db: set favorite %d: %w", contactID, err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}

	db.mu.Lock()
	db.favorites[contactID] = favorite
	db.mu.Unlock()
	return nil
}

// DeleteContact removes a contact and its addresses.
func (db *DB) DeleteContact(ctx context.Context, contactID int) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("contact db: delete contact: %w", err)
	}
	defer db.pool.Put(conn)

	if err := deleteContact(conn, contactID); err != nil {
		return err
	}

	db.invalidate()
	db.mu.Lock()
	delete(db.favorites, contactID)
	db.mu.Unlock()
	return nil
}

func deleteContact(conn *sqlite.Conn, contactID int) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("contact db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, "DELETE FROM contacts WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{contactID}})
	if err != nil {
		return fmt.Errorf("contact db: delete contact %d: %w", contactID, err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	err = sqlitex.Execute(conn, "DELETE FROM addresses WHERE contact_id = ?",
		&sqlitex.ExecOptions{Args: []any{contactID}})
	if err != nil {
		return fmt.Errorf("contact db: delete addresses %d: %w", contactID, err)
	}
	return nil
}

// ListContacts returns all contacts with their addresses, ordered by
// display name.
func (db *DB) ListContacts(ctx context.Context) ([]Contact, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("contact db: list contacts: %w", err)
	}
	defer db.pool.Put(conn)

	var contacts []Contact
	index := make(map[int]int)
	err = sqlitex.Execute(conn,
		"SELECT id, display_name, favorite FROM contacts ORDER BY display_name, id",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				index[stmt.ColumnInt(0)] = len(contacts)
				contacts = append(contacts, Contact{
					ID:          stmt.ColumnInt(0),
					DisplayName: stmt.ColumnText(1),
					Favorite:    stmt.ColumnInt(2) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("contact db: list contacts: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT contact_id, kind, local_uid, remote_uid FROM addresses ORDER BY rowid",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				i, ok := index[stmt.ColumnInt(0)]
				if !ok {
					return nil
				}
				c := &contacts[i]
				switch stmt.ColumnText(1) {
				case kindPhone:
					c.Phones = append(c.Phones, stmt.ColumnText(3))
				case kindAccount:
					c.Accounts = append(c.Accounts, Account{
						LocalUID:  stmt.ColumnText(2),
						RemoteUID: stmt.ColumnText(3),
					})
				case kindEmail:
					c.Emails = append(c.Emails, stmt.ColumnText(3))
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("contact db: list addresses: %w", err)
	}
	return contacts, nil
}

// storedNumber is the canonical spelling kept in the addresses table
// and delivered on phone callbacks: the normalized dial string, or
// the trimmed raw address for alphanumeric sender IDs that do not
// normalize.
func storedNumber(number string) string {
	if normalized := phone.Normalize(number); normalized != "" {
		return normalized
	}
	return strings.TrimSpace(number)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
