// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open() with empty path succeeded")
	}
}

func TestTakePutRoundTrip(t *testing.T) {
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "events.db"),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() = %v", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "CREATE TABLE t (n INTEGER)", nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	pool.Put(conn)

	// The table is visible from another pooled connection.
	conn, err = pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() = %v", err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteTransient(conn, "INSERT INTO t VALUES (1)", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestOnConnectRunsSchema(t *testing.T) {
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "events.db"),
		PoolSize: 2,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, "CREATE TABLE IF NOT EXISTS events (id INTEGER PRIMARY KEY);", nil)
		},
	})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() = %v", err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteTransient(conn, "INSERT INTO events (id) VALUES (7)", nil); err != nil {
		t.Fatalf("insert into OnConnect table: %v", err)
	}
}

func TestConcurrentTakes(t *testing.T) {
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "events.db"),
		PoolSize: 4,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, "CREATE TABLE IF NOT EXISTS t (n INTEGER);", nil)
		},
	})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer pool.Close()

	var group sync.WaitGroup
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			conn, err := pool.Take(context.Background())
			if err != nil {
				t.Errorf("Take() = %v", err)
				return
			}
			defer pool.Put(conn)
			if err := sqlitex.ExecuteTransient(conn, "INSERT INTO t VALUES (1)", nil); err != nil {
				t.Errorf("insert: %v", err)
			}
		}()
	}
	group.Wait()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() = %v", err)
	}
	defer pool.Put(conn)
	var count int
	err = sqlitex.ExecuteTransient(conn, "SELECT count(*) FROM t", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 8 {
		t.Fatalf("count = %d, want 8", count)
	}
}

func TestTakeAfterCloseFails(t *testing.T) {
	pool, err := Open(Config{Path: filepath.Join(t.TempDir(), "events.db")})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := pool.Take(context.Background()); err == nil {
		t.Fatal("Take() after Close succeeded")
	}
}
