// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain and cross-compiles like any other Go program.
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryContext / db.ExecContext     → runs queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database. Handy for tests.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath, creating its directory if needed,
// and runs migrations.
//
// dbPath examples:
//   - "data/sandbox.db" → file-based database (persistent)
//   - ":memory:"        → in-memory database (lost on close)
func New(dbPath string) (*DB, error) {
	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is its own empty database, so the pool
	// must never open a second one.
	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	// sql.Open does not connect. Ping surfaces a bad path or permissions
	// problem here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a run result is being written.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			language    TEXT NOT NULL,
			code        TEXT NOT NULL DEFAULT '',
			stdin       TEXT NOT NULL DEFAULT '',
			owner       TEXT NOT NULL DEFAULT '',
			last_stdout TEXT NOT NULL DEFAULT '',
			last_stderr TEXT NOT NULL DEFAULT '',
			last_status INTEGER,
			last_phase  TEXT NOT NULL DEFAULT '',
			last_run_at DATETIME,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_created_at ON snippets(created_at);
		CREATE INDEX IF NOT EXISTS idx_snippets_language ON snippets(language);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}
	return nil
}
