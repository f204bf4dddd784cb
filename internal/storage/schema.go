// Copyright 2024 FAL Database Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
)

// DefaultBusyTimeout in milliseconds (30 seconds).
const DefaultBusyTimeout = 30000

// EnvBusyTimeout overrides the SQLite busy_timeout for all connections.
const EnvBusyTimeout = "FALDB_BUSY_TIMEOUT"

// GetBusyTimeout returns the busy_timeout value, env override first.
func GetBusyTimeout() int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}
	return DefaultBusyTimeout
}

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	rows.Close()
	return nil
}

// applyPragmas sets essential PRAGMAs after opening a libsql connection.
// libsql ignores DSN-based _pragma=value parameters, so all PRAGMAs must be
// set explicitly via SQL statements after the connection is opened.
func applyPragmas(db *sql.DB) error {
	// Busy timeout MUST be set first so the journal_mode conversion below
	// waits for locks instead of failing with "database is locked".
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", GetBusyTimeout())); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	// WAL mode: concurrent readers during writes, less lock contention.
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}

	// synchronous=NORMAL is safe against process crashes in WAL mode and
	// avoids an fsync on every commit.
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}

	if err := execPragma(db, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign_keys: %w", err)
	}

	return nil
}

// schemaStatements create the backing tables. The entries table is the
// single source of truth for the virtual filesystem: hierarchy is encoded
// entirely in the entry_id strings, there are no parent pointers.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS storages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		entry_id TEXT NOT NULL,
		storage INTEGER NOT NULL REFERENCES storages(id) ON DELETE CASCADE,
		data BLOB,
		PRIMARY KEY (storage, entry_id)
	)`,
	`CREATE TABLE IF NOT EXISTS file_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		storage INTEGER NOT NULL,
		identifier TEXT NOT NULL,
		identifier_hash TEXT NOT NULL,
		folder_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_records_location
		ON file_records(storage, identifier)`,
}

// InitSchema creates the backing tables if they do not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
