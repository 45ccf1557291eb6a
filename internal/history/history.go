// Copyright 2025 Tom Barlow
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

// Package history keeps a record of finished debugger sessions in a local
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tombee/gdbstub/internal/gdbserver"

	_ "modernc.org/sqlite"
)

// DefaultLimit is the number of sessions List returns when limit is not positive.
const DefaultLimit = 50

// Store is a SQLite-backed session history. It implements gdbserver.Recorder.
type Store struct {
	db   *sql.DB
	path string
}

var _ gdbserver.Recorder = (*Store)(nil)

// Open opens (creating if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; sessions are recorded sequentially anyway.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			remote TEXT NOT NULL,
			transport TEXT NOT NULL,
			arch TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			commands INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started
			ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record stores a finished session. Recording the same ID twice replaces
// the earlier row.
func (s *Store) Record(ctx context.Context, sum gdbserver.Summary) error {
	if sum.ID == "" {
		return fmt.Errorf("session id is required")
	}

	query := `INSERT OR REPLACE INTO sessions
	          (id, remote, transport, arch, started_at, ended_at, commands, reason, error)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sum.ID,
		sum.Remote,
		sum.Transport,
		sum.Arch,
		sum.Start.UTC().Format(time.RFC3339Nano),
		sum.End.UTC().Format(time.RFC3339Nano),
		sum.Commands,
		string(sum.Reason),
		sum.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]gdbserver.Summary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, remote, transport, arch, started_at, ended_at, commands, reason, error
	          FROM sessions ORDER BY started_at DESC, id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []gdbserver.Summary
	for rows.Next() {
		var (
			sum            gdbserver.Summary
			started, ended string
			reason         string
		)
		if err := rows.Scan(
			&sum.ID,
			&sum.Remote,
			&sum.Transport,
			&sum.Arch,
			&started,
			&ended,
			&sum.Commands,
			&reason,
			&sum.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.Start, _ = time.Parse(time.RFC3339Nano, started)
		sum.End, _ = time.Parse(time.RFC3339Nano, ended)
		sum.Reason = gdbserver.EndReason(reason)
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
