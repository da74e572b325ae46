// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schemaVersion is stored in the database's user_version pragma. A
// ledger reporting a higher version was written by a newer steward;
// refusing it beats misreading it.
const schemaVersion = 1

const schema = `
CREATE TABLE runs (
	id       INTEGER PRIMARY KEY,
	started  INTEGER NOT NULL, -- unix nanoseconds, UTC
	finished INTEGER NOT NULL,
	mode     TEXT NOT NULL,
	desired  TEXT NOT NULL,
	target   TEXT NOT NULL,
	examined INTEGER NOT NULL,
	applied  INTEGER NOT NULL,
	skipped  INTEGER NOT NULL,
	failed   INTEGER NOT NULL,
	status   TEXT NOT NULL
);
CREATE INDEX idx_runs_started ON runs(started);
`

// RunSummary is one ledger row. ID is assigned by the database and
// ignored on Record.
type RunSummary struct {
	ID       int64
	Started  time.Time
	Finished time.Time
	Mode     string
	Desired  string
	Target   string
	Examined int
	Applied  int
	Skipped  int
	Failed   int
	Status   string
}

// Ledger is an open run history database. It wraps a single SQLite
// connection and is not safe for concurrent use; a steward process is
// one sequential pass and never needs more.
type Ledger struct {
	conn *sqlite.Conn
	path string
}

// Open opens (creating if needed) the ledger at path and brings its
// schema up to date. The parent directory must exist.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("history: ledger path is empty")
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	ledger := &Ledger{conn: conn, path: path}
	if err := ledger.prepare(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: preparing %s: %w", path, err)
	}
	return ledger, nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// prepare applies the standard pragmas and migrates the schema.
func (l *Ledger) prepare() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(l.conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	version, err := l.userVersion()
	if err != nil {
		return err
	}
	switch {
	case version == schemaVersion:
		return nil
	case version == 0:
		if err := sqlitex.ExecuteScript(l.conn, schema, nil); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		statement := fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)
		if err := sqlitex.ExecuteTransient(l.conn, statement, nil); err != nil {
			return fmt.Errorf("stamping schema version: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("schema version %d is newer than this steward understands (%d)",
			version, schemaVersion)
	}
}

func (l *Ledger) userVersion() (int64, error) {
	var version int64
	err := sqlitex.ExecuteTransient(l.conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("reading user_version: %w", err)
	}
	return version, nil
}

// Record appends one run to the ledger.
func (l *Ledger) Record(ctx context.Context, run RunSummary) error {
	previous := l.conn.SetInterrupt(ctx.Done())
	defer l.conn.SetInterrupt(previous)

	err := sqlitex.Execute(l.conn, `INSERT INTO runs
		(started, finished, mode, desired, target, examined, applied, skipped, failed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				run.Started.UTC().UnixNano(),
				run.Finished.UTC().UnixNano(),
				run.Mode,
				run.Desired,
				run.Target,
				run.Examined,
				run.Applied,
				run.Skipped,
				run.Failed,
				run.Status,
			},
		})
	if err != nil {
		return fmt.Errorf("history: recording run: %w", err)
	}
	return nil
}

// Recent returns the latest n runs, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]RunSummary, error) {
	previous := l.conn.SetInterrupt(ctx.Done())
	defer l.conn.SetInterrupt(previous)

	if n <= 0 {
		n = 20
	}

	var runs []RunSummary
	err := sqlitex.Execute(l.conn, `SELECT
		id, started, finished, mode, desired, target, examined, applied, skipped, failed, status
		FROM runs ORDER BY started DESC, id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{n},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				runs = append(runs, RunSummary{
					ID:       stmt.ColumnInt64(0),
					Started:  time.Unix(0, stmt.ColumnInt64(1)).UTC(),
					Finished: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
					Mode:     stmt.ColumnText(3),
					Desired:  stmt.ColumnText(4),
					Target:   stmt.ColumnText(5),
					Examined: int(stmt.ColumnInt64(6)),
					Applied:  int(stmt.ColumnInt64(7)),
					Skipped:  int(stmt.ColumnInt64(8)),
					Failed:   int(stmt.ColumnInt64(9)),
					Status:   stmt.ColumnText(10),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: reading runs: %w", err)
	}
	return runs, nil
}
