// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func openLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	ledger, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger, path
}

func sampleRun(started time.Time) RunSummary {
	return RunSummary{
		Started:  started,
		Finished: started.Add(3 * time.Second),
		Mode:     "apply",
		Desired:  "/srv/desired",
		Target:   "/",
		Examined: 120,
		Applied:  4,
		Skipped:  1,
		Failed:   0,
		Status:   "partial-failure",
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("Open accepted an empty path")
	}
}

func TestRecordAndRecent(t *testing.T) {
	ledger, _ := openLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		run := sampleRun(base.Add(time.Duration(i) * time.Hour))
		run.Applied = i
		if err := ledger.Record(ctx, run); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := ledger.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Recent(2) returned %d runs", len(runs))
	}
	if !runs[0].Started.After(runs[1].Started) {
		t.Fatalf("runs not newest-first: %v then %v", runs[0].Started, runs[1].Started)
	}

	got := runs[0]
	want := sampleRun(base.Add(2 * time.Hour))
	if !got.Started.Equal(want.Started) || !got.Finished.Equal(want.Finished) {
		t.Errorf("timestamps did not round-trip: got %v/%v want %v/%v",
			got.Started, got.Finished, want.Started, want.Finished)
	}
	if got.Mode != "apply" || got.Desired != want.Desired || got.Target != want.Target {
		t.Errorf("identity columns did not round-trip: %+v", got)
	}
	if got.Examined != 120 || got.Applied != 2 || got.Skipped != 1 || got.Failed != 0 {
		t.Errorf("tally columns did not round-trip: %+v", got)
	}
	if got.Status != "partial-failure" {
		t.Errorf("status = %q", got.Status)
	}
	if got.ID == 0 {
		t.Error("database did not assign an ID")
	}
}

func TestRecentEmptyLedger(t *testing.T) {
	ledger, _ := openLedger(t)
	runs, err := ledger.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("empty ledger returned %d runs", len(runs))
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	ledger, _ := openLedger(t)
	ctx := context.Background()
	if err := ledger.Record(ctx, sampleRun(time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	runs, err := ledger.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Recent(0) returned %d runs, want the default window", len(runs))
	}
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ledger, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ledger.Record(context.Background(), sampleRun(time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("reopened ledger has %d runs, want 1", len(runs))
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ledger, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ledger.Close()

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version = 99", nil); err != nil {
		t.Fatalf("bumping user_version: %v", err)
	}
	conn.Close()

	if _, err := Open(path); err == nil || !strings.Contains(err.Error(), "schema version") {
		t.Fatalf("Open on a newer schema: %v, want a schema version error", err)
	}
}

func TestRecordInterrupted(t *testing.T) {
	ledger, _ := openLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ledger.Record(ctx, sampleRun(time.Now())); err == nil {
		t.Fatal("Record with a cancelled context succeeded")
	}
}
