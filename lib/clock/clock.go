// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable wall-clock for testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now directly; tests inject Fake() and move time by hand.
// steward only ever reads the current time (the scan timestamp that
// anchors the cache's stale-mtime guard, run timestamps for the
// history ledger), so the interface carries nothing beyond Now.
package clock

import "time"

// Clock abstracts wall-clock reads. Inject Real() in production,
// Fake() in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
