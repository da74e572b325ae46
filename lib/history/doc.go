// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps the run ledger: one SQLite row per plan or
// apply, recording when it ran, what it looked at, and how it ended.
//
// The ledger answers the question every pet-host operator eventually
// asks — "what changed this week, and did it work?" — without log
// archaeology. It is deliberately an accessory: an unwritable ledger
// degrades to a warning, because the filesystem outcome matters more
// than the bookkeeping about it.
//
// Storage is zombiezen.com/go/sqlite on a single connection. A
// steward run is one process doing one pass, so there is nothing to
// pool; WAL journaling and a busy timeout keep concurrent runs from
// corrupting each other, and the schema is versioned through
// user_version so an old binary refuses a newer ledger instead of
// misreading it.
package history
