// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile turns a drift report into an ordered action plan
// and executes it against the target tree.
//
// Ordering is what makes the plan safe to execute top to bottom:
// removals run first, deepest path first, so directories are empty by
// the time they are deleted; creations and updates follow in
// lexicographic order, so parent directories exist before anything is
// placed inside them. A kind change at one path is a removal followed
// by a creation and falls out of the same two phases.
//
// Every action is idempotent. File content lands via a temp file and
// rename, so a reader of the target tree never observes a partially
// written file, and a crashed run leaves nothing worse than a stray
// temp file. Re-running a plan that already succeeded finds nothing
// to do.
//
// Failures stay contained: an action that fails is reported and the
// run continues, except that work nested under a directory that could
// not be created is skipped, and a directory removal is skipped when
// something beneath it could not be removed first. With DryRun set,
// Apply touches nothing and reports every action as pending.
package reconcile
