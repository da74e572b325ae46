// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads the steward.yaml metadata manifest from the
// desired tree and overlays its ownership and mode rules onto scanned
// snapshots.
//
// A checkout cannot carry arbitrary ownership: files belong to whoever
// ran git, and only some mode bits survive the repository round trip.
// The manifest closes that gap. Each rule pins owner, group, and mode
// for the paths its pattern matches, so the desired index describes
// the tree as it should exist on the host rather than as it happens to
// sit in the checkout. Rules may also attach validation and change
// hooks, which the apply driver runs around reconciliation.
//
// Patterns are io/fs-relative paths. A plain pattern uses path.Match
// semantics, so wildcards never cross a slash; a pattern ending in
// "/**" matches the named directory and everything beneath it. When
// several rules match the same path, each attribute independently
// takes the value of the last rule that sets it.
//
// Owner and group names resolve through os/user when the manifest is
// loaded: a manifest naming an unknown user fails at load time, before
// any scanning or reconciliation starts. The manifest file itself is
// configuration, not content; callers exclude it from the desired
// scan.
package manifest
