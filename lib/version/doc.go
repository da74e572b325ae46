// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the steward
// binary.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [Version] -- semantic version string (set manually for releases)
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//
// They default to "0.1.0-dev" / "unknown" when not injected, which is
// what development builds and test runs see. [String] renders the
// whole set as the one line "steward version" prints.
package version
