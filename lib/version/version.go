// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time. A development
// build (go test, plain go build) keeps the defaults.
var (
	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"

	// GitCommit is the short SHA the binary was built from.
	GitCommit = "unknown"

	// GitDirty is "true" when the work tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// String returns the single-line version form used by
// "steward version": version, commit (with a -dirty marker when the
// tree was not clean), build time, and the Go runtime the binary was
// compiled with.
func String() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s, %s %s/%s)",
		Version, commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
