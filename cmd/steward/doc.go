// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Steward is a declarative configuration manager for pet hosts. It
// diffs a desired file tree against a target tree using content
// digests and converges the target with the minimal ordered set of
// changes. Subcommands cover previewing drift (plan), converging
// (apply), reviewing past runs (history), and managing the scan
// accelerator (cache).
package main
