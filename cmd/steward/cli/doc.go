// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for steward.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/steward/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples.
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3). This is
// implemented in suggest.go.
//
// Exit codes are part of steward's contract: 0 for success, 1 for
// partial failure or a fatal error, 2 for usage mistakes. Dispatch
// and flag-parse problems surface as [UsageError] (exit 2); commands
// signal other non-zero exits with [ExitError] after printing their
// own output.
package cli
