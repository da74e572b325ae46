// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/cmd/steward/commands"
)

func main() {
	if err := run(); err != nil {
		// Usage errors print and exit 2. Commands that already printed
		// their report (like a partially failed apply) return an
		// ExitError carrying the code and no message; don't add a
		// redundant "error:" line for those.
		var usage *cli.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", usage)
			os.Exit(usage.ExitCode())
		}
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
