// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete steward CLI command tree.
package commands

import (
	"fmt"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/version"
)

// Root builds and returns the steward command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "steward",
		Description: `steward: declarative configuration for pet hosts.

A desired tree holds the files a host must carry, and a steward.yaml
manifest beside them pins ownership, modes, and hooks. steward diffs
the desired tree against a target tree by content digest and applies
the minimal ordered set of changes to converge it, removals included:
the target holds exactly what the desired tree says, nothing else.`,
		Subcommands: []*cli.Command{
			planCommand(),
			applyCommand(),
			historyCommand(),
			cacheCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("steward %s\n", version.String())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "See what would change before touching anything",
				Command:     "steward plan --desired /srv/steward/webhost --target /etc/app",
			},
			{
				Description: "Converge the target onto the desired tree",
				Command:     "steward apply --desired /srv/steward/webhost --target /etc/app",
			},
			{
				Description: "Rehearse an apply without writing",
				Command:     "steward apply --dry-run",
			},
			{
				Description: "Review recent runs",
				Command:     "steward history --limit 10",
			},
		},
	}
}
