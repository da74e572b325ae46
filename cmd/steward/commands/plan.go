// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/drift"
	"github.com/bureau-foundation/steward/lib/reconcile"
)

func planCommand() *cli.Command {
	flags := &runFlags{}
	return &cli.Command{
		Name:    "plan",
		Summary: "Show what apply would change",
		Description: `Scan the desired and target trees, diff them, and print the actions
an apply would take.

The target is never written and no hooks run. The index cache and,
when configured, a ledger row recording the plan are the only side
effects. Exit code 0 means the plan was computed, drifted or not;
configuration and scan failures exit nonzero.`,
		Usage: "steward plan [flags]",
		Examples: []cli.Example{
			{
				Description: "Plan against an explicit pair of trees",
				Command:     "steward plan --desired /srv/steward/webhost --target /etc/app",
			},
			{
				Description: "Plan with the config file from the environment",
				Command:     "STEWARD_CONFIG=/etc/steward/config.yaml steward plan",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			flags.install(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("plan takes no positional arguments, got %q", args[0])
			}
			return runPlan(flags)
		},
	}
}

func runPlan(flags *runFlags) error {
	cfg, err := flags.resolve()
	if err != nil {
		return err
	}
	logger := cli.NewLogger(flags.debug).With("command", "plan")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newRun(ctx, cfg, logger)
	if err != nil {
		return err
	}
	report := reconcile.Apply(ctx, r.desired.Root, r.actual.Root, r.actions, reconcile.Options{
		DryRun: true,
		Logger: logger,
	})
	printPlan(os.Stdout, r, report)
	r.saveCache()
	r.record(ctx, "plan", report, reconcile.RunStatus(r.scanErrors, report))
	return nil
}

// printPlan lists the pending actions in apply order and closes with
// a one-line summary.
func printPlan(w io.Writer, r *run, report *reconcile.Report) {
	for _, outcome := range report.Outcomes {
		fmt.Fprintf(w, "  %s\n", outcome.Action.Describe())
	}
	if len(report.Outcomes) == 0 {
		fmt.Fprintf(w, "plan: no drift, target matches desired (%d entries)\n", r.desired.Len())
	} else {
		summary := drift.Summarize(r.report)
		fmt.Fprintf(w, "plan: %d actions pending (%d add, %d remove, %d modify)\n",
			len(report.Outcomes), summary.Added, summary.Removed, summary.Modified)
	}
	if r.scanErrors > 0 {
		fmt.Fprintf(w, "warning: %d target paths were unreadable and may hide drift\n", r.scanErrors)
	}
}
