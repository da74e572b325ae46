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
	"github.com/bureau-foundation/steward/lib/reconcile"
)

func applyCommand() *cli.Command {
	flags := &runFlags{}
	var dryRun bool
	return &cli.Command{
		Name:    "apply",
		Summary: "Converge the target tree onto the desired tree",
		Description: `Diff the trees like plan, then execute the actions: parents are
created before children, drifted content and metadata are fixed, and
paths the desired tree does not have are removed, children before
parents. File content lands via a temp file and rename in the final
directory, so target readers never observe a half-written file.

A failing action does not stop the run; independent actions proceed
and only work nested under the failure is skipped. Re-running after
a partial failure re-diffs and touches only what is still wrong.

Rules with validate hooks veto a file when the validator rejects the
desired copy; the veto counts as that path's failure. Rules with
on_change hooks run them once after apply when an applied path
matches the rule.

Exit code 0 means full convergence from a complete scan. Code 1 means
an action failed or was skipped, or parts of the target were
unreadable and drift may remain.`,
		Usage: "steward apply [--dry-run] [flags]",
		Examples: []cli.Example{
			{
				Description: "Converge a host config tree",
				Command:     "steward apply --desired /srv/steward/webhost --target /etc/app",
			},
			{
				Description: "Rehearse without writing anything",
				Command:     "steward apply --dry-run",
			},
			{
				Description: "Converge with scan exclusions",
				Command:     "steward apply --exclude '*.swp' --exclude .git",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("apply", pflag.ContinueOnError)
			flags.install(flagSet)
			flagSet.BoolVar(&dryRun, "dry-run", false, "report the actions without executing them")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("apply takes no positional arguments, got %q", args[0])
			}
			return runApply(flags, dryRun)
		},
	}
}

func runApply(flags *runFlags, dryRun bool) error {
	cfg, err := flags.resolve()
	if err != nil {
		return err
	}
	logger := cli.NewLogger(flags.debug).With("command", "apply")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newRun(ctx, cfg, logger)
	if err != nil {
		return err
	}

	options := reconcile.Options{DryRun: dryRun, Logger: logger}
	if !dryRun {
		options.Vetoes = r.collectVetoes(ctx)
	}
	report := reconcile.Apply(ctx, r.desired.Root, r.actual.Root, r.actions, options)
	if !dryRun {
		r.runChangeHooks(ctx, report)
	}

	printApply(os.Stdout, r, report)
	r.saveCache()

	mode := "apply"
	if dryRun {
		mode = "dry-run"
	}
	status := reconcile.RunStatus(r.scanErrors, report)
	r.record(ctx, mode, report, status)

	// The report above is the explanation; the exit code just has to
	// match it.
	if status != reconcile.StatusSuccess {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// printApply lists every outcome in plan order and closes with the
// tally and run status.
func printApply(w io.Writer, r *run, report *reconcile.Report) {
	for _, outcome := range report.Outcomes {
		switch outcome.Result {
		case reconcile.ResultApplied:
			fmt.Fprintf(w, "  applied %s\n", outcome.Action.Describe())
		case reconcile.ResultPending:
			fmt.Fprintf(w, "  pending %s\n", outcome.Action.Describe())
		case reconcile.ResultFailed:
			fmt.Fprintf(w, "  failed  %s: %v\n", outcome.Action.Describe(), outcome.Err)
		case reconcile.ResultSkipped:
			fmt.Fprintf(w, "  skipped %s: %s\n", outcome.Action.Describe(), outcome.Reason)
		}
	}
	tally := report.Tally()
	switch {
	case report.DryRun && len(report.Outcomes) == 0:
		fmt.Fprintln(w, "dry-run: no drift, nothing to do")
	case report.DryRun:
		fmt.Fprintf(w, "dry-run: %d actions pending\n", tally.Pending)
	case len(report.Outcomes) == 0:
		fmt.Fprintf(w, "apply: no drift, target matches desired (%d entries)\n", r.desired.Len())
	default:
		fmt.Fprintf(w, "apply: %d applied, %d failed, %d skipped (%s)\n",
			tally.Applied, tally.Failed, tally.Skipped, reconcile.RunStatus(r.scanErrors, report))
	}
	if r.scanErrors > 0 {
		fmt.Fprintf(w, "warning: %d target paths were unreadable and may hide drift\n", r.scanErrors)
	}
}
