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
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/config"
	"github.com/bureau-foundation/steward/lib/history"
)

func historyCommand() *cli.Command {
	var (
		configPath string
		historyDB  string
		limit      int
	)
	return &cli.Command{
		Name:    "history",
		Summary: "List recent runs from the ledger",
		Description: `Print the most recent runs recorded in the ledger database, newest
first: when each ran, in which mode, how much it changed, and how it
ended.`,
		Usage: "steward history [--limit n]",
		Examples: []cli.Example{
			{
				Description: "The last twenty runs",
				Command:     "steward history",
			},
			{
				Description: "Only the most recent run",
				Command:     "steward history --limit 1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path (default $STEWARD_CONFIG)")
			flagSet.StringVar(&historyDB, "history", "", "run ledger database")
			flagSet.IntVar(&limit, "limit", 20, "maximum runs to print")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("history takes no positional arguments, got %q", args[0])
			}
			cfg, err := config.Resolve(configPath)
			if err != nil {
				return cli.Usagef("%v", err)
			}
			if historyDB != "" {
				cfg.History = historyDB
			}
			if cfg.History == "" {
				return cli.Usagef("no run ledger configured; set history in the config file or pass --history")
			}
			return printHistory(os.Stdout, cfg.History, limit)
		},
	}
}

func printHistory(w io.Writer, path string, limit int) error {
	ledger, err := history.Open(path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs, err := ledger.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	writer := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "STARTED\tDURATION\tMODE\tSTATUS\tEXAMINED\tAPPLIED\tFAILED\tSKIPPED\tTARGET")
	for _, entry := range runs {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			entry.Started.Local().Format("2006-01-02 15:04:05"),
			entry.Finished.Sub(entry.Started).Round(time.Millisecond),
			entry.Mode,
			entry.Status,
			entry.Examined,
			entry.Applied,
			entry.Failed,
			entry.Skipped,
			entry.Target,
		)
	}
	return writer.Flush()
}
