// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/config"
	"github.com/bureau-foundation/steward/lib/snapshot"
)

func cacheCommand() *cli.Command {
	var (
		configPath string
		cachePath  string
		clear      bool
	)
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect or clear the target index cache",
		Description: `Show the saved target index that seeds the next scan: which root it
was taken from and when, how many entries it holds, its root digest,
and its size on disk.

With --clear, delete it instead. The cache is purely an accelerator:
the next run scans cold, hashes everything once, and saves a fresh
index.`,
		Usage: "steward cache [--clear]",
		Examples: []cli.Example{
			{
				Description: "Inspect the configured cache",
				Command:     "steward cache",
			},
			{
				Description: "Drop a cache that belongs to a retired target",
				Command:     "steward cache --clear",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("cache", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path (default $STEWARD_CONFIG)")
			flagSet.StringVar(&cachePath, "cache", "", "target index cache file")
			flagSet.BoolVar(&clear, "clear", false, "delete the cache instead of inspecting it")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("cache takes no positional arguments, got %q", args[0])
			}
			cfg, err := config.Resolve(configPath)
			if err != nil {
				return cli.Usagef("%v", err)
			}
			if cachePath != "" {
				cfg.Cache = cachePath
			}
			if cfg.Cache == "" {
				return cli.Usagef("no index cache configured; set cache in the config file or pass --cache")
			}
			if clear {
				return clearCache(os.Stdout, cfg.Cache)
			}
			return inspectCache(os.Stdout, cfg.Cache)
		},
	}
}

func clearCache(w io.Writer, path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(w, "no cache at %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "removed %s\n", path)
	return nil
}

func inspectCache(w io.Writer, path string) error {
	info, err := snapshot.InspectCache(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(w, "no cache at %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(writer, "path\t%s\n", path)
	fmt.Fprintf(writer, "root\t%s\n", info.Root)
	fmt.Fprintf(writer, "scanned\t%s\n", info.ScannedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(writer, "entries\t%d\n", info.Entries)
	fmt.Fprintf(writer, "root digest\t%s\n", info.RootDigest)
	fmt.Fprintf(writer, "compression\t%s\n", info.Compression)
	fmt.Fprintf(writer, "payload\t%d bytes\n", info.PayloadSize)
	fmt.Fprintf(writer, "file\t%d bytes\n", info.FileSize)
	return writer.Flush()
}
