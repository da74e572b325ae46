// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/config"
	"github.com/bureau-foundation/steward/lib/drift"
	"github.com/bureau-foundation/steward/lib/history"
	"github.com/bureau-foundation/steward/lib/hook"
	"github.com/bureau-foundation/steward/lib/manifest"
	"github.com/bureau-foundation/steward/lib/reconcile"
	"github.com/bureau-foundation/steward/lib/snapshot"
)

// runFlags carries the flags shared by plan and apply. Set flags
// override the loaded config field-for-field; unset flags leave the
// file's values alone.
type runFlags struct {
	configPath string
	desired    string
	target     string
	cache      string
	historyDB  string
	exclude    []string
	workers    int
	debug      bool
}

func (f *runFlags) install(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file path (default $STEWARD_CONFIG)")
	flagSet.StringVar(&f.desired, "desired", "", "desired tree root")
	flagSet.StringVar(&f.target, "target", "", "target tree steward owns")
	flagSet.StringVar(&f.cache, "cache", "", "target index cache file")
	flagSet.StringVar(&f.historyDB, "history", "", "run ledger database")
	flagSet.StringSliceVar(&f.exclude, "exclude", nil, "scan exclusion pattern (repeatable)")
	flagSet.IntVar(&f.workers, "workers", 0, "hashing workers (0 means one per CPU, capped at 8)")
	flagSet.BoolVar(&f.debug, "debug", false, "enable debug logging")
}

// resolve loads the config, layers the flag overrides on top, and
// validates the result. Config problems are usage errors: the fix is
// in the invocation, not in steward.
func (f *runFlags) resolve() (*config.Config, error) {
	cfg, err := config.Resolve(f.configPath)
	if err != nil {
		return nil, cli.Usagef("%v", err)
	}
	if f.desired != "" {
		cfg.Desired = f.desired
	}
	if f.target != "" {
		cfg.Target = f.target
	}
	if f.cache != "" {
		cfg.Cache = f.cache
	}
	if f.historyDB != "" {
		cfg.History = f.historyDB
	}
	cfg.Exclude = append(cfg.Exclude, f.exclude...)
	if f.workers != 0 {
		cfg.Workers = f.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Usagef("%v", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run is one plan or apply pass: the manifest, both indexed scans,
// the drift report, and the resulting action plan.
type run struct {
	cfg     *config.Config
	logger  *slog.Logger
	started time.Time

	manifest *manifest.Manifest
	desired  *snapshot.Index
	actual   *snapshot.Index

	// scanErrors counts target paths the scanner had to skip. Desired
	// scan errors are fatal instead: a partially read source tree
	// would plan removals for files it merely failed to read.
	scanErrors int

	report  []drift.Entry
	actions []reconcile.Action
}

// newRun executes the read-only half of a pass: load the manifest,
// scan and index both trees, diff, plan. Nothing here touches the
// target.
func newRun(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*run, error) {
	r := &run{cfg: cfg, logger: logger, started: time.Now()}

	m, err := manifest.Load(cfg.Desired)
	if err != nil {
		return nil, err
	}
	r.manifest = m

	desiredSnap, err := snapshot.Scan(ctx, cfg.Desired, snapshot.Options{
		Exclude: cfg.Exclude,
		Workers: cfg.Workers,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning desired tree: %w", err)
	}
	if len(desiredSnap.Errors) > 0 {
		for _, scanErr := range desiredSnap.Errors {
			logger.Error("desired path unreadable",
				"path", scanErr.Path, "cause", scanErr.Cause, "error", scanErr.Err)
		}
		return nil, fmt.Errorf("desired tree %s: %d paths unreadable, refusing to plan from a partial source",
			cfg.Desired, len(desiredSnap.Errors))
	}

	// The manifest is steward's input, not content to deploy: drop the
	// root copy so it is never created on the target. A steward.yaml
	// nested deeper in the tree is ordinary content and stays.
	entries := desiredSnap.Entries[:0]
	for _, entry := range desiredSnap.Entries {
		if entry.Path == manifest.Filename {
			continue
		}
		entries = append(entries, entry)
	}
	desiredSnap.Entries = entries

	m.Apply(desiredSnap)
	r.desired = snapshot.Build(desiredSnap)

	actualSnap, err := r.scanTarget(ctx)
	if err != nil {
		return nil, err
	}
	for _, scanErr := range actualSnap.Errors {
		logger.Warn("target path skipped",
			"path", scanErr.Path, "cause", scanErr.Cause, "error", scanErr.Err)
	}
	r.scanErrors = len(actualSnap.Errors)
	r.actual = snapshot.Build(actualSnap)

	r.report = drift.Diff(r.desired, r.actual)
	r.actions = reconcile.Plan(r.report)
	return r, nil
}

// scanTarget scans the target tree, seeded with the previous run's
// index when a cache is configured and still matches. A missing
// target root is not an error: it diffs as an empty tree and apply
// creates it.
func (r *run) scanTarget(ctx context.Context) (*snapshot.Snapshot, error) {
	absTarget, err := filepath.Abs(r.cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("resolving target %s: %w", r.cfg.Target, err)
	}

	options := snapshot.Options{
		Exclude: r.cfg.Exclude,
		Workers: r.cfg.Workers,
		Logger:  r.logger,
	}
	if r.cfg.Cache != "" {
		baseline, err := snapshot.LoadCache(r.cfg.Cache, absTarget)
		switch {
		case err == nil:
			options.Baseline = baseline
		case errors.Is(err, fs.ErrNotExist):
			r.logger.Debug("no index cache yet", "path", r.cfg.Cache)
		default:
			// Unusable cache: scan cold and overwrite it on save.
			r.logger.Warn("ignoring index cache", "path", r.cfg.Cache, "error", err)
		}
	}

	snap, err := snapshot.Scan(ctx, absTarget, options)
	if errors.Is(err, fs.ErrNotExist) {
		return &snapshot.Snapshot{Root: absTarget, ScannedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning target tree: %w", err)
	}
	return snap, nil
}

// saveCache persists the target index for the next run. The index
// predates apply's writes, but baseline reuse requires an mtime older
// than the index's scan instant, so every file apply rewrote is
// re-hashed next run.
func (r *run) saveCache() {
	if r.cfg.Cache == "" {
		return
	}
	if err := snapshot.SaveCache(r.cfg.Cache, r.actual); err != nil {
		r.logger.Warn("saving index cache", "path", r.cfg.Cache, "error", err)
	}
}

// record appends the run to the ledger. History is advisory: an
// unwritable ledger warns and the run's own exit code stands.
func (r *run) record(ctx context.Context, mode string, report *reconcile.Report, status reconcile.Status) {
	if r.cfg.History == "" {
		return
	}
	ledger, err := history.Open(r.cfg.History)
	if err != nil {
		r.logger.Warn("run ledger unavailable", "path", r.cfg.History, "error", err)
		return
	}
	defer ledger.Close()

	tally := report.Tally()
	err = ledger.Record(ctx, history.RunSummary{
		Started:  r.started,
		Finished: time.Now(),
		Mode:     mode,
		Desired:  r.desired.Root,
		Target:   r.actual.Root,
		Examined: r.desired.Len(),
		Applied:  tally.Applied,
		Skipped:  tally.Skipped,
		Failed:   tally.Failed,
		Status:   status.String(),
	})
	if err != nil {
		r.logger.Warn("recording run", "path", r.cfg.History, "error", err)
	}
}

// collectVetoes runs validate hooks for every planned create or
// update of a regular file, handing each the path of the desired
// copy. A failing validator vetoes its path; the applier reports the
// veto as that path's failure. A validator binary that is not
// installed is tolerated, so one desired tree can pin checks that
// only some hosts carry.
func (r *run) collectVetoes(ctx context.Context) map[string]string {
	vetoes := make(map[string]string)
	for _, action := range r.actions {
		if action.Op != reconcile.OpCreate && action.Op != reconcile.OpUpdate {
			continue
		}
		node := action.Entry.Desired
		if node == nil || node.Kind != snapshot.KindFile {
			continue
		}
		candidate := filepath.Join(r.desired.Root, filepath.FromSlash(action.Path))
		for _, rule := range r.manifest.Matching(action.Path) {
			if len(rule.Validate) == 0 {
				continue
			}
			h := hook.Hook(rule.Validate)
			result := hook.Run(ctx, h, candidate)
			if result.CommandMissing() {
				r.logger.Warn("validator not installed, skipping",
					"path", action.Path, "hook", h.String())
				continue
			}
			if result.Failed() {
				r.logger.Warn("validation vetoed", "path", action.Path, "error", result.Err)
				vetoes[action.Path] = result.Err.Error()
				break
			}
			r.logger.Debug("validated",
				"path", action.Path, "hook", h.String(), "duration", result.Duration)
		}
	}
	return vetoes
}

// runChangeHooks fires each rule's on_change hooks once when at least
// one applied path matches the rule, in manifest order. By the time
// they run the tree is already converged, so a failing hook warns
// without failing the run.
func (r *run) runChangeHooks(ctx context.Context, report *reconcile.Report) {
	var applied []string
	for _, outcome := range report.Outcomes {
		if outcome.Result == reconcile.ResultApplied {
			applied = append(applied, outcome.Action.Path)
		}
	}
	if len(applied) == 0 {
		return
	}
	for i := range r.manifest.Rules {
		rule := &r.manifest.Rules[i]
		if len(rule.OnChange) == 0 {
			continue
		}
		triggered := false
		for _, path := range applied {
			if rule.Matches(path) {
				triggered = true
				break
			}
		}
		if !triggered {
			continue
		}
		h := hook.Hook(rule.OnChange)
		result := hook.Run(ctx, h)
		if result.Failed() {
			r.logger.Warn("on_change hook failed", "hook", h.String(), "error", result.Err)
			continue
		}
		r.logger.Info("on_change hook ran", "hook", h.String(), "duration", result.Duration)
	}
}
