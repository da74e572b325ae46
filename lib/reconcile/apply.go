// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/bureau-foundation/steward/lib/digest"
	"github.com/bureau-foundation/steward/lib/drift"
	"github.com/bureau-foundation/steward/lib/snapshot"
)

// Options configures an apply run.
type Options struct {
	// DryRun reports every action as pending without touching the
	// target tree.
	DryRun bool

	// Vetoes maps paths whose validate hook rejected them to the
	// rejection reason. Vetoed actions fail without touching the
	// filesystem, and work nested under a vetoed directory creation is
	// skipped like any other failed prerequisite.
	Vetoes map[string]string

	// Logger receives one debug line per applied action and one warn
	// line per failure. Nil means slog.Default().
	Logger *slog.Logger
}

// Apply executes a plan against targetRoot, copying file content from
// sourceRoot. It never stops early except for context cancellation;
// failures are recorded in the report and independent actions keep
// going. The returned report has one outcome per action, in plan
// order.
func Apply(ctx context.Context, sourceRoot, targetRoot string, actions []Action, options Options) *Report {
	a := &applier{
		sourceRoot:      sourceRoot,
		targetRoot:      targetRoot,
		logger:          options.Logger,
		dryRun:          options.DryRun,
		vetoes:          options.Vetoes,
		failedSubtrees:  make(map[string]bool),
		blockedRemovals: make(map[string]bool),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	report := &Report{
		DryRun:   options.DryRun,
		Outcomes: make([]Outcome, 0, len(actions)),
	}
	cancelled := false
	for _, action := range actions {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
		}
		if cancelled {
			report.Outcomes = append(report.Outcomes, Outcome{
				Action: action, Result: ResultSkipped, Reason: "run cancelled",
			})
			continue
		}
		report.Outcomes = append(report.Outcomes, a.execute(action))
	}
	return report
}

type applier struct {
	sourceRoot string
	targetRoot string
	logger     *slog.Logger
	dryRun     bool
	vetoes     map[string]string

	// failedSubtrees holds directories that could not be created;
	// everything planned beneath them is skipped.
	failedSubtrees map[string]bool

	// blockedRemovals holds directories with a failed removal
	// somewhere beneath them; they cannot be emptied, so their own
	// removal is skipped rather than attempted.
	blockedRemovals map[string]bool
}

func (a *applier) execute(action Action) Outcome {
	if parent, blocked := a.failedAncestor(action.Path); blocked {
		if action.Op == OpCreate && action.Node().Kind == snapshot.KindDir {
			a.failedSubtrees[action.Path] = true
		}
		return Outcome{
			Action: action, Result: ResultSkipped,
			Reason: fmt.Sprintf("parent %s was not created", parent),
		}
	}
	if action.Op == OpRemove && a.blockedRemovals[action.Path] {
		return Outcome{
			Action: action, Result: ResultSkipped,
			Reason: "not empty: a removal beneath it failed",
		}
	}
	if reason, vetoed := a.vetoes[action.Path]; vetoed {
		if action.Op == OpCreate && action.Node().Kind == snapshot.KindDir {
			a.failedSubtrees[action.Path] = true
		}
		a.logger.Warn("apply action vetoed", "path", action.Path, "reason", reason)
		return Outcome{
			Action: action, Result: ResultFailed, Cause: FailureValidation,
			Err: fmt.Errorf("validation failed: %s", reason),
		}
	}

	if a.dryRun {
		return Outcome{Action: action, Result: ResultPending}
	}

	if err := a.perform(action); err != nil {
		switch {
		case action.Op == OpCreate && action.Node().Kind == snapshot.KindDir:
			a.failedSubtrees[action.Path] = true
		case action.Op == OpRemove:
			a.blockRemovalAncestors(action.Path)
		}
		a.logger.Warn("apply action failed",
			"op", action.Op.String(),
			"path", action.Path,
			"error", err,
		)
		return Outcome{Action: action, Result: ResultFailed, Cause: classifyFailure(err), Err: err}
	}

	a.logger.Debug("applied", "op", action.Op.String(), "path", action.Path)
	return Outcome{Action: action, Result: ResultApplied}
}

// failedAncestor walks the parent chain looking for a directory whose
// creation failed or was skipped.
func (a *applier) failedAncestor(rel string) (string, bool) {
	for parent := path.Dir(rel); ; parent = path.Dir(parent) {
		if a.failedSubtrees[parent] {
			return parent, true
		}
		if parent == "." {
			return "", false
		}
	}
}

// blockRemovalAncestors marks every ancestor of a failed removal:
// none of them can become empty now.
func (a *applier) blockRemovalAncestors(rel string) {
	for parent := path.Dir(rel); ; parent = path.Dir(parent) {
		a.blockedRemovals[parent] = true
		if parent == "." {
			return
		}
	}
}

func (a *applier) perform(action Action) error {
	abs := filepath.Join(a.targetRoot, filepath.FromSlash(action.Path))
	node := action.Node()

	switch action.Op {
	case OpRemove:
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		// Already gone counts as removed: something else deleted the
		// path between scan and apply, and the goal state holds.
		return nil

	case OpAdjust:
		// Owner first: chown can clear setuid/setgid bits, so the
		// chmod must come after it.
		if action.Entry.Changes.Has(drift.ChangeOwner) {
			if err := os.Lchown(abs, int(node.UID), int(node.GID)); err != nil {
				return err
			}
		}
		if action.Entry.Changes.Has(drift.ChangeMode) {
			if err := os.Chmod(abs, node.Mode); err != nil {
				return err
			}
		}
		return nil

	case OpCreate, OpUpdate:
		switch node.Kind {
		case snapshot.KindDir:
			return a.placeDir(abs, node, action.Path == ".")
		case snapshot.KindFile:
			return a.placeFile(abs, action.Path, node)
		case snapshot.KindSymlink:
			return a.placeSymlink(abs, node, action.Op == OpUpdate)
		}
	}
	return fmt.Errorf("unhandled %s on %s", action.Op, action.Path)
}

// placeDir creates a directory with the desired metadata. Only the
// target root itself may need intermediate directories; everything
// else has its parent guaranteed by plan order.
func (a *applier) placeDir(abs string, node *snapshot.Node, isRoot bool) error {
	if isRoot {
		if err := os.MkdirAll(abs, node.Mode.Perm()); err != nil {
			return err
		}
	} else if err := os.Mkdir(abs, node.Mode.Perm()); err != nil {
		return err
	}
	if err := os.Lchown(abs, int(node.UID), int(node.GID)); err != nil {
		return err
	}
	// Explicit chmod: mkdir is umask-filtered and cannot set the
	// setgid or sticky bits.
	return os.Chmod(abs, node.Mode)
}

// placeFile copies the source file into place atomically: content,
// ownership, and mode all land on a temp file that is renamed over the
// destination. The copy is digested in flight and rejected if the
// source no longer matches the snapshot it was planned from.
func (a *applier) placeFile(abs, rel string, node *snapshot.Node) error {
	source, err := os.Open(filepath.Join(a.sourceRoot, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("opening source for %s: %w", rel, err)
	}
	defer source.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(abs), ".steward-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	sum, err := digest.File(io.TeeReader(source, tmpFile))
	if err != nil {
		return fmt.Errorf("copying %s: %w", rel, err)
	}
	if sum != node.Digest {
		return fmt.Errorf("source %s changed since it was scanned", rel)
	}

	if err := tmpFile.Chown(int(node.UID), int(node.GID)); err != nil {
		return fmt.Errorf("setting ownership on %s: %w", rel, err)
	}
	if err := tmpFile.Chmod(node.Mode); err != nil {
		return fmt.Errorf("setting mode on %s: %w", rel, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", rel, err)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		return fmt.Errorf("renaming %s into place: %w", rel, err)
	}
	success = true
	return nil
}

// placeSymlink creates or re-points a symlink. Re-pointing goes
// through a sibling link renamed over the old one, so the path never
// dangles mid-update. A stale sibling from a crashed run is removed
// first; the next scan would flag it as drift anyway.
func (a *applier) placeSymlink(abs string, node *snapshot.Node, replace bool) error {
	chown := func(p string) error {
		return os.Lchown(p, int(node.UID), int(node.GID))
	}

	if !replace {
		if err := os.Symlink(node.Target, abs); err != nil {
			return err
		}
		return chown(abs)
	}

	tmpPath := abs + ".steward-tmp"
	os.Remove(tmpPath)
	if err := os.Symlink(node.Target, tmpPath); err != nil {
		return err
	}
	if err := chown(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
