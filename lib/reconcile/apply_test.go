// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/steward/lib/drift"
	"github.com/bureau-foundation/steward/lib/snapshot"
	"github.com/bureau-foundation/steward/lib/testutil"
)

func scanIndex(t *testing.T, root string) *snapshot.Index {
	t.Helper()
	snap, err := snapshot.Scan(context.Background(), root, snapshot.Options{})
	if err != nil {
		t.Fatalf("Scan(%s): %v", root, err)
	}
	if len(snap.Errors) != 0 {
		t.Fatalf("scan errors under %s: %v", root, snap.Errors)
	}
	return snapshot.Build(snap)
}

// planBetween scans both roots and plans target into convergence with
// source. A missing target root plans as a full creation.
func planBetween(t *testing.T, source, target string) []Action {
	t.Helper()
	desired := scanIndex(t, source)
	actual := snapshot.Build(&snapshot.Snapshot{Root: target})
	if _, err := os.Lstat(target); err == nil {
		actual = scanIndex(t, target)
	}
	return Plan(drift.Diff(desired, actual))
}

func applyAll(t *testing.T, source, target string, actions []Action) *Report {
	t.Helper()
	return Apply(context.Background(), source, target, actions, Options{})
}

func requireConverged(t *testing.T, source, target string) {
	t.Helper()
	report := drift.Diff(scanIndex(t, source), scanIndex(t, target))
	if sum := drift.Summarize(report); !sum.Clean() {
		t.Fatalf("trees did not converge: %+v\n%s",
			sum, testutil.DiffTreeState(testutil.TreeState(t, source), testutil.TreeState(t, target)))
	}
}

// sourceFixture builds the desired tree used by the end-to-end tests.
func sourceFixture(t *testing.T) string {
	t.Helper()
	source := t.TempDir()
	testutil.WriteFile(t, source, "etc/app.conf", "mode = prod\nport = 8080\n", 0o644)
	testutil.WriteFile(t, source, "etc/secret", "s3cret\n", 0o600)
	testutil.WriteFile(t, source, "bin/run", "#!/bin/sh\nexec app\n", 0o755)
	testutil.Mkdir(t, source, "var/empty", 0o755)
	testutil.Symlink(t, source, "etc/active", "app.conf")
	return source
}

func TestApplyConvergence(t *testing.T) {
	source := sourceFixture(t)
	target := t.TempDir()
	testutil.CopyTree(t, source, target)

	// Perturb the target in every way the differ can classify:
	// content drift, mode drift, an unmanaged extra subtree, a missing
	// subtree, a re-pointed symlink, and a kind change.
	testutil.WriteFile(t, target, "etc/app.conf", "mode = debug\n", 0o644)
	if err := os.Chmod(filepath.Join(target, "etc/secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, target, "stray/cache.bin", "leftover", 0o644)
	if err := os.RemoveAll(filepath.Join(target, "bin")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(target, "etc/active")); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, target, "etc/active", "now a file", 0o644)

	actions := planBetween(t, source, target)
	if len(actions) == 0 {
		t.Fatal("perturbed target planned no actions")
	}

	report := applyAll(t, source, target, actions)
	if !report.Succeeded() {
		t.Fatalf("apply did not succeed: %+v", report.Failures())
	}
	if tally := report.Tally(); tally.Applied != len(actions) {
		t.Errorf("tally = %+v, want all %d applied", tally, len(actions))
	}

	requireConverged(t, source, target)

	// Spot-check the interesting landings.
	if got := testutil.ReadFile(t, target, "etc/app.conf"); !strings.Contains(got, "port = 8080") {
		t.Errorf("etc/app.conf content not restored: %q", got)
	}
	info, err := os.Lstat(filepath.Join(target, "etc/secret"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("etc/secret mode = %o, want 0600", info.Mode().Perm())
	}
	if linkTarget, err := os.Readlink(filepath.Join(target, "etc/active")); err != nil || linkTarget != "app.conf" {
		t.Errorf("etc/active = %q (%v), want symlink to app.conf", linkTarget, err)
	}
	if _, err := os.Lstat(filepath.Join(target, "stray")); !os.IsNotExist(err) {
		t.Error("stray subtree survived the apply")
	}
}

func TestApplyIdempotent(t *testing.T) {
	source := sourceFixture(t)
	target := t.TempDir()
	testutil.WriteFile(t, target, "etc/app.conf", "stale", 0o600)

	first := planBetween(t, source, target)
	if report := applyAll(t, source, target, first); !report.Succeeded() {
		t.Fatalf("first apply failed: %+v", report.Failures())
	}

	second := planBetween(t, source, target)
	if len(second) != 0 {
		var lines []string
		for _, action := range second {
			lines = append(lines, action.Describe())
		}
		t.Fatalf("second plan is not empty:\n%s", strings.Join(lines, "\n"))
	}

	before := testutil.TreeState(t, target)
	report := applyAll(t, source, target, second)
	if len(report.Outcomes) != 0 || !report.Succeeded() {
		t.Errorf("empty plan produced outcomes: %+v", report.Outcomes)
	}
	if diff := testutil.DiffTreeState(before, testutil.TreeState(t, target)); diff != "" {
		t.Errorf("second apply changed the tree:\n%s", diff)
	}
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	source := sourceFixture(t)
	target := t.TempDir()
	testutil.WriteFile(t, target, "etc/app.conf", "drifted", 0o644)
	testutil.WriteFile(t, target, "stray.log", "extra", 0o644)

	actions := planBetween(t, source, target)
	before := testutil.TreeState(t, target)

	report := Apply(context.Background(), source, target, actions, Options{DryRun: true})

	if !report.DryRun {
		t.Error("report does not carry the dry-run flag")
	}
	for _, outcome := range report.Outcomes {
		if outcome.Result != ResultPending {
			t.Errorf("%s: result %s, want pending", outcome.Action.Path, outcome.Result)
		}
	}
	if report.Succeeded() {
		t.Error("a dry run with pending work must not count as succeeded")
	}
	if diff := testutil.DiffTreeState(before, testutil.TreeState(t, target)); diff != "" {
		t.Errorf("dry run modified the target:\n%s", diff)
	}

	// The same plan is still fully applicable afterwards.
	if report := applyAll(t, source, target, actions); !report.Succeeded() {
		t.Fatalf("apply after dry run failed: %+v", report.Failures())
	}
	requireConverged(t, source, target)
}

func TestApplyCreatesMissingTargetRoot(t *testing.T) {
	source := sourceFixture(t)
	target := filepath.Join(t.TempDir(), "deploy", "root")

	actions := planBetween(t, source, target)
	if actions[0].Path != "." || actions[0].Op != OpCreate {
		t.Fatalf("first action = %s %s, want creation of the root", actions[0].Op, actions[0].Path)
	}

	if report := applyAll(t, source, target, actions); !report.Succeeded() {
		t.Fatalf("apply failed: %+v", report.Failures())
	}
	requireConverged(t, source, target)
}

func TestApplyFailureIsolation(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not constrain root")
	}

	source := t.TempDir()
	testutil.WriteFile(t, source, "ok.txt", "fine", 0o644)
	testutil.WriteFile(t, source, "blocked/sub/inner.txt", "unreachable", 0o644)
	// Match the target's read-only mode so the plan holds no adjust
	// action that would unblock the nested creations. 0555 still lets
	// the scanner list and hash the source side.
	if err := os.Chmod(filepath.Join(source, "blocked"), 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(source, "blocked"), 0o755) })

	target := t.TempDir()
	testutil.Mkdir(t, target, "blocked", 0o555)
	t.Cleanup(func() { os.Chmod(filepath.Join(target, "blocked"), 0o755) })

	actions := planBetween(t, source, target)
	report := applyAll(t, source, target, actions)

	results := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		results[outcome.Action.Path] = outcome
	}

	if outcome := results["ok.txt"]; outcome.Result != ResultApplied {
		t.Errorf("ok.txt = %s, want applied despite unrelated failure", outcome.Result)
	}
	if outcome := results["blocked/sub"]; outcome.Result != ResultFailed {
		t.Errorf("blocked/sub = %s (%v), want failed", outcome.Result, outcome.Err)
	} else if outcome.Cause != FailurePermission {
		t.Errorf("blocked/sub cause = %s, want permission-denied", outcome.Cause)
	}
	if outcome := results["blocked/sub/inner.txt"]; outcome.Result != ResultSkipped {
		t.Errorf("blocked/sub/inner.txt = %s, want skipped", outcome.Result)
	} else if !strings.Contains(outcome.Reason, "blocked/sub") {
		t.Errorf("skip reason %q does not name the failed parent", outcome.Reason)
	}

	if report.Succeeded() {
		t.Error("report with failures counts as succeeded")
	}
	if tally := report.Tally(); tally.Failed != 1 || tally.Skipped != 1 {
		t.Errorf("tally = %+v, want 1 failed and 1 skipped", tally)
	}
}

func TestApplyRemovalBlockedByFailedChild(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not constrain root")
	}

	source := t.TempDir()
	testutil.WriteFile(t, source, "keep.txt", "kept", 0o644)

	target := t.TempDir()
	testutil.WriteFile(t, target, "keep.txt", "kept", 0o644)
	testutil.WriteFile(t, target, "ro/junk.txt", "cannot unlink", 0o644)
	if err := os.Chmod(filepath.Join(target, "ro"), 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(target, "ro"), 0o755) })

	actions := planBetween(t, source, target)
	report := applyAll(t, source, target, actions)

	results := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		results[outcome.Action.Path] = outcome
	}
	if outcome := results["ro/junk.txt"]; outcome.Result != ResultFailed {
		t.Errorf("ro/junk.txt = %s (%v), want failed", outcome.Result, outcome.Err)
	}
	if outcome := results["ro"]; outcome.Result != ResultSkipped {
		t.Errorf("ro = %s, want skipped (cannot be empty)", outcome.Result)
	}
}

func TestApplyRemoveAlreadyGone(t *testing.T) {
	source := t.TempDir()
	testutil.WriteFile(t, source, "keep.txt", "kept", 0o644)

	target := t.TempDir()
	testutil.WriteFile(t, target, "keep.txt", "kept", 0o644)
	testutil.WriteFile(t, target, "stray/junk.txt", "doomed", 0o644)

	actions := planBetween(t, source, target)

	// Someone else cleans up the stray subtree between the scan and
	// the apply. The removals find nothing to do, which is success,
	// not partial failure.
	if err := os.RemoveAll(filepath.Join(target, "stray")); err != nil {
		t.Fatal(err)
	}

	report := applyAll(t, source, target, actions)
	if !report.Succeeded() {
		t.Fatalf("apply of already-satisfied removals failed: %+v", report.Failures())
	}
	for _, outcome := range report.Outcomes {
		if outcome.Result != ResultApplied {
			t.Errorf("%s = %s, want applied", outcome.Action.Path, outcome.Result)
		}
	}
	requireConverged(t, source, target)
}

func TestApplyKindChange(t *testing.T) {
	source := t.TempDir()
	testutil.WriteFile(t, source, "thing/nested.txt", "directory now", 0o644)

	target := t.TempDir()
	testutil.WriteFile(t, target, "thing", "was a file", 0o644)

	actions := planBetween(t, source, target)
	if report := applyAll(t, source, target, actions); !report.Succeeded() {
		t.Fatalf("apply failed: %+v", report.Failures())
	}
	requireConverged(t, source, target)

	info, err := os.Lstat(filepath.Join(target, "thing"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Error("thing is still not a directory")
	}
}

func TestApplySymlinkRetarget(t *testing.T) {
	source := t.TempDir()
	testutil.WriteFile(t, source, "releases/v2", "two", 0o644)
	testutil.Symlink(t, source, "current", "releases/v2")

	target := t.TempDir()
	testutil.WriteFile(t, target, "releases/v2", "two", 0o644)
	testutil.Symlink(t, target, "current", "releases/v1")

	actions := planBetween(t, source, target)
	if len(actions) != 1 || actions[0].Op != OpUpdate {
		t.Fatalf("plan = %v, want a single symlink update", actions)
	}

	if report := applyAll(t, source, target, actions); !report.Succeeded() {
		t.Fatalf("apply failed: %+v", report.Failures())
	}
	if got, err := os.Readlink(filepath.Join(target, "current")); err != nil || got != "releases/v2" {
		t.Errorf("current -> %q (%v), want releases/v2", got, err)
	}

	listing, err := os.ReadDir(target)
	if err != nil {
		t.Fatal(err)
	}
	for _, dirEntry := range listing {
		if strings.Contains(dirEntry.Name(), ".steward-") {
			t.Errorf("temp artifact left behind: %s", dirEntry.Name())
		}
	}
}

func TestApplyStickyBitAdjust(t *testing.T) {
	source := t.TempDir()
	testutil.Mkdir(t, source, "shared", 0o755|fs.ModeSticky)

	target := t.TempDir()
	testutil.Mkdir(t, target, "shared", 0o755)

	actions := planBetween(t, source, target)
	if len(actions) != 1 || actions[0].Op != OpAdjust {
		t.Fatalf("plan = %v, want a single mode adjustment", actions)
	}
	if report := applyAll(t, source, target, actions); !report.Succeeded() {
		t.Fatalf("apply failed: %+v", report.Failures())
	}

	info, err := os.Lstat(filepath.Join(target, "shared"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&fs.ModeSticky == 0 {
		t.Error("sticky bit not applied")
	}
	requireConverged(t, source, target)
}

func TestApplyCancelledContext(t *testing.T) {
	source := sourceFixture(t)
	target := t.TempDir()

	actions := planBetween(t, source, target)
	before := testutil.TreeState(t, target)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := Apply(ctx, source, target, actions, Options{})

	for _, outcome := range report.Outcomes {
		if outcome.Result != ResultSkipped || outcome.Reason != "run cancelled" {
			t.Errorf("%s = %s (%s), want skipped for cancellation",
				outcome.Action.Path, outcome.Result, outcome.Reason)
		}
	}
	if diff := testutil.DiffTreeState(before, testutil.TreeState(t, target)); diff != "" {
		t.Errorf("cancelled run modified the target:\n%s", diff)
	}
}

func TestApplyVetoedFile(t *testing.T) {
	source := t.TempDir()
	testutil.WriteFile(t, source, "etc/nginx.conf", "server {}\n", 0o644)
	testutil.WriteFile(t, source, "ok.txt", "fine", 0o644)
	target := t.TempDir()

	actions := planBetween(t, source, target)
	report := Apply(context.Background(), source, target, actions, Options{
		Vetoes: map[string]string{"etc/nginx.conf": "nginx -t exited 1"},
	})

	results := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		results[outcome.Action.Path] = outcome
	}

	nginx := results["etc/nginx.conf"]
	if nginx.Result != ResultFailed || nginx.Cause != FailureValidation {
		t.Errorf("etc/nginx.conf = %s (%s), want failed with validation cause", nginx.Result, nginx.Cause)
	}
	if nginx.Err == nil || !strings.Contains(nginx.Err.Error(), "nginx -t exited 1") {
		t.Errorf("veto error %v does not carry the hook's reason", nginx.Err)
	}
	if _, err := os.Lstat(filepath.Join(target, "etc/nginx.conf")); !os.IsNotExist(err) {
		t.Error("vetoed file landed on the target anyway")
	}

	if outcome := results["ok.txt"]; outcome.Result != ResultApplied {
		t.Errorf("ok.txt = %s, want applied alongside the veto", outcome.Result)
	}
	if outcome := results["etc"]; outcome.Result != ResultApplied {
		t.Errorf("etc = %s, want applied (only the file was vetoed)", outcome.Result)
	}
}

func TestApplyVetoedDirectorySkipsChildren(t *testing.T) {
	source := t.TempDir()
	testutil.WriteFile(t, source, "app/conf/main.yml", "x: 1\n", 0o644)
	target := t.TempDir()

	actions := planBetween(t, source, target)
	report := Apply(context.Background(), source, target, actions, Options{
		Vetoes: map[string]string{"app": "refused by policy"},
	})

	results := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		results[outcome.Action.Path] = outcome
	}
	if outcome := results["app"]; outcome.Result != ResultFailed || outcome.Cause != FailureValidation {
		t.Errorf("app = %s (%s), want validation failure", outcome.Result, outcome.Cause)
	}
	for _, rel := range []string{"app/conf", "app/conf/main.yml"} {
		if outcome := results[rel]; outcome.Result != ResultSkipped {
			t.Errorf("%s = %s, want skipped under the vetoed directory", rel, outcome.Result)
		}
	}
	if _, err := os.Lstat(filepath.Join(target, "app")); !os.IsNotExist(err) {
		t.Error("vetoed directory was created")
	}
}

func TestApplyTargetExistsCause(t *testing.T) {
	source := t.TempDir()
	testutil.Mkdir(t, source, "newdir", 0o755)
	target := t.TempDir()

	actions := planBetween(t, source, target)

	// Race in: something claims the path between scan and apply.
	testutil.WriteFile(t, target, "newdir", "squatter", 0o644)

	report := applyAll(t, source, target, actions)
	results := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		results[outcome.Action.Path] = outcome
	}
	outcome := results["newdir"]
	if outcome.Result != ResultFailed || outcome.Cause != FailureExists {
		t.Errorf("newdir = %s (%s), want failed with target-exists", outcome.Result, outcome.Cause)
	}
}

func TestApplyRejectsChangedSource(t *testing.T) {
	source := t.TempDir()
	testutil.WriteFile(t, source, "app.conf", "scanned content", 0o644)
	target := t.TempDir()

	actions := planBetween(t, source, target)

	// Modify the source after planning: the staged copy must notice
	// the digest mismatch and refuse to install the unexpected bytes.
	testutil.WriteFile(t, source, "app.conf", "tampered afterwards", 0o644)

	report := applyAll(t, source, target, actions)

	results := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		results[outcome.Action.Path] = outcome
	}
	outcome := results["app.conf"]
	if outcome.Result != ResultFailed {
		t.Fatalf("app.conf = %s, want failed on digest mismatch", outcome.Result)
	}
	if outcome.Err == nil || !strings.Contains(outcome.Err.Error(), "changed since") {
		t.Errorf("err = %v, want a changed-since-scan explanation", outcome.Err)
	}

	// Nothing may land, not even a temp file.
	listing, err := os.ReadDir(target)
	if err != nil {
		t.Fatal(err)
	}
	for _, dirEntry := range listing {
		t.Errorf("unexpected artifact in target: %s", dirEntry.Name())
	}
}
