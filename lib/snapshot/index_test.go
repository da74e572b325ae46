// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/digest"
	"github.com/bureau-foundation/steward/lib/testutil"
)

// buildFixture scans and indexes a small tree with a nested directory,
// a symlink, and a sibling subtree that later tests expect to stay
// untouched.
func buildFixture(t *testing.T) (string, *Index) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFile(t, root, "etc/app/server.conf", "listen = :8080\n", 0o644)
	testutil.WriteFile(t, root, "etc/app/token", "hunter2\n", 0o600)
	testutil.WriteFile(t, root, "srv/static/index.html", "<html></html>\n", 0o644)
	testutil.Symlink(t, root, "etc/app/current", "server.conf")
	return root, Build(mustScan(t, root, Options{}))
}

func rebuild(t *testing.T, root string) *Index {
	t.Helper()
	return Build(mustScan(t, root, Options{}))
}

func TestBuildEmptySnapshot(t *testing.T) {
	index := Build(&Snapshot{Root: "/missing", ScannedAt: time.Now()})
	if index.Len() != 0 {
		t.Errorf("empty snapshot built %d nodes, want 0", index.Len())
	}
	if !index.RootDigest().IsZero() {
		t.Error("empty index root digest is not the zero sentinel")
	}
	if _, ok := index.Node("."); ok {
		t.Error("empty index claims to hold a root node")
	}
}

func TestBuildLeafSubtrees(t *testing.T) {
	_, index := buildFixture(t)

	file, ok := index.Node("etc/app/server.conf")
	if !ok {
		t.Fatal("server.conf missing from index")
	}
	if file.Subtree != file.Digest {
		t.Error("regular file subtree digest differs from its content digest")
	}

	link, ok := index.Node("etc/app/current")
	if !ok {
		t.Fatal("symlink missing from index")
	}
	if link.Subtree != digest.Symlink("server.conf") {
		t.Error("symlink subtree digest is not the digest of its target string")
	}
}

func TestBuildDirectoryDigestComposition(t *testing.T) {
	_, index := buildFixture(t)

	dir, ok := index.Node("etc/app")
	if !ok {
		t.Fatal("etc/app missing from index")
	}

	// Recompute the directory digest by hand from its children's
	// entries, going through the same two digest domains the index
	// uses: per-child node digests folded into one tree digest.
	names := index.Children("etc/app")
	pairs := make([]digest.Child, len(names))
	for i, name := range names {
		child, ok := index.Node("etc/app/" + name)
		if !ok {
			t.Fatalf("child %s missing from index", name)
		}
		pairs[i] = digest.Child{
			Name: name,
			Digest: digest.Node(
				uint8(child.Kind), uint32(child.Mode),
				child.UID, child.GID, child.Subtree,
			),
		}
	}
	if dir.Subtree != digest.Tree(pairs) {
		t.Error("directory subtree digest does not match manual recomputation")
	}
}

func TestBuildReflexive(t *testing.T) {
	root, first := buildFixture(t)
	second := rebuild(t, root)

	if first.RootDigest() != second.RootDigest() {
		t.Fatal("rebuilding an unchanged tree changed the root digest")
	}
	for _, rel := range []string{".", "etc", "etc/app", "etc/app/token", "srv/static"} {
		a, _ := first.Node(rel)
		b, _ := second.Node(rel)
		if a == nil || b == nil {
			t.Fatalf("node %s missing from one of the indexes", rel)
		}
		if a.Subtree != b.Subtree {
			t.Errorf("node %s subtree digest not stable across rebuilds", rel)
		}
	}
}

func TestContentChangeRipplesToRoot(t *testing.T) {
	root, before := buildFixture(t)

	testutil.WriteFile(t, root, "etc/app/server.conf", "listen = :9090\n", 0o644)
	after := rebuild(t, root)

	for _, rel := range []string{"etc/app", "etc", "."} {
		b, _ := before.Node(rel)
		a, _ := after.Node(rel)
		if b.Subtree == a.Subtree {
			t.Errorf("ancestor %s digest unchanged after a descendant edit", rel)
		}
	}

	// The sibling subtree saw no change and must hash identically:
	// this is what lets the differ skip it without reading anything.
	b, _ := before.Node("srv")
	a, _ := after.Node("srv")
	if b.Subtree != a.Subtree {
		t.Error("sibling subtree digest changed without any edit beneath it")
	}
}

func TestModeChangeRipplesToRoot(t *testing.T) {
	root, before := buildFixture(t)

	if err := os.Chmod(root+"/etc/app/token", 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	after := rebuild(t, root)

	bFile, _ := before.Node("etc/app/token")
	aFile, _ := after.Node("etc/app/token")
	if bFile.Subtree != aFile.Subtree {
		t.Error("mode change altered the file's content digest")
	}

	// Content identical, but the parent folds mode into the per-child
	// node digest, so every ancestor re-keys.
	for _, rel := range []string{"etc/app", "etc", "."} {
		b, _ := before.Node(rel)
		a, _ := after.Node(rel)
		if b.Subtree == a.Subtree {
			t.Errorf("ancestor %s digest unchanged after a mode-only change", rel)
		}
	}
}

func TestOwnershipChangeChangesDigests(t *testing.T) {
	// Ownership cannot be changed in an unprivileged test, so build
	// from synthetic snapshots that differ only in one file's GID.
	entries := func(gid uint32) []Entry {
		return []Entry{
			{Path: ".", Kind: KindDir, Mode: 0o755},
			{Path: "etc", Kind: KindDir, Mode: 0o755},
			{Path: "etc/conf", Kind: KindFile, Mode: 0o644, GID: gid,
				Digest: digest.FileBytes([]byte("payload"))},
		}
	}
	before := Build(&Snapshot{Root: "/synthetic", Entries: entries(0)})
	after := Build(&Snapshot{Root: "/synthetic", Entries: entries(41)})

	if before.RootDigest() == after.RootDigest() {
		t.Error("group change did not alter the root digest")
	}
	bFile, _ := before.Node("etc/conf")
	aFile, _ := after.Node("etc/conf")
	if bFile.Subtree != aFile.Subtree {
		t.Error("group change altered the content digest itself")
	}
}

func TestKindChangeChangesDigests(t *testing.T) {
	// Same digest bytes presented as a file versus a symlink must not
	// collide: the per-child node digest covers the kind.
	content := digest.FileBytes([]byte("x"))
	build := func(kind Kind) *Index {
		return Build(&Snapshot{Root: "/synthetic", Entries: []Entry{
			{Path: ".", Kind: KindDir, Mode: 0o755},
			{Path: "node", Kind: kind, Digest: content},
		}})
	}
	if build(KindFile).RootDigest() == build(KindSymlink).RootDigest() {
		t.Error("file and symlink with equal content digests produced equal root digests")
	}
}

func TestBuildNamesSortingBeforeDot(t *testing.T) {
	// Top-level names like "!notes" sort before "." in the entry
	// order, so the root cannot rely on reverse iteration alone to
	// finish after all of its children.
	root := t.TempDir()
	testutil.WriteFile(t, root, "!notes", "sorted before the root entry", 0o644)
	testutil.WriteFile(t, root, "regular.txt", "sorted after", 0o644)

	index := rebuild(t, root)
	if index.RootDigest().IsZero() {
		t.Fatal("root digest is zero; root was finished before its children")
	}
	if !slices.Equal(index.Children("."), []string{"!notes", "regular.txt"}) {
		t.Fatalf("root children = %v", index.Children("."))
	}

	// Root digest must actually cover the oddly named child.
	if err := os.Remove(root + "/!notes"); err != nil {
		t.Fatal(err)
	}
	if rebuild(t, root).RootDigest() == index.RootDigest() {
		t.Error("removing !notes did not change the root digest")
	}
}

func TestIndexLookups(t *testing.T) {
	_, index := buildFixture(t)

	if index.Len() != 9 {
		t.Errorf("Len = %d, want 9", index.Len())
	}
	if _, ok := index.Node("etc/app/server.conf"); !ok {
		t.Error("Node lookup failed for an indexed path")
	}
	if _, ok := index.Node("etc/app/absent"); ok {
		t.Error("Node lookup succeeded for a path that was never scanned")
	}

	want := []string{"current", "server.conf", "token"}
	if got := index.Children("etc/app"); !slices.Equal(got, want) {
		t.Errorf("Children(etc/app) = %v, want %v", got, want)
	}
	if got := index.Children("etc/app/token"); got != nil {
		t.Errorf("Children of a regular file = %v, want nil", got)
	}
}

func BenchmarkBuild(b *testing.B) {
	entries := []Entry{{Path: ".", Kind: KindDir, Mode: 0o755}}
	for dir := range 32 {
		dirPath := fmt.Sprintf("dir%02d", dir)
		entries = append(entries, Entry{Path: dirPath, Kind: KindDir, Mode: 0o755})
		for file := range 32 {
			rel := fmt.Sprintf("%s/file%02d", dirPath, file)
			entries = append(entries, Entry{
				Path: rel, Kind: KindFile, Mode: 0o644,
				Digest: digest.FileBytes([]byte(rel)),
			})
		}
	}
	snap := &Snapshot{Root: "/bench", Entries: entries}

	b.ReportAllocs()
	for b.Loop() {
		if Build(snap).Len() != len(entries) {
			b.Fatal("node count mismatch")
		}
	}
}
