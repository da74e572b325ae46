// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drift

import (
	"path"
	"slices"
	"strings"

	"github.com/bureau-foundation/steward/lib/snapshot"
)

// Status classifies one path in the drift report.
type Status uint8

const (
	// StatusUnchanged marks a directory whose entire subtree matched
	// and was skipped. Leaves that match produce no entry at all.
	StatusUnchanged Status = iota

	// StatusAdded: present in the desired tree, absent from the actual
	// tree. Apply creates it.
	StatusAdded

	// StatusRemoved: present in the actual tree, absent from the
	// desired tree. Apply deletes it.
	StatusRemoved

	// StatusModified: present in both with the same kind but differing
	// content, mode, or ownership. Changes says which.
	StatusModified
)

// String returns the status name used in reports and logs.
func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusAdded:
		return "added"
	case StatusRemoved:
		return "removed"
	case StatusModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is a bitmask of modified attributes.
type Change uint8

const (
	// ChangeContent: file bytes or symlink target differ.
	ChangeContent Change = 1 << iota

	// ChangeMode: permission bits (including setuid/setgid/sticky)
	// differ. Never set for symlinks; their mode is not managed.
	ChangeMode

	// ChangeOwner: numeric uid or gid differs.
	ChangeOwner
)

// Has reports whether all bits of flag are set.
func (c Change) Has(flag Change) bool { return c&flag == flag }

// String renders the set bits as a comma-separated list.
func (c Change) String() string {
	var parts []string
	if c.Has(ChangeContent) {
		parts = append(parts, "content")
	}
	if c.Has(ChangeMode) {
		parts = append(parts, "mode")
	}
	if c.Has(ChangeOwner) {
		parts = append(parts, "owner")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Entry is one classified path. Desired is nil for removals, Actual is
// nil for additions; both are set for modified and unchanged entries.
type Entry struct {
	Path    string
	Status  Status
	Changes Change
	Desired *snapshot.Node
	Actual  *snapshot.Node
}

// Summary counts a report's entries by status.
type Summary struct {
	Added     int
	Removed   int
	Modified  int
	Unchanged int
}

// Summarize tallies the report.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, entry := range entries {
		switch entry.Status {
		case StatusAdded:
			s.Added++
		case StatusRemoved:
			s.Removed++
		case StatusModified:
			s.Modified++
		case StatusUnchanged:
			s.Unchanged++
		}
	}
	return s
}

// Clean reports whether the tally holds no drift.
func (s Summary) Clean() bool {
	return s.Added == 0 && s.Removed == 0 && s.Modified == 0
}

// Diff walks both indexes and returns the drift report, sorted by
// path. A kind-change pair at one path sorts its Removed entry first.
// Diffing an index against itself yields exactly one Unchanged entry
// for the root.
func Diff(desired, actual *snapshot.Index) []Entry {
	d := differ{desired: desired, actual: actual}

	desiredRoot, haveDesired := desired.Node(".")
	actualRoot, haveActual := actual.Node(".")
	switch {
	case haveDesired && haveActual:
		d.compare(".", desiredRoot, actualRoot)
	case haveDesired:
		d.emitAdded(".", desiredRoot)
	case haveActual:
		d.emitRemoved(".", actualRoot)
	}

	slices.SortFunc(d.entries, func(a, b Entry) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return removalRank(a.Status) - removalRank(b.Status)
	})
	return d.entries
}

// removalRank orders the two halves of a kind-change pair: the removal
// is listed (and applied) before the addition that replaces it.
func removalRank(s Status) int {
	if s == StatusRemoved {
		return 0
	}
	return 1
}

type differ struct {
	desired *snapshot.Index
	actual  *snapshot.Index
	entries []Entry
}

func (d *differ) emit(entry Entry) {
	d.entries = append(d.entries, entry)
}

// compare classifies one path present in both trees.
func (d *differ) compare(rel string, desired, actual *snapshot.Node) {
	if desired.Kind != actual.Kind {
		d.emitRemoved(rel, actual)
		d.emitAdded(rel, desired)
		return
	}

	changes := metadataChanges(rel, desired, actual)

	if desired.Kind == snapshot.KindDir {
		if desired.Subtree == actual.Subtree {
			status := StatusUnchanged
			if changes != 0 {
				status = StatusModified
			}
			d.emit(Entry{Path: rel, Status: status, Changes: changes, Desired: desired, Actual: actual})
			return
		}
		if changes != 0 {
			d.emit(Entry{Path: rel, Status: StatusModified, Changes: changes, Desired: desired, Actual: actual})
		}
		d.compareChildren(rel)
		return
	}

	if desired.Digest != actual.Digest {
		changes |= ChangeContent
	}
	if changes != 0 {
		d.emit(Entry{Path: rel, Status: StatusModified, Changes: changes, Desired: desired, Actual: actual})
	}
}

// compareChildren merges the sorted child name lists of one directory
// present in both trees.
func (d *differ) compareChildren(rel string) {
	desiredNames := d.desired.Children(rel)
	actualNames := d.actual.Children(rel)

	i, j := 0, 0
	for i < len(desiredNames) || j < len(actualNames) {
		switch {
		case j >= len(actualNames) || (i < len(desiredNames) && desiredNames[i] < actualNames[j]):
			childRel := path.Join(rel, desiredNames[i])
			node, _ := d.desired.Node(childRel)
			d.emitAdded(childRel, node)
			i++

		case i >= len(desiredNames) || actualNames[j] < desiredNames[i]:
			childRel := path.Join(rel, actualNames[j])
			node, _ := d.actual.Node(childRel)
			d.emitRemoved(childRel, node)
			j++

		default:
			childRel := path.Join(rel, desiredNames[i])
			desiredChild, _ := d.desired.Node(childRel)
			actualChild, _ := d.actual.Node(childRel)
			d.compare(childRel, desiredChild, actualChild)
			i++
			j++
		}
	}
}

// emitAdded reports a desired-only subtree, every node of it.
func (d *differ) emitAdded(rel string, node *snapshot.Node) {
	d.emit(Entry{Path: rel, Status: StatusAdded, Desired: node})
	if node.Kind != snapshot.KindDir {
		return
	}
	for _, name := range d.desired.Children(rel) {
		childRel := path.Join(rel, name)
		child, _ := d.desired.Node(childRel)
		d.emitAdded(childRel, child)
	}
}

// emitRemoved reports an actual-only subtree, every node of it.
func (d *differ) emitRemoved(rel string, node *snapshot.Node) {
	d.emit(Entry{Path: rel, Status: StatusRemoved, Actual: node})
	if node.Kind != snapshot.KindDir {
		return
	}
	for _, name := range d.actual.Children(rel) {
		childRel := path.Join(rel, name)
		child, _ := d.actual.Node(childRel)
		d.emitRemoved(childRel, child)
	}
}

// metadataChanges compares mode and ownership. The root is exempt:
// steward anchors at it but does not manage it. Symlink modes are
// likewise not compared; Linux pins them at 0777 and lchmod does not
// exist.
func metadataChanges(rel string, desired, actual *snapshot.Node) Change {
	if rel == "." {
		return 0
	}
	var changes Change
	if desired.Kind != snapshot.KindSymlink && desired.Mode != actual.Mode {
		changes |= ChangeMode
	}
	if desired.UID != actual.UID || desired.GID != actual.GID {
		changes |= ChangeOwner
	}
	return changes
}
