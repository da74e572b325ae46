// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/bureau-foundation/steward/lib/drift"
	"github.com/bureau-foundation/steward/lib/snapshot"
)

// Op is the verb of one planned action.
type Op uint8

const (
	// OpCreate places a node that does not exist on the target:
	// mkdir, or an atomic file write, or a symlink.
	OpCreate Op = iota

	// OpUpdate rewrites a node whose content drifted. Files are
	// replaced atomically with mode and ownership set on the
	// replacement; symlinks are re-pointed via rename.
	OpUpdate

	// OpAdjust fixes metadata in place: chmod for mode drift, lchown
	// for ownership drift. Content is untouched.
	OpAdjust

	// OpRemove deletes a node the desired tree does not have.
	OpRemove
)

// String returns the op verb used in plan output and logs.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpAdjust:
		return "adjust"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Action is one planned step against the target tree.
type Action struct {
	// Path is relative to both roots, "." meaning the target root
	// itself (created when the desired tree exists and the target root
	// does not).
	Path string

	Op Op

	// Entry is the drift classification the action was planned from.
	Entry drift.Entry
}

// Node returns the node the action is about: the desired node where
// one exists, otherwise the actual node being removed.
func (a Action) Node() *snapshot.Node {
	if a.Entry.Desired != nil {
		return a.Entry.Desired
	}
	return a.Entry.Actual
}

// Describe renders the action for plan output, one line, stable.
func (a Action) Describe() string {
	node := a.Node()
	kind := node.Kind.String()
	switch a.Op {
	case OpCreate:
		if node.Kind == snapshot.KindSymlink {
			return fmt.Sprintf("create symlink %s -> %s", a.Path, node.Target)
		}
		return fmt.Sprintf("create %s %s (mode %04o uid %d gid %d)", kind, a.Path, posixMode(node.Mode), node.UID, node.GID)
	case OpUpdate:
		return fmt.Sprintf("update %s %s (%s)", kind, a.Path, a.Entry.Changes)
	case OpAdjust:
		var parts []string
		if a.Entry.Changes.Has(drift.ChangeMode) {
			parts = append(parts, fmt.Sprintf("mode %04o", posixMode(node.Mode)))
		}
		if a.Entry.Changes.Has(drift.ChangeOwner) {
			parts = append(parts, fmt.Sprintf("owner %d:%d", node.UID, node.GID))
		}
		return fmt.Sprintf("adjust %s %s (%s)", kind, a.Path, strings.Join(parts, ", "))
	case OpRemove:
		return fmt.Sprintf("remove %s %s", kind, a.Path)
	default:
		return fmt.Sprintf("unknown op on %s", a.Path)
	}
}

// posixMode renders an fs.FileMode as the familiar octal form, with
// setuid, setgid, and sticky in the fourth-from-right digit.
func posixMode(mode fs.FileMode) uint32 {
	bits := uint32(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}

// Plan orders a drift report into executable actions: removals first,
// deepest path first, then creations and modifications in lexicographic
// order. Unchanged entries plan nothing. Planning an empty or fully
// unchanged report yields nil.
func Plan(report []drift.Entry) []Action {
	var removals, forward []Action
	for _, entry := range report {
		switch entry.Status {
		case drift.StatusRemoved:
			removals = append(removals, Action{Path: entry.Path, Op: OpRemove, Entry: entry})
		case drift.StatusAdded:
			forward = append(forward, Action{Path: entry.Path, Op: OpCreate, Entry: entry})
		case drift.StatusModified:
			op := OpAdjust
			if entry.Changes.Has(drift.ChangeContent) {
				op = OpUpdate
			}
			forward = append(forward, Action{Path: entry.Path, Op: op, Entry: entry})
		}
	}

	slices.SortFunc(removals, func(a, b Action) int {
		return strings.Compare(b.Path, a.Path)
	})
	slices.SortFunc(forward, func(a, b Action) int {
		return strings.Compare(a.Path, b.Path)
	})
	return append(removals, forward...)
}
