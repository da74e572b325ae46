// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"path"
	"time"

	"github.com/bureau-foundation/steward/lib/digest"
)

// Node is one Merkle index entry: the scanned Entry plus the subtree
// digest the differ compares.
type Node struct {
	Entry

	// Subtree is the whole-subtree identity. For a directory it is the
	// tree digest over the sorted (name, node digest) pairs of its
	// direct children, which covers every descendant's name, kind,
	// mode, ownership, and content — but not the directory's own
	// metadata, which the parent's pair covers. For files and symlinks
	// it equals Entry.Digest.
	Subtree digest.Digest

	// id is the node digest the parent folds in for this child.
	id digest.Digest
}

// Index is the Merkle view of one snapshot: nodes keyed by relative
// path ("." is the root), with the child adjacency needed for merged
// tree walks. Built fresh per run; optionally persisted for the target
// root to accelerate the next scan.
type Index struct {
	// Root is the absolute path the snapshot was taken from.
	Root string

	// ScannedAt anchors the stale-mtime guard for baseline reuse.
	ScannedAt time.Time

	nodes    map[string]*Node
	children map[string][]string
}

// Build assembles the index bottom-up from a snapshot. Entries arrive
// sorted, and a parent path is always a strict prefix of its
// descendants' paths, so iterating in reverse visits every directory
// only after all of its descendants: each directory's tree digest is
// computed from already-final child node digests, never top-down. The
// root is the one exception (its children do not carry the "."
// prefix, and names like "!notes" sort before it), so it is finished
// last explicitly.
func Build(snap *Snapshot) *Index {
	index := &Index{
		Root:      snap.Root,
		ScannedAt: snap.ScannedAt,
		nodes:     make(map[string]*Node, len(snap.Entries)),
		children:  make(map[string][]string),
	}

	for i := range snap.Entries {
		entry := &snap.Entries[i]
		index.nodes[entry.Path] = &Node{Entry: *entry}
		if entry.Path != "." {
			parent := path.Dir(entry.Path)
			index.children[parent] = append(index.children[parent], path.Base(entry.Path))
		}
	}

	for i := len(snap.Entries) - 1; i >= 0; i-- {
		node := index.nodes[snap.Entries[i].Path]
		if node.Path == "." {
			continue
		}
		index.finishNode(node)
	}
	if root, ok := index.nodes["."]; ok {
		index.finishNode(root)
	}

	return index
}

// finishNode computes a node's subtree and node digests. All children
// must already be finished.
func (x *Index) finishNode(node *Node) {
	if node.Kind == KindDir {
		names := x.children[node.Path]
		pairs := make([]digest.Child, len(names))
		for i, name := range names {
			child := x.nodes[path.Join(node.Path, name)]
			pairs[i] = digest.Child{Name: name, Digest: child.id}
		}
		node.Subtree = digest.Tree(pairs)
	} else {
		node.Subtree = node.Digest
	}
	node.id = node.identity(node.Subtree)
}

// Node returns the node at a relative path.
func (x *Index) Node(rel string) (*Node, bool) {
	node, ok := x.nodes[rel]
	return node, ok
}

// Children returns the sorted direct child names of a directory path.
// The returned slice is shared; callers must not modify it.
func (x *Index) Children(rel string) []string {
	return x.children[rel]
}

// RootDigest returns the subtree digest of the root directory, or the
// zero digest for an index with no nodes (a missing target root scans
// to an empty snapshot).
func (x *Index) RootDigest() digest.Digest {
	root, ok := x.nodes["."]
	if !ok {
		return digest.Zero
	}
	return root.Subtree
}

// Len returns the number of nodes.
func (x *Index) Len() int { return len(x.nodes) }
