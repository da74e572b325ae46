// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"io/fs"

	"github.com/bureau-foundation/steward/lib/digest"
)

// Kind identifies what sits at a path. Values are stored in the index
// cache payload — changing them invalidates existing caches.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = 0

	// KindDir is a directory.
	KindDir Kind = 1

	// KindSymlink is a symbolic link. Links are inventory entries of
	// their own; they are never followed.
	KindSymlink Kind = 2
)

// String returns the human-readable name of a kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// metadataMask selects the mode bits steward manages: the permission
// bits plus setuid, setgid, and sticky. Everything else in fs.FileMode
// is type information, carried by Kind instead.
const metadataMask = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// Entry is one filesystem node under a tree root.
//
// Path is relative to the root in io/fs form: slash-separated, no
// leading or trailing slash, no "." or ".." segments; the root
// directory itself is ".". Paths are unique within a snapshot and
// fs.ValidPath holds for every entry the scanner emits.
type Entry struct {
	Path string `cbor:"path"`
	Kind Kind   `cbor:"kind"`

	// Mode holds the managed permission bits (metadataMask). Zero for
	// symlinks: Linux fixes link permissions at 0777 and ignores them,
	// so steward neither records nor reconciles them.
	Mode fs.FileMode `cbor:"mode"`

	// UID and GID are the numeric owner from lstat. Name resolution
	// happens only at the reporting edge.
	UID uint32 `cbor:"uid"`
	GID uint32 `cbor:"gid"`

	// Size and ModTimeNS feed the re-hash skip heuristic when a prior
	// index is available. They never participate in equality decisions;
	// content digests do.
	Size      int64 `cbor:"size"`
	ModTimeNS int64 `cbor:"mtime_ns"`

	// Target is the symlink target string (KindSymlink only).
	Target string `cbor:"target,omitempty"`

	// Digest is the content digest: file bytes for KindFile, the
	// target string for KindSymlink, the zero sentinel for KindDir
	// (a directory's identity lives in its subtree digest).
	Digest digest.Digest `cbor:"digest"`
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Kind == KindDir }

// identity returns the digest a parent directory folds into its
// subtree digest for this entry: the node's metadata wrapped around
// its content identity. For directories the content identity is the
// subtree digest, supplied by the caller; for files and symlinks it is
// Entry.Digest.
func (e *Entry) identity(content digest.Digest) digest.Digest {
	return digest.Node(uint8(e.Kind), uint32(e.Mode), e.UID, e.GID, content)
}
