// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot captures a file tree as a content-addressed Merkle
// index: the inventory the reconciliation engine diffs and converges.
//
// The package is organized in layers, each usable independently:
//
//   - Scanning: a deterministic lstat walk producing the sorted entry
//     inventory (path, kind, mode, owner, content digest). Symlinks
//     are entries of their own and never followed; directory cycles
//     from bind mounts are detected by device/inode tracking on the
//     walk stack. Per-path failures (an unreadable file, a vanished
//     directory) are collected, not propagated: one locked file never
//     blocks reconciliation of the rest of the tree. File hashing
//     fans out across a bounded worker pool; the walk itself stays
//     single-threaded so entry order and error attribution are
//     deterministic regardless of scheduling.
//
//   - Indexing: bottom-up Merkle assembly. Every directory's subtree
//     digest derives from the sorted (name, node digest) pairs of its
//     direct children, where each node digest wraps the child's kind,
//     mode, and ownership around its content identity. Equal subtree
//     digests therefore mean "nothing below here differs in any way
//     steward manages", which is what lets the differ skip whole
//     subtrees.
//
//   - Caching: optional persistence of the target root's index
//     between runs. The container is deterministic CBOR with a
//     compression tag and a payload checksum; a corrupt, stale, or
//     mismatched cache is rejected with a CacheError and the run
//     degrades to a full scan, never to wrong answers. A cached
//     digest is only reused for a file whose size and nanosecond
//     mtime match the cached entry and whose mtime predates the
//     cached scan; timestamps skip hashing work but never decide
//     equality.
package snapshot
