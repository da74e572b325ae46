// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for steward packages.
//
// The helpers build and examine file-tree fixtures under t.TempDir:
// [WriteFile], [Mkdir], and [Symlink] construct trees with explicit
// permission bits (chmod after create, so the umask never skews a
// fixture), [CopyTree] clones a tree for convergence tests that apply
// drift to a copy, and [TreeState] flattens a tree into a comparable
// map for before/after assertions such as dry-run purity.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no steward-internal dependencies.
package testutil
