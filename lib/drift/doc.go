// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package drift compares two snapshot indexes — desired against actual
// — and classifies every difference.
//
// The comparison is a merged walk of both Merkle trees. Where the
// subtree digests of a directory pair match, nothing beneath that
// directory is visited: the digests already prove the subtrees are
// byte-for-byte and metadata-for-metadata identical. Such a directory
// contributes exactly one Unchanged entry to the report. This is what
// makes repeated runs against a converged tree cheap regardless of
// tree size.
//
// Reports are minimal. A file that matches its counterpart produces no
// entry; a directory that is descended into produces an entry only
// when its own mode or ownership differs. The report therefore reads
// as "what apply would do", with Unchanged markers showing where the
// walk stopped early.
//
// A path whose kind differs between the two trees (a file where a
// directory should be, and so on) is reported as a Removed entry
// followed by an Added entry at the same path: there is no in-place
// conversion between kinds.
//
// The root directory itself is anchored, not managed: its mode and
// ownership are never compared, because steward does not create or
// chmod the root it was pointed at.
package drift
