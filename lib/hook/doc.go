// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hook executes the external commands a metadata manifest
// attaches to its rules.
//
// A hook is a bare argv vector; there is no shell, no placeholder
// substitution, no environment mangling. Validation hooks receive the
// candidate file path appended as their final argument and run before
// any mutation, so a tool like "visudo -c -f" or "sshd -t -f" can veto
// a bad file while the live tree is still intact. Change hooks run
// after apply, once per rule, to reload whatever consumes the files.
//
// Run never panics over a missing program: hosts legitimately lack the
// tools their manifests mention (a web tree's "nginx -t" on a host
// without nginx), and the caller decides whether that is a veto or a
// shrug.
package hook
