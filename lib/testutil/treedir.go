// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// WriteFile creates a regular file at rel under root with the given
// content and permission bits, creating parent directories as needed.
// The mode is applied with an explicit chmod so the test's umask
// cannot skew the fixture.
func WriteFile(t *testing.T, root, rel, content string, mode fs.FileMode) {
	t.Helper()

	target := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("creating parent of %s: %v", rel, err)
	}
	if err := os.WriteFile(target, []byte(content), mode); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
	if err := os.Chmod(target, mode); err != nil {
		t.Fatalf("chmod %s: %v", rel, err)
	}
}

// Mkdir creates a directory at rel under root with the given
// permission bits, creating parents (with 0755) as needed.
func Mkdir(t *testing.T, root, rel string, mode fs.FileMode) {
	t.Helper()

	target := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("creating %s: %v", rel, err)
	}
	if err := os.Chmod(target, mode); err != nil {
		t.Fatalf("chmod %s: %v", rel, err)
	}
}

// Symlink creates a symbolic link at rel under root pointing at
// target, creating parent directories as needed. The target is stored
// verbatim; it may dangle.
func Symlink(t *testing.T, root, rel, target string) {
	t.Helper()

	linkPath := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		t.Fatalf("creating parent of %s: %v", rel, err)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		t.Fatalf("linking %s -> %s: %v", rel, target, err)
	}
}

// ReadFile returns the content of the file at rel under root.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("reading %s: %v", rel, err)
	}
	return string(data)
}

// CopyTree clones the tree at src into dst, preserving permission bits
// and symlink targets. Ownership is not copied; tests run unprivileged.
func CopyTree(t *testing.T, src, dst string) {
	t.Helper()

	err := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			return os.Chmod(target, info.Mode().Perm())

		case info.Mode()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)

		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, data, info.Mode().Perm()); err != nil {
				return err
			}
			return os.Chmod(target, info.Mode().Perm())
		}
	})
	if err != nil {
		t.Fatalf("copying tree %s to %s: %v", src, dst, err)
	}
}

// TreeState flattens a tree into a deterministic map from relative
// path to a "kind mode content" description. Comparing two TreeState
// maps asserts tree equality in everything steward manages except
// ownership (tests run unprivileged, so owners never differ).
func TreeState(t *testing.T, root string) map[string]string {
	t.Helper()

	state := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			state[rel] = fmt.Sprintf("dir %04o", info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			state[rel] = "symlink " + target
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			state[rel] = fmt.Sprintf("file %04o %q", info.Mode().Perm(), data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking tree %s: %v", root, err)
	}
	return state
}

// DiffTreeState returns a readable description of how two TreeState
// maps differ, or the empty string when they match. Useful in failure
// messages where a bare map dump would be unreadable.
func DiffTreeState(before, after map[string]string) string {
	var lines []string
	for path, state := range before {
		if got, ok := after[path]; !ok {
			lines = append(lines, fmt.Sprintf("  removed: %s (%s)", path, state))
		} else if got != state {
			lines = append(lines, fmt.Sprintf("  changed: %s (%s -> %s)", path, state, got))
		}
	}
	for path, state := range after {
		if _, ok := before[path]; !ok {
			lines = append(lines, fmt.Sprintf("  added: %s (%s)", path, state))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
