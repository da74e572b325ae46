// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/digest"
)

// ScanCause classifies a per-path scan failure.
type ScanCause uint8

const (
	// CauseNotFound: the path vanished between listing and lstat.
	CauseNotFound ScanCause = iota

	// CausePermissionDenied: the process cannot read the path.
	CausePermissionDenied

	// CauseCycle: a directory was reached that is already on the walk
	// stack (bind mounts can do this; symlinks cannot, since they are
	// never followed). The revisit is skipped.
	CauseCycle

	// CauseUnsupported: the node is neither file, directory, nor
	// symlink (socket, device, FIFO). steward does not manage these.
	CauseUnsupported

	// CauseIO: any other read failure.
	CauseIO
)

// String returns the cause name used in logs and reports.
func (c ScanCause) String() string {
	switch c {
	case CauseNotFound:
		return "not-found"
	case CausePermissionDenied:
		return "permission-denied"
	case CauseCycle:
		return "cycle"
	case CauseUnsupported:
		return "unsupported"
	case CauseIO:
		return "io"
	default:
		return "unknown"
	}
}

// ScanError is one per-path scan failure. Failures are collected, not
// propagated: one unreadable file must not block reconciliation of the
// rest of the tree. The affected entry is dropped from the snapshot.
type ScanError struct {
	Path  string
	Cause ScanCause
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning %s: %s: %v", e.Path, e.Cause, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Options configures a scan.
type Options struct {
	// Exclude holds path.Match patterns tested against each entry's
	// relative path and against its base name. Matching directories
	// are not descended into.
	Exclude []string

	// Workers bounds the file-hashing pool. Zero means
	// min(GOMAXPROCS, 8). Traversal itself is single-goroutine so
	// entry order and error attribution stay deterministic.
	Workers int

	// Baseline, when set, lets the scanner skip re-reading a regular
	// file whose size and mtime match the baseline node, reusing its
	// digest. The reused value is still a content digest; timestamps
	// never decide equality, they only skip hashing work.
	Baseline *Index

	// Logger receives debug-level scan progress. Nil means
	// slog.Default().
	Logger *slog.Logger

	// Clock stamps the snapshot. Nil means clock.Real(). The stamp
	// anchors the stale-mtime guard when the snapshot later serves as
	// a baseline.
	Clock clock.Clock
}

// Snapshot is the ordered inventory of one tree root: every managed
// entry, sorted lexicographically by relative path, plus the per-path
// errors encountered along the way.
type Snapshot struct {
	// Root is the absolute path that was scanned.
	Root string

	// ScannedAt is the wall-clock instant the scan started.
	ScannedAt time.Time

	// Entries is sorted by Path. Two scans of an unchanged tree
	// produce identical sequences.
	Entries []Entry

	// Errors holds the paths that could not be fully scanned.
	Errors []ScanError

	// FilesHashed and DigestsReused count content reads performed and
	// avoided via the baseline. Reused + hashed = regular files seen.
	FilesHashed   int
	DigestsReused int
}

// Scan walks root and returns its snapshot. The root must exist and be
// a directory; that failing is the only fatal outcome besides context
// cancellation and an invalid exclude pattern. Everything else is
// collected per path in Snapshot.Errors.
func Scan(ctx context.Context, root string, options Options) (*Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}

	for _, pattern := range options.Exclude {
		if _, err := path.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	s := &scanner{
		root:     absRoot,
		exclude:  options.Exclude,
		baseline: options.Baseline,
		logger:   options.Logger,
		clk:      options.Clock,
		workers:  options.Workers,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clk == nil {
		s.clk = clock.Real()
	}
	if s.workers <= 0 {
		s.workers = min(runtime.GOMAXPROCS(0), 8)
	}

	return s.run(ctx)
}

// devIno identifies a directory across bind mounts and hard links.
type devIno struct {
	dev uint64
	ino uint64
}

type hashJob struct {
	entryIndex int
	absPath    string
}

type scanner struct {
	root     string
	exclude  []string
	baseline *Index
	logger   *slog.Logger
	clk      clock.Clock
	workers  int

	entries []Entry
	jobs    []hashJob
	reused  int

	// mu guards errors and dropped once the hash pool starts; the
	// single-goroutine walk phase appends without locking.
	mu      sync.Mutex
	errors  []ScanError
	dropped []bool
}

func (s *scanner) run(ctx context.Context) (*Snapshot, error) {
	started := s.clk.Now()

	var rootStat unix.Stat_t
	if err := unix.Lstat(s.root, &rootStat); err != nil {
		return nil, fmt.Errorf("scanning root %s: %w", s.root, err)
	}
	if rootStat.Mode&unix.S_IFMT != unix.S_IFDIR {
		return nil, fmt.Errorf("scanning root %s: not a directory", s.root)
	}

	s.entries = append(s.entries, Entry{
		Path: ".",
		Kind: KindDir,
		Mode: fileModeFromUnix(rootStat.Mode),
		UID:  rootStat.Uid,
		GID:  rootStat.Gid,
	})

	ancestors := []devIno{{dev: uint64(rootStat.Dev), ino: rootStat.Ino}}
	if err := s.walkDir(ctx, s.root, ".", ancestors); err != nil {
		return nil, err
	}

	s.dropped = make([]bool, len(s.entries))
	if err := s.hashFiles(ctx); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Root:          s.root,
		ScannedAt:     started,
		Entries:       make([]Entry, 0, len(s.entries)),
		Errors:        s.errors,
		FilesHashed:   len(s.jobs),
		DigestsReused: s.reused,
	}
	for i, entry := range s.entries {
		if !s.dropped[i] {
			snap.Entries = append(snap.Entries, entry)
		}
	}
	slices.SortFunc(snap.Entries, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	slices.SortFunc(snap.Errors, func(a, b ScanError) int {
		return strings.Compare(a.Path, b.Path)
	})

	s.logger.Debug("scan complete",
		"root", s.root,
		"entries", len(snap.Entries),
		"hashed", snap.FilesHashed,
		"reused", snap.DigestsReused,
		"errors", len(snap.Errors),
		"duration", s.clk.Now().Sub(started),
	)
	return snap, nil
}

// walkDir lists one directory and records its children, recursing into
// subdirectories. Returns an error only on context cancellation; all
// per-path failures are collected so sibling subtrees keep scanning.
func (s *scanner) walkDir(ctx context.Context, absDir, rel string, ancestors []devIno) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// ReadDir sorts by name and returns what it read even on error, so
	// a partially unreadable directory still contributes the entries
	// it yielded.
	listing, err := os.ReadDir(absDir)
	if err != nil {
		s.record(rel, causeOf(err), err)
	}

	for _, dirEntry := range listing {
		name := dirEntry.Name()
		childRel := path.Join(rel, name)
		if s.excluded(childRel, name) {
			s.logger.Debug("excluded", "path", childRel)
			continue
		}
		childAbs := filepath.Join(absDir, name)

		var st unix.Stat_t
		if err := unix.Lstat(childAbs, &st); err != nil {
			s.record(childRel, causeOf(err), err)
			continue
		}

		switch st.Mode & unix.S_IFMT {
		case unix.S_IFDIR:
			id := devIno{dev: uint64(st.Dev), ino: st.Ino}
			if slices.Contains(ancestors, id) {
				s.record(childRel, CauseCycle, fmt.Errorf("directory already on the walk stack"))
				continue
			}
			s.entries = append(s.entries, Entry{
				Path: childRel,
				Kind: KindDir,
				Mode: fileModeFromUnix(st.Mode),
				UID:  st.Uid,
				GID:  st.Gid,
			})
			if err := s.walkDir(ctx, childAbs, childRel, append(ancestors, id)); err != nil {
				return err
			}

		case unix.S_IFREG:
			entry := Entry{
				Path:      childRel,
				Kind:      KindFile,
				Mode:      fileModeFromUnix(st.Mode),
				UID:       st.Uid,
				GID:       st.Gid,
				Size:      st.Size,
				ModTimeNS: st.Mtim.Nano(),
			}
			if cached, ok := s.reusableDigest(childRel, st.Size, st.Mtim.Nano()); ok {
				entry.Digest = cached
				s.reused++
				s.entries = append(s.entries, entry)
				continue
			}
			s.entries = append(s.entries, entry)
			s.jobs = append(s.jobs, hashJob{
				entryIndex: len(s.entries) - 1,
				absPath:    childAbs,
			})

		case unix.S_IFLNK:
			target, err := os.Readlink(childAbs)
			if err != nil {
				s.record(childRel, causeOf(err), err)
				continue
			}
			s.entries = append(s.entries, Entry{
				Path:      childRel,
				Kind:      KindSymlink,
				UID:       st.Uid,
				GID:       st.Gid,
				ModTimeNS: st.Mtim.Nano(),
				Target:    target,
				Digest:    digest.Symlink(target),
			})

		default:
			s.record(childRel, CauseUnsupported, fmt.Errorf("unsupported file type %#o", st.Mode&unix.S_IFMT))
		}
	}
	return nil
}

// reusableDigest checks whether the baseline already knows this file's
// digest. Size and nanosecond mtime must match, and the mtime must
// predate the baseline scan: a file touched at or after that instant
// could have been modified within the timestamp's resolution window
// without the metadata changing, so it is re-read.
func (s *scanner) reusableDigest(rel string, size, mtimeNS int64) (digest.Digest, bool) {
	if s.baseline == nil {
		return digest.Zero, false
	}
	node, ok := s.baseline.Node(rel)
	if !ok || node.Kind != KindFile {
		return digest.Zero, false
	}
	if node.Size != size || node.ModTimeNS != mtimeNS {
		return digest.Zero, false
	}
	if mtimeNS >= s.baseline.ScannedAt.UnixNano() {
		return digest.Zero, false
	}
	return node.Digest, true
}

// hashFiles runs the collected jobs through a bounded worker pool.
// Workers write only their own entry's digest slot; entry order is
// fixed before the pool starts, so results assemble deterministically.
func (s *scanner) hashFiles(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return nil
	}

	jobs := make(chan hashJob)
	var wg sync.WaitGroup
	for range min(s.workers, len(s.jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				s.hashOne(job)
			}
		}()
	}

	var cancelled error
dispatch:
	for _, job := range s.jobs {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- job:
		}
	}
	close(jobs)
	wg.Wait()
	return cancelled
}

func (s *scanner) hashOne(job hashJob) {
	file, err := os.Open(job.absPath)
	if err != nil {
		s.recordLocked(s.entries[job.entryIndex].Path, job.entryIndex, err)
		return
	}
	defer file.Close()

	d, err := digest.File(file)
	if err != nil {
		s.recordLocked(s.entries[job.entryIndex].Path, job.entryIndex, err)
		return
	}
	s.entries[job.entryIndex].Digest = d
}

// record collects a per-path failure during the single-goroutine walk
// phase. The entry for the path was never appended, so nothing to drop.
func (s *scanner) record(rel string, cause ScanCause, err error) {
	s.errors = append(s.errors, ScanError{
		Path:  rel,
		Cause: cause,
		Err:   err,
	})
}

// recordLocked collects a failure from a hash worker and drops the
// affected entry.
func (s *scanner) recordLocked(rel string, entryIndex int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ScanError{
		Path:  rel,
		Cause: causeOf(err),
		Err:   err,
	})
	s.dropped[entryIndex] = true
}

func (s *scanner) excluded(rel, name string) bool {
	for _, pattern := range s.exclude {
		if matched, _ := path.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := path.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

func causeOf(err error) ScanCause {
	switch {
	case os.IsNotExist(err):
		return CauseNotFound
	case os.IsPermission(err):
		return CausePermissionDenied
	default:
		return CauseIO
	}
}

// fileModeFromUnix converts a raw lstat mode to the managed
// fs.FileMode bits: permissions plus setuid/setgid/sticky.
func fileModeFromUnix(raw uint32) fs.FileMode {
	mode := fs.FileMode(raw & 0o777)
	if raw&unix.S_ISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if raw&unix.S_ISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if raw&unix.S_ISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}
