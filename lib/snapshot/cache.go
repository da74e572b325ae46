// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/steward/lib/codec"
	"github.com/bureau-foundation/steward/lib/digest"
)

// Cache container constants. The magic string and version are checked
// on load; any mismatch discards the cache and the run falls back to a
// full scan. Bumping cacheVersion is the mechanism for breaking
// payload changes.
const (
	cacheMagic   = "stewardidx"
	cacheVersion = 1
)

// CacheCause classifies why a cache file was rejected.
type CacheCause uint8

const (
	// CacheCorrupt: bad magic, failed checksum, undecodable payload,
	// or a malformed entry list. The file is not trusted in any part.
	CacheCorrupt CacheCause = iota

	// CacheVersionMismatch: written by an incompatible steward
	// version.
	CacheVersionMismatch

	// CacheRootMismatch: the cache describes a different target root.
	CacheRootMismatch
)

// String returns the cause name used in logs.
func (c CacheCause) String() string {
	switch c {
	case CacheCorrupt:
		return "corrupt"
	case CacheVersionMismatch:
		return "version-mismatch"
	case CacheRootMismatch:
		return "root-mismatch"
	default:
		return "unknown"
	}
}

// CacheError reports a rejected cache file. It is never fatal: callers
// log it, discard the cache, and scan from scratch.
type CacheError struct {
	Cause  CacheCause
	Detail string
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("index cache %s: %s", e.Cause, e.Detail)
}

// cacheEnvelope is the on-disk container. The payload checksum is
// computed over the stored (compressed) bytes so corruption is caught
// before any decompression or decoding runs. The format is internal to
// steward and deliberately not portable.
type cacheEnvelope struct {
	Magic       string         `cbor:"magic"`
	Version     uint32         `cbor:"version"`
	Root        string         `cbor:"root"`
	ScannedAtNS int64          `cbor:"scanned_at_ns"`
	Compression CompressionTag `cbor:"compression"`
	PayloadSize int64          `cbor:"payload_size"`
	PayloadSum  digest.Digest  `cbor:"payload_sum"`
	Payload     []byte         `cbor:"payload"`
}

// cachePayload is the compressed body: the sorted entry list, from
// which the full index (child adjacency, subtree digests) is rebuilt
// on load without touching file contents.
type cachePayload struct {
	Entries []Entry `cbor:"entries"`
}

// SaveCache atomically persists the index for the next run. The file
// is written beside its final path and renamed into place so readers
// never observe a partial cache.
func SaveCache(cachePath string, index *Index) error {
	payload, err := codec.Marshal(cachePayload{Entries: index.sortedEntries()})
	if err != nil {
		return fmt.Errorf("encoding index cache payload: %w", err)
	}

	compressed, tag := compressPayload(payload)
	envelope, err := codec.Marshal(cacheEnvelope{
		Magic:       cacheMagic,
		Version:     cacheVersion,
		Root:        index.Root,
		ScannedAtNS: index.ScannedAt.UnixNano(),
		Compression: tag,
		PayloadSize: int64(len(payload)),
		PayloadSum:  digest.Payload(compressed),
		Payload:     compressed,
	})
	if err != nil {
		return fmt.Errorf("encoding index cache: %w", err)
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "index-*.cache")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(envelope); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing index cache: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return fmt.Errorf("renaming index cache to %s: %w", cachePath, err)
	}

	success = true
	return nil
}

// LoadCache reads a persisted index and validates it against root, the
// absolute target root the caller is about to scan. Rejections come
// back as *CacheError; a missing file comes back wrapping
// fs.ErrNotExist. Either way the caller proceeds with a full scan.
func LoadCache(cachePath, root string) (*Index, error) {
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, fmt.Errorf("reading index cache: %w", err)
	}

	envelope, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if envelope.Root != root {
		return nil, &CacheError{
			Cause:  CacheRootMismatch,
			Detail: fmt.Sprintf("cache is for %s, scanning %s", envelope.Root, root),
		}
	}
	return rebuildIndex(envelope)
}

// decodeEnvelope parses the outer container and checks magic and
// version. Root and payload validation are rebuildIndex's job.
func decodeEnvelope(data []byte) (*cacheEnvelope, error) {
	var envelope cacheEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, &CacheError{Cause: CacheCorrupt, Detail: fmt.Sprintf("undecodable envelope: %v", err)}
	}
	if envelope.Magic != cacheMagic {
		return nil, &CacheError{Cause: CacheCorrupt, Detail: fmt.Sprintf("bad magic %q", envelope.Magic)}
	}
	if envelope.Version != cacheVersion {
		return nil, &CacheError{
			Cause:  CacheVersionMismatch,
			Detail: fmt.Sprintf("cache version %d, this steward writes %d", envelope.Version, cacheVersion),
		}
	}
	return &envelope, nil
}

// rebuildIndex verifies the payload checksum, decompresses the entry
// list, and reassembles the index. The checksum key is a public
// constant, so it only catches accidental damage; the entry list is
// still validated in full before Build sees it. Every path must be a
// valid fs path and strictly greater than its predecessor: a duplicate
// or unclean path would corrupt the Merkle reassembly, so it is
// rejected the same way a misordered one is.
func rebuildIndex(envelope *cacheEnvelope) (*Index, error) {
	if digest.Payload(envelope.Payload) != envelope.PayloadSum {
		return nil, &CacheError{Cause: CacheCorrupt, Detail: "payload checksum mismatch"}
	}

	payload, err := decompressPayload(envelope.Payload, envelope.Compression, int(envelope.PayloadSize))
	if err != nil {
		return nil, &CacheError{Cause: CacheCorrupt, Detail: err.Error()}
	}

	var body cachePayload
	if err := codec.Unmarshal(payload, &body); err != nil {
		return nil, &CacheError{Cause: CacheCorrupt, Detail: fmt.Sprintf("undecodable payload: %v", err)}
	}
	for i, entry := range body.Entries {
		if !fs.ValidPath(entry.Path) {
			return nil, &CacheError{Cause: CacheCorrupt, Detail: fmt.Sprintf("invalid entry path %q", entry.Path)}
		}
		if i > 0 && strings.Compare(body.Entries[i-1].Path, entry.Path) >= 0 {
			return nil, &CacheError{Cause: CacheCorrupt, Detail: "entries out of order or duplicated"}
		}
	}

	return Build(&Snapshot{
		Root:      envelope.Root,
		ScannedAt: time.Unix(0, envelope.ScannedAtNS),
		Entries:   body.Entries,
	}), nil
}

// CacheInfo summarizes a cache file for inspection output.
type CacheInfo struct {
	Root        string
	ScannedAt   time.Time
	Compression CompressionTag
	PayloadSize int64
	FileSize    int64
	Entries     int
	RootDigest  digest.Digest
}

// InspectCache loads a cache without a root expectation and reports
// its header fields and node count.
func InspectCache(cachePath string) (*CacheInfo, error) {
	stat, err := os.Stat(cachePath)
	if err != nil {
		return nil, fmt.Errorf("inspecting index cache: %w", err)
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, fmt.Errorf("reading index cache: %w", err)
	}
	envelope, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	index, err := rebuildIndex(envelope)
	if err != nil {
		return nil, err
	}

	return &CacheInfo{
		Root:        envelope.Root,
		ScannedAt:   time.Unix(0, envelope.ScannedAtNS),
		Compression: envelope.Compression,
		PayloadSize: envelope.PayloadSize,
		FileSize:    stat.Size(),
		Entries:     index.Len(),
		RootDigest:  index.RootDigest(),
	}, nil
}

// sortedEntries flattens the index back to the sorted entry list the
// cache payload stores.
func (x *Index) sortedEntries() []Entry {
	entries := make([]Entry, 0, len(x.nodes))
	for _, node := range x.nodes {
		entries = append(entries, node.Entry)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return entries
}
