// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the algorithm applied to the cache
// payload. Stored in the cache envelope (1 byte) — these values are
// format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the payload as-is. Chosen when the
	// payload does not shrink under compression (tiny indexes).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is used for small payloads, where decode latency
	// dominates and LZ4's speed beats zstd's ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is used for large payloads. CBOR entry tables
	// are highly repetitive (shared path prefixes, runs of identical
	// modes and owners), so the ratio gain is worth the CPU.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// lz4SizeCutoff is the payload size below which LZ4 is preferred over
// zstd on save.
const lz4SizeCutoff = 64 * 1024

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses the serialized payload, choosing LZ4 for
// small payloads and zstd for large ones. Falls back to storing
// uncompressed when compression does not shrink the data.
func compressPayload(data []byte) ([]byte, CompressionTag) {
	if len(data) < lz4SizeCutoff {
		bound := lz4.CompressBlockBound(len(data))
		compressed := make([]byte, bound)
		written, err := lz4.CompressBlock(data, compressed, nil)
		// CompressBlock signals incompressible data with written == 0.
		if err == nil && written > 0 && written < len(data) {
			return compressed[:written], CompressionLZ4
		}
		return data, CompressionNone
	}

	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, CompressionNone
	}
	return compressed, CompressionZstd
}

// decompressPayload reverses compressPayload. The uncompressed size
// comes from the envelope and must match exactly.
func decompressPayload(data []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload is %d bytes, envelope says %d", len(data), uncompressedSize)
		}
		return data, nil

	case CompressionLZ4:
		out := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, envelope says %d", read, uncompressedSize)
		}
		return out, nil

	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, envelope says %d", len(out), uncompressedSize)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression tag %d", uint8(tag))
	}
}
