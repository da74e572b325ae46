// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleNode mirrors the shape of a cache payload record: string paths,
// small integers, and fixed-width digest bytes.
type sampleNode struct {
	Path   string   `cbor:"path"`
	Kind   uint8    `cbor:"kind"`
	Mode   uint32   `cbor:"mode"`
	Size   int64    `cbor:"size,omitempty"`
	Digest [32]byte `cbor:"digest"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleNode{
		Path: "etc/ssh/sshd_config",
		Kind: 1,
		Mode: 0o600,
		Size: 3244,
	}
	for i := range original.Digest {
		original.Digest[i] = byte(i)
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleNode
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Checksum stability depends on identical bytes for identical data.
	// Maps are the risky case: without deterministic encoding, key order
	// would follow Go's randomized map iteration.
	table := map[string]sampleNode{}
	for _, path := range []string{"zsh/zshrc", "bash/bashrc", "vim/vimrc", "git/config"} {
		table[path] = sampleNode{Path: path, Kind: 1, Mode: 0o644}
	}

	first, err := Marshal(table)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(table)
		if err != nil {
			t.Fatalf("Marshal attempt %d: %v", i, err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal attempt %d produced different bytes for the same map", i)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// Forward compatibility: a payload with extra fields still decodes.
	extended := struct {
		Path  string `cbor:"path"`
		Kind  uint8  `cbor:"kind"`
		Extra string `cbor:"extra"`
	}{Path: "etc/motd", Kind: 1, Extra: "from a newer writer"}

	data, err := Marshal(extended)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleNode
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Path != "etc/motd" {
		t.Errorf("Path = %q, want %q", decoded.Path, "etc/motd")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var decoded sampleNode
	if err := Unmarshal([]byte{0xff, 0xff, 0xff}, &decoded); err == nil {
		t.Error("Unmarshal accepted garbage bytes")
	}
}
