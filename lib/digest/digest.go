// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes the content digests that steward's
// reconciliation engine compares. All digests are 32-byte BLAKE3 keyed
// hashes. Five domains keep the different kinds of input from ever
// colliding: file bytes, symlink targets, directory structure, per-node
// metadata folds, and the index cache payload. A regular file whose
// bytes happen to spell out a serialized directory listing must not
// compare equal to that directory, and a symlink whose target string
// equals a file's content must not compare equal to that file.
package digest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest. Equality of two digests from the
// same domain is the engine's only notion of content equality; digests
// are never truncated for comparison.
type Digest [32]byte

// Zero is the empty sentinel. Directory entries carry it in place of a
// content digest; their identity lives in the subtree digest instead.
var Zero Digest

// IsZero reports whether the digest is the empty sentinel.
func (d Digest) IsZero() bool {
	return d == Zero
}

// String returns the canonical hex encoding. Used in logs, cache
// inspection output, and test failure messages.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// digests in different contexts.
type domainKey [32]byte

// Domain separation keys. Fixed constants — changing one invalidates
// every digest in that domain, including persisted index caches. The
// byte values are the ASCII encoding of the domain name, zero-padded
// to 32 bytes, so the keys are readable in hex dumps without losing
// any cryptographic property (BLAKE3 keyed mode treats the key as an
// opaque 32-byte value).
var (
	fileDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.',
		'f', 'i', 'l', 'e', 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	symlinkDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.',
		's', 'y', 'm', 'l', 'i', 'n', 'k', 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	treeDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.',
		't', 'r', 'e', 'e', 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	nodeDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.',
		'n', 'o', 'd', 'e', 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	cacheDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.',
		'c', 'a', 'c', 'h', 'e', 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// FileBytes computes the file-domain digest of in-memory content.
func FileBytes(data []byte) Digest {
	return keyedHash(fileDomainKey, data)
}

// File streams reader content through the file-domain hasher. Memory
// use is constant regardless of file size.
func File(reader io.Reader) (Digest, error) {
	hasher := newKeyed(fileDomainKey)
	if _, err := io.Copy(hasher, reader); err != nil {
		return Zero, fmt.Errorf("hashing file content: %w", err)
	}
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d, nil
}

// Symlink computes the symlink-domain digest of a link's target
// string. The target is hashed as-is; the link is never dereferenced,
// so dangling and cyclic links digest the same way as valid ones.
func Symlink(target string) Digest {
	return keyedHash(symlinkDomainKey, []byte(target))
}

// Payload computes the cache-domain digest of a serialized index
// payload. Stored alongside the payload so corruption is detected on
// load.
func Payload(data []byte) Digest {
	return keyedHash(cacheDomainKey, data)
}

// Node computes the node-domain digest that a parent directory folds
// into its own tree digest for one child: the child's kind, managed
// mode bits, numeric owner, and content identity (content digest for
// files and symlinks, tree digest for directories). Wrapping metadata
// into the per-child digest is what makes a directory's tree digest
// change when any descendant's mode or ownership changes, not just its
// content.
func Node(kind uint8, mode, uid, gid uint32, content Digest) Digest {
	var buf [13 + 32]byte
	buf[0] = kind
	binary.BigEndian.PutUint32(buf[1:5], mode)
	binary.BigEndian.PutUint32(buf[5:9], uid)
	binary.BigEndian.PutUint32(buf[9:13], gid)
	copy(buf[13:], content[:])
	return keyedHash(nodeDomainKey, buf[:])
}

// Child is one direct child of a directory: its name and its
// node-domain digest from [Node].
type Child struct {
	Name   string
	Digest Digest
}

// Tree computes the tree-domain digest of a directory from its direct
// children. Children must already be sorted by name; the encoding is
// the uvarint length of each name followed by the name bytes and the
// raw child digest, concatenated in order. Length-prefixing the names
// keeps the encoding injective (("ab","c") and ("a","bc") hash
// differently), so the digest depends on both structure and content:
// renames, reorders, additions, and removals all change it.
//
// An empty child list is valid and yields the digest of the empty
// directory. Panics if the children are not sorted — call sites build
// the list from an already-sorted scan, so disorder is a bug.
func Tree(children []Child) Digest {
	hasher := newKeyed(treeDomainKey)
	var lengthBuf [binary.MaxVarintLen64]byte
	previousName := ""
	for i, child := range children {
		if i > 0 && child.Name <= previousName {
			panic("digest.Tree: children not sorted by name")
		}
		previousName = child.Name
		n := binary.PutUvarint(lengthBuf[:], uint64(len(child.Name)))
		hasher.Write(lengthBuf[:n])
		hasher.Write([]byte(child.Name))
		hasher.Write(child.Digest[:])
	}
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// Parse decodes a 64-character hex string into a Digest.
func Parse(hexString string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != 32 {
		return d, fmt.Errorf("digest is %d bytes, want 32", len(decoded))
	}
	copy(d[:], decoded)
	return d, nil
}

// keyedHash computes the BLAKE3 keyed hash of data under the given
// domain key.
func keyedHash(key domainKey, data []byte) Digest {
	hasher := newKeyed(key)
	hasher.Write(data)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// newKeyed constructs a BLAKE3 hasher for the given domain key.
// NewKeyed only fails on wrong key length, which domainKey's fixed
// size rules out.
func newKeyed(key domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
