// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides steward's standard CBOR encoding configuration.
//
// steward serializes exactly one thing as CBOR: the index cache payload
// (lib/snapshot). The cache container stores a checksum computed over
// the serialized bytes, so encoding must be deterministic or checksums
// would change between runs with no state change. The encoder therefore
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. Same logical
// data always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Cache types use `cbor` struct tags; they never serialize as JSON.
package codec
