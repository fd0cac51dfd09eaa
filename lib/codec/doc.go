// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Conveyor's standard CBOR encoding configuration.
//
// Conveyor uses two serialization formats with a clear boundary:
//
//   - JSON for external and operator-facing surfaces: layer files
//     (JSONC), the run journal (JSONL), webhook notification bodies,
//     and CLI output.
//   - CBOR for internal storage: run-store values in the Redis adapter
//     and archive manifests, where deterministic bytes matter.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Conveyor package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which makes stored settings mappings and manifests
// byte-comparable across runs.
//
// For buffer-oriented operations (store values, manifests):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR.
//     Examples: stored run-store values, archive manifests.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: journal records that
//     also appear in CLI output.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract; doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
