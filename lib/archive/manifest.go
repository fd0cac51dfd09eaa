// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/conveyor-foundation/conveyor/lib/codec"
)

// archiveDomainKey is the BLAKE3 keyed-hash domain for archive
// digests. The bytes are the ASCII encoding of "conveyor.archive",
// zero-padded to 32 bytes, so the key is readable in hex dumps.
// Changing it invalidates every recorded digest.
var archiveDomainKey = [32]byte{
	'c', 'o', 'n', 'v', 'e', 'y', 'o', 'r', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Manifest describes one archived run directory. It is written as
// CBOR next to the archive and is the source of truth for the codec
// and the integrity digest.
type Manifest struct {
	// Chain and RunID identify the run the archive belongs to.
	Chain string `cbor:"chain"`
	RunID string `cbor:"run_id"`

	// CreatedAt is when the archive was written. UTC.
	CreatedAt time.Time `cbor:"created_at"`

	// Compression is the codec tag name ("none", "lz4", "zstd").
	Compression string `cbor:"compression"`

	// Digest is the hex BLAKE3 keyed digest of the archive file's
	// bytes (post-compression), in the conveyor.archive domain.
	Digest string `cbor:"digest"`

	// ArchiveSize is the archive file's size in bytes.
	ArchiveSize int64 `cbor:"archive_size"`

	// FileCount is the number of regular files archived.
	FileCount int `cbor:"file_count"`
}

// WriteManifest writes the manifest as CBOR to path.
func WriteManifest(path string, manifest *Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest reads a CBOR manifest from path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &manifest, nil
}

// Verify re-digests the archive file and checks it against the
// manifest's digest and size. A mismatch means the archive was
// truncated or altered after it was written.
func Verify(archivePath string, manifest *Manifest) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	hasher := newArchiveHasher()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return fmt.Errorf("digesting archive: %w", err)
	}

	if size != manifest.ArchiveSize {
		return fmt.Errorf("archive %s is %d bytes, manifest says %d", archivePath, size, manifest.ArchiveSize)
	}
	if digest := hex.EncodeToString(hasher.Sum(nil)); digest != manifest.Digest {
		return fmt.Errorf("archive %s digest %s does not match manifest %s", archivePath, digest, manifest.Digest)
	}
	return nil
}

// newArchiveHasher returns a BLAKE3 hasher keyed for the archive
// domain.
func newArchiveHasher() *blake3.Hasher {
	hasher, err := blake3.NewKeyed(archiveDomainKey[:])
	if err != nil {
		// NewKeyed fails only on wrong key length; the fixed-size
		// array rules that out.
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
