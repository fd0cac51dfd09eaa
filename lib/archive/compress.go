// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the codec an archive was written with.
// The tag is recorded in the manifest; changing a value breaks
// extraction of existing archives.
type CompressionTag uint8

const (
	// CompressionNone stores the tar stream as-is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 wraps the tar stream in an LZ4 frame. Fast with
	// a modest ratio; a good choice when archives are read back often.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd compresses with zstd at the default level. Run
	// directories are mostly text (journals, rendered scripts, logs),
	// which zstd handles well. This is the default.
	CompressionZstd CompressionTag = 2
)

// DefaultCompression is the codec used when nothing is configured.
const DefaultCompression = CompressionZstd

// String returns the manifest name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// Extension returns the archive filename extension for a tag,
// including the leading ".tar".
func (tag CompressionTag) Extension() string {
	switch tag {
	case CompressionLZ4:
		return ".tar.lz4"
	case CompressionZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// nopWriteCloser adapts a plain writer for the CompressionNone path.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// newCompressor wraps w in the tag's stream compressor. The returned
// WriteCloser must be closed to flush the codec's trailer before the
// underlying file is closed.
func newCompressor(w io.Writer, tag CompressionTag) (io.WriteCloser, error) {
	switch tag {
	case CompressionNone:
		return nopWriteCloser{w}, nil

	case CompressionLZ4:
		return lz4.NewWriter(w), nil

	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// newDecompressor wraps r in the tag's stream decompressor. The
// returned close function releases codec resources and must be called
// even on error paths.
func newDecompressor(r io.Reader, tag CompressionTag) (io.Reader, func(), error) {
	switch tag {
	case CompressionNone:
		return r, func() {}, nil

	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
