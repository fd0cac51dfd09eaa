// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs a finished run's working directory (journal,
// rendered scripts, logs, the release-tools clone) into a single
// compressed tar file with a CBOR manifest carrying a keyed BLAKE3
// digest. The daemon writes one archive per run; Verify and Extract
// support later inspection.
package archive

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Create archives sourceDir into archivePath using the given codec
// and returns the manifest for the new archive. The caller fills in
// the run identity before persisting the manifest.
func Create(sourceDir, archivePath string, tag CompressionTag) (*Manifest, error) {
	file, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	hasher := newArchiveHasher()
	compressor, err := newCompressor(io.MultiWriter(file, hasher), tag)
	if err != nil {
		file.Close()
		return nil, err
	}
	tarWriter := tar.NewWriter(compressor)

	fileCount, err := writeTree(tarWriter, sourceDir)
	if err != nil {
		tarWriter.Close()
		compressor.Close()
		file.Close()
		return nil, fmt.Errorf("archiving %s: %w", sourceDir, err)
	}

	// Close order matters: the tar trailer must land inside the
	// codec stream, and the codec trailer inside the file.
	if err := tarWriter.Close(); err != nil {
		compressor.Close()
		file.Close()
		return nil, fmt.Errorf("finishing archive: %w", err)
	}
	if err := compressor.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("finishing archive: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("finishing archive: %w", err)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("sizing archive: %w", err)
	}

	return &Manifest{
		CreatedAt:   time.Now().UTC(),
		Compression: tag.String(),
		Digest:      hex.EncodeToString(hasher.Sum(nil)),
		ArchiveSize: stat.Size(),
		FileCount:   fileCount,
	}, nil
}

// writeTree walks sourceDir into the tar stream and returns the
// number of regular files written. Sockets and other irregular
// entries are skipped; symlinks are preserved as links.
func writeTree(tarWriter *tar.Writer, sourceDir string) (int, error) {
	fileCount := 0
	err := filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		link := ""
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		case !info.Mode().IsRegular() && !info.IsDir():
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			source, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tarWriter, source)
			source.Close()
			if err != nil {
				return err
			}
			fileCount++
		}
		return nil
	})
	return fileCount, err
}

// Extract unpacks an archive into destDir, creating it if needed. The
// tag must match the one the archive was created with (recorded in
// the manifest). Entry paths are confined to destDir; an entry that
// would escape fails the extraction.
func Extract(archivePath, destDir string, tag CompressionTag) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	decompressor, release, err := newDecompressor(file, tag)
	if err != nil {
		return err
	}
	defer release()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}

	tarReader := tar.NewReader(decompressor)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := filepath.FromSlash(header.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the destination", header.Name)
		}
		target := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode).Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			if _, err := io.Copy(out, tarReader); err != nil {
				out.Close()
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		}
	}
}
