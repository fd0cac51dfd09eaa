// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a Copier over a local directory tree. A Location maps to
// root/bucket/path. Buckets are plain subdirectories; nothing creates
// them up front, the first copy into a bucket does.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at the given directory.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// ObjectPath returns the filesystem path backing a location.
func (d *Dir) ObjectPath(l Location) string {
	return filepath.Join(d.root, l.Bucket, filepath.FromSlash(l.Path))
}

// Copy implements Copier. A file source copies one file; a directory
// source mirrors the whole tree. Existing destination files are
// overwritten.
func (d *Dir) Copy(_ context.Context, src, dst Location) error {
	srcPath := d.ObjectPath(src)
	dstPath := d.ObjectPath(dst)

	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("reading source %s: %w", src, err)
	}
	if !info.IsDir() {
		return copyFile(srcPath, dstPath)
	}

	return filepath.WalkDir(srcPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relative := strings.TrimPrefix(path, srcPath+string(filepath.Separator))
		return copyFile(path, filepath.Join(dstPath, relative))
	})
}

func copyFile(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	source, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return fmt.Errorf("copying %s: %w", filepath.Base(srcPath), err)
	}
	return destination.Close()
}
