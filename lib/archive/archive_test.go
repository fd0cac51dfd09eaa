// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// runDirFixture builds a directory shaped like a finished run's
// working directory and returns its path with the expected contents.
func runDirFixture(t *testing.T) (string, map[string]string) {
	t.Helper()

	contents := map[string]string{
		"journal.jsonl":        `{"step":"build","status":"succeeded"}` + "\n",
		"scripts/preamble.sh":  "cat << EOF > \"/tmp/cb_env.sh\"\nexport CB_VERSION=1.2.3\nEOF\n",
		"logs/build.log":       strings.Repeat("gsutil -q cp done\n", 200),
		"release-code/run.txt": "helpers\n",
	}

	dir := t.TempDir()
	for name, body := range contents {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir, contents
}

func TestArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		tag := tag
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()

			sourceDir, contents := runDirFixture(t)
			archivePath := filepath.Join(t.TempDir(), "run.tar")

			manifest, err := Create(sourceDir, archivePath, tag)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if manifest.Compression != tag.String() {
				t.Errorf("Compression = %q, want %q", manifest.Compression, tag.String())
			}
			if manifest.FileCount != len(contents) {
				t.Errorf("FileCount = %d, want %d", manifest.FileCount, len(contents))
			}
			if manifest.ArchiveSize <= 0 {
				t.Errorf("ArchiveSize = %d", manifest.ArchiveSize)
			}
			if len(manifest.Digest) != 64 {
				t.Errorf("Digest = %q, want 64 hex characters", manifest.Digest)
			}
			if manifest.CreatedAt.IsZero() || manifest.CreatedAt.Location() != time.UTC {
				t.Errorf("CreatedAt = %v", manifest.CreatedAt)
			}

			if err := Verify(archivePath, manifest); err != nil {
				t.Errorf("Verify: %v", err)
			}

			destDir := filepath.Join(t.TempDir(), "restored")
			if err := Extract(archivePath, destDir, tag); err != nil {
				t.Fatalf("Extract: %v", err)
			}
			for name, want := range contents {
				got, err := os.ReadFile(filepath.Join(destDir, filepath.FromSlash(name)))
				if err != nil {
					t.Fatalf("restored %s: %v", name, err)
				}
				if string(got) != want {
					t.Errorf("restored %s differs from original", name)
				}
			}
		})
	}
}

func TestArchiveCompressionShrinksText(t *testing.T) {
	t.Parallel()

	sourceDir, _ := runDirFixture(t)

	plainPath := filepath.Join(t.TempDir(), "run.tar")
	plain, err := Create(sourceDir, plainPath, CompressionNone)
	if err != nil {
		t.Fatalf("Create(none): %v", err)
	}

	zstdPath := filepath.Join(t.TempDir(), "run.tar.zst")
	compressed, err := Create(sourceDir, zstdPath, CompressionZstd)
	if err != nil {
		t.Fatalf("Create(zstd): %v", err)
	}

	if compressed.ArchiveSize >= plain.ArchiveSize {
		t.Errorf("zstd archive is %d bytes, uncompressed is %d", compressed.ArchiveSize, plain.ArchiveSize)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()

	sourceDir, _ := runDirFixture(t)
	archivePath := filepath.Join(t.TempDir(), "run.tar.zst")

	manifest, err := Create(sourceDir, archivePath, CompressionZstd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	file, err := os.OpenFile(archivePath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := file.Write([]byte{0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := Verify(archivePath, manifest); err == nil {
		t.Error("Verify accepted a tampered archive")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()

	want := &Manifest{
		Chain:       "daily-release",
		RunID:       "run-1",
		CreatedAt:   time.Date(2026, 3, 14, 9, 42, 0, 0, time.UTC),
		Compression: "zstd",
		Digest:      strings.Repeat("ab", 32),
		ArchiveSize: 4096,
		FileCount:   7,
	}

	path := filepath.Join(t.TempDir(), "run.manifest")
	if err := WriteManifest(path, want); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if *got != *want {
		t.Errorf("manifest = %+v, want %+v", got, want)
	}
}

func TestArchivePreservesSymlinks(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "cb_env.sh"), []byte("export CB_BRANCH=master\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink("cb_env.sh", filepath.Join(sourceDir, "latest_env.sh")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "run.tar")
	manifest, err := Create(sourceDir, archivePath, CompressionNone)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// The symlink is preserved as a link, not counted as a file.
	if manifest.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", manifest.FileCount)
	}

	destDir := filepath.Join(t.TempDir(), "restored")
	if err := Extract(archivePath, destDir, CompressionNone); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	target, err := os.Readlink(filepath.Join(destDir, "latest_env.sh"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "cb_env.sh" {
		t.Errorf("link target = %q, want cb_env.sh", target)
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	archivePath := filepath.Join(t.TempDir(), "evil.tar")
	file, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tarWriter := tar.NewWriter(file)
	body := []byte("owned")
	if err := tarWriter.WriteHeader(&tar.Header{
		Name: "../escape.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body)),
	}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tarWriter.Write(body); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("file Close: %v", err)
	}

	parent := t.TempDir()
	destDir := filepath.Join(parent, "dest")
	if err := Extract(archivePath, destDir, CompressionNone); err == nil {
		t.Fatal("Extract accepted an escaping entry")
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.txt")); err == nil {
		t.Error("escaping entry was written outside the destination")
	}
}

func TestParseCompressionTag(t *testing.T) {
	t.Parallel()

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Errorf("ParseCompressionTag(%q): %v", tag.String(), err)
		}
		if parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %v, want %v", tag.String(), parsed, tag)
		}
	}

	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag accepted an unknown tag")
	}
}

func TestCompressionTagExtension(t *testing.T) {
	t.Parallel()

	want := map[CompressionTag]string{
		CompressionNone: ".tar",
		CompressionLZ4:  ".tar.lz4",
		CompressionZstd: ".tar.zst",
	}
	for tag, extension := range want {
		if got := tag.Extension(); got != extension {
			t.Errorf("%s.Extension() = %q, want %q", tag, got, extension)
		}
	}
}
