// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GSUtil is a Copier backed by the gsutil CLI. The zero value runs
// "gsutil" from PATH. Credentials and retry behavior are whatever the
// host's gsutil configuration provides; this wrapper adds nothing on
// top.
type GSUtil struct {
	// Binary overrides the executable. Empty means "gsutil".
	Binary string
}

// Copy implements Copier with "gsutil -m -q cp -r". The destination
// path must not already exist as a directory-like prefix: gsutil
// nests the source under it instead of mirroring, so promote into a
// fresh path.
func (g *GSUtil) Copy(ctx context.Context, src, dst Location) error {
	_, err := g.run(ctx, "-m", "-q", "cp", "-r", src.URI(), dst.URI())
	return err
}

func (g *GSUtil) run(ctx context.Context, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "gsutil"
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("gsutil %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
