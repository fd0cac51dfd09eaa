// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI. Conveyor uses it
// on the resolver side of a run: Remote pins branch heads to commit
// hashes before any shell step executes, and Repository inspects the
// release-tools clone a finished run leaves in its working directory.
// The clone itself happens in shell, inside the bootstrap preamble.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Remote represents a git remote by URL. Operations query the remote
// directly; no local clone is involved.
type Remote struct {
	url string
}

// NewRemote returns a Remote for the given URL.
func NewRemote(url string) *Remote {
	return &Remote{url: url}
}

// URL returns the remote URL.
func (r *Remote) URL() string {
	return r.url
}

// Head resolves ref (a branch or tag name) to the commit hash at the
// remote's tip. Returns an error if the remote has no such ref.
func (r *Remote) Head(ctx context.Context, ref string) (string, error) {
	output, err := run(ctx, "ls-remote", r.url, ref)
	if err != nil {
		return "", err
	}

	// ls-remote prints "<hash>\t<refname>" per matching ref. The name
	// match is exact apart from the refs/heads/ or refs/tags/ prefix,
	// so the first line is the answer.
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	hash, _, found := strings.Cut(line, "\t")
	if !found || hash == "" {
		return "", fmt.Errorf("git: remote %s has no ref %q", r.url, ref)
	}
	return hash, nil
}

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory — callers must always specify which checkout they
// mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	output, err := run(ctx, fullArgs...)
	if err != nil {
		return "", fmt.Errorf("%w (in %s)", err, r.dir)
	}
	return output, nil
}

// HeadCommit returns the commit hash the checkout is at.
func (r *Repository) HeadCommit(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// IsHash reports whether s is a full 40-character commit hash. The
// resolver uses it to decide whether a configured commit needs pinning
// or is already exact.
func IsHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// run executes a git command and returns stdout. Stderr is captured
// into the error on failure.
func run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
