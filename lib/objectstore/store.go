// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectstore moves release artifacts between object storage
// locations. The release chain uses it once, at the end of a run, to
// promote the staged build tree from the build bucket into the
// release staging bucket under the same path.
//
// GSUtil shells out to the gsutil CLI the same way lib/git wraps git.
// Dir implements the same contract on a local directory for tests and
// dry runs.
package objectstore

import "context"

// Location identifies an object tree as (bucket, path). Path uses
// forward slashes and never starts with one.
type Location struct {
	Bucket string
	Path   string
}

// URI returns the gs:// form of the location.
func (l Location) URI() string {
	if l.Path == "" {
		return "gs://" + l.Bucket
	}
	return "gs://" + l.Bucket + "/" + l.Path
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return l.URI()
}

// Copier mirrors the object tree at src under dst. Objects keep their
// names relative to the source path. Copying to a destination that
// already holds objects overwrites on name collision.
type Copier interface {
	Copy(ctx context.Context, src, dst Location) error
}
