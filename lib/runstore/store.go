// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstore persists the settings mappings published during a
// chain run. The resolver step publishes exactly one mapping per run;
// later steps read it through deferred references. Mappings are
// write-once per (run, step): a retry of a publishing step must not
// silently replace what earlier consumers already saw.
//
// Two implementations are provided. Memory backs tests and
// single-process runs. Redis backs daemon deployments where the chain
// may be inspected or resumed by another process.
package runstore

import (
	"context"
	"errors"

	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// ErrNotFound reports a read of a mapping no step has published.
var ErrNotFound = errors.New("runstore: mapping not found")

// ErrAlreadyPublished reports a second publish for the same
// (run, step) pair.
var ErrAlreadyPublished = errors.New("runstore: mapping already published")

// Store is the per-run settings archive.
//
// Publish stores the mapping a step produced for a run. It stores a
// snapshot: later mutation of the caller's map does not affect what
// readers see. Publishing twice for the same (run, step) fails with
// ErrAlreadyPublished and leaves the first mapping in place.
//
// Read returns a copy of the mapping published by stepID in runID,
// or ErrNotFound. Callers may freely mutate the returned map.
//
// Delete removes every mapping of a run. Deleting an unknown run is
// not an error.
type Store interface {
	Publish(ctx context.Context, runID, stepID string, mapping settings.Settings) error
	Read(ctx context.Context, runID, stepID string) (settings.Settings, error)
	Delete(ctx context.Context, runID string) error
}
