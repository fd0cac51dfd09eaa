// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"context"
	"fmt"
	"time"
)

// Trigger carries the runtime context of one run into settings
// resolution: the run's identity, the schedule slot that fired it,
// and any operator-supplied parameters from a manual trigger.
type Trigger struct {
	// RunID uniquely identifies the run. Store entries for the run
	// are keyed by it, so concurrent runs never share a mapping.
	RunID string

	// ScheduledFor is the schedule slot that fired the run, or the
	// trigger time for manual runs. Always UTC.
	ScheduledFor time.Time

	// Params are operator-supplied key-value parameters from a
	// manual trigger. Empty for scheduled runs.
	Params map[string]string
}

// DeriveFunc extends a merged configuration with computed fields.
// It receives the merged layers and the run's trigger and returns
// the fields to overlay: version numbers computed from the schedule
// slot, commit hashes pinned from a remote, storage paths derived
// from other settings. Returned fields win over merged ones.
//
// A DeriveFunc must be pure apart from reads: it runs exactly once
// per run and its output becomes part of the immutable published
// mapping.
type DeriveFunc func(ctx context.Context, trigger Trigger, merged Settings) (Settings, error)

// Resolver computes the final settings mapping for a run. It is the
// chain's first step: the runner calls Resolve exactly once per run
// and publishes the result to the run store. Nothing is published on
// error, so no partial mapping is ever visible to downstream steps.
type Resolver struct {
	// Layers are the configuration layers, most-generic first.
	Layers []Settings

	// Overrides is the operator override lookup consulted by Merge.
	// Typically os.Getenv in the daemon. May be nil.
	Overrides func(string) string

	// Derive optionally extends the merged configuration with
	// computed fields. May be nil.
	Derive DeriveFunc
}

// Resolve merges the layers and overrides, applies the derivation
// hook, and returns the final mapping. The returned Settings is
// freshly allocated and safe for the caller to publish as the run's
// immutable mapping.
func (r *Resolver) Resolve(ctx context.Context, trigger Trigger) (Settings, error) {
	merged := Merge(r.Overrides, r.Layers...)

	if r.Derive != nil {
		derived, err := r.Derive(ctx, trigger, merged.Clone())
		if err != nil {
			return nil, fmt.Errorf("deriving settings: %w", err)
		}
		for key, value := range derived {
			merged[key] = value
		}
	}

	return merged, nil
}
