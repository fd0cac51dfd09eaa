// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings implements the configuration model of a release
// chain: layered merge of configuration mappings, one-shot resolution
// of the final per-run mapping, and deferred references that read
// fields out of that mapping at step-execution time.
//
// The lifecycle is:
//
//  1. Layers are authored as JSONC files and loaded with ReadLayerFile.
//  2. Merge combines the layers with an operator override lookup into
//     one mapping (later layers win; overrides win when non-empty).
//  3. A Resolver runs once at the start of each run, applies the
//     chain's derivation hook, and produces the final Settings. The
//     runner publishes the result to the run store.
//  4. Downstream step commands embed ${NAME} references created at
//     chain-construction time; the runner substitutes them with Render
//     immediately before each step executes, reading the published
//     mapping.
package settings

import "sort"

// Settings is a resolved configuration mapping for one run. Values
// are always strings: everything in the mapping either becomes a
// shell export or an object-store location component.
//
// A published Settings is immutable for the remainder of its run.
// Helpers that hand mappings across package boundaries copy first.
type Settings map[string]string

// Keys returns the setting names in lexicographic order. Sorted
// iteration keeps generated scripts and printed output deterministic.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the mapping. Clone of nil
// returns an empty, non-nil mapping.
func (s Settings) Clone() Settings {
	clone := make(Settings, len(s))
	for key, value := range s {
		clone[key] = value
	}
	return clone
}
