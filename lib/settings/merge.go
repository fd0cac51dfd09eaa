// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package settings

// Merge combines configuration layers into one mapping. Layers apply
// in argument order, so callers pass them most-generic first: a later
// layer's definition of a key shadows an earlier layer's. The
// overrides lookup is consulted for every key in the union and wins
// over all layers, but only when it returns a non-empty value.
//
// The non-empty check is deliberate and matches the release tooling
// this pipeline grew out of: an operator override set to the empty
// string means "use the configured default", not "explicitly clear
// the setting". An empty override is indistinguishable from an unset
// one.
//
// The overrides function is typically os.Getenv in the daemon, or a
// map lookup in tests. It is only consulted for keys defined by some
// layer; the process environment is never swept wholesale into the
// result. A nil overrides function applies no overrides. Merge is
// pure: no input layer is modified, and the result is freshly
// allocated.
func Merge(overrides func(string) string, layers ...Settings) Settings {
	merged := make(Settings)
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}

	if overrides != nil {
		for key := range merged {
			if value := overrides(key); value != "" {
				merged[key] = value
			}
		}
	}

	return merged
}
