// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"testing"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("single layer passes through", func(t *testing.T) {
		t.Parallel()

		merged := Merge(nil, Settings{"A": "1", "B": "2"})
		if merged["A"] != "1" {
			t.Errorf("A = %q, want %q", merged["A"], "1")
		}
		if merged["B"] != "2" {
			t.Errorf("B = %q, want %q", merged["B"], "2")
		}
	})

	t.Run("later layer wins", func(t *testing.T) {
		t.Parallel()

		defaults := Settings{"A": "1", "B": "2"}
		overrides := Settings{"B": "3"}

		merged := Merge(nil, defaults, overrides)
		if merged["A"] != "1" {
			t.Errorf("A = %q, want %q", merged["A"], "1")
		}
		if merged["B"] != "3" {
			t.Errorf("B = %q, want %q", merged["B"], "3")
		}
	})

	t.Run("override lookup wins over all layers", func(t *testing.T) {
		t.Parallel()

		defaults := Settings{"CB_BRANCH": "master"}
		chainLayer := Settings{"CB_BRANCH": "release-1.9"}
		lookup := func(name string) string {
			if name == "CB_BRANCH" {
				return "operator-branch"
			}
			return ""
		}

		merged := Merge(lookup, defaults, chainLayer)
		if merged["CB_BRANCH"] != "operator-branch" {
			t.Errorf("CB_BRANCH = %q, want %q", merged["CB_BRANCH"], "operator-branch")
		}
	})

	t.Run("empty override falls through to layers", func(t *testing.T) {
		t.Parallel()

		// The truthy-override policy: an override set to the empty
		// string is indistinguishable from an unset one and must NOT
		// clear the layered value. This exact behavior is load-bearing
		// for operator workflows; do not change it to presence-based
		// override without changing the release tooling contract.
		defaults := Settings{"CB_VERSION": "1.9.0"}
		lookup := func(name string) string { return "" }

		merged := Merge(lookup, defaults)
		if merged["CB_VERSION"] != "1.9.0" {
			t.Errorf("CB_VERSION = %q, want %q (empty override must not clear)", merged["CB_VERSION"], "1.9.0")
		}
	})

	t.Run("lookup only consulted for layered keys", func(t *testing.T) {
		t.Parallel()

		lookup := func(name string) string {
			if name == "UNRELATED" {
				return "should-not-appear"
			}
			return ""
		}

		merged := Merge(lookup, Settings{"A": "1"})
		if _, exists := merged["UNRELATED"]; exists {
			t.Error("UNRELATED should not be in merged map")
		}
	})

	t.Run("nil lookup applies no overrides", func(t *testing.T) {
		t.Parallel()

		merged := Merge(nil, Settings{"A": "1"}, Settings{"A": "2"})
		if merged["A"] != "2" {
			t.Errorf("A = %q, want %q", merged["A"], "2")
		}
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		t.Parallel()

		defaults := Settings{"A": "1"}
		overlay := Settings{"A": "2"}
		lookup := func(string) string { return "3" }

		merged := Merge(lookup, defaults, overlay)
		if merged["A"] != "3" {
			t.Errorf("merged A = %q, want %q", merged["A"], "3")
		}
		if defaults["A"] != "1" {
			t.Errorf("defaults mutated: A = %q, want %q", defaults["A"], "1")
		}
		if overlay["A"] != "2" {
			t.Errorf("overlay mutated: A = %q, want %q", overlay["A"], "2")
		}
	})

	t.Run("documented end-to-end scenario", func(t *testing.T) {
		t.Parallel()

		merged := Merge(
			func(string) string { return "" },
			Settings{"A": "1", "B": "2"},
			Settings{"B": "3"},
		)
		if merged["A"] != "1" || merged["B"] != "3" {
			t.Errorf("merged = %v, want {A:1 B:3}", merged)
		}
	})
}

func TestSettingsKeys(t *testing.T) {
	t.Parallel()

	s := Settings{"CB_B": "2", "LOCAL_A": "1", "CB_A": "3"}
	keys := s.Keys()

	want := []string{"CB_A", "CB_B", "LOCAL_A"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() returned %d keys, want %d", len(keys), len(want))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], key)
		}
	}
}

func TestSettingsClone(t *testing.T) {
	t.Parallel()

	original := Settings{"A": "1"}
	clone := original.Clone()
	clone["A"] = "changed"
	clone["B"] = "new"

	if original["A"] != "1" {
		t.Errorf("original mutated through clone: A = %q", original["A"])
	}
	if _, exists := original["B"]; exists {
		t.Error("original gained key B through clone")
	}

	var nilSettings Settings
	if cloned := nilSettings.Clone(); cloned == nil {
		t.Error("Clone of nil should return non-nil mapping")
	}
}
