// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the Conveyor
// daemon and CLI.
//
// Configuration is loaded from a single file specified by either the
// CONVEYOR_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// Variable expansion is performed on path and credential fields after
// loading: ${HOME}, ${CONVEYOR_ROOT}, and ${VAR:-default} patterns
// are expanded. No other environment variables override config
// values; operator overrides of release settings flow through the
// settings resolver's own override layer instead.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Store, Notify, Archive,
//     Copier, Runner, and the Chains list
//   - [Default] -- returns a Config with single-host defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends only on the leaf cron and archive packages,
// for validating schedules and compression names.
package config
