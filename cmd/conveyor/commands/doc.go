// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the conveyor CLI command tree and the
// system assembly behind it. Both the conveyor CLI binary and the
// conveyor-daemon binary import this package: the CLI for the command
// tree and one-shot runs, the daemon for [Assemble] and [System], so
// a chain runs identically whether an operator fires it by hand or
// the scheduler fires it on its slot.
package commands
