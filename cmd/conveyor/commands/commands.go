// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/version"
)

// Root builds and returns the complete conveyor CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "conveyor",
		Description: `Conveyor: scheduled release chains.

Resolve layered release settings, run the build-test-promote chain
for each release flavor, and archive the run directories. The daemon
fires chains on their cron slots; this CLI inspects, validates, and
runs the same chains by hand.`,
		Subcommands: []*cli.Command{
			chainCommand(),
			settingsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string) error {
					fmt.Printf("conveyor %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "List the configured chains and their next slots",
				Command:     "conveyor chain list",
			},
			{
				Description: "Run a chain immediately with a pinned version",
				Command:     "conveyor chain run daily-release --set CB_VERSION=1.24-alpha.f8a2c1",
			},
			{
				Description: "Show the settings a scheduled run would see",
				Command:     "conveyor settings resolve daily-release",
			},
		},
	}
}
