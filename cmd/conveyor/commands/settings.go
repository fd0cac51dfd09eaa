// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// settingsCommand returns the "settings" subcommand group.
func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:    "settings",
		Summary: "Inspect resolved release settings",
		Description: `Resolve a chain's settings the way a run would, without running
anything. Useful for checking what a layered configuration plus
environment overrides and derivations actually produces.`,
		Subcommands: []*cli.Command{
			resolveCommand(),
		},
	}
}

func resolveCommand() *cli.Command {
	var (
		configPath string
		setFlags   []string
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "resolve",
		Summary: "Print a chain's resolved settings mapping",
		Description: `Merge the chain's settings layers, apply environment overrides and
the flavor's derivations, and print the resulting mapping. The
derivations run for real: a pin_commit chain queries the remote for
the exact commit a run started now would build.

Nothing is published to the run store.`,
		Usage: "conveyor settings resolve [flags] NAME",
		Examples: []cli.Example{
			{
				Description: "Show the mapping a daily run would see",
				Command:     "conveyor settings resolve daily-release",
			},
			{
				Description: "Preview a respin with an operator override",
				Command:     "conveyor settings resolve monthly-release --set CB_VERSION=1.24.2",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "configuration file (default $CONVEYOR_CONFIG)")
			flags.StringArrayVar(&setFlags, "set", nil, "settings override (K=V, repeatable)")
			flags.BoolVar(&jsonOutput, "json", false, "print the mapping as JSON")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor settings resolve NAME")
			}
			params, err := parseSetFlags(setFlags)
			if err != nil {
				return err
			}

			sys, err := assemble(configPath)
			if err != nil {
				return err
			}
			defer sys.Close()

			sc := sys.Chain(args[0])
			if sc == nil {
				return fmt.Errorf("no chain named %q", args[0])
			}

			trigger := settings.Trigger{
				RunID:        uuid.New().String(),
				ScheduledFor: time.Now().UTC(),
				Params:       params,
			}
			resolved, err := sc.Resolver.Resolve(ctx, trigger)
			if err != nil {
				return err
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(resolved, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}
			for _, key := range resolved.Keys() {
				fmt.Fprintf(os.Stdout, "%s=%s\n", key, resolved[key])
			}
			return nil
		},
	}
}
