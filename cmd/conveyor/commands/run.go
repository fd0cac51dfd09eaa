// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/runner"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

func runCommand() *cli.Command {
	var (
		configPath string
		setFlags   []string
		keepStore  bool
	)

	return &cli.Command{
		Name:    "run",
		Summary: "Run a chain immediately",
		Description: `Trigger one run of a chain right now, outside its schedule. The run
uses the configured store, copier, and notifier, archives its working
directory, and cleans up its published mappings exactly like a
scheduled run.

--set K=V parameters overlay the resolved settings for this run only.
Any settings key works: pin CB_VERSION for a respin, or point
CB_BRANCH at a release branch.`,
		Usage: "conveyor chain run [flags] NAME",
		Examples: []cli.Example{
			{
				Description: "Run the daily chain now",
				Command:     "conveyor chain run daily-release",
			},
			{
				Description: "Respin a monthly release with an explicit version",
				Command:     "conveyor chain run monthly-release --set CB_VERSION=1.24.2",
			},
			{
				Description: "Keep the published mappings for inspection",
				Command:     "conveyor chain run daily-release --keep-store",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "configuration file (default $CONVEYOR_CONFIG)")
			flags.StringArrayVar(&setFlags, "set", nil, "settings override for this run (K=V, repeatable)")
			flags.BoolVar(&keepStore, "keep-store", false, "keep the run's published mappings in the store")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor chain run NAME")
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
			if err := sys.Config.EnsurePaths(); err != nil {
				return err
			}

			trigger := settings.Trigger{
				RunID:        uuid.New().String(),
				ScheduledFor: time.Now().UTC(),
				Params:       params,
			}
			sys.Logger.Info("starting manual run",
				"chain", sc.Config.Name, "run_id", trigger.RunID)

			result, runErr := sys.RunOnce(ctx, sc.Definition, trigger, keepStore)
			if result != nil {
				printResult(result)
			}
			return runErr
		},
	}
}

// parseSetFlags turns repeated --set K=V flags into trigger params.
func parseSetFlags(setFlags []string) (map[string]string, error) {
	if len(setFlags) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(setFlags))
	for _, kv := range setFlags {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: want K=V", kv)
		}
		params[key] = value
	}
	return params, nil
}

func printResult(result *runner.Result) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "STEP\tSTATUS\tATTEMPTS")
	for _, step := range result.Steps {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", step.StepID, step.Status, step.Attempts)
	}
	writer.Flush()
}
