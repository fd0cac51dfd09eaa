// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
)

// chainCommand returns the "chain" subcommand group.
func chainCommand() *cli.Command {
	return &cli.Command{
		Name:    "chain",
		Summary: "Inspect and run release chains",
		Description: `List, validate, render, and run the configured release chains.

Chains come from the configuration file named by CONVEYOR_CONFIG or
the --config flag. Running a chain here uses the same store, copier,
and archival tail as a scheduled daemon run.`,
		Subcommands: []*cli.Command{
			listCommand(),
			validateCommand(),
			renderCommand(),
			runCommand(),
		},
	}
}

func listCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "list",
		Summary: "List configured chains and their next slots",
		Usage:   "conveyor chain list [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "configuration file (default $CONVEYOR_CONFIG)")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("chain list takes no arguments")
			}
			sys, err := assemble(configPath)
			if err != nil {
				return err
			}
			defer sys.Close()

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "NAME\tFLAVOR\tSCHEDULE\tNEXT SLOT")
			now := time.Now().UTC()
			for _, sc := range sys.Chains {
				next := "never"
				if slot, err := sc.Definition.Schedule.Next(now); err == nil {
					next = slot.Format(time.RFC3339)
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					sc.Config.Name, sc.Config.Flavor, sc.Definition.Schedule, next)
			}
			return writer.Flush()
		},
	}
}

func validateCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "validate",
		Summary: "Validate the configuration and chain definitions",
		Description: `Load the configuration, build every chain, and run the definition
checks: unique step IDs, resolvable dependencies, no cycles, and
declared references for every rendered placeholder. With a NAME only
that chain is checked.`,
		Usage: "conveyor chain validate [flags] [NAME]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "configuration file (default $CONVEYOR_CONFIG)")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("chain validate takes at most one NAME")
			}
			sys, err := assemble(configPath)
			if err != nil {
				return err
			}
			defer sys.Close()

			chains := sys.Chains
			if len(args) == 1 {
				sc := sys.Chain(args[0])
				if sc == nil {
					return fmt.Errorf("no chain named %q", args[0])
				}
				chains = []SystemChain{*sc}
			}

			for _, sc := range chains {
				if err := sc.Definition.Validate(); err != nil {
					return fmt.Errorf("chain %q: %w", sc.Config.Name, err)
				}
				fmt.Printf("%s: ok (%d steps)\n", sc.Config.Name, len(sc.Definition.Steps))
			}
			return nil
		},
	}
}

func renderCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "render",
		Summary: "Print a chain's bootstrap preamble or a step's command",
		Description: `Print the shell text a chain runs. Without a STEP the bootstrap
preamble is printed; with a STEP that step's full command. Deferred
${NAME} placeholders stay unresolved: they render against the run's
published settings only at execution time. Use "conveyor settings
resolve" to see the values.`,
		Usage: "conveyor chain render [flags] NAME [STEP]",
		Examples: []cli.Example{
			{
				Description: "Show the daily chain's bootstrap preamble",
				Command:     "conveyor chain render daily-release",
			},
			{
				Description: "Show the build step's command",
				Command:     "conveyor chain render daily-release build",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("render", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "configuration file (default $CONVEYOR_CONFIG)")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("usage: conveyor chain render NAME [STEP]")
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

			if len(args) == 1 {
				fmt.Print(sc.Definition.Preamble.Text())
				return nil
			}

			step := sc.Definition.Step(args[1])
			if step == nil {
				return fmt.Errorf("chain %q has no step %q", args[0], args[1])
			}
			if step.Command == "" {
				return fmt.Errorf("step %q is not a shell step", args[1])
			}
			fmt.Print(step.Command)
			return nil
		},
	}
}

// assemble loads the configuration and builds the system with a
// command-scoped logger.
func assemble(configPath string) (*System, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, cli.NewCommandLogger())
}
