// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Conveyor-daemon is the long-running scheduler process. It loads the
// chain configuration, assembles the release system, and fires each
// chain on its cron slot until terminated.
//
// On startup:
//  1. Loads and validates the configuration named by --config or
//     CONVEYOR_CONFIG.
//  2. Creates the work and archive directories.
//  3. Builds every configured chain against the shared run store,
//     artifact copier, and failure notifier.
//  4. Schedules the chains. Each fired run resolves settings, runs
//     the chain steps, archives the run directory, and cleans up its
//     published mappings.
//
// Slots that pass while the daemon is down are skipped, never
// backfilled. SIGINT or SIGTERM stops the scheduler; an in-flight
// run's cancelled steps get the configured grace period.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/commands"
	"github.com/conveyor-foundation/conveyor/lib/chain"
	"github.com/conveyor-foundation/conveyor/lib/scheduler"
	"github.com/conveyor-foundation/conveyor/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to conveyor.yaml (default $CONVEYOR_CONFIG)")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("conveyor-daemon %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := commands.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	sys, err := commands.Assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	if len(sys.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}

	logger.Info("starting conveyor-daemon",
		"version", version.Info(),
		"chains", len(sys.Chains),
	)

	now := time.Now().UTC()
	definitions := make([]*chain.Chain, 0, len(sys.Chains))
	for _, sc := range sys.Chains {
		next := "never"
		if slot, err := sc.Definition.Schedule.Next(now); err == nil {
			next = slot.Format(time.RFC3339)
		}
		logger.Info("chain scheduled",
			"chain", sc.Config.Name,
			"flavor", string(sc.Config.Flavor),
			"schedule", sc.Definition.Schedule.String(),
			"next_slot", next,
		)
		definitions = append(definitions, sc.Definition)
	}

	sched := &scheduler.Scheduler{
		Runner: sys.Starter(),
		Logger: logger,
	}
	if err := sched.Run(ctx, definitions...); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutting down")
			return nil
		}
		return err
	}
	return nil
}
