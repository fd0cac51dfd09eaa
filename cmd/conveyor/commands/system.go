// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/conveyor-foundation/conveyor/lib/archive"
	"github.com/conveyor-foundation/conveyor/lib/chain"
	"github.com/conveyor-foundation/conveyor/lib/config"
	"github.com/conveyor-foundation/conveyor/lib/notify"
	"github.com/conveyor-foundation/conveyor/lib/objectstore"
	"github.com/conveyor-foundation/conveyor/lib/runner"
	"github.com/conveyor-foundation/conveyor/lib/runstore"
	"github.com/conveyor-foundation/conveyor/lib/scheduler"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// LoadConfig loads and validates the daemon configuration. An empty
// path defers to the CONVEYOR_CONFIG environment variable.
func LoadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SystemChain pairs a built chain definition with the configuration
// it came from.
type SystemChain struct {
	Definition *chain.Chain
	Config     config.ChainConfig

	// Resolver is the chain's settings resolver, exposed so the CLI
	// can resolve a mapping without starting a run.
	Resolver *settings.Resolver
}

// System is the assembled release system: every configured chain
// built against the shared run store, artifact copier, and failure
// notifier. The CLI assembles one per invocation, the daemon one per
// process.
type System struct {
	Config   *config.Config
	Logger   *slog.Logger
	Chains   []SystemChain
	Store    runstore.Store
	Copier   objectstore.Copier
	Notifier notify.Notifier

	closers []func() error
}

// Assemble builds the system from a validated configuration. Call
// Close when done; the Redis-backed store holds a connection pool.
func Assemble(cfg *config.Config, logger *slog.Logger) (*System, error) {
	sys := &System{Config: cfg, Logger: logger}

	switch cfg.Copier.Mode {
	case config.CopierDir:
		sys.Copier = objectstore.NewDir(cfg.Copier.DirRoot)
	default:
		sys.Copier = &objectstore.GSUtil{Binary: cfg.Copier.Binary}
	}

	if cfg.Store.RedisAddress != "" {
		ttl, err := cfg.Store.RetentionTTL()
		if err != nil {
			return nil, err
		}
		var opts []runstore.RedisOption
		if cfg.Store.Prefix != "" {
			opts = append(opts, runstore.WithPrefix(cfg.Store.Prefix))
		}
		if ttl > 0 {
			opts = append(opts, runstore.WithTTL(ttl))
		}
		store := runstore.NewRedis(cfg.Store.RedisAddress, cfg.Store.RedisPassword, cfg.Store.RedisDB, opts...)
		sys.Store = store
		sys.closers = append(sys.closers, store.Close)
	} else {
		sys.Store = runstore.NewMemory()
	}

	sys.Notifier = &notify.Log{Logger: logger}
	if cfg.Notify.WebhookURL != "" {
		sys.Notifier = notify.Multi{sys.Notifier, &notify.Webhook{URL: cfg.Notify.WebhookURL}}
	}

	for _, chainConfig := range cfg.Chains {
		built, resolver, err := buildChain(chainConfig, sys.Copier)
		if err != nil {
			sys.Close()
			return nil, fmt.Errorf("building chain %q: %w", chainConfig.Name, err)
		}
		sys.Chains = append(sys.Chains, SystemChain{
			Definition: built,
			Config:     chainConfig,
			Resolver:   resolver,
		})
	}

	return sys, nil
}

// derivedKeys are the settings fields computed at resolve time. They
// join the layer keys in the bootstrap preamble so rendered steps can
// read them even when no layer file mentions them.
var derivedKeys = []string{chain.FieldVersion, chain.FieldCommit, chain.FieldStagingPath}

func buildChain(chainConfig config.ChainConfig, copier objectstore.Copier) (*chain.Chain, *settings.Resolver, error) {
	layers, err := settings.ReadLayerFiles(chainConfig.Layers...)
	if err != nil {
		return nil, nil, err
	}

	var keys []string
	for _, layer := range layers {
		keys = append(keys, layer.Keys()...)
	}
	keys = append(keys, derivedKeys...)

	derives := []settings.DeriveFunc{chain.ParamsOverlay()}
	switch chainConfig.Flavor {
	case config.FlavorMonthly:
		derives = append(derives, chain.MonthlyDerive())
	default:
		derives = append(derives, chain.DailyDerive())
	}
	if chainConfig.PinCommit {
		derives = append(derives, chain.PinCommit(chain.CLIHead()))
	}

	resolver := &settings.Resolver{
		Layers:    layers,
		Overrides: os.Getenv,
		Derive:    chain.ComposeDerive(derives...),
	}

	blueprint := chain.Blueprint{
		Resolver: resolver,
		Copier:   copier,
		Keys:     keys,
	}
	if chainConfig.Retries != nil || chainConfig.RetryDelay != "" {
		retry := chain.RetryPolicy{Retries: chain.DefaultRetries, Delay: chain.DefaultRetryDelay}
		if chainConfig.Retries != nil {
			retry.Retries = *chainConfig.Retries
		}
		if chainConfig.RetryDelay != "" {
			delay, err := chainConfig.RetryDelayDuration()
			if err != nil {
				return nil, nil, err
			}
			retry.Delay = delay
		}
		blueprint.Retry = &retry
	}

	schedule := chainConfig.Schedule
	if schedule == "" {
		schedule = chain.DefaultSchedule
	}

	built, _, _, err := blueprint.Build(chainConfig.Name, schedule, chainConfig.ExtraKeys)
	if err != nil {
		return nil, nil, err
	}
	return built, resolver, nil
}

// Chain returns the assembled chain with the given name, or nil.
func (s *System) Chain(name string) *SystemChain {
	for i := range s.Chains {
		if s.Chains[i].Config.Name == name {
			return &s.Chains[i]
		}
	}
	return nil
}

// Close releases the system's external connections.
func (s *System) Close() error {
	var errs []error
	for _, closer := range s.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}

// RunOnce executes one run of a chain: a fresh working directory and
// journal under paths.work_root, the run itself, then archival and
// store cleanup. The returned result covers every step even when the
// run failed. keepStore skips the store cleanup so the published
// mappings can be inspected afterwards.
func (s *System) RunOnce(ctx context.Context, definition *chain.Chain, trigger settings.Trigger, keepStore bool) (*runner.Result, error) {
	runDir := filepath.Join(s.Config.Paths.WorkRoot, trigger.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	journalFile, err := os.Create(filepath.Join(runDir, "journal.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("creating run journal: %w", err)
	}

	stepTimeout, err := s.Config.Runner.StepTimeoutDuration()
	if err != nil {
		return nil, err
	}
	gracePeriod, err := s.Config.Runner.GracePeriodDuration()
	if err != nil {
		return nil, err
	}

	run := &runner.Runner{
		Store:       s.Store,
		Shell:       &runner.HostShell{GracePeriod: gracePeriod},
		Logger:      s.Logger,
		Notifier:    s.Notifier,
		Journal:     runner.NewJournal(journalFile),
		WorkRoot:    s.Config.Paths.WorkRoot,
		StepTimeout: stepTimeout,
	}

	result, runErr := run.Run(ctx, definition, trigger)

	if err := journalFile.Close(); err != nil {
		s.Logger.Warn("closing run journal", "run_id", trigger.RunID, "error", err)
	}

	// Cleanup proceeds even when the run was cancelled: a packed
	// archive of a half-finished run is still worth keeping.
	cleanupCtx := context.WithoutCancel(ctx)

	if s.Config.Archive.Enabled {
		if err := s.archiveRun(definition.Name, trigger.RunID, runDir); err != nil {
			s.Logger.Error("archiving run directory", "run_id", trigger.RunID, "error", err)
		}
	}

	if !keepStore {
		if err := s.Store.Delete(cleanupCtx, trigger.RunID); err != nil {
			s.Logger.Warn("deleting run mappings", "run_id", trigger.RunID, "error", err)
		}
	}

	return result, runErr
}

// archiveRun packs the run directory into paths.archives and writes
// the manifest next to it. The directory is removed only after both
// the archive and the manifest are on disk.
func (s *System) archiveRun(chainName, runID, runDir string) error {
	tag, err := s.Config.Archive.CompressionTag()
	if err != nil {
		return err
	}
	archivePath := filepath.Join(s.Config.Paths.Archives, runID+tag.Extension())

	manifest, err := archive.Create(runDir, archivePath, tag)
	if err != nil {
		return err
	}
	manifest.Chain = chainName
	manifest.RunID = runID
	if err := archive.WriteManifest(archivePath+".manifest", manifest); err != nil {
		return err
	}
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("removing archived run directory: %w", err)
	}

	s.Logger.Info("archived run directory",
		"run_id", runID,
		"archive", archivePath,
		"files", manifest.FileCount,
		"bytes", manifest.ArchiveSize,
	)
	return nil
}

type starterFunc func(ctx context.Context, definition *chain.Chain, trigger settings.Trigger) (*runner.Result, error)

func (f starterFunc) Run(ctx context.Context, definition *chain.Chain, trigger settings.Trigger) (*runner.Result, error) {
	return f(ctx, definition, trigger)
}

// Starter adapts the system for the scheduler: every fired slot runs
// through RunOnce with the full archive-and-cleanup tail.
func (s *System) Starter() scheduler.Starter {
	return starterFunc(func(ctx context.Context, definition *chain.Chain, trigger settings.Trigger) (*runner.Result, error) {
		return s.RunOnce(ctx, definition, trigger, false)
	})
}
