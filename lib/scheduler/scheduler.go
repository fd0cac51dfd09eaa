// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler fires chain runs at their cron slots.
//
// Each chain gets its own loop: compute the next slot, wait for it,
// run the chain to completion, repeat. Because the next slot is always
// computed from the clock after the previous run returns, slots that
// pass while the process is down, asleep, or busy running are skipped.
// The scheduler never backfills: a Tuesday outage does not produce a
// flurry of Monday releases on Wednesday morning.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/conveyor-foundation/conveyor/lib/chain"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/runner"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Starter launches one run of a chain. *runner.Runner implements it.
type Starter interface {
	Run(ctx context.Context, definition *chain.Chain, trigger settings.Trigger) (*runner.Result, error)
}

// Scheduler drives a set of chains on their schedules. Configure the
// fields before calling Run; the zero value of the optional fields is
// usable.
type Scheduler struct {
	// Runner executes each fired run. Required.
	Runner Starter

	// Clock paces the slot waits. Nil means the real clock.
	Clock clock.Clock

	// Logger receives scheduling events. Nil discards them.
	Logger *slog.Logger

	// NewRunID mints the run ID for each fired slot. Nil means a
	// random UUID.
	NewRunID func() string
}

// Run schedules every chain until ctx is cancelled. It validates all
// chains before starting any loop and returns the context's error on
// shutdown. A chain's runs never overlap: the next slot is computed
// only after the previous run returns.
func (s *Scheduler) Run(ctx context.Context, chains ...*chain.Chain) error {
	if s.Runner == nil {
		return errors.New("scheduler: no runner configured")
	}
	if len(chains) == 0 {
		return errors.New("scheduler: no chains to schedule")
	}

	seen := make(map[string]bool, len(chains))
	now := s.clock().Now()
	for _, definition := range chains {
		if err := definition.Validate(); err != nil {
			return fmt.Errorf("chain %q: %w", definition.Name, err)
		}
		if seen[definition.Name] {
			return fmt.Errorf("scheduler: duplicate chain name %q", definition.Name)
		}
		seen[definition.Name] = true
		if _, err := definition.Schedule.Next(now); err != nil {
			return fmt.Errorf("chain %q: %w", definition.Name, err)
		}
	}

	var group sync.WaitGroup
	for _, definition := range chains {
		group.Add(1)
		go func(definition *chain.Chain) {
			defer group.Done()
			s.chainLoop(ctx, definition)
		}(definition)
	}
	group.Wait()
	return ctx.Err()
}

// chainLoop waits out slots for one chain until ctx is cancelled or
// the schedule runs out of future slots.
func (s *Scheduler) chainLoop(ctx context.Context, definition *chain.Chain) {
	logger := s.logger().With("chain", definition.Name, "schedule", definition.Schedule.String())

	for {
		now := s.clock().Now()
		next, err := definition.Schedule.Next(now)
		if err != nil {
			logger.Error("no future slot, stopping chain", "error", err)
			return
		}
		logger.Info("waiting for next slot", "slot", next)

		select {
		case <-ctx.Done():
			return
		case <-s.clock().After(next.Sub(now)):
		}

		trigger := settings.Trigger{RunID: s.newRunID(), ScheduledFor: next}
		logger.Info("slot fired", "run_id", trigger.RunID, "slot", next)

		if _, err := s.Runner.Run(ctx, definition, trigger); err != nil {
			if ctx.Err() != nil {
				return
			}
			// The runner already notified and journaled the failure;
			// the schedule keeps going.
			logger.Error("run failed", "run_id", trigger.RunID, "error", err)
		}
	}
}

func (s *Scheduler) clock() clock.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clock.Real()
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *Scheduler) newRunID() string {
	if s.NewRunID != nil {
		return s.NewRunID()
	}
	return uuid.New().String()
}
