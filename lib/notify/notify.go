// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers failure reports for chain runs. The runner
// reports each terminally failed step, once, after its retries are
// exhausted. Retrying attempts are not reported.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Failure describes one terminally failed step.
type Failure struct {
	// Chain is the chain name.
	Chain string

	// RunID identifies the run.
	RunID string

	// StepID names the failed step.
	StepID string

	// Attempts is how many times the step was tried.
	Attempts int

	// Err is the last attempt's error.
	Err error
}

// Notifier delivers failure reports. Delivery failures are the
// caller's to log; they never fail the run, which already failed.
type Notifier interface {
	NotifyFailure(ctx context.Context, failure Failure) error
}

// Log reports failures to a slog logger. It is the default notifier:
// a daemon with nothing else configured still leaves a record.
type Log struct {
	Logger *slog.Logger
}

// NotifyFailure implements Notifier.
func (l *Log) NotifyFailure(_ context.Context, failure Failure) error {
	l.Logger.Error("step failed",
		"chain", failure.Chain,
		"run_id", failure.RunID,
		"step", failure.StepID,
		"attempts", failure.Attempts,
		"error", failure.Err,
	)
	return nil
}

// Multi fans a report out to several notifiers. Every notifier is
// attempted; errors are joined.
type Multi []Notifier

// NotifyFailure implements Notifier.
func (m Multi) NotifyFailure(ctx context.Context, failure Failure) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.NotifyFailure(ctx, failure); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
