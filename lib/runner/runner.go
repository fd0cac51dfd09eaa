// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes release chain runs. It walks the chain's
// dependency graph, runs each step with its retry policy, publishes
// nothing itself (steps do, through the run store), and reports
// terminally failed steps to the configured notifier.
//
// Steps execute one at a time even where the graph would allow
// parallelism. The bootstrap protocol writes a fixed env file path
// and clones into a fixed directory name inside the run's working
// directory; concurrent shell steps of the same run would race on
// both. Sequential execution is what makes the canonical env file
// exchange sound.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/chain"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/notify"
	"github.com/conveyor-foundation/conveyor/lib/runstore"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Status of a step within one run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ErrStepFailed marks a run in which at least one step terminally
// failed. The wrapping error names the failed steps.
var ErrStepFailed = errors.New("runner: step failed")

// StepResult is the final state of one step in one run.
type StepResult struct {
	StepID   string
	Status   Status
	Attempts int
	Err      error
}

// Result is the outcome of a run, steps in definition order.
type Result struct {
	Chain string
	RunID string
	Steps []*StepResult
}

// Step returns the result for the given step ID, or nil.
func (r *Result) Step(id string) *StepResult {
	for _, step := range r.Steps {
		if step.StepID == id {
			return step
		}
	}
	return nil
}

// Failed returns the IDs of terminally failed steps, in definition
// order.
func (r *Result) Failed() []string {
	var failed []string
	for _, step := range r.Steps {
		if step.Status == StatusFailed {
			failed = append(failed, step.StepID)
		}
	}
	return failed
}

// Runner executes chains against a run store. The zero value is not
// usable; Store must be set. Everything else has a working default.
type Runner struct {
	// Store is where steps publish and read settings mappings.
	Store runstore.Store

	// Shell executes rendered shell steps. Nil means HostShell.
	Shell Shell

	// Clock paces retry waits. Nil means the real clock.
	Clock clock.Clock

	// Logger receives run progress. Nil discards it.
	Logger *slog.Logger

	// Notifier receives terminal step failures. Nil disables
	// notification.
	Notifier notify.Notifier

	// Journal receives per-attempt records. Nil disables the
	// journal.
	Journal *Journal

	// WorkRoot holds per-run working directories (WorkRoot/runID).
	// Empty means a "conveyor" directory under the OS temp dir. The
	// directories are kept after the run for inspection.
	WorkRoot string

	// StepTimeout bounds each attempt. Zero means no bound.
	StepTimeout time.Duration
}

// Run executes one run of the chain. The returned Result always
// covers every step. The error is nil only if every step succeeded;
// a run with failures reports ErrStepFailed, a cancelled run reports
// the context's error.
func (r *Runner) Run(ctx context.Context, definition *chain.Chain, trigger settings.Trigger) (*Result, error) {
	if err := definition.Validate(); err != nil {
		return nil, fmt.Errorf("chain %q: %w", definition.Name, err)
	}
	if trigger.RunID == "" {
		return nil, errors.New("runner: trigger carries no run ID")
	}

	logger := r.logger().With("chain", definition.Name, "run_id", trigger.RunID)

	workDir, err := r.ensureWorkDir(definition, trigger.RunID)
	if err != nil {
		return nil, err
	}

	execution := &chain.Execution{
		RunID:   trigger.RunID,
		Trigger: trigger,
		Store:   r.Store,
	}

	result := &Result{Chain: definition.Name, RunID: trigger.RunID}
	states := make(map[string]*StepResult, len(definition.Steps))
	for _, step := range definition.Steps {
		state := &StepResult{StepID: step.ID, Status: StatusPending}
		states[step.ID] = state
		result.Steps = append(result.Steps, state)
	}

	logger.Info("run started", "steps", len(definition.Steps), "scheduled_for", trigger.ScheduledFor)

	for {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		step := nextReady(definition, states)
		if step == nil {
			break
		}
		r.runStep(ctx, logger, definition, step, execution, workDir, states[step.ID])
		if states[step.ID].Status == StatusFailed {
			r.skipDependents(definition, states, logger, trigger.RunID)
		}
	}

	if failed := result.Failed(); len(failed) > 0 {
		logger.Error("run failed", "failed_steps", failed)
		return result, fmt.Errorf("%w: %s", ErrStepFailed, strings.Join(failed, ", "))
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	logger.Info("run succeeded")
	return result, nil
}

// nextReady returns the first pending step, in definition order,
// whose dependencies all succeeded.
func nextReady(definition *chain.Chain, states map[string]*StepResult) *chain.Step {
	for _, step := range definition.Steps {
		if states[step.ID].Status != StatusPending {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			if states[dep].Status != StatusSucceeded {
				ready = false
				break
			}
		}
		if ready {
			return step
		}
	}
	return nil
}

// runStep drives one step through its attempts.
func (r *Runner) runStep(ctx context.Context, logger *slog.Logger, definition *chain.Chain, step *chain.Step, execution *chain.Execution, workDir string, state *StepResult) {
	pacer := r.clock()

	for attempt := 1; attempt <= step.Retries+1; attempt++ {
		if attempt > 1 {
			state.Status = StatusRetrying
			logger.Info("step retrying", "step", step.ID, "attempt", attempt, "delay", step.RetryDelay)
			select {
			case <-pacer.After(step.RetryDelay):
			case <-ctx.Done():
				state.Err = ctx.Err()
				state.Status = StatusFailed
				r.notifyFailure(ctx, logger, definition.Name, execution.RunID, step.ID, state)
				return
			}
		}

		state.Status = StatusRunning
		state.Attempts = attempt
		logger.Info("step started", "step", step.ID, "attempt", attempt)

		started := pacer.Now()
		err := r.attempt(ctx, definition, step, execution, workDir)
		duration := pacer.Now().Sub(started)

		if err == nil {
			state.Status = StatusSucceeded
			state.Err = nil
			logger.Info("step succeeded", "step", step.ID, "attempt", attempt, "duration", duration)
			r.record(Entry{
				Time: started, Chain: definition.Name, RunID: execution.RunID,
				StepID: step.ID, Attempt: attempt, Status: StatusSucceeded,
				Duration: duration.Milliseconds(),
			}, logger)
			return
		}

		state.Err = err
		logger.Warn("step attempt failed", "step", step.ID, "attempt", attempt, "error", err)
		r.record(Entry{
			Time: started, Chain: definition.Name, RunID: execution.RunID,
			StepID: step.ID, Attempt: attempt, Status: StatusFailed,
			Duration: duration.Milliseconds(), Error: err.Error(),
		}, logger)

		if ctx.Err() != nil {
			break
		}
	}

	state.Status = StatusFailed
	r.notifyFailure(ctx, logger, definition.Name, execution.RunID, step.ID, state)
}

// attempt runs one attempt of a step. Declared references are
// resolved first so a missing field fails the step before any side
// effect, with an error naming the publishing step and field.
func (r *Runner) attempt(ctx context.Context, definition *chain.Chain, step *chain.Step, execution *chain.Execution, workDir string) error {
	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}

	for _, ref := range step.References {
		if _, err := execution.Resolve(ctx, ref); err != nil {
			return err
		}
	}

	if step.Func != nil {
		return step.Func(ctx, execution)
	}

	mapping, err := r.Store.Read(ctx, execution.RunID, definition.SettingsStep)
	if err != nil {
		return fmt.Errorf("reading run settings: %w", err)
	}
	rendered := settings.Render(step.Command, mapping)

	exitCode, err := r.shell().Run(ctx, workDir, rendered)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("exit code %d", exitCode)
	}
	return nil
}

// skipDependents marks every pending step downstream of a failed or
// skipped step as skipped, to a fixpoint.
func (r *Runner) skipDependents(definition *chain.Chain, states map[string]*StepResult, logger *slog.Logger, runID string) {
	for changed := true; changed; {
		changed = false
		for _, step := range definition.Steps {
			state := states[step.ID]
			if state.Status != StatusPending {
				continue
			}
			for _, dep := range step.DependsOn {
				depStatus := states[dep].Status
				if depStatus != StatusFailed && depStatus != StatusSkipped {
					continue
				}
				state.Status = StatusSkipped
				state.Err = fmt.Errorf("upstream step %q did not succeed", dep)
				logger.Info("step skipped", "step", step.ID, "upstream", dep)
				r.record(Entry{
					Time: r.clock().Now(), Chain: definition.Name, RunID: runID,
					StepID: step.ID, Status: StatusSkipped,
					Error: state.Err.Error(),
				}, logger)
				changed = true
				break
			}
		}
	}
}

// ensureWorkDir creates the run's working directory when the chain
// has shell steps.
func (r *Runner) ensureWorkDir(definition *chain.Chain, runID string) (string, error) {
	hasShell := false
	for _, step := range definition.Steps {
		if step.Command != "" {
			hasShell = true
			break
		}
	}
	if !hasShell {
		return "", nil
	}

	root := r.WorkRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), "conveyor")
	}
	workDir := filepath.Join(root, runID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run working directory: %w", err)
	}
	return workDir, nil
}

func (r *Runner) notifyFailure(ctx context.Context, logger *slog.Logger, chainName, runID, stepID string, state *StepResult) {
	if r.Notifier == nil {
		return
	}
	failure := notify.Failure{
		Chain:    chainName,
		RunID:    runID,
		StepID:   stepID,
		Attempts: state.Attempts,
		Err:      state.Err,
	}
	if err := r.Notifier.NotifyFailure(ctx, failure); err != nil {
		logger.Warn("failure notification failed", "step", stepID, "error", err)
	}
}

func (r *Runner) record(entry Entry, logger *slog.Logger) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Record(entry); err != nil {
		logger.Warn("journal write failed", "error", err)
	}
}

func (r *Runner) shell() Shell {
	if r.Shell != nil {
		return r.Shell
	}
	return &HostShell{}
}

func (r *Runner) clock() clock.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clock.Real()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
