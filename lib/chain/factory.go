// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/cron"
	"github.com/conveyor-foundation/conveyor/lib/objectstore"
	"github.com/conveyor-foundation/conveyor/lib/script"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Step IDs of the stock release chain.
const (
	SettingsStepID     = "resolve-settings"
	GetCommitStepID    = "get-commit"
	BuildStepID        = "build"
	TestStepID         = "test"
	ModifyValuesStepID = "modify-values"
	CopyStepID         = "copy-artifacts"
)

// Settings fields the artifact copy step consumes. The staging path
// is the same on both sides: promotion moves a tree between buckets,
// it never renames.
const (
	FieldBuildBucket   = "CB_GCS_BUILD_BUCKET"
	FieldStagingPath   = "CB_GCS_STAGING_PATH"
	FieldStagingBucket = "CB_GCS_STAGING_BUCKET"
)

// DefaultSchedule fires the stock release chain daily at 09:15 UTC.
const DefaultSchedule = "15 9 * * *"

// RetryPolicy is a step retry policy: Retries additional attempts,
// Delay apart.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// StepOption adjusts one step at definition time.
type StepOption func(*Step)

// WithRetries overrides the number of additional attempts.
func WithRetries(count int) StepOption {
	return func(s *Step) {
		s.Retries = count
	}
}

// WithRetryDelay overrides the wait between attempts.
func WithRetryDelay(delay time.Duration) StepOption {
	return func(s *Step) {
		s.RetryDelay = delay
	}
}

// WithDependsOn replaces the default depends-on-the-previous-step
// edge.
func WithDependsOn(ids ...string) StepOption {
	return func(s *Step) {
		s.DependsOn = ids
	}
}

// WithReferences declares deferred references the step's command
// embeds beyond the bootstrap preamble's own.
func WithReferences(refs ...settings.Reference) StepOption {
	return func(s *Step) {
		s.References = append(s.References, refs...)
	}
}

// AddShellStep appends a shell step running the named helper function
// from the sourced pipeline scripts. The step shares the chain's
// bootstrap preamble and retry defaults and depends on the previously
// added step unless WithDependsOn says otherwise.
type AddShellStep func(helper, stepID string, opts ...StepOption) *Step

// Blueprint builds release chains around a settings resolver and an
// artifact copier.
type Blueprint struct {
	// Resolver computes the settings mapping at the head of every
	// run.
	Resolver *settings.Resolver

	// Copier promotes the staged build tree at the end of a
	// successful run.
	Copier objectstore.Copier

	// Keys lists the settings keys every run resolves. The bootstrap
	// preamble exports exactly these plus the per-chain extras.
	Keys []string

	// Retry is the default step retry policy. Nil means
	// DefaultRetries every DefaultRetryDelay.
	Retry *RetryPolicy
}

// Build assembles the stock release chain: settings resolution, the
// fixed shell steps, and artifact promotion, in a single dependency
// path. It returns the chain, its steps keyed by ID, and an adder for
// appending chain-specific shell steps behind the current tail.
//
// The qualification test step never retries. A flaky qualification
// run has to surface as a failure; a retry that happens to pass would
// mask it.
func (b Blueprint) Build(name, schedule string, extraKeys []string) (*Chain, map[string]*Step, AddShellStep, error) {
	if b.Resolver == nil {
		return nil, nil, nil, errors.New("chain: blueprint has no resolver")
	}
	if b.Copier == nil {
		return nil, nil, nil, errors.New("chain: blueprint has no copier")
	}

	parsed, err := cron.Parse(schedule)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("chain %q: %w", name, err)
	}

	retry := RetryPolicy{Retries: DefaultRetries, Delay: DefaultRetryDelay}
	if b.Retry != nil {
		retry = *b.Retry
	}

	preamble := script.Build(b.Keys, extraKeys)
	built := &Chain{
		Name:         name,
		Schedule:     parsed,
		SettingsStep: SettingsStepID,
		Preamble:     preamble,
	}
	steps := make(map[string]*Step)

	register := func(step *Step) *Step {
		built.Steps = append(built.Steps, step)
		steps[step.ID] = step
		return step
	}

	resolver := b.Resolver
	register(&Step{
		ID: SettingsStepID,
		Func: func(ctx context.Context, exec *Execution) error {
			resolved, err := resolver.Resolve(ctx, exec.Trigger)
			if err != nil {
				return err
			}
			if err := exec.Store.Publish(ctx, exec.RunID, SettingsStepID, resolved); err != nil {
				return fmt.Errorf("publishing settings: %w", err)
			}
			return nil
		},
		Retries:    retry.Retries,
		RetryDelay: retry.Delay,
	})

	tail := SettingsStepID
	addShell := func(helper, stepID string, opts ...StepOption) *Step {
		step := &Step{
			ID:         stepID,
			Command:    preamble.Text() + "type " + helper + "\n" + helper + "\n",
			DependsOn:  []string{tail},
			Retries:    retry.Retries,
			RetryDelay: retry.Delay,
		}
		for _, opt := range opts {
			opt(step)
		}
		tail = stepID
		return register(step)
	}

	addShell("get_git_commit_cmd", GetCommitStepID)
	addShell("build_template", BuildStepID)
	addShell("test_command", TestStepID, WithRetries(0))
	addShell("modify_values_command", ModifyValuesStepID)

	srcBucket := settings.Ref(SettingsStepID, FieldBuildBucket)
	path := settings.Ref(SettingsStepID, FieldStagingPath)
	dstBucket := settings.Ref(SettingsStepID, FieldStagingBucket)
	copier := b.Copier
	register(&Step{
		ID:         CopyStepID,
		References: []settings.Reference{srcBucket, path, dstBucket},
		DependsOn:  []string{tail},
		Retries:    retry.Retries,
		RetryDelay: retry.Delay,
		Func: func(ctx context.Context, exec *Execution) error {
			bucket, err := exec.Resolve(ctx, srcBucket)
			if err != nil {
				return err
			}
			stagingPath, err := exec.Resolve(ctx, path)
			if err != nil {
				return err
			}
			staging, err := exec.Resolve(ctx, dstBucket)
			if err != nil {
				return err
			}
			src := objectstore.Location{Bucket: bucket, Path: stagingPath}
			dst := objectstore.Location{Bucket: staging, Path: stagingPath}
			if err := copier.Copy(ctx, src, dst); err != nil {
				return fmt.Errorf("promoting %s to %s: %w", src, dst, err)
			}
			return nil
		},
	})
	tail = CopyStepID

	return built, steps, addShell, nil
}
