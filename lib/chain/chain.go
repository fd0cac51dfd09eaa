// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package chain defines release chains: named, scheduled graphs of
// steps. A chain is immutable definition data; per-run state lives in
// lib/runner.
//
// A step is either a shell step (Command, executed through sh with
// the chain's bootstrap preamble baked in) or a func step (Func, a Go
// function given per-run facilities). The first step of the stock
// chain resolves the run's settings and publishes them to the run
// store; every later step reads them from there, shell steps through
// placeholder rendering and func steps through deferred references.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/cron"
	"github.com/conveyor-foundation/conveyor/lib/runstore"
	"github.com/conveyor-foundation/conveyor/lib/script"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Default retry policy for steps that do not override it. A step is
// attempted once plus Retries more times, waiting RetryDelay between
// attempts.
const (
	DefaultRetries    = 1
	DefaultRetryDelay = 5 * time.Minute
)

// Execution carries the per-run facilities handed to func steps.
type Execution struct {
	// RunID identifies the run. Unique across all chains.
	RunID string

	// Trigger describes what started the run.
	Trigger settings.Trigger

	// Store is where steps publish and read settings mappings.
	Store runstore.Store
}

// Resolve reads one deferred reference from the run store. A missing
// mapping or field is an error, never an empty string.
func (e *Execution) Resolve(ctx context.Context, ref settings.Reference) (string, error) {
	mapping, err := e.Store.Read(ctx, e.RunID, ref.Step)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	return ref.Lookup(mapping)
}

// StepFunc is the body of a func step.
type StepFunc func(ctx context.Context, exec *Execution) error

// Step is one node of a chain. Exactly one of Command and Func is
// set.
type Step struct {
	// ID names the step within its chain.
	ID string

	// Command is the full shell text of a shell step, bootstrap
	// preamble included. Rendered against the run's resolved
	// settings before execution.
	Command string

	// Func is the body of a func step.
	Func StepFunc

	// References lists the deferred references the step consumes.
	// The runner resolves each one before the step starts, so a
	// missing field fails the step instead of reaching the shell as
	// an empty string.
	References []settings.Reference

	// DependsOn lists step IDs that must succeed first.
	DependsOn []string

	// Retries is the number of additional attempts after a failed
	// one.
	Retries int

	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration
}

// Chain is a complete release chain definition.
type Chain struct {
	// Name identifies the chain. Unique per daemon.
	Name string

	// Schedule fires runs. Missed slots are skipped, never backfilled:
	// a release pipeline must not run yesterday's release today.
	Schedule cron.Schedule

	// SettingsStep is the ID of the step whose published mapping
	// renders shell step text.
	SettingsStep string

	// Preamble is the bootstrap prefix shared by the shell steps.
	Preamble script.Script

	// Steps in definition order. Execution order is given by
	// DependsOn, not position.
	Steps []*Step
}

// Step returns the step with the given ID, or nil.
func (c *Chain) Step(id string) *Step {
	for _, step := range c.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// Validate checks the chain definition: step IDs are present and
// unique, every step is exactly one of shell and func, dependencies
// and references name known steps, the settings step exists and is a
// func step when any shell step needs rendering, and the dependency
// graph has no cycle. All problems are reported, not just the first.
func (c *Chain) Validate() error {
	var problems []error

	if c.Name == "" {
		problems = append(problems, errors.New("chain has no name"))
	}

	byID := make(map[string]*Step, len(c.Steps))
	for _, step := range c.Steps {
		if step.ID == "" {
			problems = append(problems, errors.New("step with empty ID"))
			continue
		}
		if _, dup := byID[step.ID]; dup {
			problems = append(problems, fmt.Errorf("duplicate step ID %q", step.ID))
			continue
		}
		byID[step.ID] = step
	}

	shellSteps := false
	for _, step := range c.Steps {
		switch {
		case step.Command != "" && step.Func != nil:
			problems = append(problems, fmt.Errorf("step %q has both a command and a func", step.ID))
		case step.Command == "" && step.Func == nil:
			problems = append(problems, fmt.Errorf("step %q has neither a command nor a func", step.ID))
		case step.Command != "":
			shellSteps = true
		}
		if step.Retries < 0 {
			problems = append(problems, fmt.Errorf("step %q has negative retries", step.ID))
		}
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				problems = append(problems, fmt.Errorf("step %q depends on itself", step.ID))
			} else if _, known := byID[dep]; !known {
				problems = append(problems, fmt.Errorf("step %q depends on unknown step %q", step.ID, dep))
			}
		}
		for _, ref := range step.References {
			if _, known := byID[ref.Step]; !known {
				problems = append(problems, fmt.Errorf("step %q references unknown step %q", step.ID, ref.Step))
			}
		}
	}

	if shellSteps {
		settingsStep, known := byID[c.SettingsStep]
		switch {
		case c.SettingsStep == "":
			problems = append(problems, errors.New("chain has shell steps but no settings step"))
		case !known:
			problems = append(problems, fmt.Errorf("settings step %q is not in the chain", c.SettingsStep))
		case settingsStep.Func == nil:
			problems = append(problems, fmt.Errorf("settings step %q is not a func step", c.SettingsStep))
		}
	}

	if err := c.checkAcyclic(byID); err != nil {
		problems = append(problems, err)
	}

	return errors.Join(problems...)
}

// checkAcyclic runs Kahn's algorithm over the dependency edges.
// Unknown dependencies are reported elsewhere and skipped here.
func (c *Chain) checkAcyclic(byID map[string]*Step) error {
	indegree := make(map[string]int, len(byID))
	dependents := make(map[string][]string, len(byID))
	for id := range byID {
		indegree[id] = 0
	}
	for id, step := range byID {
		for _, dep := range step.DependsOn {
			if _, known := byID[dep]; !known || dep == id {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, degree := range indegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	processed := 0
	for len(ready) > 0 {
		id := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		processed++
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	if processed != len(byID) {
		return errors.New("dependency cycle between steps")
	}
	return nil
}
