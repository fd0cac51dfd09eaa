// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"fmt"

	"github.com/conveyor-foundation/conveyor/lib/git"
	"github.com/conveyor-foundation/conveyor/lib/settings"
)

// Settings fields the stock derivations read and write.
const (
	FieldVersion    = "CB_VERSION"
	FieldBranch     = "CB_BRANCH"
	FieldCommit     = "CB_COMMIT"
	FieldGitHubOrg  = "CB_GITHUB_ORG"
	FieldGitHubRepo = "CB_GITHUB_REPO"
)

// ComposeDerive chains derivations left to right. Each derivation
// sees the merged layers plus everything earlier derivations
// produced; on key collision the later derivation wins.
func ComposeDerive(derives ...settings.DeriveFunc) settings.DeriveFunc {
	return func(ctx context.Context, trigger settings.Trigger, merged settings.Settings) (settings.Settings, error) {
		view := merged.Clone()
		out := settings.Settings{}
		for _, derive := range derives {
			if derive == nil {
				continue
			}
			derived, err := derive(ctx, trigger, view)
			if err != nil {
				return nil, err
			}
			for key, value := range derived {
				view[key] = value
				out[key] = value
			}
		}
		return out, nil
	}
}

// ParamsOverlay copies manual-trigger parameters over the mapping so
// an operator can override any setting for a single run. Scheduled
// runs carry no parameters and derive nothing here. Put it first in a
// ComposeDerive so downstream derivations see the overrides.
func ParamsOverlay() settings.DeriveFunc {
	return func(_ context.Context, trigger settings.Trigger, _ settings.Settings) (settings.Settings, error) {
		if len(trigger.Params) == 0 {
			return nil, nil
		}
		derived := make(settings.Settings, len(trigger.Params))
		for key, value := range trigger.Params {
			derived[key] = value
		}
		return derived, nil
	}
}

// DailyDerive computes the daily flavor's run-dependent fields from
// the schedule slot: CB_VERSION "<branch>-<YYYYMMDD>-<HH>-<MM>" and a
// CB_GCS_STAGING_PATH of "daily-build/<version>". Values already
// present in the merged view are kept, so an operator can pin either
// field for a single run.
func DailyDerive() settings.DeriveFunc {
	return func(_ context.Context, trigger settings.Trigger, merged settings.Settings) (settings.Settings, error) {
		derived := settings.Settings{}
		version := merged[FieldVersion]
		if version == "" {
			branch := merged[FieldBranch]
			if branch == "" {
				return nil, fmt.Errorf("deriving daily version: %s is not set", FieldBranch)
			}
			version = branch + "-" + trigger.ScheduledFor.UTC().Format("20060102-15-04")
			derived[FieldVersion] = version
		}
		if merged[FieldStagingPath] == "" {
			derived[FieldStagingPath] = "daily-build/" + version
		}
		return derived, nil
	}
}

// MonthlyDerive fills the monthly flavor's staging path from the
// release version. The version itself must be supplied through a
// layer or a manual parameter: a monthly release is cut deliberately,
// never named by the clock.
func MonthlyDerive() settings.DeriveFunc {
	return func(_ context.Context, _ settings.Trigger, merged settings.Settings) (settings.Settings, error) {
		version := merged[FieldVersion]
		if version == "" {
			return nil, fmt.Errorf("deriving monthly settings: %s is not set", FieldVersion)
		}
		if merged[FieldStagingPath] != "" {
			return nil, nil
		}
		return settings.Settings{FieldStagingPath: "prerelease/" + version}, nil
	}
}

// HeadFunc resolves ref at the remote url to a commit hash.
type HeadFunc func(ctx context.Context, url, ref string) (string, error)

// CLIHead queries remotes through the git CLI.
func CLIHead() HeadFunc {
	return func(ctx context.Context, url, ref string) (string, error) {
		return git.NewRemote(url).Head(ctx, ref)
	}
}

// PinCommit fixes CB_COMMIT to an exact hash before the run starts.
// An already-exact value passes through untouched. A symbolic value
// (empty or HEAD) resolves to the tip of CB_BRANCH at the chain's
// GitHub repository; any other value is treated as a ref name and
// resolved directly, so tags work too. Pinning up front means every
// step of the run builds the same commit even if the branch moves
// mid-run.
func PinCommit(head HeadFunc) settings.DeriveFunc {
	return func(ctx context.Context, _ settings.Trigger, merged settings.Settings) (settings.Settings, error) {
		ref := merged[FieldCommit]
		if git.IsHash(ref) {
			return nil, nil
		}
		if ref == "" || ref == "HEAD" {
			ref = merged[FieldBranch]
			if ref == "" {
				ref = "master"
			}
		}

		organization := merged[FieldGitHubOrg]
		repository := merged[FieldGitHubRepo]
		if organization == "" || repository == "" {
			return nil, fmt.Errorf("pinning commit: %s and %s must be set", FieldGitHubOrg, FieldGitHubRepo)
		}

		url := fmt.Sprintf("https://github.com/%s/%s.git", organization, repository)
		hash, err := head(ctx, url, ref)
		if err != nil {
			return nil, fmt.Errorf("pinning commit for %s: %w", url, err)
		}
		return settings.Settings{FieldCommit: hash}, nil
	}
}
