// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package script generates the bootstrap preamble prepended to every
// shell step of a release chain.
//
// The preamble does three jobs, in order:
//
//  1. Write every cross-boundary setting (prefix "CB_") into an env
//     file via a heredoc, so remote build stages launched by the step
//     see the same values the chain resolved.
//  2. Export the remaining settings into the local shell only.
//  3. Synchronize with the release-tools bucket: adopt the canonical
//     env file for this release line (seeding it on the first run),
//     fetch the pinned helper scripts, and apply any staged overrides
//     before handing control to the step's own command.
//
// Settings values are spliced in as ${NAME} placeholders and rendered
// by the runner from the resolved settings of the run. Placeholders
// the run did not resolve are left for the shell, which picks them up
// from the re-sourced canonical env file.
package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conveyor-foundation/conveyor/lib/settings"
)

const (
	// CrossBoundaryPrefix marks settings forwarded to remote build
	// stages. Everything else stays in the local shell.
	CrossBoundaryPrefix = "CB_"

	// EnvFile is the scratch path the preamble writes the
	// cross-boundary environment to before uploading it.
	EnvFile = "/tmp/cb_env.sh"
)

// CrossBoundary reports whether the setting named key is forwarded
// across the execution boundary. Classification is total: any key is
// either cross-boundary or local-only, never both, never neither.
func CrossBoundary(key string) bool {
	return strings.HasPrefix(key, CrossBoundaryPrefix)
}

// Script is a generated bootstrap preamble. It is built once per chain
// definition and reused verbatim as the textual prefix of every shell
// step, so equal inputs must produce byte-identical text.
type Script struct {
	text string
	keys []string
}

// Build generates the bootstrap preamble for the union of knownKeys
// and extraKeys. Duplicates collapse; the union is sorted once, so a
// key's position is independent of which list supplied it.
//
// Values are inserted verbatim at render time. Settings are trusted
// operator input; no shell quoting is applied, matching the helper
// scripts' expectations.
func Build(knownKeys, extraKeys []string) Script {
	union := make(map[string]bool, len(knownKeys)+len(extraKeys))
	for _, key := range knownKeys {
		union[key] = true
	}
	for _, key := range extraKeys {
		union[key] = true
	}
	keys := make([]string, 0, len(union))
	for key := range union {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "cat << EOF > %q\n", EnvFile)
	for _, key := range keys {
		if CrossBoundary(key) {
			fmt.Fprintf(&b, "export %s=${%s}\n", key, key)
		}
	}
	b.WriteString("EOF\n")
	for _, key := range keys {
		if !CrossBoundary(key) {
			fmt.Fprintf(&b, "export %s=${%s}\n", key, key)
		}
	}

	fmt.Fprintf(&b, "source %s\n", EnvFile)
	b.WriteString("# Adopt the canonical env file for this release line; on the\n")
	b.WriteString("# first ever run the download fails and this run's copy seeds it.\n")
	fmt.Fprintf(&b, "gsutil -q cp \"gs://${CB_GCS_RELEASE_TOOLS_PATH}/cb_env.sh\" %q\n", EnvFile)
	fmt.Fprintf(&b, "source %s\n", EnvFile)
	fmt.Fprintf(&b, "gsutil -q cp %q \"gs://${CB_GCS_RELEASE_TOOLS_PATH}/cb_env.sh\"\n", EnvFile)
	b.WriteString("git clone \"https://github.com/${CB_GITHUB_ORG}/${CB_GITHUB_REPO}.git\" \"release-code\" -b \"master\" --depth 1\n")
	b.WriteString("# Canonical helpers first, staged overrides second: on filename\n")
	b.WriteString("# collision the staged copy must win.\n")
	b.WriteString("cp release-code/release/pipeline/*sh release-code/release/pipeline/*json .\n")
	b.WriteString("gsutil -mq cp \"gs://${CB_GCS_RELEASE_TOOLS_PATH}\"/pipeline/*sh . || echo \"no pipeline script overrides\"\n")
	b.WriteString("gsutil -mq cp \"gs://${CB_GCS_RELEASE_TOOLS_PATH}\"/pipeline/*json . || echo \"no pipeline descriptor overrides\"\n")
	b.WriteString("source pipeline_scripts.sh\n")

	return Script{text: b.String(), keys: keys}
}

// Text returns the preamble text.
func (s Script) Text() string {
	return s.text
}

// Keys returns the sorted union of setting keys the preamble exports.
func (s Script) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// References returns every distinct ${NAME} placeholder in the
// preamble, in order of first appearance. This is a superset of
// Keys: the sync sequence references the release-tools path and the
// source repository coordinates whether or not the caller listed them.
func (s Script) References() []string {
	return settings.ReferencedNames(s.text)
}
