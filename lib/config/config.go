// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conveyor-foundation/conveyor/lib/archive"
	"github.com/conveyor-foundation/conveyor/lib/cron"
)

// Flavor picks the stock derivation set for a chain.
type Flavor string

const (
	// FlavorDaily names the version after the slot time and stages
	// under daily-build/.
	FlavorDaily Flavor = "daily"

	// FlavorMonthly demands an explicit version per run and stages
	// under prerelease/.
	FlavorMonthly Flavor = "monthly"
)

// CopierMode picks the artifact promotion backend.
type CopierMode string

const (
	// CopierGSUtil promotes between GCS buckets through the gsutil
	// CLI.
	CopierGSUtil CopierMode = "gsutil"

	// CopierDir promotes between local directory trees. For
	// development and tests.
	CopierDir CopierMode = "dir"
)

// Config is the complete daemon configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Store   StoreConfig   `yaml:"store"`
	Notify  NotifyConfig  `yaml:"notify"`
	Archive ArchiveConfig `yaml:"archive"`
	Copier  CopierConfig  `yaml:"copier"`
	Runner  RunnerConfig  `yaml:"runner"`
	Chains  []ChainConfig `yaml:"chains"`
}

// PathsConfig holds the directories the daemon writes under.
type PathsConfig struct {
	// Root anchors the other paths. ${CONVEYOR_ROOT} expands to it
	// in the fields below.
	Root string `yaml:"root"`

	// WorkRoot holds per-run working directories, one per run ID.
	WorkRoot string `yaml:"work_root"`

	// Archives holds packed run directories and their manifests.
	Archives string `yaml:"archives"`
}

// StoreConfig selects and tunes the run settings store.
type StoreConfig struct {
	// RedisAddress selects the Redis-backed store. Empty keeps run
	// settings in process memory, which is fine for a single daemon
	// and for one-shot CLI runs.
	RedisAddress  string `yaml:"redis_address"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Prefix namespaces the store's keys. Empty keeps the stock
	// prefix.
	Prefix string `yaml:"prefix"`

	// TTL expires published run settings, as a Go duration string.
	// Empty keeps them until deleted.
	TTL string `yaml:"ttl"`
}

// RetentionTTL parses the TTL field. Zero means keep forever.
func (s StoreConfig) RetentionTTL() (time.Duration, error) {
	return parseDuration("store.ttl", s.TTL)
}

// NotifyConfig routes terminal run failures.
type NotifyConfig struct {
	// WebhookURL receives a JSON POST for every failed run. Empty
	// disables the webhook; failures still reach the log.
	WebhookURL string `yaml:"webhook_url"`
}

// ArchiveConfig controls packing of finished run directories.
type ArchiveConfig struct {
	// Enabled packs each finished run directory into
	// paths.archives.
	Enabled bool `yaml:"enabled"`

	// Compression names the archive codec: none, lz4, or zstd.
	// Empty means zstd.
	Compression string `yaml:"compression"`
}

// CompressionTag parses the Compression field.
func (a ArchiveConfig) CompressionTag() (archive.CompressionTag, error) {
	if a.Compression == "" {
		return archive.DefaultCompression, nil
	}
	return archive.ParseCompressionTag(a.Compression)
}

// CopierConfig configures artifact promotion.
type CopierConfig struct {
	Mode CopierMode `yaml:"mode"`

	// Binary overrides the gsutil executable. Empty runs "gsutil"
	// from PATH.
	Binary string `yaml:"binary"`

	// DirRoot is the local tree the dir mode reads and writes.
	DirRoot string `yaml:"dir_root"`
}

// RunnerConfig tunes step execution.
type RunnerConfig struct {
	// StepTimeout bounds a single step attempt, as a Go duration
	// string. Empty leaves attempts unbounded.
	StepTimeout string `yaml:"step_timeout"`

	// GracePeriod is how long a cancelled step command gets between
	// SIGTERM and SIGKILL.
	GracePeriod string `yaml:"grace_period"`
}

// StepTimeoutDuration parses the StepTimeout field.
func (r RunnerConfig) StepTimeoutDuration() (time.Duration, error) {
	return parseDuration("runner.step_timeout", r.StepTimeout)
}

// GracePeriodDuration parses the GracePeriod field.
func (r RunnerConfig) GracePeriodDuration() (time.Duration, error) {
	return parseDuration("runner.grace_period", r.GracePeriod)
}

// ChainConfig declares one scheduled release chain.
type ChainConfig struct {
	// Name identifies the chain in logs, journals, and the store.
	Name string `yaml:"name"`

	// Flavor is daily or monthly.
	Flavor Flavor `yaml:"flavor"`

	// Schedule is a five-field cron expression. Empty means the
	// stock daily slot, 09:15 UTC.
	Schedule string `yaml:"schedule"`

	// Layers are JSONC settings files, most generic first. Later
	// files win key collisions.
	Layers []string `yaml:"layers"`

	// ExtraKeys adds chain-specific settings keys to the bootstrap
	// preamble's export list.
	ExtraKeys []string `yaml:"extra_keys"`

	// Retries overrides the per-step retry budget. Nil keeps the
	// stock budget.
	Retries *int `yaml:"retries"`

	// RetryDelay overrides the wait between attempts, as a Go
	// duration string. Empty keeps the stock delay.
	RetryDelay string `yaml:"retry_delay"`

	// PinCommit resolves the branch head to an exact commit hash at
	// settings time, so every step of a run sees the same tree.
	PinCommit bool `yaml:"pin_commit"`
}

// RetryDelayDuration parses the RetryDelay field. Zero means the
// stock delay.
func (c ChainConfig) RetryDelayDuration() (time.Duration, error) {
	return parseDuration("retry_delay", c.RetryDelay)
}

// Default returns a configuration for a single-host deployment:
// in-memory run store, log-only notification, zstd archives under
// ~/.cache/conveyor. It declares no chains; those come from the
// config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "conveyor")

	return &Config{
		Paths: PathsConfig{
			Root:     defaultRoot,
			WorkRoot: filepath.Join(defaultRoot, "runs"),
			Archives: filepath.Join(defaultRoot, "archives"),
		},
		Archive: ArchiveConfig{
			Enabled:     true,
			Compression: archive.DefaultCompression.String(),
		},
		Copier: CopierConfig{
			Mode: CopierGSUtil,
		},
		Runner: RunnerConfig{
			GracePeriod: "10s",
		},
	}
}

// Load reads configuration from the file named by the
// CONVEYOR_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("CONVEYOR_CONFIG")
	if configPath == "" {
		return nil, errors.New("CONVEYOR_CONFIG environment variable not set (must point to conveyor.yaml)")
	}
	return LoadFile(configPath)
}

// LoadFile reads configuration from the given path. Values start
// from Default, so a file only states what differs. The caller
// validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path and credential fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CONVEYOR_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CONVEYOR_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.WorkRoot = expandVars(c.Paths.WorkRoot, vars)
	c.Paths.Archives = expandVars(c.Paths.Archives, vars)
	c.Copier.DirRoot = expandVars(c.Copier.DirRoot, vars)
	c.Store.RedisAddress = expandVars(c.Store.RedisAddress, vars)
	c.Store.RedisPassword = expandVars(c.Store.RedisPassword, vars)
	c.Notify.WebhookURL = expandVars(c.Notify.WebhookURL, vars)
	for i := range c.Chains {
		for j, layer := range c.Chains[i].Layers {
			c.Chains[i].Layers[j] = expandVars(layer, vars)
		}
	}
}

// expandVars expands ${VAR} and ${VAR:-default} in a string using
// the provided variables, falling back to the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for consistency. It returns all
// problems at once, joined, so an operator fixes a config file in
// one round trip.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.WorkRoot == "" {
		errs = append(errs, errors.New("paths.work_root is required"))
	}
	if c.Archive.Enabled && c.Paths.Archives == "" {
		errs = append(errs, errors.New("paths.archives is required when archive.enabled"))
	}

	if c.Store.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("store.redis_db: %d is negative", c.Store.RedisDB))
	}
	if _, err := c.Store.RetentionTTL(); err != nil {
		errs = append(errs, err)
	}

	if c.Notify.WebhookURL != "" &&
		!strings.HasPrefix(c.Notify.WebhookURL, "http://") &&
		!strings.HasPrefix(c.Notify.WebhookURL, "https://") {
		errs = append(errs, fmt.Errorf("notify.webhook_url: %q is not an http(s) URL", c.Notify.WebhookURL))
	}

	if _, err := c.Archive.CompressionTag(); err != nil {
		errs = append(errs, fmt.Errorf("archive.compression: %w", err))
	}

	switch c.Copier.Mode {
	case CopierGSUtil:
	case CopierDir:
		if c.Copier.DirRoot == "" {
			errs = append(errs, errors.New("copier.dir_root is required in dir mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("copier.mode: %q is not gsutil or dir", c.Copier.Mode))
	}

	if _, err := c.Runner.StepTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Runner.GracePeriodDuration(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for i, cc := range c.Chains {
		if cc.Name == "" {
			errs = append(errs, fmt.Errorf("chains[%d]: name is required", i))
			continue
		}
		if seen[cc.Name] {
			errs = append(errs, fmt.Errorf("chain %q: declared twice", cc.Name))
		}
		seen[cc.Name] = true

		switch cc.Flavor {
		case FlavorDaily, FlavorMonthly:
		default:
			errs = append(errs, fmt.Errorf("chain %q: flavor %q is not daily or monthly", cc.Name, cc.Flavor))
		}
		if cc.Schedule != "" {
			if _, err := cron.Parse(cc.Schedule); err != nil {
				errs = append(errs, fmt.Errorf("chain %q: %w", cc.Name, err))
			}
		}
		if len(cc.Layers) == 0 {
			errs = append(errs, fmt.Errorf("chain %q: needs at least one settings layer", cc.Name))
		}
		if cc.Retries != nil && *cc.Retries < 0 {
			errs = append(errs, fmt.Errorf("chain %q: retries %d is negative", cc.Name, *cc.Retries))
		}
		if _, err := cc.RetryDelayDuration(); err != nil {
			errs = append(errs, fmt.Errorf("chain %q: %w", cc.Name, err))
		}
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the directories the daemon writes under.
func (c *Config) EnsurePaths() error {
	dirs := []string{c.Paths.Root, c.Paths.WorkRoot}
	if c.Archive.Enabled {
		dirs = append(dirs, c.Paths.Archives)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// parseDuration parses a config duration field. Empty means zero.
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", field, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %q is negative", field, value)
	}
	return d, nil
}
