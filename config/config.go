// Package config loads git-share-obj's run configuration: the CLI flags of
// spec §6's option table, overridable by a config file and environment
// variables via Viper the way cocoon's config package loads its own
// defaults-then-file layering, but sourced from Viper instead of a bare
// encoding/json.Unmarshal since this module's options are flag-driven
// rather than file-driven.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config mirrors spec §6's CLI option table, plus the SPEC_FULL.md §12
// additions (FsckTimeout, JSON, VerifyFingerprint).
type Config struct {
	Roots             []string      `mapstructure:"roots"`
	NoFsck            bool          `mapstructure:"no-fsck"`
	FsckOnly          bool          `mapstructure:"fsck-only"`
	NoLock            bool          `mapstructure:"no-lock"`
	DryRun            bool          `mapstructure:"dry-run"`
	Verbose           int           `mapstructure:"verbose"` // repeatable -v count, as git-backup's countFlag did for the stdlib flag package
	JSON              bool          `mapstructure:"json"`
	FsckTimeout       time.Duration `mapstructure:"fsck-timeout"`
	VerifyFingerprint bool          `mapstructure:"verify-fingerprint"`
}

// DefaultConfig returns a Config with spec §6's documented defaults: fsck
// enabled, locking enabled, dry-run off, a ten-minute per-repository fsck
// timeout.
func DefaultConfig() *Config {
	return &Config{
		FsckTimeout: 10 * time.Minute,
	}
}

// Load builds a Config from v, which the caller has already bound to the
// process's command-line flags (see cmd/git-share-obj). Environment
// variables prefixed GIT_SHARE_OBJ_ (enabled by the caller) override
// config-file values and flag defaults, but not flags given explicitly on
// the command line — Viper's usual precedence.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if cfg.FsckOnly && cfg.DryRun {
		return nil, fmt.Errorf("--fsck-only and --dry-run are mutually exclusive")
	}
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("at least one root directory is required")
	}
	if cfg.FsckTimeout <= 0 {
		cfg.FsckTimeout = DefaultConfig().FsckTimeout
	}

	return cfg, nil
}
