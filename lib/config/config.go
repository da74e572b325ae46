// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that points at the config
// file when --config is not given.
const EnvVar = "STEWARD_CONFIG"

// Config is the full configuration for a steward run.
type Config struct {
	// Desired is the root of the desired tree: the checkout that says
	// what the target should look like. Required.
	Desired string `yaml:"desired"`

	// Target is the root of the live tree steward converges. Required;
	// created on apply if missing.
	Target string `yaml:"target"`

	// Cache is the index cache file for the target tree. Empty
	// disables caching; every run then re-hashes the full tree.
	Cache string `yaml:"cache"`

	// History is the run ledger database. Empty disables history.
	History string `yaml:"history"`

	// Exclude holds scan exclusion patterns, matched against both
	// full relative paths and individual names ("*.swp", ".git").
	Exclude []string `yaml:"exclude"`

	// Workers bounds the file-hashing pool. Zero picks a size from
	// GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Default returns the compiled-in configuration: converge nothing
// until told where, no cache, no history. There is deliberately no
// default target — steward owns the whole tree it is pointed at,
// removals included, so the operator names it explicitly every time.
func Default() *Config {
	return &Config{}
}

// Resolve returns the configuration for a run: the file named by the
// --config flag when set, else the file named by STEWARD_CONFIG, else
// the defaults. Flag-level overrides happen in the command layer,
// after Resolve.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if envPath := os.Getenv(EnvVar); envPath != "" {
		return LoadFile(envPath)
	}
	return Default(), nil
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults and expanding path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// path fields.
func (c *Config) expandVariables() {
	c.Desired = expandVars(c.Desired)
	c.Target = expandVars(c.Target)
	c.Cache = expandVars(c.Cache)
	c.History = expandVars(c.History)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Desired == "" {
		errs = append(errs, fmt.Errorf("desired tree is required (--desired or the config file)"))
	}
	if c.Target == "" {
		errs = append(errs, fmt.Errorf("target tree is required (--target or the config file)"))
	}
	if c.Desired != "" && c.Target != "" {
		desired, derr := filepath.Abs(c.Desired)
		target, terr := filepath.Abs(c.Target)
		if derr == nil && terr == nil && desired == target {
			errs = append(errs, fmt.Errorf("desired and target are the same tree: %s", desired))
		}
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative: %d", c.Workers))
	}
	for _, pattern := range c.Exclude {
		if _, err := path.Match(pattern, "probe"); err != nil {
			errs = append(errs, fmt.Errorf("exclude pattern %q: %w", pattern, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the parent directories of the cache and history
// files if they don't exist. The desired and target roots are not
// touched: the desired tree must already exist, and creating the
// target is the apply engine's decision, not configuration's.
func (c *Config) EnsurePaths() error {
	for _, file := range []string{c.Cache, c.History} {
		if file == "" {
			continue
		}
		dir := filepath.Dir(file)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
