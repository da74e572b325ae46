// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for steward.
//
// Configuration is loaded from a single file specified by either the
// STEWARD_CONFIG environment variable or a --config flag (both via
// [Resolve]). There are no fallbacks, no ~/.config discovery, and no
// automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides. When neither source names a
// file, [Resolve] returns the compiled defaults and the command line
// supplies the rest.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- the run configuration: trees, cache, history, scan
//     exclusions, worker bound
//   - [Default] -- returns a Config with compiled defaults
//   - [Resolve] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other steward packages.
package config
