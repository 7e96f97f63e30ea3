// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management
// for choir.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.choir/config.toml
//   - ~/.choir/config.json
//   - Built-in defaults
//
// A Watcher can reload the file live; invalid edits are reported and
// the last good config stays in effect.
package config
