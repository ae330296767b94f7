// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/modhost/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/modhost/config.cue on macOS, %APPDATA%\modhost\config.cue
// on Windows), falling back to ./config.cue. Built-in defaults apply to every key, and
// MODHOST_-prefixed environment variables override both (MODHOST_LOG_LEVEL for log.level).
//
// The file is validated against an embedded CUE schema (config_schema.cue) before it is
// merged into Viper.
package config
