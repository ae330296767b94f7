// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// LogLevelDebug logs skipped command table entries and unchanged reloads.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs failures only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs load failures and addin notifications only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidTableExtension is the sentinel wrapped by InvalidTableExtensionError.
	ErrInvalidTableExtension = errors.New("invalid command table extension")
	// ErrInvalidAutoReloadConfig is the sentinel wrapped by InvalidAutoReloadConfigError.
	ErrInvalidAutoReloadConfig = errors.New("invalid auto-reload config")
	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is a log verbosity name.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidTableExtensionError is returned for an extension without a
	// leading dot.
	InvalidTableExtensionError struct {
		Value string
	}

	// InvalidAutoReloadConfigError collects auto-reload field errors.
	InvalidAutoReloadConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig and collects field-level errors from all
	// sections.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// BaseDir is searched for a bundle when ModulePath is empty, and
		// relative module paths resolve against it.
		BaseDir string `json:"base_dir" mapstructure:"base_dir"`
		// ModulePath is the bundle to load.
		ModulePath   string             `json:"module_path" mapstructure:"module_path"`
		Host         HostConfig         `json:"host" mapstructure:"host"`
		CommandTable CommandTableConfig `json:"command_table" mapstructure:"command_table"`
		AutoReload   AutoReloadConfig   `json:"auto_reload" mapstructure:"auto_reload"`
		Log          LogConfig          `json:"log" mapstructure:"log"`
	}

	// HostConfig identifies the host to addins.
	HostConfig struct {
		Name string `json:"name" mapstructure:"name"`
	}

	// CommandTableConfig controls which resources are read as command
	// tables.
	CommandTableConfig struct {
		// Namespace is the required XML namespace. Empty accepts any.
		Namespace  string   `json:"namespace" mapstructure:"namespace"`
		Extensions []string `json:"extensions" mapstructure:"extensions"`
	}

	// AutoReloadConfig configures the watcher used by serve.
	AutoReloadConfig struct {
		Enabled  bool          `json:"enabled" mapstructure:"enabled"`
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
		// PollInterval of zero disables polling.
		PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
		// Watch patterns are relative to the module's directory. Empty
		// watches the module file only.
		Watch  []string `json:"watch" mapstructure:"watch"`
		Ignore []string `json:"ignore" mapstructure:"ignore"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:    ".",
		ModulePath: "",
		Host: HostConfig{
			Name: AppName,
		},
		CommandTable: CommandTableConfig{
			Namespace:  "urn:modhost:keyin-tree:1",
			Extensions: []string{".xml"},
		},
		AutoReload: AutoReloadConfig{
			Enabled:      true,
			Debounce:     500 * time.Millisecond,
			PollInterval: 0,
			Watch:        []string{},
			Ignore:       []string{},
		},
		Log: LogConfig{
			Level: LogLevelInfo,
		},
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Level converts to a charmbracelet/log level. Unknown values map to info.
func (l LogLevel) Level() log.Level {
	switch l {
	case LogLevelDebug:
		return log.DebugLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid checks every extension starts with a dot.
func (c CommandTableConfig) IsValid() (bool, []error) {
	var errs []error
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, &InvalidTableExtensionError{Value: ext})
		}
	}
	if len(errs) > 0 {
		return false, errs
	}
	return true, nil
}

// Error implements the error interface for InvalidTableExtensionError.
func (e *InvalidTableExtensionError) Error() string {
	return fmt.Sprintf("invalid command table extension %q: must start with '.'", e.Value)
}

// Unwrap returns ErrInvalidTableExtension for errors.Is() compatibility.
func (e *InvalidTableExtensionError) Unwrap() error { return ErrInvalidTableExtension }

// IsValid rejects negative durations.
func (c AutoReloadConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %s must not be negative", c.Debounce))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval %s must not be negative", c.PollInterval))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidAutoReloadConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidAutoReloadConfigError.
func (e *InvalidAutoReloadConfigError) Error() string {
	return fmt.Sprintf("invalid auto_reload config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidAutoReloadConfig for errors.Is() compatibility.
func (e *InvalidAutoReloadConfigError) Unwrap() error { return ErrInvalidAutoReloadConfig }

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.CommandTable.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.AutoReload.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s): %v", len(e.FieldErrors), errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
