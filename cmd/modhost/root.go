// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags). Modules declaring
	// a host_version constraint are checked against it.
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "modhost",
		Short: "Load a module bundle and dispatch its commands",
		Long: TitleStyle.Render("modhost") + SubtitleStyle.Render(" - Load a module bundle and dispatch its commands") + `

modhost loads a module bundle (.modpkg), discovers the commands its types
and command tables export, and dispatches key-ins against them. The bundle
is reloaded only when its content changes, and a failed reload keeps the
previous commands active.

` + SubtitleStyle.Render("Examples:") + `
  modhost list                      List the commands the module provides
  modhost run place line 10 20      Dispatch one key-in
  modhost serve                     Read key-ins from stdin, reloading on change
  modhost pack ./tools -o t.modpkg  Build a bundle from a module directory`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $HOME/.config/modhost/config.cue)")
	pf.StringVarP(&flags.modulePath, "module", "m", "", "module bundle to load (overrides module_path)")
	pf.StringVar(&flags.baseDir, "base-dir", "", "directory searched for a module bundle (overrides base_dir)")

	rootCmd.AddCommand(
		newRunCommand(app, flags),
		newListCommand(app, flags),
		newInspectCommand(app, flags),
		newServeCommand(app, flags),
		newPackCommand(app),
		newConfigCommand(app, flags),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main and exits the process
// with the ExitError code on failure.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
