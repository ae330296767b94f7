// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/modhost/internal/config"
	"github.com/invowk/modhost/internal/issue"
)

// newConfigCommand creates the `modhost config` command tree.
func newConfigCommand(app *App, flags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect modhost configuration",
		Long: `Inspect modhost configuration.

Configuration is read from:
  - Linux: ~/.config/modhost/config.cue
  - macOS: ~/Library/Application Support/modhost/config.cue
  - Windows: %APPDATA%\modhost\config.cue
  - ./config.cue as a fallback

MODHOST_-prefixed environment variables override file values, e.g.
MODHOST_LOG_LEVEL=debug or MODHOST_AUTO_RELOAD_DEBOUNCE=1s.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfig(cmd.Context(), flags)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	return cfgCmd
}

func (a *App) showConfig(ctx context.Context, flags *rootFlagValues) error {
	loaded, err := config.LoadWithSource(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		fmt.Fprintln(a.stderr, formatErrorForDisplay(err, flags.verbose))
		renderIssue(a.stderr, issue.ConfigLoadFailedId)
		return &ExitError{Code: 1, Err: err}
	}
	cfg := loaded.Config
	flags.apply(cfg)

	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	kv := func(indent, key string, value any) {
		fmt.Fprintf(a.stdout, "%s%s: %s\n", indent, keyStyle.Render(key), valueStyle.Render(fmt.Sprint(value)))
	}
	list := func(items []string) string {
		if len(items) == 0 {
			return "[]"
		}
		return "[" + strings.Join(items, ", ") + "]"
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(a.stdout)
	if loaded.Path != "" {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render("Config file"), loaded.Path)
	} else {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(a.stdout)

	kv("", "base_dir", cfg.BaseDir)
	modulePath := cfg.ModulePath
	if modulePath == "" {
		modulePath = "(discovered in base_dir)"
	}
	kv("", "module_path", modulePath)

	fmt.Fprintf(a.stdout, "\n%s:\n", keyStyle.Render("host"))
	kv("  ", "name", cfg.Host.Name)

	fmt.Fprintf(a.stdout, "\n%s:\n", keyStyle.Render("command_table"))
	kv("  ", "namespace", cfg.CommandTable.Namespace)
	kv("  ", "extensions", list(cfg.CommandTable.Extensions))

	fmt.Fprintf(a.stdout, "\n%s:\n", keyStyle.Render("auto_reload"))
	kv("  ", "enabled", cfg.AutoReload.Enabled)
	kv("  ", "debounce", cfg.AutoReload.Debounce)
	kv("  ", "poll_interval", cfg.AutoReload.PollInterval)
	kv("  ", "watch", list(cfg.AutoReload.Watch))
	kv("  ", "ignore", list(cfg.AutoReload.Ignore))

	fmt.Fprintf(a.stdout, "\n%s:\n", keyStyle.Render("log"))
	kv("  ", "level", cfg.Log.Level)
	return nil
}
