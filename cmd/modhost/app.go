// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/invowk/modhost/internal/config"
	"github.com/invowk/modhost/internal/executor"
	"github.com/invowk/modhost/internal/host"
)

type (
	// App is the composition root for the CLI layer. Every Cobra handler
	// receives it and reads configuration through its provider.
	App struct {
		Config config.Provider
		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// rootFlagValues holds the persistent flags shared by every subcommand.
	rootFlagValues struct {
		configPath string
		modulePath string
		baseDir    string
		verbose    bool
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{
		Config: deps.Config,
		stdin:  deps.Stdin,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// loadConfig loads configuration and applies flag overrides.
func (a *App) loadConfig(ctx context.Context, flags *rootFlagValues) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		fmt.Fprintln(a.stderr, formatErrorForDisplay(err, flags.verbose))
		renderIssue(a.stderr, classifyError(err))
		return nil, &ExitError{Code: 1, Err: err}
	}
	flags.apply(cfg)
	return cfg, nil
}

// apply overrides cfg with the values given on the command line.
func (f *rootFlagValues) apply(cfg *config.Config) {
	if f.baseDir != "" {
		cfg.BaseDir = f.baseDir
	}
	if f.modulePath != "" {
		cfg.ModulePath = f.modulePath
	}
	if f.verbose {
		cfg.Log.Level = config.LogLevelDebug
	}
}

// newHost locates the module and builds the load pipeline without loading.
func (a *App) newHost(ctx context.Context, flags *rootFlagValues) (*host.App, *config.Config, error) {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return nil, nil, err
	}
	h, err := host.New(host.Options{
		Config:      cfg,
		HostVersion: Version,
		Logger:      host.NewLogger(a.stderr, cfg.Log.Level),
	})
	if err != nil {
		fmt.Fprintf(a.stderr, "%s %v\n", ErrorStyle.Render("✗"), err)
		renderIssue(a.stderr, classifyError(err))
		return nil, nil, &ExitError{Code: 1, Err: err}
	}
	return h, cfg, nil
}

// loadModule builds the host and loads the module once.
func (a *App) loadModule(ctx context.Context, flags *rootFlagValues) (*host.App, error) {
	h, _, err := a.newHost(ctx, flags)
	if err != nil {
		return nil, err
	}
	if res := h.Load(ctx); !res.OK() {
		renderLoadError(a.stderr, res.Err, flags.verbose)
		return nil, &ExitError{Code: 1, Err: res.Err}
	}
	return h, nil
}

// dispatch runs one key-in and returns the number of matches. A key-in
// nothing answers to is reported but is not an error; failed executors are
// listed and yield exit code 1.
func (a *App) dispatch(ctx context.Context, h *host.App, keyin string, stdin io.Reader, verbose bool) (int, error) {
	res := h.Execute(ctx, keyin, &executor.Argument{
		Stdin:  stdin,
		Stdout: a.stdout,
		Stderr: a.stderr,
	})
	if res.Count == 0 {
		fmt.Fprintf(a.stderr, "%s no command matches %s\n", WarningStyle.Render("!"), CmdStyle.Render(strconv.Quote(keyin)))
		return 0, nil
	}
	if !res.Failed() {
		return res.Count, nil
	}
	for _, f := range res.Failures {
		fmt.Fprintf(a.stderr, "%s %s [%s]: %s\n",
			ErrorStyle.Render("✗"), CmdStyle.Render(strings.Join(f.Names, ", ")), f.Kind, formatErrorForDisplay(f.Err, verbose))
	}
	return res.Count, &ExitError{Code: 1, Err: fmt.Errorf("%d of %d matched commands failed", len(res.Failures), res.Count)}
}
