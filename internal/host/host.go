// SPDX-License-Identifier: MPL-2.0

// Package host wires configuration, module discovery, the capability
// scanner, the command registry and the loader into one App.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/invowk/modhost/internal/autoreload"
	"github.com/invowk/modhost/internal/config"
	"github.com/invowk/modhost/internal/discovery"
	"github.com/invowk/modhost/internal/executor"
	"github.com/invowk/modhost/internal/loader"
	"github.com/invowk/modhost/internal/notify"
	"github.com/invowk/modhost/internal/registry"
	"github.com/invowk/modhost/internal/scanner"
	"github.com/invowk/modhost/pkg/modbundle"
)

// ErrNoConfig is returned by New when Options.Config is nil.
var ErrNoConfig = errors.New("host: nil config")

type (
	// Options configure New. Only Config is required.
	Options struct {
		Config *config.Config
		// HostVersion is checked against each module's host_version.
		HostVersion string
		Logger      *log.Logger
		// Sink receives addin failures in addition to the log.
		Sink notify.Sink
		// AddinFactories override the script factory per addin type.
		AddinFactories map[string]scanner.AddinFactory
	}

	// App is one host process: a located module, its loader and the
	// registry dispatch goes through.
	App struct {
		cfg      *config.Config
		located  *discovery.Result
		hostCtx  *scanner.HostContext
		registry *registry.Registry
		loader   *loader.Loader
		logger   *log.Logger
	}
)

// NewLogger returns the logger every component of an App shares.
func NewLogger(w io.Writer, level config.LogLevel) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix: config.AppName,
		Level:  level.Level(),
	})
}

// New locates the module and builds the load pipeline. Nothing is loaded
// until Load is called.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, ErrNoConfig
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	located, err := discovery.New(cfg.BaseDir, cfg.ModulePath).Locate()
	if err != nil {
		return nil, fmt.Errorf("locate module: %w", err)
	}
	for _, d := range located.Diagnostics {
		logger.Warn(d.Message, "code", d.Code, "path", d.Path)
	}
	logger.Debug("module located", "path", located.Path, "source", located.Source)

	hostCtx := &scanner.HostContext{
		HostName:   cfg.Host.Name,
		BaseDir:    located.BaseDir,
		ModulePath: located.Path,
	}

	var sink notify.Sink = notify.LogSink{Logger: logger.WithPrefix("addin")}
	if opts.Sink != nil {
		sink = notify.Multi(sink, opts.Sink)
	}
	scanOpts := []scanner.Option{
		scanner.WithSink(sink),
		scanner.WithLogger(logger.WithPrefix("scan")),
		scanner.WithNamespace(cfg.CommandTable.Namespace),
		scanner.WithTableExtensions(cfg.CommandTable.Extensions...),
	}
	for name, f := range opts.AddinFactories {
		scanOpts = append(scanOpts, scanner.WithAddinFactory(name, f))
	}

	reg := registry.New(registry.WithLogger(logger.WithPrefix("registry")))
	ld := loader.New(
		loader.FileSource{Path: located.Path},
		loader.BundleOpener{HostVersion: opts.HostVersion},
		scanner.New(hostCtx, scanOpts...),
		reg,
		loader.WithLogger(logger.WithPrefix("loader")),
	)

	return &App{
		cfg:      cfg,
		located:  located,
		hostCtx:  hostCtx,
		registry: reg,
		loader:   ld,
		logger:   logger,
	}, nil
}

// Load loads the module, or does nothing if it has not changed.
func (a *App) Load(ctx context.Context) loader.Result {
	return a.loader.Load(ctx)
}

// Reload is Load. It exists for symmetry with the AutoReloader.
func (a *App) Reload(ctx context.Context) loader.Result {
	return a.loader.Reload(ctx)
}

// Execute dispatches a key-in against the installed executors.
func (a *App) Execute(ctx context.Context, keyin string, arg *executor.Argument) registry.Result {
	return a.registry.Execute(ctx, keyin, arg)
}

// ModulePath is the absolute path of the located module.
func (a *App) ModulePath() string { return a.located.Path }

// Located reports how the module was found.
func (a *App) Located() discovery.Result { return *a.located }

// HostContext is the context handed to addins.
func (a *App) HostContext() *scanner.HostContext { return a.hostCtx }

// Registry returns the command registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Loader returns the module loader.
func (a *App) Loader() *loader.Loader { return a.loader }

// Bundle returns the loaded bundle, or nil before the first successful load.
func (a *App) Bundle() *modbundle.Bundle {
	b, _ := a.loader.Module().(*modbundle.Bundle)
	return b
}

// NewAutoReloader returns an AutoReloader for the module's directory.
// Without configured watch patterns only the module file triggers reloads.
func (a *App) NewAutoReloader(onResult func(trigger string, res loader.Result)) (*autoreload.AutoReloader, error) {
	ar := a.cfg.AutoReload
	patterns := ar.Watch
	if len(patterns) == 0 {
		patterns = []string{filepath.Base(a.located.Path)}
	}
	return autoreload.New(a.loader, autoreload.Config{
		BaseDir:      filepath.Dir(a.located.Path),
		Patterns:     patterns,
		Ignore:       ar.Ignore,
		Debounce:     ar.Debounce,
		PollInterval: ar.PollInterval,
		OnResult:     onResult,
		Logger:       a.logger.WithPrefix("autoreload"),
	})
}
