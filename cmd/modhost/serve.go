// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/invowk/modhost/internal/host"
	"github.com/invowk/modhost/internal/loader"
)

// Serve-mode directives; any other line is a key-in.
const (
	serveQuit   = "quit"
	serveReload = "reload"
	serveList   = "list"
)

func newServeCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var noWatch bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Dispatch key-ins read from stdin, reloading the module on change",
		Long: `Dispatch key-ins read from stdin, one per line, until EOF or "quit".

The module is reloaded when its file changes (see auto_reload in the
config) and on the line "reload". A failed reload is reported and the
previous commands stay active. "list" prints the installed commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.serve(cmd.Context(), flags, !noWatch)
		},
	}
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable auto-reload on file changes")
	return serveCmd
}

func (a *App) serve(ctx context.Context, flags *rootFlagValues, watch bool) error {
	h, cfg, err := a.newHost(ctx, flags)
	if err != nil {
		return err
	}

	// A failed first load is not fatal: the watcher may pick up a fix.
	a.reportReload("initial", h.Load(ctx), flags.verbose)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if watch && cfg.AutoReload.Enabled {
		ar, err := h.NewAutoReloader(func(trigger string, res loader.Result) {
			a.reportReload(trigger, res, flags.verbose)
		})
		if err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("start auto-reload: %w", err)}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ar.Run(ctx); err != nil {
				fmt.Fprintf(a.stderr, "%s auto-reload stopped: %v\n", WarningStyle.Render("!"), err)
			}
		}()
	}

	err = a.readKeyins(ctx, h, flags.verbose)
	cancel()
	wg.Wait()
	return err
}

func (a *App) readKeyins(ctx context.Context, h *host.App, verbose bool) error {
	sc := bufio.NewScanner(a.stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case serveQuit:
			return nil
		case serveReload:
			a.reportReload("manual", h.Reload(ctx), verbose)
			continue
		case serveList:
			a.listExecutors(h)
			continue
		}
		// Failures are already reported; serving continues.
		_, _ = a.dispatch(ctx, h, line, nil, verbose)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read key-ins: %w", err)
	}
	return nil
}

func (a *App) reportReload(trigger string, res loader.Result, verbose bool) {
	switch res.Status {
	case loader.StatusReloaded:
		fmt.Fprintf(a.stdout, "%s module loaded (%s): %d commands\n", SuccessStyle.Render("✓"), trigger, res.Executors)
	case loader.StatusUnchanged:
		fmt.Fprintf(a.stdout, "%s module unchanged (%s)\n", VerboseStyle.Render("→"), trigger)
	case loader.StatusFailed:
		renderLoadError(a.stderr, res.Err, verbose)
	}
}
