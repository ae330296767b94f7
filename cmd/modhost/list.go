// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/modhost/internal/host"
)

func newListCommand(app *App, flags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the commands the module provides",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.loadModule(cmd.Context(), flags)
			if err != nil {
				return err
			}
			app.listExecutors(h)
			return nil
		},
	}
}

// listExecutors prints the installed executors in registration order, which
// is also dispatch order.
func (a *App) listExecutors(h *host.App) {
	snap := h.Registry().Snapshot()

	fmt.Fprintln(a.stdout, TitleStyle.Render("Module"), h.ModulePath())
	fmt.Fprintln(a.stdout, SubtitleStyle.Render(fmt.Sprintf("generation %d, %s", snap.Generation, snap.Digest)))
	fmt.Fprintln(a.stdout)

	if snap.Len() == 0 {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("(no commands)"))
		return
	}
	for _, e := range snap.Executors() {
		fmt.Fprintf(a.stdout, "%s%s\n", kindStyle.Render(string(e.Kind())), CmdStyle.Render(strings.Join(e.Names(), ", ")))
	}
}
