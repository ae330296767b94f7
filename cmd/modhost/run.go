// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/modhost/internal/issue"
)

func newRunCommand(app *App, flags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "run <keyin...>",
		Short: "Load the module and dispatch one key-in",
		Long: `Load the module and dispatch one key-in.

The arguments are joined with spaces into a single key-in. Every command
whose name is a case-insensitive whole-word prefix of it runs, in
registration order; the rest of the key-in is passed as the unparsed text.
Use -- before key-ins that start with a dash.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.loadModule(cmd.Context(), flags)
			if err != nil {
				return err
			}
			n, err := app.dispatch(cmd.Context(), h, strings.Join(args, " "), app.stdin, flags.verbose)
			if n == 0 {
				renderIssue(app.stderr, issue.KeyinNotMatchedId)
			}
			return err
		},
	}
}
