// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/modhost/pkg/modbundle"
)

func newPackCommand(app *App) *cobra.Command {
	var opts modbundle.ArchiveOptions

	packCmd := &cobra.Command{
		Use:   "pack <dir>",
		Short: "Build a module bundle from a directory",
		Long: `Build a module bundle from a directory.

The directory must contain a module.cue manifest. Resources go under
resources/, and script files referenced by script_file are stored with
the paths the manifest uses. The bundle is validated after it is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := modbundle.Archive(args[0], opts)
			if err != nil {
				fmt.Fprintf(app.stderr, "%s %v\n", ErrorStyle.Render("✗"), err)
				renderIssue(app.stderr, classifyError(err))
				return &ExitError{Code: 1, Err: err}
			}
			fmt.Fprintf(app.stdout, "%s Packed %s into %s\n", SuccessStyle.Render("✓"), args[0], path)
			return nil
		},
	}
	packCmd.Flags().StringVarP(&opts.Output, "output", "o", "", "bundle path (default is <module>.modpkg)")
	packCmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "doublestar patterns to leave out of the bundle")
	return packCmd
}
