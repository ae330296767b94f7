// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/invowk/modhost/pkg/modbundle"
)

func newInspectCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var raw bool

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the module's types and resources",
		Long: `Describe the module's types and resources.

The bundle is opened and validated but not scanned, so no addin is
initialized. Use --raw to print the Markdown source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := app.newHost(cmd.Context(), flags)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(h.ModulePath())
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			b, err := modbundle.Opener{HostVersion: Version}.Open(data)
			if err != nil {
				fmt.Fprintf(app.stderr, "%s %v\n", ErrorStyle.Render("✗"), err)
				renderIssue(app.stderr, classifyError(err))
				return &ExitError{Code: 1, Err: err}
			}

			md := manifestMarkdown(b)
			if raw {
				fmt.Fprint(app.stdout, md)
				return nil
			}
			out, err := glamour.Render(md, glamourStyle(app.stdout))
			if err != nil {
				return fmt.Errorf("render manifest: %w", err)
			}
			fmt.Fprint(app.stdout, out)
			return nil
		},
	}
	inspectCmd.Flags().BoolVar(&raw, "raw", false, "print Markdown without rendering")
	return inspectCmd
}

// manifestMarkdown describes a bundle as Markdown.
func manifestMarkdown(b *modbundle.Bundle) string {
	m := b.Manifest()
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", m.Module)
	if m.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", m.Description)
	}
	if m.Version != "" {
		fmt.Fprintf(&sb, "- **Version:** %s\n", m.Version)
	}
	if m.HostVersion != "" {
		fmt.Fprintf(&sb, "- **Host version:** `%s`\n", m.HostVersion)
	}

	sb.WriteString("\n## Types\n\n")
	sb.WriteString("| Type | Kind | Runtime | Base | Implements | Methods |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, t := range b.Types() {
		kind := string(t.Kind)
		if kind == "" {
			kind = string(modbundle.KindClass)
		}
		runtime := t.Runtime
		if runtime == "" {
			runtime = modbundle.RuntimeVirtual
		}
		if t.Abstract {
			kind = "abstract " + kind
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
			t.Name, kind, runtime, orDash(t.Base), orDash(strings.Join(t.Implements, ", ")), orDash(methodList(t)))
	}

	sb.WriteString("\n## Resources\n\n")
	names := b.ResourceNames()
	if len(names) == 0 {
		sb.WriteString("_none_\n")
	}
	for _, name := range names {
		fmt.Fprintf(&sb, "- `%s`\n", name)
	}
	return sb.String()
}

func methodList(t *modbundle.Type) string {
	parts := make([]string, 0, len(t.Methods))
	for _, m := range t.Methods {
		params := make([]string, 0, len(m.Params))
		for _, p := range m.Params {
			params = append(params, p.Name+" "+p.Type)
		}
		sig := m.Name + "(" + strings.Join(params, ", ") + ")"
		if m.Static {
			sig = "static " + sig
		}
		for _, attr := range m.Attributes {
			sig = "[" + attr + "] " + sig
		}
		parts = append(parts, sig)
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
