// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/modhost/internal/discovery"
	"github.com/invowk/modhost/internal/issue"
	"github.com/invowk/modhost/internal/loader"
	"github.com/invowk/modhost/pkg/keyintable"
	"github.com/invowk/modhost/pkg/modbundle"
)

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// classifyError maps an error to the catalog entry that explains it, or 0.
func classifyError(err error) issue.Id {
	if id := issue.IdOf(err); id != 0 {
		return id
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, discovery.ErrAmbiguousModule):
		return issue.ModuleAmbiguousId
	case errors.Is(err, discovery.ErrModuleNotFound):
		return issue.ModuleNotFoundId
	case errors.Is(err, modbundle.ErrHostVersion):
		return issue.HostVersionMismatchId
	case errors.Is(err, modbundle.ErrInvalidManifest), errors.Is(err, modbundle.ErrInvalidBundle):
		return issue.ManifestInvalidId
	case errors.Is(err, keyintable.ErrMalformed):
		return issue.CommandTableInvalidId
	default:
		return 0
	}
}

// renderIssue writes the catalog guidance for id to w. Unknown ids and
// render failures are ignored.
func renderIssue(w io.Writer, id issue.Id) {
	iss := issue.Get(id)
	if iss == nil {
		return
	}
	rendered, err := iss.Render(glamourStyle(w))
	if err != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// renderLoadError prints a failed load and its guidance. The trace is
// only shown in verbose mode.
func renderLoadError(w io.Writer, lerr *loader.LoadError, verbose bool) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("✗"), lerr.Error())
	if verbose && lerr.Trace != "" {
		fmt.Fprintln(w, VerboseStyle.Render(lerr.Trace))
	}
	renderIssue(w, classifyError(lerr))
}

// glamourStyle picks a styled renderer for terminals and plain text otherwise.
func glamourStyle(w io.Writer) string {
	f, ok := w.(*os.File)
	if !ok {
		return "notty"
	}
	info, err := f.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return "notty"
	}
	return "dark"
}
