// SPDX-License-Identifier: MPL-2.0

package discovery

const (
	// SeverityWarning indicates a recoverable discovery warning.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal discovery error diagnostic.
	SeverityError Severity = "error"
)

// Diagnostic codes.
const (
	CodeNotRegularFile = "not_regular_file"
	CodeExcluded       = "excluded"
)

type (
	// Severity represents discovery diagnostic severity.
	Severity string

	// Diagnostic is a non-fatal discovery finding, returned to callers
	// rather than printed so the CLI decides how to render it.
	Diagnostic struct {
		Severity Severity
		// Code is a machine-readable identifier such as "path_skipped".
		Code    string
		Message string
		// Path is the file path associated with this diagnostic (optional).
		Path  string
		Cause error
	}
)
