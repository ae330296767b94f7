// SPDX-License-Identifier: MPL-2.0

package modbundle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBundle is returned when bundle bytes are not a readable bundle.
	ErrInvalidBundle = errors.New("invalid module bundle")
	// ErrInvalidManifest is wrapped by InvalidManifestError.
	ErrInvalidManifest = errors.New("invalid module manifest")
	// ErrHostVersion is wrapped by HostVersionError.
	ErrHostVersion = errors.New("host version not accepted by module")
	// ErrResourceNotFound is returned by OpenResource for unknown names.
	ErrResourceNotFound = errors.New("resource not found")
)

type (
	// BundleError describes a structural problem with a bundle entry.
	BundleError struct {
		Entry  string
		Reason string
		Err    error
	}

	// ContractError is a single manifest rule violation.
	ContractError struct {
		Type   string
		Reason string
	}

	// InvalidManifestError collects every ContractError found in a manifest.
	InvalidManifestError struct {
		Errs []error
	}

	// HostVersionError is returned when a module's host_version constraint
	// rejects the running host.
	HostVersionError struct {
		Module     string
		Constraint string
		Host       string
	}
)

func (e *BundleError) Error() string {
	msg := e.Reason
	if e.Entry != "" {
		msg = e.Entry + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns ErrInvalidBundle and the underlying cause.
func (e *BundleError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidBundle}
	}
	return []error{ErrInvalidBundle, e.Err}
}

func (e *ContractError) Error() string {
	if e.Type == "" {
		return e.Reason
	}
	return fmt.Sprintf("type %s: %s", e.Type, e.Reason)
}

func (e *InvalidManifestError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	if len(msgs) == 1 {
		return ErrInvalidManifest.Error() + ": " + msgs[0]
	}
	return ErrInvalidManifest.Error() + ":\n  " + strings.Join(msgs, "\n  ")
}

// Unwrap returns ErrInvalidManifest followed by each violation.
func (e *InvalidManifestError) Unwrap() []error {
	return append([]error{ErrInvalidManifest}, e.Errs...)
}

func (e *HostVersionError) Error() string {
	return fmt.Sprintf("module %s requires host %s, running %s", e.Module, e.Constraint, e.Host)
}

// Unwrap returns ErrHostVersion.
func (e *HostVersionError) Unwrap() error { return ErrHostVersion }
