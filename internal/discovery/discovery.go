// SPDX-License-Identifier: MPL-2.0

// Package discovery locates the module bundle a host should load.
//
// A configured module path wins; a relative one is resolved against the
// base directory. Without one, the base directory is searched with a
// doublestar pattern and exactly one bundle must match.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/invowk/modhost/pkg/modbundle"
)

const (
	// SourceConfigured indicates the path came from configuration.
	SourceConfigured Source = iota
	// SourceBaseDir indicates the bundle was found by searching the base
	// directory.
	SourceBaseDir
)

// DefaultPattern matches bundles directly inside the base directory.
const DefaultPattern = "*" + modbundle.BundleExt

var (
	// ErrModuleNotFound is returned when no bundle can be located.
	ErrModuleNotFound = errors.New("module not found")
	// ErrAmbiguousModule is returned when the search matches more than one
	// bundle.
	ErrAmbiguousModule = errors.New("more than one module found")
)

type (
	// Source represents where the module path came from.
	Source int

	// Result is a located module.
	Result struct {
		// Path is absolute.
		Path string
		// BaseDir is the absolute base directory the lookup resolved
		// against. Path need not be inside it.
		BaseDir     string
		Source      Source
		Diagnostics []Diagnostic
	}

	// AmbiguousError lists every candidate when the search is ambiguous.
	AmbiguousError struct {
		BaseDir    string
		Candidates []string
	}

	// NotFoundError describes a failed lookup.
	NotFoundError struct {
		Path    string
		BaseDir string
		Pattern string
		Cause   error
	}

	// Discovery locates a module bundle.
	Discovery struct {
		baseDir    string
		modulePath string
		pattern    string
		exclude    []string
	}

	// Option configures a Discovery.
	Option func(*Discovery)
)

// WithPattern sets the doublestar search pattern, relative to the base
// directory.
func WithPattern(pattern string) Option {
	return func(d *Discovery) { d.pattern = pattern }
}

// WithExclude skips candidates matching any of the doublestar patterns.
func WithExclude(patterns ...string) Option {
	return func(d *Discovery) { d.exclude = append(d.exclude, patterns...) }
}

// New returns a Discovery. An empty baseDir means the working directory.
func New(baseDir, modulePath string, opts ...Option) *Discovery {
	d := &Discovery{baseDir: baseDir, modulePath: modulePath, pattern: DefaultPattern}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// String returns a human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceConfigured:
		return "configured path"
	case SourceBaseDir:
		return "base directory"
	default:
		return "unknown"
	}
}

// Locate returns the module to load.
func (d *Discovery) Locate() (*Result, error) {
	baseDir, err := d.absBaseDir()
	if err != nil {
		return nil, err
	}
	if d.modulePath != "" {
		return d.locateConfigured(baseDir)
	}
	return d.search(baseDir)
}

func (d *Discovery) absBaseDir() (string, error) {
	base := d.baseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("discovery: determine working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("discovery: resolve base directory: %w", err)
	}
	return abs, nil
}

func (d *Discovery) locateConfigured(baseDir string) (*Result, error) {
	path := d.modulePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &NotFoundError{Path: path, Cause: fmt.Errorf("%s is not a regular file", path)}
	}
	return &Result{Path: path, BaseDir: baseDir, Source: SourceConfigured}, nil
}

func (d *Discovery) search(baseDir string) (*Result, error) {
	if !doublestar.ValidatePattern(d.pattern) {
		return nil, fmt.Errorf("discovery: invalid pattern %q", d.pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(baseDir), d.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &NotFoundError{BaseDir: baseDir, Pattern: d.pattern, Cause: err}
	}
	slices.Sort(matches)

	res := &Result{BaseDir: baseDir, Source: SourceBaseDir}
	var candidates []string
	for _, rel := range matches {
		full := filepath.Join(baseDir, filepath.FromSlash(rel))
		if d.excluded(rel) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeExcluded,
				Message:  "bundle excluded by pattern",
				Path:     full,
			})
			continue
		}
		info, statErr := os.Stat(full)
		if statErr != nil || !info.Mode().IsRegular() {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeNotRegularFile,
				Message:  "candidate is not a readable regular file",
				Path:     full,
				Cause:    statErr,
			})
			continue
		}
		candidates = append(candidates, full)
	}

	switch len(candidates) {
	case 0:
		return nil, &NotFoundError{BaseDir: baseDir, Pattern: d.pattern}
	case 1:
		res.Path = candidates[0]
		return res, nil
	default:
		return nil, &AmbiguousError{BaseDir: baseDir, Candidates: candidates}
	}
}

func (d *Discovery) excluded(rel string) bool {
	for _, pat := range d.exclude {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// Error implements the error interface.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d modules found in %s: %s; set module_path to choose one",
		len(e.Candidates), e.BaseDir, strings.Join(e.Candidates, ", "))
}

// Unwrap returns ErrAmbiguousModule.
func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguousModule
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	switch {
	case e.Path != "" && e.Cause != nil:
		return fmt.Sprintf("module %s: %v", e.Path, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("search %s for %q: %v", e.BaseDir, e.Pattern, e.Cause)
	default:
		return fmt.Sprintf("no module matching %q in %s", e.Pattern, e.BaseDir)
	}
}

// Unwrap returns ErrModuleNotFound and the cause.
func (e *NotFoundError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrModuleNotFound}
	}
	return []error{ErrModuleNotFound, e.Cause}
}
