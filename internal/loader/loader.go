// SPDX-License-Identifier: MPL-2.0

// Package loader fingerprints, opens, scans and installs a module.
//
// Load reads the module bytes and compares their digest with the last
// successful load. An equal digest is a no-op. Otherwise the bytes are
// opened, scanned, and the executors installed into the registry; only
// then is the new digest recorded. Any failure, including a panic in the
// opener or scanner, becomes a *LoadError in the Result and leaves the
// previous registry and digest in place.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"

	"github.com/invowk/modhost/internal/executor"
	"github.com/invowk/modhost/internal/fingerprint"
	"github.com/invowk/modhost/internal/registry"
	"github.com/invowk/modhost/internal/scanner"
	"github.com/invowk/modhost/pkg/modbundle"
)

// Load outcomes.
const (
	StatusUnchanged Status = iota
	StatusReloaded
	StatusFailed
)

// Pipeline stages named in LoadError.Op.
const (
	OpRead    = "read"
	OpOpen    = "open"
	OpScan    = "scan"
	OpInstall = "install"
)

// ErrLoadFailed is the sentinel every *LoadError matches.
var ErrLoadFailed = errors.New("module load failed")

type (
	// Status is the outcome of one Load.
	Status int

	// Source reads the module bytes and their digest.
	Source interface {
		Read(ctx context.Context) (digest.Digest, []byte, error)
		// Location describes the source in errors and logs.
		Location() string
	}

	// Opener materializes a module from its bytes.
	Opener interface {
		Open(data []byte) (scanner.Module, error)
	}

	// Scanner discovers executors in a module.
	Scanner interface {
		Scan(ctx context.Context, m scanner.Module) ([]executor.Executor, error)
	}

	// FileSource reads the module from a file.
	FileSource struct {
		Path string
	}

	// BytesSource serves a fixed byte slice. Set replaces it.
	BytesSource struct {
		mu   sync.Mutex
		name string
		data []byte
	}

	// BundleOpener opens modbundle bundles.
	BundleOpener struct {
		HostVersion string
	}

	// Result is the outcome of Load or Reload.
	Result struct {
		Status Status
		// Digest is the digest now installed. On failure it is the digest
		// of the previous successful load, or empty.
		Digest digest.Digest
		// Executors is the installed executor count.
		Executors int
		Err       *LoadError
	}

	// LoadError describes a failed load. Trace holds the goroutine stack
	// for recovered panics and the unwrapped error chain otherwise.
	LoadError struct {
		Op      string
		Path    string
		Message string
		Trace   string
		Cause   error
	}

	// Stats counts loader activity.
	Stats struct {
		Loads    uint64
		Scans    uint64
		Reloads  uint64
		Failures uint64
	}

	// Loader drives the load pipeline. Load and Reload are serialized;
	// Registry dispatch never waits on them.
	Loader struct {
		source  Source
		opener  Opener
		scanner Scanner
		reg     *registry.Registry
		logger  *log.Logger

		mu      sync.Mutex
		current atomic.Pointer[loaded]

		loads, scans, reloads, failures atomic.Uint64
	}

	// Option configures a Loader.
	Option func(*Loader)

	loaded struct {
		module scanner.Module
		digest digest.Digest
	}

	panicValue struct {
		value any
	}
)

var (
	_ Source  = FileSource{}
	_ Source  = (*BytesSource)(nil)
	_ Opener  = BundleOpener{}
	_ Scanner = (*scanner.Scanner)(nil)
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// New returns a Loader. opener defaults to BundleOpener{} when nil.
func New(source Source, opener Opener, sc Scanner, reg *registry.Registry, opts ...Option) *Loader {
	if opener == nil {
		opener = BundleOpener{}
	}
	l := &Loader{
		source:  source,
		opener:  opener,
		scanner: sc,
		reg:     reg,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.New(io.Discard)
	}
	return l
}

// Load runs the pipeline once. It never panics and never returns an error
// outside Result.Err.
func (l *Loader) Load(ctx context.Context) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loads.Add(1)
	res := l.run(ctx)

	switch res.Status {
	case StatusUnchanged:
		l.logger.Debug("module unchanged", "path", l.source.Location(), "digest", res.Digest)
	case StatusReloaded:
		l.logger.Info("module loaded", "path", l.source.Location(), "digest", res.Digest, "executors", res.Executors)
	case StatusFailed:
		l.failures.Add(1)
		l.logger.Error("module load failed", "path", l.source.Location(), "op", res.Err.Op, "error", res.Err.Message)
	}
	return res
}

// Reload is Load; an unchanged module is a no-op.
func (l *Loader) Reload(ctx context.Context) Result {
	return l.Load(ctx)
}

// Module returns the module of the last successful load, or nil.
func (l *Loader) Module() scanner.Module {
	if cur := l.current.Load(); cur != nil {
		return cur.module
	}
	return nil
}

// Digest returns the digest of the last successful load, or "".
func (l *Loader) Digest() digest.Digest {
	if cur := l.current.Load(); cur != nil {
		return cur.digest
	}
	return ""
}

// Stats returns a copy of the counters.
func (l *Loader) Stats() Stats {
	return Stats{
		Loads:    l.loads.Load(),
		Scans:    l.scans.Load(),
		Reloads:  l.reloads.Load(),
		Failures: l.failures.Load(),
	}
}

// Location returns the source location.
func (l *Loader) Location() string {
	return l.source.Location()
}

func (l *Loader) run(ctx context.Context) (res Result) {
	op := OpRead
	defer func() {
		if r := recover(); r != nil {
			res = l.failed(op, panicValue{value: r}, string(debug.Stack()))
		}
	}()

	prev := l.Digest()

	dgst, data, err := l.source.Read(ctx)
	if err != nil {
		return l.failed(op, err, "")
	}
	if fingerprint.Equal(dgst, prev) {
		return Result{Status: StatusUnchanged, Digest: prev, Executors: l.reg.Snapshot().Len()}
	}
	if err := ctx.Err(); err != nil {
		return l.failed(op, err, "")
	}

	op = OpOpen
	module, err := l.opener.Open(data)
	if err != nil {
		return l.failed(op, err, "")
	}
	if err := ctx.Err(); err != nil {
		return l.failed(op, err, "")
	}

	op = OpScan
	l.scans.Add(1)
	execs, err := l.scanner.Scan(ctx, module)
	if err != nil {
		return l.failed(op, err, "")
	}
	if err := ctx.Err(); err != nil {
		return l.failed(op, err, "")
	}

	op = OpInstall
	snap := l.reg.Install(execs, dgst)
	l.current.Store(&loaded{module: module, digest: dgst})
	l.reloads.Add(1)

	return Result{Status: StatusReloaded, Digest: dgst, Executors: snap.Len()}
}

func (l *Loader) failed(op string, cause error, trace string) Result {
	if trace == "" {
		trace = chain(cause)
	}
	return Result{
		Status:    StatusFailed,
		Digest:    l.Digest(),
		Executors: l.reg.Snapshot().Len(),
		Err: &LoadError{
			Op:      op,
			Path:    l.source.Location(),
			Message: cause.Error(),
			Trace:   trace,
			Cause:   cause,
		},
	}
}

// chain lists every error in err's tree, one per line, depth first.
func chain(err error) string {
	var b strings.Builder
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil {
			return
		}
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), e, e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap(), depth+1)
		}
	}
	walk(err, 0)
	return b.String()
}

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusReloaded:
		return "reloaded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// OK reports whether the load did not fail.
func (r Result) OK() bool {
	return r.Status != StatusFailed
}

// Error implements error.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s failed: %s", e.Path, e.Op, e.Message)
}

// Unwrap returns ErrLoadFailed and the cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Cause}
}

func (p panicValue) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// Read reads and fingerprints the file.
func (s FileSource) Read(ctx context.Context) (digest.Digest, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return fingerprint.ReadFile(s.Path)
}

// Location returns the file path.
func (s FileSource) Location() string {
	return s.Path
}

// NewBytesSource returns a BytesSource named name.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{name: name, data: data}
}

// Set replaces the served bytes.
func (s *BytesSource) Set(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

// Read returns the current bytes and their digest.
func (s *BytesSource) Read(ctx context.Context) (digest.Digest, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return "", nil, fmt.Errorf("%s: no module data", s.name)
	}
	return fingerprint.Of(s.data), s.data, nil
}

// Location returns the source name.
func (s *BytesSource) Location() string {
	return s.name
}

// Open opens data as a bundle, checking host_version against HostVersion.
func (o BundleOpener) Open(data []byte) (scanner.Module, error) {
	b, err := modbundle.Opener{HostVersion: o.HostVersion}.Open(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}
