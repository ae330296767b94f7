// SPDX-License-Identifier: MPL-2.0

// Package registry holds the installed executors and dispatches key-ins to
// them.
//
// The registry keeps an atomic pointer to an immutable Snapshot. Install
// builds a new snapshot and swaps it in; Execute loads the pointer once per
// call, so a dispatch running during a reload sees either the old executor
// list or the new one, never a mix.
package registry

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"

	"github.com/invowk/modhost/internal/executor"
)

type (
	// Snapshot is one installed executor list. It is never mutated after
	// Install publishes it.
	Snapshot struct {
		// Generation increases by one on every Install. The empty initial
		// snapshot is generation 0.
		Generation  uint64
		Digest      digest.Digest
		InstalledAt time.Time
		executors   []executor.Executor
	}

	// Failure records one executor that returned an error or panicked.
	Failure struct {
		Names []string
		Kind  executor.Kind
		Err   error
	}

	// Result is the outcome of one dispatch. Success reports that dispatch
	// completed; Count is the number of executors that matched.
	Result struct {
		Success  bool
		Count    int
		Failures []Failure
	}

	// Registry dispatches key-ins against the current snapshot.
	Registry struct {
		current atomic.Pointer[Snapshot]
		// installMu serializes writers; readers never take it.
		installMu sync.Mutex
		logger    *log.Logger
	}

	// Option configures a Registry.
	Option func(*Registry)

	// PanicError is a recovered panic from an executor.
	PanicError struct {
		Value any
		Stack []byte
	}
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New returns a Registry with an empty generation 0 snapshot.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	r.current.Store(&Snapshot{})
	return r
}

// Executors returns a copy of the snapshot's executors in registration order.
func (s *Snapshot) Executors() []executor.Executor {
	return slices.Clone(s.executors)
}

// Len returns the number of executors.
func (s *Snapshot) Len() int {
	return len(s.executors)
}

// Install publishes execs as the new snapshot and returns it. The slice is
// copied; callers may reuse it.
func (r *Registry) Install(execs []executor.Executor, dgst digest.Digest) *Snapshot {
	r.installMu.Lock()
	defer r.installMu.Unlock()

	next := &Snapshot{
		Generation:  r.current.Load().Generation + 1,
		Digest:      dgst,
		InstalledAt: time.Now(),
		executors:   slices.Clone(execs),
	}
	r.current.Store(next)
	r.logger.Debug("registry installed", "generation", next.Generation, "executors", len(execs), "digest", dgst)
	return next
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Execute runs every executor whose Match accepts name, in registration
// order. Before each call the matched trailing text, when non-empty, is
// stored in arg.UnparsedParams. An error or panic from one executor is
// recorded in Result.Failures and dispatch continues. Zero matches is a
// successful dispatch with Count 0.
func (r *Registry) Execute(ctx context.Context, name string, arg *executor.Argument) Result {
	if arg == nil {
		arg = &executor.Argument{}
	}
	snap := r.current.Load()

	var matched []executor.Executor
	for _, e := range snap.executors {
		if _, ok := e.Match(name); ok {
			matched = append(matched, e)
		}
	}

	res := Result{Success: true, Count: len(matched)}
	for _, e := range matched {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, Failure{Names: e.Names(), Kind: e.Kind(), Err: err})
			continue
		}
		if m, ok := e.Match(name); ok && m.Trailing != "" {
			arg.UnparsedParams = m.Trailing
		}
		if err := invoke(ctx, e, arg); err != nil {
			r.logger.Warn("executor failed", "names", e.Names(), "kind", e.Kind(), "error", err)
			res.Failures = append(res.Failures, Failure{Names: e.Names(), Kind: e.Kind(), Err: err})
		}
	}

	if res.Count == 0 {
		r.logger.Debug("no executor matched", "keyin", name, "generation", snap.Generation)
	}
	return res
}

func invoke(ctx context.Context, e executor.Executor, arg *executor.Argument) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return e.Execute(ctx, arg)
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor panicked: %v", e.Value)
}

// Failed reports whether any executor failed.
func (r Result) Failed() bool {
	return len(r.Failures) > 0
}
