// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
)

var (
	// ErrSealed is returned by AddinExecutor.AddName after Seal.
	ErrSealed = errors.New("executor names are sealed")
	// ErrEmptyName is returned when adding a blank name.
	ErrEmptyName = errors.New("executor name is empty")
)

type (
	// ClassExecutor constructs a Command type and runs its Execute method.
	// It answers to the type's short name and its fully qualified name.
	ClassExecutor struct {
		binding Binding
		names   []string
	}

	// StaticMethodExecutor runs one invocable static method. It answers to
	// the method name and "Type.Method".
	StaticMethodExecutor struct {
		binding Binding
		names   []string
	}

	// AddinExecutor runs a method targeted by command table entries. It
	// starts without names; the scanner adds one per Keyin and seals it
	// before the registry sees it.
	AddinExecutor struct {
		binding Binding
		names   []string
		sealed  atomic.Bool
	}
)

var (
	_ Executor = (*ClassExecutor)(nil)
	_ Executor = (*StaticMethodExecutor)(nil)
	_ Executor = (*AddinExecutor)(nil)
)

// NewClass returns a ClassExecutor answering to shortName and b.TypeName.
// b.Method names the resolved Execute method.
func NewClass(shortName string, b Binding) *ClassExecutor {
	return &ClassExecutor{binding: b, names: uniqueNames(shortName, b.TypeName)}
}

// NewStaticMethod returns a StaticMethodExecutor for b.
func NewStaticMethod(b Binding) *StaticMethodExecutor {
	return &StaticMethodExecutor{binding: b, names: uniqueNames(b.Method, b.Qualified())}
}

// NewAddin returns an AddinExecutor for b with no names.
func NewAddin(b Binding) *AddinExecutor {
	return &AddinExecutor{binding: b}
}

func (*ClassExecutor) Kind() Kind { return KindClass }
func (e *ClassExecutor) Names() []string { return slices.Clone(e.names) }
func (e *ClassExecutor) Binding() Binding { return e.binding }
func (e *ClassExecutor) Match(req string) (Match, bool) { return matchNames(e.names, req) }

// Execute opens a session, runs the constructor, then Execute.
func (e *ClassExecutor) Execute(ctx context.Context, arg *Argument) error {
	return e.binding.run(ctx, arg, true)
}

func (*StaticMethodExecutor) Kind() Kind { return KindStaticMethod }
func (e *StaticMethodExecutor) Names() []string { return slices.Clone(e.names) }
func (e *StaticMethodExecutor) Binding() Binding { return e.binding }
func (e *StaticMethodExecutor) Match(req string) (Match, bool) { return matchNames(e.names, req) }

// Execute runs the method without constructing an instance.
func (e *StaticMethodExecutor) Execute(ctx context.Context, arg *Argument) error {
	return e.binding.run(ctx, arg, false)
}

func (*AddinExecutor) Kind() Kind { return KindAddin }
func (e *AddinExecutor) Names() []string { return slices.Clone(e.names) }
func (e *AddinExecutor) Binding() Binding { return e.binding }

// Match never matches before Seal.
func (e *AddinExecutor) Match(req string) (Match, bool) {
	if !e.sealed.Load() {
		return Match{}, false
	}
	return matchNames(e.names, req)
}

// Execute runs the bound method directly.
func (e *AddinExecutor) Execute(ctx context.Context, arg *Argument) error {
	return e.binding.run(ctx, arg, false)
}

// Targets reports whether e is bound to typeName.method.
func (e *AddinExecutor) Targets(typeName, method string) bool {
	return e.binding.TypeName == typeName && e.binding.Method == method
}

// AddName adds a Keyin. Names equal under case folding are stored once.
// It reports whether the name was new.
func (e *AddinExecutor) AddName(name string) (bool, error) {
	if e.sealed.Load() {
		return false, ErrSealed
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrEmptyName
	}
	if slices.ContainsFunc(e.names, func(n string) bool { return strings.EqualFold(n, name) }) {
		return false, nil
	}
	e.names = append(e.names, name)
	return true, nil
}

// Seal freezes the name set.
func (e *AddinExecutor) Seal() {
	e.sealed.Store(true)
}

// Sealed reports whether Seal was called.
func (e *AddinExecutor) Sealed() bool {
	return e.sealed.Load()
}

func uniqueNames(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
