// SPDX-License-Identifier: MPL-2.0

// Package scanner discovers executors in a materialized module.
//
// Scan runs three passes in a fixed order and concatenates their results:
// command classes, invocable static methods, then addins and the command
// tables that name their entry points.
package scanner

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/modhost/internal/executor"
	"github.com/invowk/modhost/internal/notify"
	"github.com/invowk/modhost/internal/scriptrt"
	"github.com/invowk/modhost/pkg/keyintable"
	"github.com/invowk/modhost/pkg/modbundle"
)

// DefaultTableExtensions are the resource suffixes parsed as command tables.
var DefaultTableExtensions = []string{".xml"}

type (
	// Module is the view of a materialized module the scanner needs.
	// *modbundle.Bundle implements it.
	Module interface {
		Types() []*modbundle.Type
		LookupType(fullName string) (*modbundle.Type, bool)
		ResolveMethod(t *modbundle.Type, name string) (*modbundle.Method, bool)
		Implements(t *modbundle.Type, contract string) bool
		IsAddin(t *modbundle.Type) bool
		ResourceNames() []string
		OpenResource(name string) (io.ReadCloser, error)
	}

	// Scanner turns a Module into executors.
	Scanner struct {
		engines    scriptrt.Engines
		host       *HostContext
		factories  map[string]AddinFactory
		fallback   AddinFactory
		sink       notify.Sink
		logger     *log.Logger
		namespace  string
		extensions []string
	}

	// Option configures a Scanner.
	Option func(*Scanner)
)

var _ Module = (*modbundle.Bundle)(nil)

// WithEngines sets the script engines. Defaults to scriptrt.DefaultEngines.
func WithEngines(e scriptrt.Engines) Option {
	return func(s *Scanner) { s.engines = e }
}

// WithAddinFactory registers the factory for one fully qualified addin type.
func WithAddinFactory(typeName string, f AddinFactory) Option {
	return func(s *Scanner) { s.factories[typeName] = f }
}

// WithDefaultAddinFactory replaces ScriptAddinFactory for unregistered types.
func WithDefaultAddinFactory(f AddinFactory) Option {
	return func(s *Scanner) { s.fallback = f }
}

// WithSink sets where addin construction and init failures go.
func WithSink(sink notify.Sink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithNamespace sets the command table XML namespace.
func WithNamespace(ns string) Option {
	return func(s *Scanner) { s.namespace = ns }
}

// WithTableExtensions sets the resource suffixes treated as command tables.
func WithTableExtensions(exts ...string) Option {
	return func(s *Scanner) { s.extensions = exts }
}

// New returns a Scanner. host is passed to every addin's Init.
func New(host *HostContext, opts ...Option) *Scanner {
	if host == nil {
		host = &HostContext{}
	}
	s := &Scanner{
		engines:    scriptrt.DefaultEngines(),
		host:       host,
		factories:  make(map[string]AddinFactory),
		fallback:   ScriptAddinFactory,
		sink:       notify.Discard,
		namespace:  keyintable.DefaultNamespace,
		extensions: DefaultTableExtensions,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// Scan discovers executors. Addin failures go to the sink; everything else
// fails the scan. Returned addin executors are sealed.
func (s *Scanner) Scan(ctx context.Context, m Module) ([]executor.Executor, error) {
	classes, err := s.scanClasses(m)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	statics, err := s.scanStaticMethods(m)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.initAddins(ctx, m)

	addins, err := s.scanCommandTables(m)
	if err != nil {
		return nil, err
	}

	out := make([]executor.Executor, 0, len(classes)+len(statics)+len(addins))
	out = append(out, classes...)
	out = append(out, statics...)
	for _, a := range addins {
		a.Seal()
		out = append(out, a)
	}

	s.logger.Info("scan complete", "classes", len(classes), "static_methods", len(statics), "addin_entries", len(addins))
	return out, nil
}

func (s *Scanner) scanClasses(m Module) ([]executor.Executor, error) {
	var out []executor.Executor
	for _, t := range m.Types() {
		if !t.IsConcrete() || !m.Implements(t, modbundle.ContractCommand) {
			continue
		}
		method, ok := m.ResolveMethod(t, modbundle.MethodExecute)
		if !ok {
			s.logger.Debug("command type without Execute skipped", "type", t.Name)
			continue
		}
		engine, err := s.engines.Lookup(t.Runtime)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", t.Name, err)
		}
		out = append(out, executor.NewClass(t.ShortName(), executor.Binding{
			TypeName:    t.Name,
			Method:      method.Name,
			Constructor: t.Constructor,
			Script:      method.Script,
			Engine:      engine,
		}))
	}
	return out, nil
}

func (s *Scanner) scanStaticMethods(m Module) ([]executor.Executor, error) {
	var out []executor.Executor
	for _, t := range m.Types() {
		if !t.IsConcrete() || !m.Implements(t, modbundle.ContractStaticHost) {
			continue
		}
		for i := range t.Methods {
			method := &t.Methods[i]
			if !method.Static || !method.HasAttribute(modbundle.InvocableAttribute) {
				continue
			}
			if !method.TakesSingleText() {
				s.logger.Debug("invocable method skipped: signature is not a single string parameter",
					"type", t.Name, "method", method.Name, "params", len(method.Params))
				continue
			}
			engine, err := s.engines.Lookup(t.Runtime)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", t.Name, err)
			}
			out = append(out, executor.NewStaticMethod(executor.Binding{
				TypeName: t.Name,
				Method:   method.Name,
				Script:   method.Script,
				Engine:   engine,
			}))
		}
	}
	return out, nil
}

// initAddins constructs and initializes every concrete addin type. Each
// failure, including a panic, is reported to the sink and isolated.
func (s *Scanner) initAddins(ctx context.Context, m Module) {
	for _, t := range m.Types() {
		if !t.IsConcrete() || !m.IsAddin(t) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}

		factory, ok := s.factories[t.Name]
		if !ok {
			factory = s.fallback
		}
		spec := AddinSpec{Type: t}
		spec.Init, _ = m.ResolveMethod(t, modbundle.MethodInit)
		spec.Engine, _ = s.engines.Lookup(t.Runtime)

		addin, err := guard(func() (Addin, error) { return factory(ctx, spec) })
		if err != nil {
			s.report(ctx, t.Name, "construct", err)
			continue
		}
		if _, err := guard(func() (struct{}, error) { return struct{}{}, addin.Init(ctx, s.host) }); err != nil {
			s.report(ctx, t.Name, "init", err)
			continue
		}
		s.logger.Debug("addin initialized", "type", t.Name)
	}
}

func (s *Scanner) report(ctx context.Context, source, op string, err error) {
	s.logger.Warn("addin failed", "type", source, "op", op, "error", err)
	s.sink.Notify(ctx, notify.Notification{Source: source, Op: op, Err: err, Time: time.Now()})
}

func (s *Scanner) scanCommandTables(m Module) ([]*executor.AddinExecutor, error) {
	var out []*executor.AddinExecutor
	for _, name := range m.ResourceNames() {
		if !s.isTable(name) {
			continue
		}
		table, err := s.readTable(m, name)
		if err != nil {
			return nil, err
		}
		for _, sk := range table.Skipped {
			s.logger.Debug("command table entry skipped", "resource", name, "offset", sk.Offset, "reason", sk.Reason)
		}

		for _, entry := range table.Entries {
			typeName, methodName, ok := keyintable.SplitFunction(entry.Function)
			if !ok {
				s.logger.Debug("command table entry skipped: bad Function", "resource", name, "keyin", entry.Keyin, "function", entry.Function)
				continue
			}
			t, ok := m.LookupType(typeName)
			if !ok {
				s.logger.Debug("command table entry skipped: unknown type", "resource", name, "keyin", entry.Keyin, "type", typeName)
				continue
			}
			method, ok := m.ResolveMethod(t, methodName)
			if !ok {
				s.logger.Debug("command table entry skipped: unknown method", "resource", name, "keyin", entry.Keyin, "function", entry.Function)
				continue
			}

			target := findAddin(out, t.Name, method.Name)
			if target == nil {
				engine, err := s.engines.Lookup(t.Runtime)
				if err != nil {
					return nil, fmt.Errorf("type %s: %w", t.Name, err)
				}
				target = executor.NewAddin(executor.Binding{
					TypeName: t.Name,
					Method:   method.Name,
					Script:   method.Script,
					Engine:   engine,
				})
				out = append(out, target)
			}
			if _, err := target.AddName(entry.Keyin); err != nil {
				return nil, fmt.Errorf("resource %s: %w", name, err)
			}
		}
	}
	return out, nil
}

func (s *Scanner) isTable(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range s.extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func (s *Scanner) readTable(m Module, name string) (*keyintable.Table, error) {
	rc, err := m.OpenResource(name)
	if err != nil {
		return nil, fmt.Errorf("open command table %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()

	table, err := keyintable.Parse(rc, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("command table %s: %w", name, err)
	}
	return table, nil
}

func findAddin(list []*executor.AddinExecutor, typeName, method string) *executor.AddinExecutor {
	for _, a := range list {
		if a.Targets(typeName, method) {
			return a
		}
	}
	return nil
}

// PanicError is a recovered panic from addin code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
