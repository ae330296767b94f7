// SPDX-License-Identifier: MPL-2.0

// Package executor defines the invocable units a scanned module exposes.
//
// Three variants exist. A ClassExecutor constructs a command type and runs
// its Execute method. A StaticMethodExecutor runs one invocable static
// method. An AddinExecutor runs a method named by command table entries and
// answers to every Keyin that targets it.
//
// Executors hold normalized bindings (type name, method name, script text
// and engine); no manifest types survive past the scan.
package executor

import (
	"context"
	"io"

	"github.com/invowk/modhost/internal/scriptrt"
)

// Executor kinds.
const (
	KindClass        Kind = "class"
	KindStaticMethod Kind = "static-method"
	KindAddin        Kind = "addin"
)

type (
	// Kind identifies the executor variant.
	Kind string

	// Argument is the invocation payload. The registry sets UnparsedParams
	// before each matching executor runs.
	Argument struct {
		UnparsedParams string
		// Env holds extra environment entries for the script.
		Env    map[string]string
		Dir    string
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Match is the outcome of matching a requested key-in against one of an
	// executor's names.
	Match struct {
		Name     string
		Trailing string
	}

	// Executor is a discovered capability bound to one or more names.
	Executor interface {
		Kind() Kind
		// Names returns a copy of the names the executor answers to.
		Names() []string
		// Match reports whether requested selects this executor.
		Match(requested string) (Match, bool)
		// Execute runs the bound target. Errors are returned, not recovered.
		Execute(ctx context.Context, arg *Argument) error
	}

	// Binding is the normalized invocation target shared by all variants.
	Binding struct {
		TypeName string
		Method   string
		// Constructor runs before Script in the same session when set and
		// the variant constructs an instance.
		Constructor string
		Script      string
		Engine      scriptrt.Engine
	}
)

// Qualified returns "Type.Method".
func (b Binding) Qualified() string {
	return b.TypeName + "." + b.Method
}

func (b Binding) run(ctx context.Context, arg *Argument, construct bool) (err error) {
	if arg == nil {
		arg = &Argument{}
	}
	sess, err := b.Engine.NewSession(ctx, scriptrt.Request{
		Unparsed: arg.UnparsedParams,
		Env:      arg.Env,
		Dir:      arg.Dir,
		IO:       scriptrt.IO{Stdin: arg.Stdin, Stdout: arg.Stdout, Stderr: arg.Stderr},
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if construct && b.Constructor != "" {
		if err := sess.Run(ctx, b.TypeName+".ctor", b.Constructor); err != nil {
			return err
		}
	}
	return sess.Run(ctx, b.Qualified(), b.Script)
}
