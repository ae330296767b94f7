// SPDX-License-Identifier: MPL-2.0

// Package scriptrt runs method bodies of module types.
//
// An Engine opens Sessions. A Session is the lifetime of one object
// instance: a constructor chunk and a method chunk run in the same session
// see each other's state. Sessions are not safe for concurrent use.
package scriptrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/invowk/modhost/pkg/modbundle"
)

// EnvUnparsed carries the unparsed trailing text into every script.
const EnvUnparsed = "MODHOST_UNPARSED"

var (
	// ErrUnknownRuntime is returned by Engines.Lookup.
	ErrUnknownRuntime = errors.New("unknown script runtime")
	// ErrScriptFailed is wrapped by ScriptError.
	ErrScriptFailed = errors.New("script failed")
)

type (
	// IO holds the standard streams handed to scripts. Nil readers read
	// nothing; nil writers discard.
	IO struct {
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Request describes the session to open.
	Request struct {
		// Unparsed is the invocation's trailing text.
		Unparsed string
		// Env entries override the inherited process environment.
		Env map[string]string
		// Dir is the working directory. Empty means the process directory.
		Dir string
		IO  IO
	}

	// Session runs script chunks against shared state.
	Session interface {
		Run(ctx context.Context, chunk, script string) error
		Close() error
	}

	// Engine opens sessions for one runtime.
	Engine interface {
		Name() modbundle.Runtime
		NewSession(ctx context.Context, req Request) (Session, error)
	}

	// Engines maps runtime names to engines.
	Engines map[modbundle.Runtime]Engine

	// ScriptError reports a failed chunk. ExitCode is the shell exit status
	// for virtual scripts and 1 for Lua errors.
	ScriptError struct {
		Chunk    string
		ExitCode int
		Err      error
	}
)

// DefaultEngines returns the virtual shell and Lua engines.
func DefaultEngines() Engines {
	return NewEngines(NewVirtual(), NewLua())
}

// NewEngines indexes engines by name.
func NewEngines(engines ...Engine) Engines {
	out := make(Engines, len(engines))
	for _, e := range engines {
		out[e.Name()] = e
	}
	return out
}

// Lookup returns the engine for rt. An empty rt selects the virtual engine.
func (e Engines) Lookup(rt modbundle.Runtime) (Engine, error) {
	if rt == "" {
		rt = modbundle.RuntimeVirtual
	}
	eng, ok := e[rt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, rt)
	}
	return eng, nil
}

// Names lists registered runtimes in sorted order.
func (e Engines) Names() []modbundle.Runtime {
	return slices.Sorted(maps.Keys(e))
}

func (e *ScriptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Chunk, e.ExitCode)
}

// Unwrap returns ErrScriptFailed and the underlying cause.
func (e *ScriptError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrScriptFailed}
	}
	return []error{ErrScriptFailed, e.Err}
}

// environ merges the process environment, req.Env and EnvUnparsed into
// KEY=VALUE pairs with later sources winning.
func environ(req Request) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	maps.Copy(merged, req.Env)
	merged[EnvUnparsed] = req.Unparsed

	out := make([]string, 0, len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func (s IO) withDefaults() IO {
	if s.Stdout == nil {
		s.Stdout = io.Discard
	}
	if s.Stderr == nil {
		s.Stderr = io.Discard
	}
	return s
}
