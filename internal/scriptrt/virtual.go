// SPDX-License-Identifier: MPL-2.0

package scriptrt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/modhost/pkg/modbundle"
)

type (
	// Virtual runs POSIX shell scripts in-process with mvdan/sh.
	Virtual struct{}

	virtualSession struct {
		runner *interp.Runner
		parser *syntax.Parser
	}
)

// NewVirtual returns the virtual shell engine.
func NewVirtual() *Virtual {
	return &Virtual{}
}

// Name returns the runtime name.
func (*Virtual) Name() modbundle.Runtime {
	return modbundle.RuntimeVirtual
}

// NewSession creates one interpreter whose variables and functions persist
// across Run calls. The unparsed text is positional parameter $1.
func (*Virtual) NewSession(_ context.Context, req Request) (Session, error) {
	stdio := req.IO.withDefaults()
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(environ(req)...)),
		interp.StdIO(stdio.Stdin, stdio.Stdout, stdio.Stderr),
	}
	if req.Dir != "" {
		opts = append(opts, interp.Dir(req.Dir))
	}

	// Prepend "--" to signal end of options; without this, text like "-v"
	// is interpreted as a shell option by interp.Params().
	params := []string{"--"}
	if req.Unparsed != "" {
		params = append(params, req.Unparsed)
	}
	opts = append(opts, interp.Params(params...))

	runner, err := interp.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}
	return &virtualSession{runner: runner, parser: syntax.NewParser()}, nil
}

// Validate parses script without running it.
func (*Virtual) Validate(chunk, script string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), chunk); err != nil {
		return fmt.Errorf("script syntax error: %w", err)
	}
	return nil
}

func (s *virtualSession) Run(ctx context.Context, chunk, script string) error {
	prog, err := s.parser.Parse(strings.NewReader(script), chunk)
	if err != nil {
		return &ScriptError{Chunk: chunk, ExitCode: 2, Err: fmt.Errorf("failed to parse script: %w", err)}
	}

	if err := s.runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			if exitStatus == 0 {
				return nil
			}
			return &ScriptError{Chunk: chunk, ExitCode: int(exitStatus)}
		}
		return &ScriptError{Chunk: chunk, ExitCode: 1, Err: err}
	}
	return nil
}

func (*virtualSession) Close() error { return nil }
