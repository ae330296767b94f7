// SPDX-License-Identifier: MPL-2.0

package scriptrt

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/invowk/modhost/pkg/modbundle"
)

type (
	// Lua runs Lua 5.1 scripts in-process with gopher-lua.
	Lua struct{}

	luaSession struct {
		state  *lua.LState
		stdout io.Writer
	}
)

// NewLua returns the Lua engine.
func NewLua() *Lua {
	return &Lua{}
}

// Name returns the runtime name.
func (*Lua) Name() modbundle.Runtime {
	return modbundle.RuntimeLua
}

// NewSession creates a Lua state with these globals:
//
//	unparsed  the trailing text
//	arg       {unparsed} or {} when the text is empty
//	env       request environment overrides plus MODHOST_UNPARSED
//	print     writes to the session's stdout
//	io.write  writes its string or number arguments to stdout, unseparated
//
// The io library itself is not opened, so scripts cannot touch files.
func (*Lua) NewSession(_ context.Context, req Request) (Session, error) {
	stdio := req.IO.withDefaults()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath, lua.OpenOs} {
		open(L)
	}
	// os.exit would terminate the host process.
	if osTable, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable); ok {
		osTable.RawSetString("exit", lua.LNil)
	}

	s := &luaSession{state: L, stdout: stdio.Stdout}

	L.SetGlobal("unparsed", lua.LString(req.Unparsed))

	args := L.NewTable()
	if req.Unparsed != "" {
		args.Append(lua.LString(req.Unparsed))
	}
	L.SetGlobal("arg", args)

	env := L.NewTable()
	for _, k := range slices.Sorted(maps.Keys(req.Env)) {
		env.RawSetString(k, lua.LString(req.Env[k]))
	}
	env.RawSetString(EnvUnparsed, lua.LString(req.Unparsed))
	L.SetGlobal("env", env)

	L.SetGlobal("print", L.NewFunction(s.print))
	ioTable := L.NewTable()
	ioTable.RawSetString("write", L.NewFunction(s.write))
	L.SetGlobal(lua.IoLibName, ioTable)

	return s, nil
}

func (s *luaSession) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	_, _ = fmt.Fprintln(s.stdout, strings.Join(parts, "\t"))
	return 0
}

func (s *luaSession) write(L *lua.LState) int {
	for i := 1; i <= L.GetTop(); i++ {
		v := L.Get(i)
		if !lua.LVCanConvToString(v) {
			L.ArgError(i, "string expected, got "+v.Type().String())
			return 0
		}
		_, _ = io.WriteString(s.stdout, lua.LVAsString(v))
	}
	return 0
}

func (s *luaSession) Run(ctx context.Context, chunk, script string) error {
	L := s.state
	L.SetContext(ctx)
	defer L.RemoveContext()

	fn, err := L.Load(strings.NewReader(script), chunk)
	if err != nil {
		return &ScriptError{Chunk: chunk, ExitCode: 2, Err: err}
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return &ScriptError{Chunk: chunk, ExitCode: 1, Err: err}
	}
	L.SetTop(0)
	return nil
}

func (s *luaSession) Close() error {
	s.state.Close()
	return nil
}
