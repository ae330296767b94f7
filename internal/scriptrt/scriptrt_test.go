// SPDX-License-Identifier: MPL-2.0

package scriptrt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/invowk/modhost/pkg/modbundle"
)

func runChunks(t *testing.T, eng Engine, req Request, chunks ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	req.IO.Stdout = &out
	sess, err := eng.NewSession(t.Context(), req)
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	defer func() { _ = sess.Close() }()

	for i, chunk := range chunks {
		if err := sess.Run(t.Context(), fmt.Sprintf("chunk%d", i), chunk); err != nil {
			return out.String(), err
		}
	}
	return out.String(), nil
}

func TestEngines_Lookup(t *testing.T) {
	t.Parallel()

	engines := DefaultEngines()

	tests := []struct {
		rt      modbundle.Runtime
		want    modbundle.Runtime
		wantErr bool
	}{
		{"", modbundle.RuntimeVirtual, false},
		{modbundle.RuntimeVirtual, modbundle.RuntimeVirtual, false},
		{modbundle.RuntimeLua, modbundle.RuntimeLua, false},
		{"python", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.rt), func(t *testing.T) {
			t.Parallel()
			eng, err := engines.Lookup(tt.rt)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRuntime) {
					t.Fatalf("Lookup(%q) error = %v, want ErrUnknownRuntime", tt.rt, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup(%q) error: %v", tt.rt, err)
			}
			if eng.Name() != tt.want {
				t.Errorf("Lookup(%q).Name() = %q, want %q", tt.rt, eng.Name(), tt.want)
			}
		})
	}

	if got := engines.Names(); len(got) != 2 || got[0] != modbundle.RuntimeLua {
		t.Errorf("Names() = %v, want sorted [lua virtual]", got)
	}
}

func TestVirtual_UnparsedAndEnv(t *testing.T) {
	t.Parallel()

	out, err := runChunks(t, NewVirtual(), Request{
		Unparsed: "-v active",
		Env:      map[string]string{"GREETING": "hi"},
	}, `echo "$GREETING [$1] [$MODHOST_UNPARSED] $#"`)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if want := "hi [-v active] [-v active] 1\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestVirtual_EmptyUnparsedHasNoParams(t *testing.T) {
	t.Parallel()

	out, err := runChunks(t, NewVirtual(), Request{}, `echo "$#"`)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out != "0\n" {
		t.Errorf("output = %q, want %q", out, "0\n")
	}
}

func TestVirtual_StatePersistsAcrossChunks(t *testing.T) {
	t.Parallel()

	out, err := runChunks(t, NewVirtual(), Request{}, `COUNT=41`, `COUNT=$((COUNT+1)); echo $COUNT`)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out != "42\n" {
		t.Errorf("output = %q, want %q", out, "42\n")
	}
}

func TestVirtual_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		script   string
		wantCode int
	}{
		{"exit status", "exit 3", 3},
		{"false", "false", 1},
		{"syntax", "if then fi (", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := runChunks(t, NewVirtual(), Request{}, tt.script)
			var scriptErr *ScriptError
			if !errors.As(err, &scriptErr) || !errors.Is(err, ErrScriptFailed) {
				t.Fatalf("error = %v, want *ScriptError", err)
			}
			if scriptErr.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", scriptErr.ExitCode, tt.wantCode)
			}
		})
	}
}

func TestVirtual_Validate(t *testing.T) {
	t.Parallel()

	v := NewVirtual()
	if err := v.Validate("ok", "echo hi"); err != nil {
		t.Errorf("Validate(valid) error: %v", err)
	}
	if err := v.Validate("bad", "if then fi ("); err == nil {
		t.Error("Validate(invalid) should fail")
	}
}

func TestLua_Globals(t *testing.T) {
	t.Parallel()

	out, err := runChunks(t, NewLua(), Request{
		Unparsed: "active",
		Env:      map[string]string{"GREETING": "hi"},
	}, `print(env.GREETING, unparsed, arg[1], #arg, env.MODHOST_UNPARSED)`)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if want := "hi\tactive\tactive\t1\tactive\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestLua_IoWrite(t *testing.T) {
	t.Parallel()

	out, err := runChunks(t, NewLua(), Request{Unparsed: "x"}, `io.write("a", 1, unparsed)`, `io.write("\n")`)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out != "a1x\n" {
		t.Errorf("output = %q, want %q", out, "a1x\n")
	}

	if _, err := runChunks(t, NewLua(), Request{}, `io.write({})`); err == nil {
		t.Error("io.write of a table should fail")
	}
	if _, err := runChunks(t, NewLua(), Request{}, `io.open("/etc/passwd")`); err == nil {
		t.Error("io.open should be unavailable")
	}
}

func TestLua_StatePersistsAcrossChunks(t *testing.T) {
	t.Parallel()

	out, err := runChunks(t, NewLua(), Request{}, `count = 41`, `count = count + 1; print(count)`)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out != "42\n" {
		t.Errorf("output = %q, want %q", out, "42\n")
	}
}

func TestLua_Failures(t *testing.T) {
	t.Parallel()

	_, err := runChunks(t, NewLua(), Request{}, `error("boom")`)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) || scriptErr.ExitCode != 1 {
		t.Fatalf("error = %v, want runtime *ScriptError", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should carry the Lua message, got %v", err)
	}

	_, err = runChunks(t, NewLua(), Request{}, `this is not lua`)
	if !errors.As(err, &scriptErr) || scriptErr.ExitCode != 2 {
		t.Fatalf("error = %v, want syntax *ScriptError", err)
	}
}

func TestLua_NoProcessExit(t *testing.T) {
	t.Parallel()

	_, err := runChunks(t, NewLua(), Request{}, `os.exit(1)`)
	if err == nil {
		t.Fatal("os.exit should be unavailable")
	}
}

func TestLua_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	sess, err := NewLua().NewSession(ctx, Request{})
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Run(ctx, "loop", `while true do end`); err == nil {
		t.Fatal("Run() with canceled context should fail")
	}
}

func TestEnviron(t *testing.T) {
	t.Parallel()

	env := environ(Request{Unparsed: "x", Env: map[string]string{"MODHOST_TEST_A": "1"}})
	var sawA, sawUnparsed bool
	for _, kv := range env {
		switch kv {
		case "MODHOST_TEST_A=1":
			sawA = true
		case EnvUnparsed + "=x":
			sawUnparsed = true
		}
	}
	if !sawA || !sawUnparsed {
		t.Errorf("environ() missing entries: A=%v unparsed=%v", sawA, sawUnparsed)
	}
}
