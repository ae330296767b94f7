// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/modhost/internal/discovery"
	"github.com/invowk/modhost/internal/issue"
	"github.com/invowk/modhost/internal/testutil"
	"github.com/invowk/modhost/pkg/keyintable"
	"github.com/invowk/modhost/pkg/modbundle"
)

const testManifest = `
module:  "Acme.Tools"
version: "2.1.0"
types: [
	{name: "Acme.Tools.Greet", implements: ["Command"], methods: [{name: "Execute", script: "echo hello $1"}]},
	{name: "Acme.Tools.Fail", implements: ["Command"], methods: [{name: "Execute", script: "exit 2"}]},
	{name: "Acme.Tools.Base", abstract: true, implements: ["Command"], methods: [{name: "Execute", script: "true"}]},
]
`

type cliHarness struct {
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// newHarness writes a bundle and a quiet config file into a temp dir.
func newHarness(t *testing.T) *cliHarness {
	t.Helper()
	h := &cliHarness{dir: t.TempDir()}
	testutil.WriteBundle(t, h.dir, "acme.modpkg", map[string]string{modbundle.ManifestFile: testManifest})
	testutil.MustWriteFile(t, filepath.Join(h.dir, "config.cue"), []byte(`log: level: "error"`+"\n"))
	return h
}

func (h *cliHarness) run(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	app := NewApp(Dependencies{
		Stdin:  strings.NewReader(stdin),
		Stdout: &h.stdout,
		Stderr: &h.stderr,
	})
	root := NewRootCommand(app)
	root.SetOut(&h.stdout)
	root.SetErr(&h.stderr)
	root.SetArgs(append([]string{"--config", filepath.Join(h.dir, "config.cue"), "--base-dir", h.dir}, args...))
	return root.ExecuteContext(t.Context())
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.run(t, "", "run", "Greet", "world"); err != nil {
		t.Fatalf("run error: %v\nstderr: %s", err, h.stderr.String())
	}
	if got := h.stdout.String(); got != "hello world\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRunCommand_NoMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.run(t, "", "run", "base"); err != nil {
		t.Fatalf("zero matches should not fail: %v", err)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", h.stdout.String())
	}
	if !strings.Contains(h.stderr.String(), `no command matches "base"`) {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestRunCommand_Failure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.run(t, "", "run", "fail")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("run fail error = %v, want ExitError code 1", err)
	}
	if !strings.Contains(h.stderr.String(), "Fail, Acme.Tools.Fail") {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestListCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.run(t, "", "list"); err != nil {
		t.Fatalf("list error: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{"acme.modpkg", "generation 1", "Greet, Acme.Tools.Greet", "Fail, Acme.Tools.Fail"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Acme.Tools.Base") {
		t.Errorf("abstract type listed:\n%s", out)
	}
}

func TestServeCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.run(t, "greet a\n\nRELOAD\nnope\nfail\ngreet b\nquit\ngreet c\n", "serve", "--no-watch"); err != nil {
		t.Fatalf("serve error: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{"module loaded (initial): 2 commands", "hello a\n", "module unchanged (manual)", "hello b\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("serve output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hello c") {
		t.Errorf("key-ins after quit must not run:\n%s", out)
	}
	if !strings.Contains(h.stderr.String(), `no command matches "nope"`) {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestPackCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	src := filepath.Join(h.dir, "src")
	testutil.MustWriteFile(t, filepath.Join(src, modbundle.ManifestFile), []byte(testManifest))
	out := filepath.Join(h.dir, "out.modpkg")

	if err := h.run(t, "", "pack", src, "-o", out); err != nil {
		t.Fatalf("pack error: %v", err)
	}
	if !strings.Contains(h.stdout.String(), out) {
		t.Errorf("stdout = %q", h.stdout.String())
	}

	h.stdout.Reset()
	if err := h.run(t, "", "--module", out, "run", "greet"); err != nil {
		t.Fatalf("run packed bundle: %v", err)
	}
	if h.stdout.String() != "hello\n" {
		t.Errorf("stdout = %q", h.stdout.String())
	}
}

func TestConfigCommand_BadConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	testutil.MustWriteFile(t, filepath.Join(h.dir, "config.cue"), []byte(`colour: "red"`))

	err := h.run(t, "", "config", "show")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("config show error = %v, want ExitError", err)
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Errorf("error should wrap an ActionableError: %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"nil", nil, 0},
		{"not found", &discovery.NotFoundError{Pattern: "*.modpkg"}, issue.ModuleNotFoundId},
		{"ambiguous", fmt.Errorf("locate: %w", &discovery.AmbiguousError{}), issue.ModuleAmbiguousId},
		{"host version", &modbundle.HostVersionError{}, issue.HostVersionMismatchId},
		{"manifest", &modbundle.InvalidManifestError{}, issue.ManifestInvalidId},
		{"bundle", &modbundle.BundleError{Reason: "not a zip archive"}, issue.ManifestInvalidId},
		{"table", fmt.Errorf("table: %w", keyintable.ErrMalformed), issue.CommandTableInvalidId},
		{"linked", issue.NewErrorContext().WithOperation("load configuration").WithIssue(issue.ConfigLoadFailedId).BuildError(), issue.ConfigLoadFailedId},
		{"other", errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManifestMarkdown(t *testing.T) {
	t.Parallel()

	b, err := modbundle.Open(testutil.BuildBundle(t, map[string]string{
		modbundle.ManifestFile: testManifest,
		"resources/readme.txt": "hi",
	}))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	md := manifestMarkdown(b)
	for _, want := range []string{
		"# Acme.Tools\n",
		"- **Version:** 2.1.0",
		"| Acme.Tools.Base | abstract class | virtual | - | Command | Execute() |",
		"- `readme.txt`",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestGlamourStyle(t *testing.T) {
	t.Parallel()

	if got := glamourStyle(&bytes.Buffer{}); got != "notty" {
		t.Errorf("glamourStyle(buffer) = %q, want notty", got)
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	if got := (&ExitError{Code: 3}).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q", got)
	}
	wrapped := &ExitError{Code: 1, Err: cause}
	if wrapped.Error() != "cause" || !errors.Is(wrapped, cause) {
		t.Errorf("ExitError should expose its cause: %v", wrapped)
	}
}
