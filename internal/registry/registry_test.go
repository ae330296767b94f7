// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/invowk/modhost/internal/executor"
	"github.com/invowk/modhost/internal/fingerprint"
)

// fakeExecutor records calls and writes "<tag>:<unparsed>\n" to Stdout.
type fakeExecutor struct {
	names []string
	tag   string
	err   error
	panic any

	mu    sync.Mutex
	calls []string
}

func newFake(tag string, names ...string) *fakeExecutor {
	return &fakeExecutor{tag: tag, names: names}
}

func (f *fakeExecutor) Kind() executor.Kind { return executor.KindStaticMethod }
func (f *fakeExecutor) Names() []string { return slices.Clone(f.names) }

func (f *fakeExecutor) Match(req string) (executor.Match, bool) {
	var best executor.Match
	found := false
	for _, n := range f.names {
		if trailing, ok := executor.MatchName(n, req); ok && (!found || len(n) > len(best.Name)) {
			best, found = executor.Match{Name: n, Trailing: trailing}, true
		}
	}
	return best, found
}

func (f *fakeExecutor) Execute(_ context.Context, arg *executor.Argument) error {
	f.mu.Lock()
	f.calls = append(f.calls, arg.UnparsedParams)
	f.mu.Unlock()
	if f.panic != nil {
		panic(f.panic)
	}
	if arg.Stdout != nil {
		_, _ = fmt.Fprintf(arg.Stdout, "%s:%s\n", f.tag, arg.UnparsedParams)
	}
	return f.err
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func TestNew_EmptySnapshot(t *testing.T) {
	t.Parallel()

	r := New()
	snap := r.Snapshot()
	if snap.Generation != 0 || snap.Len() != 0 {
		t.Errorf("initial snapshot = gen %d len %d, want empty generation 0", snap.Generation, snap.Len())
	}
}

func TestExecute_ZeroMatches(t *testing.T) {
	t.Parallel()

	f := newFake("a", "place line")
	r := New()
	r.Install([]executor.Executor{f}, fingerprint.Of([]byte("m")))

	res := r.Execute(t.Context(), "nonexistent", &executor.Argument{})
	if !res.Success || res.Count != 0 || res.Failed() {
		t.Errorf("Execute(nonexistent) = %+v, want success with count 0", res)
	}
	if len(f.Calls()) != 0 {
		t.Error("no executor should run on zero matches")
	}
}

func TestExecute_Matching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keyin        string
		wantCount    int
		wantUnparsed string
	}{
		{"place line", 1, ""},
		{"place line active", 1, "active"},
		{"PLACE LINE", 1, ""},
		{"  Place Line   Mixed Case  ", 1, "Mixed Case"},
		{"placeline", 0, ""},
		{"place", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.keyin, func(t *testing.T) {
			t.Parallel()

			f := newFake("a", "place line")
			r := New()
			r.Install([]executor.Executor{f}, "")

			arg := &executor.Argument{}
			res := r.Execute(t.Context(), tt.keyin, arg)
			if res.Count != tt.wantCount || !res.Success {
				t.Fatalf("Execute(%q) = %+v, want count %d", tt.keyin, res, tt.wantCount)
			}
			if arg.UnparsedParams != tt.wantUnparsed {
				t.Errorf("UnparsedParams = %q, want %q", arg.UnparsedParams, tt.wantUnparsed)
			}
		})
	}
}

func TestExecute_FanOutInRegistrationOrder(t *testing.T) {
	t.Parallel()

	first := newFake("first", "place")
	other := newFake("other", "delete")
	second := newFake("second", "place line")
	r := New()
	r.Install([]executor.Executor{first, other, second}, "")

	var out bytes.Buffer
	res := r.Execute(t.Context(), "place line 5", &executor.Argument{Stdout: &out})
	if res.Count != 2 {
		t.Fatalf("Count = %d, want 2", res.Count)
	}
	want := "first:line 5\nsecond:5\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if len(other.Calls()) != 0 {
		t.Error("non-matching executor ran")
	}
}

func TestExecute_EmptyTrailingKeepsArgument(t *testing.T) {
	t.Parallel()

	f := newFake("a", "go")
	r := New()
	r.Install([]executor.Executor{f}, "")

	arg := &executor.Argument{UnparsedParams: "preset"}
	r.Execute(t.Context(), "go", arg)
	if got := f.Calls(); !slices.Equal(got, []string{"preset"}) {
		t.Errorf("executor saw %v, want the preset value untouched", got)
	}
}

func TestExecute_FailureIsolation(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := newFake("fail", "run")
	failing.err = boom
	panicking := newFake("panic", "run")
	panicking.panic = "kaboom"
	ok := newFake("ok", "run")

	r := New()
	r.Install([]executor.Executor{failing, panicking, ok}, "")

	res := r.Execute(t.Context(), "run", nil)
	if !res.Success || res.Count != 3 {
		t.Fatalf("Execute() = %+v, want success with count 3", res)
	}
	if len(ok.Calls()) != 1 {
		t.Error("executor after the failures should still run")
	}
	if len(res.Failures) != 2 {
		t.Fatalf("Failures = %+v, want 2", res.Failures)
	}
	if !errors.Is(res.Failures[0].Err, boom) {
		t.Errorf("first failure = %v, want boom", res.Failures[0].Err)
	}
	var pe *PanicError
	if !errors.As(res.Failures[1].Err, &pe) || pe.Value != "kaboom" {
		t.Errorf("second failure = %v, want recovered panic", res.Failures[1].Err)
	}
	if !slices.Equal(res.Failures[1].Names, []string{"run"}) {
		t.Errorf("failure names = %v", res.Failures[1].Names)
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	t.Parallel()

	f := newFake("a", "run")
	r := New()
	r.Install([]executor.Executor{f}, "")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	res := r.Execute(ctx, "run", nil)
	if res.Count != 1 || len(res.Failures) != 1 || !errors.Is(res.Failures[0].Err, context.Canceled) {
		t.Errorf("Execute() = %+v, want one canceled failure", res)
	}
	if len(f.Calls()) != 0 {
		t.Error("executor should not run after cancellation")
	}
}

func TestInstall(t *testing.T) {
	t.Parallel()

	r := New()
	execs := []executor.Executor{newFake("a", "a")}
	d := fingerprint.Of([]byte("module"))

	snap := r.Install(execs, d)
	execs[0] = newFake("b", "b")

	if snap.Generation != 1 || snap.Digest != d || snap.InstalledAt.IsZero() {
		t.Errorf("snapshot = %+v", snap)
	}
	if got := r.Snapshot().Executors()[0].Names(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("installed snapshot changed with the caller's slice: %v", got)
	}
	if r.Install(nil, "").Generation != 2 {
		t.Error("generation should increase on every install")
	}
}

// A dispatcher running while snapshots are swapped must see every executor
// of one generation and none of another.
func TestExecute_AtomicSwap(t *testing.T) {
	t.Parallel()

	const perGen = 8
	const generations = 200

	build := func(gen int) []executor.Executor {
		out := make([]executor.Executor, perGen)
		for i := range out {
			out[i] = newFake(fmt.Sprintf("g%d", gen), "probe")
		}
		return out
	}

	r := New()
	r.Install(build(0), "")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				var out bytes.Buffer
				res := r.Execute(context.Background(), "probe", &executor.Argument{Stdout: &out})
				if res.Count != perGen {
					errs <- fmt.Errorf("count = %d, want %d", res.Count, perGen)
					return
				}
				lines := strings.Split(strings.TrimSpace(out.String()), "\n")
				for _, l := range lines[1:] {
					if l != lines[0] {
						errs <- fmt.Errorf("mixed generations in one dispatch: %q vs %q", lines[0], l)
						return
					}
				}
			}
		}()
	}

	for gen := 1; gen <= generations; gen++ {
		r.Install(build(gen), "")
	}
	cancel()
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if r.Snapshot().Generation != generations+1 {
		t.Errorf("Generation = %d, want %d", r.Snapshot().Generation, generations+1)
	}
}
