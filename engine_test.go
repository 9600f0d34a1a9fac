// Copyright 2016 Teriks
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pake

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cue-lang/pake/internal/define"
	"github.com/kr/pretty"
)

func TestRegisterDuplicateFails(t *testing.T) {
	e := New()
	if _, err := e.Register("a", func(*Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	_, err := e.Register("a", func(*Context) error { return nil })
	var redefined *RedefinedTaskError
	if !errors.As(err, &redefined) {
		t.Fatalf("got %v, want *RedefinedTaskError", err)
	}
}

func TestLookupUndefined(t *testing.T) {
	e := New()
	_, err := e.Lookup("missing")
	var undefined *UndefinedTaskError
	if !errors.As(err, &undefined) {
		t.Fatalf("got %v, want *UndefinedTaskError", err)
	}
}

func TestRunNoTasksDefined(t *testing.T) {
	e := New()
	if err := e.Run(context.Background(), nil, 1); !errors.Is(err, ErrNoTasksDefined) {
		t.Fatalf("got %v, want ErrNoTasksDefined", err)
	}
}

func TestRunNoGoalsAndNoDefault(t *testing.T) {
	e := New()
	mustRegister(t, e, "a", nil)
	if err := e.Run(context.Background(), nil, 1); !errors.Is(err, ErrNoTasksSpecified) {
		t.Fatalf("got %v, want ErrNoTasksSpecified", err)
	}
}

func TestRunUndefinedGoal(t *testing.T) {
	e := New()
	mustRegister(t, e, "a", nil)
	err := e.Run(context.Background(), []string{"b"}, 1)
	var undefined *UndefinedTaskError
	if !errors.As(err, &undefined) {
		t.Fatalf("got %v, want *UndefinedTaskError", err)
	}
}

func TestRunUndefinedDependency(t *testing.T) {
	e := New()
	mustRegister(t, e, "a", nil, WithDependencies("b"))
	err := e.Run(context.Background(), []string{"a"}, 1)
	var undefined *UndefinedTaskError
	if !errors.As(err, &undefined) {
		t.Fatalf("got %v, want *UndefinedTaskError", err)
	}
}

func TestCyclicDependencyDetected(t *testing.T) {
	e := New()
	mustRegister(t, e, "a", nil, WithDependencies("b"))
	mustRegister(t, e, "b", nil, WithDependencies("a"))
	err := e.Run(context.Background(), []string{"a"}, 1)
	var cyclic *CyclicDependencyError
	if !errors.As(err, &cyclic) {
		t.Fatalf("got %v, want *CyclicDependencyError", err)
	}
}

func mustRegister(t *testing.T, e *Engine, name string, body Body, opts ...TaskOption) {
	t.Helper()
	if body == nil {
		body = func(*Context) error { return nil }
	}
	if _, err := e.Register(name, body, opts...); err != nil {
		t.Fatal(err)
	}
}

// TestDiamondDependencyRunsEachOnce builds the A -> {B, C} -> D diamond and
// checks every task runs exactly once and dependencies run before
// dependents, under concurrent scheduling.
func TestDiamondDependencyRunsEachOnce(t *testing.T) {
	e := New()

	var mu sync.Mutex
	var order []string
	record := func(name string) Body {
		return func(*Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	mustRegister(t, e, "d", record("d"))
	mustRegister(t, e, "b", record("b"), WithDependencies("d"))
	mustRegister(t, e, "c", record("c"), WithDependencies("d"))
	mustRegister(t, e, "a", record("a"), WithDependencies("b", "c"))

	if err := e.Run(context.Background(), []string{"a"}, 4); err != nil {
		t.Fatal(err)
	}

	if len(order) != 4 {
		t.Fatalf("order = %# v, want 4 entries", pretty.Formatter(order))
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["d"] >= pos["b"] || pos["d"] >= pos["c"] {
		t.Errorf("d must run before both b and c: order = %# v", pretty.Formatter(order))
	}
	if pos["b"] >= pos["a"] || pos["c"] >= pos["a"] {
		t.Errorf("b and c must run before a: order = %# v", pretty.Formatter(order))
	}
	if e.RunCount() != 4 {
		t.Errorf("RunCount() = %d, want 4", e.RunCount())
	}
}

// TestFreshRunThenSkip exercises scenario 1: a single input/output task
// runs once, then is skipped on a second run since its output is newer.
func TestFreshRunThenSkip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.c")
	out := filepath.Join(dir, "a.o")
	if err := os.WriteFile(in, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs int32
	e := New()
	mustRegister(t, e, "compile", func(ctx *Context) error {
		atomic.AddInt32(&runs, 1)
		return os.WriteFile(out, []byte("obj"), 0o644)
	}, WithInputs(Path(in)), WithOutputs(Path(out)))

	if err := e.Run(context.Background(), []string{"compile"}, 1); err != nil {
		t.Fatal(err)
	}
	if runs != 1 {
		t.Fatalf("runs = %d after first Run, want 1", runs)
	}

	if err := e.Run(context.Background(), []string{"compile"}, 1); err != nil {
		t.Fatal(err)
	}
	if runs != 1 {
		t.Fatalf("runs = %d after second Run, want 1 (skip)", runs)
	}
}

func TestMissingInputFails(t *testing.T) {
	e := New()
	mustRegister(t, e, "compile", nil,
		WithInputs(Path("/does/not/exist.c")),
		WithOutputs(Path("/tmp/does-not-matter.o")),
	)
	err := e.Run(context.Background(), []string{"compile"}, 1)
	var nf *InputNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want *InputNotFoundError", err)
	}
}

func TestMissingOutputsFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.c")
	if err := os.WriteFile(in, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New()
	mustRegister(t, e, "compile", nil, WithInputs(Path(in)))
	err := e.Run(context.Background(), []string{"compile"}, 1)
	var missing *MissingOutputsError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want *MissingOutputsError", err)
	}
}

func TestTaskErrorStopsRunButLetsInFlightFinish(t *testing.T) {
	e := New()
	started := make(chan struct{})
	release := make(chan struct{})

	mustRegister(t, e, "slow", func(*Context) error {
		close(started)
		<-release
		return nil
	})
	mustRegister(t, e, "fails", func(*Context) error {
		return errors.New("boom")
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Run(context.Background(), []string{"slow", "fails"}, 2)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow task never started")
	}
	close(release)

	err := <-errCh
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("got %v, want *TaskError", err)
	}
	if taskErr.Task != "fails" {
		t.Errorf("Task = %q, want fails", taskErr.Task)
	}
}

func TestDryRunDoesNotExecuteBody(t *testing.T) {
	e := New()
	ran := false
	mustRegister(t, e, "a", func(*Context) error {
		ran = true
		return nil
	})

	var buf bytes.Buffer
	e.Stdout = &buf

	if err := e.DryRun(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("DryRun executed the task body")
	}
	if !bytes.Contains(buf.Bytes(), []byte("visited: a")) {
		t.Errorf("output = %q, want a visited line", buf.String())
	}
}

func TestExportsForChildOverridesDefines(t *testing.T) {
	e := New()
	e.SetDefine("name", define.NewBool(true))
	e.Export("name", define.NewBool(false))

	merged := e.exportsForChild()
	v, ok := merged.Get("name")
	if !ok {
		t.Fatal("expected name to be set")
	}
	b, ok := v.Bool()
	if !ok || b != false {
		t.Errorf("name = %v, want false (export overrides define)", v)
	}
}
