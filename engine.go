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

// Package pake implements a small, dependency-graph-driven build engine:
// tasks are registered with declared dependencies and declared
// input/output file specs, then scheduled in dependency order with bounded
// parallelism, skipping any task whose outputs are already up to date with
// its inputs.
package pake

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/cue-lang/pake/internal/change"
	"github.com/cue-lang/pake/internal/dag"
	"github.com/cue-lang/pake/internal/define"
	"github.com/cue-lang/pake/internal/schedule"
	"github.com/google/uuid"
)

// Engine owns a task registry, a dependency graph, and a Define Store. The
// zero value is not usable; construct with New.
type Engine struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
	graph *dag.Graph

	defines *define.Store
	exports *define.Store

	runCount int

	// Stdout and Stderr are where task output and driver diagnostics are
	// written by default. Exported so a CLI driver or test harness can
	// redirect them, mirroring original_source/pake/conf.py's module-level
	// STDOUT/STDERR.
	Stdout io.Writer
	Stderr io.Writer

	initDir      string
	defaultGoals []string

	// SubpakeDepth is the nesting depth of this engine's process, 0 for a
	// top-level invocation. In a subpake child, the Driver sets this from
	// the "--_subpake_depth" flag when it parses the command line.
	SubpakeDepth int
}

// New returns an empty Engine rooted at the current working directory.
func New() *Engine {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	return &Engine{
		tasks:   map[string]*Task{},
		graph:   dag.New(),
		defines: define.NewStore(),
		exports: define.NewStore(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		initDir: dir,
	}
}

// InitDir returns the directory the engine was constructed in, analogous to
// original_source/pake/conf.py's get_init_dir.
func (e *Engine) InitDir() string { return e.initDir }

// SetDefaultGoals names the tasks Run/DryRun use when called with an empty
// goals list, analogous to original_source/pake/program.py's run(tasks=...)
// parameter.
func (e *Engine) SetDefaultGoals(names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultGoals = append([]string(nil), names...)
}

// DefaultGoals returns the names set by SetDefaultGoals.
func (e *Engine) DefaultGoals() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.defaultGoals...)
}

// SetDefine sets a value in the engine's Define Store, as if passed with
// "-D name=value" on the command line.
func (e *Engine) SetDefine(name string, v define.Value) { e.defines.Set(name, v) }

// GetDefine returns a value from the engine's Define Store.
func (e *Engine) GetDefine(name string) (define.Value, bool) { return e.defines.Get(name) }

// Defines returns the engine's Define Store.
func (e *Engine) Defines() *define.Store { return e.defines }

// Export marks name=v to be passed to every subpake child spawned by this
// engine, regardless of the engine's own -D defines. Grounded on
// original_source/pake/submake.py's export/_exports mechanism.
func (e *Engine) Export(name string, v define.Value) { e.exports.Set(name, v) }

// Unexport reverses a previous Export.
func (e *Engine) Unexport(name string) { e.exports.Unset(name) }

// exportsForChild returns the mapping a subpake child should receive: the
// engine's own defines, overridden by anything explicitly exported.
func (e *Engine) exportsForChild() *define.Store {
	merged := define.NewStore()
	for _, n := range e.defines.Names() {
		v, _ := e.defines.Get(n)
		merged.Set(n, v)
	}
	for _, n := range e.exports.Names() {
		v, _ := e.exports.Get(n)
		merged.Set(n, v)
	}
	return merged
}

// Register adds a task to the engine. It returns *RedefinedTaskError if
// name was already registered.
func (e *Engine) Register(name string, body Body, opts ...TaskOption) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tasks[name]; exists {
		return nil, &RedefinedTaskError{Name: name}
	}

	t := &Task{name: name, body: body}
	for _, opt := range opts {
		opt(t)
	}

	e.tasks[name] = t
	e.order = append(e.order, name)
	e.graph.AddNode(name)
	return t, nil
}

// RegisterFunc registers a task whose body takes no Context, for tasks that
// need no inputs, outputs, or subprocess helpers.
func (e *Engine) RegisterFunc(name string, body func() error, opts ...TaskOption) (*Task, error) {
	return e.Register(name, func(*Context) error { return body() }, opts...)
}

// Lookup returns the registered task named name, or *UndefinedTaskError.
func (e *Engine) Lookup(name string) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[name]
	if !ok {
		return nil, &UndefinedTaskError{Name: name}
	}
	return t, nil
}

// Tasks returns every registered task, in registration order.
func (e *Engine) Tasks() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Task, 0, len(e.order))
	for _, n := range e.order {
		out = append(out, e.tasks[n])
	}
	return out
}

// RunCount returns the number of task bodies actually executed by the most
// recent call to Run. After a DryRun, it is the number of tasks that DryRun
// visited.
func (e *Engine) RunCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCount
}

// wireGraph validates every dependency name and builds the dependency
// graph, returning *UndefinedTaskError for any dependency that does not
// resolve to a registered task.
func (e *Engine) wireGraph() error {
	for _, n := range e.order {
		for _, dep := range e.tasks[n].dependencies {
			if !e.graph.HasNode(dep) {
				return &UndefinedTaskError{Name: dep}
			}
			e.graph.AddEdge(n, dep)
		}
	}
	return nil
}

// resolveGoals validates the requested goal names and computes the union
// of their topological orderings, dependencies first. An empty goals list
// falls back to the default goals; with none set it returns
// ErrNoTasksSpecified.
func (e *Engine) resolveGoals(goals []string) ([]string, error) {
	if len(goals) == 0 {
		goals = e.defaultGoals
	}
	if len(goals) == 0 {
		return nil, ErrNoTasksSpecified
	}

	orders := make([][]string, 0, len(goals))
	for _, g := range goals {
		if !e.graph.HasNode(g) {
			return nil, &UndefinedTaskError{Name: g}
		}
		order, err := e.graph.TopologicalSort(g)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return dag.Union(orders...), nil
}

// Run schedules and executes goals (dependencies first), skipping any task
// whose outputs are already up to date, with up to jobs task bodies running
// concurrently. goals may be empty to run the default goals set with
// SetDefaultGoals.
func (e *Engine) Run(ctx context.Context, goals []string, jobs int) error {
	return e.run(ctx, goals, jobs, false)
}

// DryRun resolves and visits goals exactly as Run would, without invoking
// any task body.
func (e *Engine) DryRun(ctx context.Context, goals []string) error {
	return e.run(ctx, goals, 1, true)
}

func (e *Engine) run(ctx context.Context, goals []string, jobs int, dry bool) error {
	e.mu.Lock()
	if len(e.order) == 0 {
		e.mu.Unlock()
		return ErrNoTasksDefined
	}
	if err := e.wireGraph(); err != nil {
		e.mu.Unlock()
		return err
	}
	if c := e.graph.DetectCycle(); c != nil {
		e.mu.Unlock()
		return &CyclicDependencyError{From: c.From, To: c.To, Path: c.Path}
	}
	order, err := e.resolveGoals(goals)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	runID := uuid.New().String()
	nodes := make([]schedule.Task, 0, len(order))
	for _, name := range order {
		t := e.tasks[name]
		nodes = append(nodes, &taskNode{engine: e, task: t, runID: runID})
	}

	var result schedule.Result
	if dry {
		result, err = schedule.DryRun(ctx, nodes, e.Stdout)
	} else {
		result, err = schedule.Run(ctx, nodes, jobs, e.Stdout)
	}

	e.mu.Lock()
	e.runCount = result.RunCount
	e.mu.Unlock()

	return err
}

// taskNode adapts a *Task to the schedule.Task interface.
type taskNode struct {
	engine *Engine
	task   *Task
	runID  string

	mu      sync.Mutex
	inputs  []string
	outputs []string
	outcome change.Outcome
}

func (n *taskNode) Name() string { return n.task.name }

func (n *taskNode) Dependencies() []string { return n.task.dependencies }

func (n *taskNode) Prepare(anyDependencyRan bool) (bool, error) {
	inputs, err := resolveInputSpecs(n.task.inputSpecs)
	if err != nil {
		return false, err
	}
	outputs, err := resolveOutputSpecs(n.task.outputSpecs, inputs)
	if err != nil {
		return false, err
	}

	outcome, err := change.Detect(inputs, outputs, len(n.task.dependencies) > 0, anyDependencyRan)
	if err != nil {
		var nf *change.InputNotFoundError
		if ok := asInputNotFound(err, &nf); ok {
			return false, &InputNotFoundError{Task: n.task.name, Input: nf.Input}
		}
		if err == change.ErrMissingOutputs {
			return false, &MissingOutputsError{Task: n.task.name}
		}
		return false, err
	}

	n.mu.Lock()
	n.inputs, n.outputs, n.outcome = inputs, outputs, outcome
	n.mu.Unlock()

	return outcome.Eligible, nil
}

func asInputNotFound(err error, target **change.InputNotFoundError) bool {
	nf, ok := err.(*change.InputNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

func (n *taskNode) Run(ctx context.Context, w io.Writer) error {
	n.mu.Lock()
	inputs, outputs, outcome := n.inputs, n.outputs, n.outcome
	n.mu.Unlock()

	tctx := &Context{
		ctx:             ctx,
		engine:          n.engine,
		taskName:        n.task.name,
		runID:           n.runID,
		Inputs:          inputs,
		Outputs:         outputs,
		OutdatedInputs:  outcome.OutdatedInputs,
		OutdatedOutputs: outcome.OutdatedOutputs,
		out:             w,
	}

	if n.task.body == nil {
		return nil
	}
	if err := n.task.body(tctx); err != nil {
		return &TaskError{Task: n.task.name, Cause: err}
	}
	return nil
}

