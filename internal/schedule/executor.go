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

// Package schedule implements the bounded-parallelism executor: given a
// topologically ordered list of tasks, it runs each one once its direct
// dependencies have completed or been skipped, buffering each task's
// output and flushing it atomically to a shared sink.
package schedule

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Task is the scheduler's view of a single node to run. The engine adapts
// its own *pake.Task into this interface so that this package has no
// dependency on the engine's task-registration types.
type Task interface {
	// Name is the task's unique name.
	Name() string

	// Dependencies lists the names of this task's immediate dependencies.
	Dependencies() []string

	// Prepare resolves inputs/outputs, runs change detection, and reports
	// whether the task body must execute. anyDependencyRan reports whether
	// any immediate dependency executed its body during this run.
	Prepare(anyDependencyRan bool) (eligible bool, err error)

	// Run executes the task body, writing all task-visible output to w.
	Run(ctx context.Context, w io.Writer) error
}

// Result summarizes one Run or DryRun call.
type Result struct {
	// RunCount is the number of task bodies actually executed (DryRun:
	// the number of tasks visited as eligible).
	RunCount int
}

// Run executes tasks (already topologically ordered, dependencies first)
// honoring dependency order, with up to jobs tasks running concurrently.
// jobs == 1 runs strictly in order on the calling goroutine. The first
// failing task's error is returned, wrapped with that task's name;
// already-running tasks are allowed to finish before Run returns.
func Run(ctx context.Context, tasks []Task, jobs int, sink io.Writer) (Result, error) {
	if jobs <= 1 {
		return runSequential(ctx, tasks, sink)
	}
	return runParallel(ctx, tasks, jobs, sink)
}

func runSequential(ctx context.Context, tasks []Task, sink io.Writer) (Result, error) {
	ran := make(map[string]bool, len(tasks))
	var result Result
	for _, t := range tasks {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		anyDepRan := false
		for _, d := range t.Dependencies() {
			if ran[d] {
				anyDepRan = true
				break
			}
		}
		eligible, err := t.Prepare(anyDepRan)
		if err != nil {
			return result, fmt.Errorf("task %q: %w", t.Name(), err)
		}
		if !eligible {
			continue
		}
		var buf bytes.Buffer
		runErr := t.Run(ctx, &buf)
		io.Copy(sink, &buf)
		ran[t.Name()] = true
		result.RunCount++
		if runErr != nil {
			return result, fmt.Errorf("task %q: %w", t.Name(), runErr)
		}
	}
	return result, nil
}

func runParallel(ctx context.Context, tasks []Task, jobs int, sink io.Writer) (Result, error) {
	done := make(map[string]chan struct{}, len(tasks))
	for _, t := range tasks {
		done[t.Name()] = make(chan struct{})
	}

	var (
		mu       sync.Mutex
		sinkMu   sync.Mutex
		ran      = make(map[string]bool, len(tasks))
		runCount int
		firstErr error
	)
	cancelled := make(chan struct{})
	var cancelOnce sync.Once
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancelOnce.Do(func() { close(cancelled) })
	}

	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup

	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[t.Name()])

			for _, d := range t.Dependencies() {
				dc, ok := done[d]
				if !ok {
					continue
				}
				select {
				case <-dc:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-cancelled:
				return
			default:
			}

			anyDepRan := false
			mu.Lock()
			for _, d := range t.Dependencies() {
				if ran[d] {
					anyDepRan = true
					break
				}
			}
			mu.Unlock()

			eligible, err := t.Prepare(anyDepRan)
			if err != nil {
				fail(fmt.Errorf("task %q: %w", t.Name(), err))
				return
			}
			if !eligible {
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			var buf bytes.Buffer
			runErr := t.Run(ctx, &buf)

			sinkMu.Lock()
			io.Copy(sink, &buf)
			sinkMu.Unlock()

			mu.Lock()
			ran[t.Name()] = true
			runCount++
			mu.Unlock()

			if runErr != nil {
				fail(fmt.Errorf("task %q: %w", t.Name(), runErr))
			}
		}()
	}

	wg.Wait()

	result := Result{RunCount: runCount}
	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// DryRun visits each eligible task without invoking its body, writing a
// "visited" line to the sink for each one.
func DryRun(ctx context.Context, tasks []Task, sink io.Writer) (Result, error) {
	ran := make(map[string]bool, len(tasks))
	var result Result
	for _, t := range tasks {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		anyDepRan := false
		for _, d := range t.Dependencies() {
			if ran[d] {
				anyDepRan = true
				break
			}
		}
		eligible, err := t.Prepare(anyDepRan)
		if err != nil {
			return result, fmt.Errorf("task %q: %w", t.Name(), err)
		}
		if !eligible {
			continue
		}
		fmt.Fprintf(sink, "visited: %s\n", t.Name())
		ran[t.Name()] = true
		result.RunCount++
	}
	return result, nil
}
