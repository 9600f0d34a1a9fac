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
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/cue-lang/pake/internal/subpake"
	"github.com/google/shlex"
)

// Context is passed to a running task's Body. It exposes the task's
// realized inputs/outputs, which of them change detection found outdated,
// and helpers for subprocess invocation, output, and recursive subpake
// invocation. All output produced through Context is buffered and flushed
// atomically to the engine's sink once the task body returns, so that
// concurrently running tasks never interleave their output.
type Context struct {
	ctx      context.Context
	engine   *Engine
	taskName string
	runID    string

	// Inputs and Outputs are this task's fully realized paths, after
	// resolving Glob/Producer/Pattern specs.
	Inputs  []string
	Outputs []string

	// OutdatedInputs and OutdatedOutputs are the subsets change detection
	// found out of date, always subsets of Inputs and Outputs.
	OutdatedInputs  []string
	OutdatedOutputs []string

	out io.Writer
}

// Context returns the context.Context the task is running under, canceled
// if the engine run as a whole is canceled.
func (c *Context) Context() context.Context { return c.ctx }

// TaskName returns the name of the running task.
func (c *Context) TaskName() string { return c.taskName }

// RunID returns the UUID identifying this Run/DryRun invocation, shared by
// every task scheduled in it.
func (c *Context) RunID() string { return c.runID }

// DependencyOutputs returns the realized outputs of every immediate
// dependency of this task, concatenated in dependency declaration order.
func (c *Context) DependencyOutputs() []string {
	t, err := c.engine.Lookup(c.taskName)
	if err != nil {
		return nil
	}
	var out []string
	for _, dep := range t.dependencies {
		dt, err := c.engine.Lookup(dep)
		if err != nil {
			continue
		}
		inputs, err := resolveInputSpecs(dt.inputSpecs)
		if err != nil {
			continue
		}
		outputs, err := resolveOutputSpecs(dt.outputSpecs, inputs)
		if err != nil {
			continue
		}
		out = append(out, outputs...)
	}
	return out
}

// Print writes to the task's output buffer, exactly like fmt.Fprintln.
func (c *Context) Print(args ...interface{}) {
	fmt.Fprintln(c.out, args...)
}

// Printf writes a formatted line to the task's output buffer.
func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// CallOption configures Call.
type CallOption func(*callOptions)

type callOptions struct {
	stdin        io.Reader
	ignoreErrors bool
	silent       bool
	printCmd     bool
}

// WithStdin sets the subprocess's stdin.
func WithStdin(r io.Reader) CallOption {
	return func(o *callOptions) { o.stdin = r }
}

// IgnoreErrors makes Call return the command's error instead of wrapping it
// in *SubprocessError and failing the task.
func IgnoreErrors() CallOption {
	return func(o *callOptions) { o.ignoreErrors = true }
}

// Silent discards the subprocess's combined stdout/stderr instead of
// writing it to the task's output buffer.
func Silent() CallOption {
	return func(o *callOptions) { o.silent = true }
}

// NoPrintCmd suppresses the default behavior of writing the command line to
// the task's output buffer before running it.
func NoPrintCmd() CallOption {
	return func(o *callOptions) { o.printCmd = false }
}

// Call runs a subprocess, writing its combined stdout/stderr to the task's
// output buffer. A single string argument is split with shell word-syntax
// (github.com/google/shlex), mirroring shlex.split in the original
// implementation; multiple arguments are used as the literal argv.
//
//	ctx.Call([]string{"gcc -c test.c -o test.o"})
//	ctx.Call([]string{"gcc", "-c", "test.c", "-o", "test.o"})
//
// On a non-zero exit, Call returns *SubprocessError unless IgnoreErrors was
// given, in which case the raw *exec.ExitError is returned instead.
func (c *Context) Call(args []string, opts ...CallOption) error {
	o := callOptions{printCmd: true}
	for _, opt := range opts {
		opt(&o)
	}

	var argv []string
	if len(args) == 1 {
		split, err := shlex.Split(args[0])
		if err != nil {
			return fmt.Errorf("pake: bad command line %q: %w", args[0], err)
		}
		argv = split
	} else {
		argv = args
	}
	if len(argv) == 0 {
		return fmt.Errorf("pake: empty command")
	}

	if o.printCmd {
		c.Print(strings.Join(argv, " "))
	}

	cmd := exec.CommandContext(c.ctx, argv[0], argv[1:]...)
	cmd.Stdin = o.stdin
	if o.silent {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	} else {
		cmd.Stdout = c.out
		cmd.Stderr = c.out
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if o.ignoreErrors {
		return err
	}

	code := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	return &SubprocessError{Cmd: argv, Code: code}
}

// Subpake runs script as a nested pake invocation, directing all of its
// output into this task's output buffer and inheriting the engine's
// defines and exports. See Engine.Subpake for the full semantics.
func (c *Context) Subpake(script string, args []string, opts ...subpake.Option) error {
	return c.engine.subpakeInto(c.ctx, script, args, c.out, opts...)
}

// Subpake runs script as a nested pake invocation from outside any task
// body, writing its output to the engine's Stdout.
func (e *Engine) Subpake(ctx context.Context, script string, args []string, opts ...subpake.Option) error {
	return e.subpakeInto(ctx, script, args, e.Stdout, opts...)
}

func (e *Engine) subpakeInto(ctx context.Context, script string, args []string, w io.Writer, opts ...subpake.Option) error {
	all := append([]subpake.Option{
		subpake.WithDepth(e.SubpakeDepth + 1),
		subpake.WithDefines(e.exportsForChild()),
		subpake.WithOutput(w),
	}, opts...)

	err := subpake.Run(ctx, script, args, all...)
	if err != nil {
		var se *subpake.Error
		if ok := asSubpakeError(err, &se); ok {
			return &SubpakeError{Script: script, Code: se.Code, Output: se.Output}
		}
		return err
	}
	return nil
}

func asSubpakeError(err error, target **subpake.Error) bool {
	se, ok := err.(*subpake.Error)
	if ok {
		*target = se
	}
	return ok
}
