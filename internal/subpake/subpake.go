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

// Package subpake implements the recursive "subpake" bridge: spawning a
// nested build script as a child process in subordinate mode, passing the
// parent's Define Store across the process boundary over stdin. Grounded on
// original_source/pake/subpake.py and original_source/pake/submake.py.
package subpake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cue-lang/pake/internal/define"
)

// Error wraps a non-zero exit from a subpake child, analogous to
// SubpakeException in the original implementation.
type Error struct {
	Cmd    []string
	Code   int
	Output string
}

func (e *Error) Error() string {
	return fmt.Sprintf("subpake: command %v exited with code %d", e.Cmd, e.Code)
}

type options struct {
	depth         int
	defines       *define.Store
	output        io.Writer
	silent        bool
	ignoreErrors  bool
	collectOutput bool
	exitOnError   bool
}

// subpakeExceptionCode is the process exit code ExitOnError terminates with,
// kept equal to the root package's returncodes.go SubpakeException constant.
// internal/subpake cannot import the root package (which imports it), so
// the value is duplicated here; the two must be kept in sync.
const subpakeExceptionCode = 10

// Option configures Run.
type Option func(*options)

// WithDepth sets the nesting depth passed to the child as
// "--_subpake_depth". The top-level engine is depth 0; each subpake call
// increments it by one.
func WithDepth(depth int) Option {
	return func(o *options) { o.depth = depth }
}

// WithDefines sets the Define Store serialized to the child's stdin.
func WithDefines(s *define.Store) Option {
	return func(o *options) { o.defines = s }
}

// WithOutput sets where the child's combined stdout/stderr is written.
// Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// Silent discards the child's output instead of forwarding it.
func Silent() Option {
	return func(o *options) { o.silent = true }
}

// IgnoreErrors makes Run return nil on a non-zero child exit instead of
// *Error.
func IgnoreErrors() Option {
	return func(o *options) { o.ignoreErrors = true }
}

// CollectOutput buffers the child's entire output and writes it with a
// single Write call once the child exits, instead of streaming it as
// produced. Useful for keeping concurrently running subpake invocations'
// output from interleaving.
func CollectOutput() Option {
	return func(o *options) { o.collectOutput = true }
}

// ExitOnError makes Run dump the captured child output to stderr and
// terminate the current process with the SubpakeException exit code on a
// non-zero child exit, instead of returning *Error. Has no effect together
// with IgnoreErrors, which takes precedence.
func ExitOnError() Option {
	return func(o *options) { o.exitOnError = true }
}

// Run executes script as a child process of the currently running
// executable, in "subordinate" mode: the child is invoked with
// "--_subpake_depth N --stdin-defines" and, if its directory differs from
// the script's own directory, "--directory <script dir>". args are passed
// through as additional arguments, typically goal names.
//
// The Define Store given by WithDefines is serialized to the child's
// stdin, which the child parses at startup before applying its own "-D"
// flags, so a "-D" given to the child overrides an inherited value.
func Run(ctx context.Context, script string, args []string, opts ...Option) error {
	o := options{output: os.Stdout, defines: define.NewStore()}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("subpake: %q does not exist", script)
	}

	scriptDir, err := filepath.Abs(filepath.Dir(script))
	if err != nil {
		return fmt.Errorf("subpake: %w", err)
	}

	// Unlike the original Python implementation, which re-invokes a shared
	// interpreter against a pakefile.py source path, a pake build script is
	// itself a compiled Go binary: script is executed directly.
	argv := []string{"--_subpake_depth", fmt.Sprint(o.depth), "--stdin-defines"}
	if cwd, err := os.Getwd(); err == nil && cwd != scriptDir {
		argv = append(argv, "--directory", scriptDir)
	}
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, script, argv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("subpake: %w", err)
	}

	// collected always receives the child's combined output (unless silent)
	// so a non-zero exit's *Error carries it for post-mortem dumping, per
	// subpake.py's copyfileobj_tee into both the live sink and an output
	// capture buffer.
	var collected bytes.Buffer
	var out io.Writer
	switch {
	case o.silent:
		out = io.Discard
	case o.collectOutput:
		out = &collected
	default:
		out = io.MultiWriter(o.output, &collected)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("subpake: %w", err)
	}

	fmt.Fprint(stdin, o.defines.SerializeMapping())
	stdin.Close()

	runErr := cmd.Wait()

	if o.collectOutput && !o.silent {
		io.Copy(o.output, &collected)
	}

	if runErr == nil {
		return nil
	}
	if o.ignoreErrors {
		return nil
	}

	code := -1
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	subErr := &Error{Cmd: append([]string{script}, argv...), Code: code, Output: collected.String()}

	if o.exitOnError {
		fmt.Fprint(os.Stderr, subErr.Output)
		os.Exit(subpakeExceptionCode)
	}
	return subErr
}
