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
	"os"
	"sort"

	"github.com/cue-lang/pake/internal/define"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Driver wires command-line flags to an Engine, forming the command-line
// entry point a pake build script's own main() is expected to call. Unlike
// cue, which dispatches across many subcommands, pake is a single-command
// tool: Driver wraps one *cobra.Command carrying every flag in spec.md
// §6's table, grounded on cmd/cue/cmd/root.go's Command/New/Main split.
type Driver struct {
	Engine *Engine

	cmd   *cobra.Command
	flags driverFlags

	// Args are parsed by Run; defaults to os.Args[1:] when nil.
	Args []string
}

type driverFlags struct {
	defines      []string
	jobs         int
	directory    string
	dryRun       bool
	showTasks    bool
	showTaskInfo bool
	subpakeDepth int
	stdinDefines bool
}

// taskListEntry is one row of --show-tasks/--show-task-info's yaml output.
type taskListEntry struct {
	Name string `yaml:"name"`
	Doc  string `yaml:"doc,omitempty"`
}

// NewDriver returns a Driver over e with its flag set built but not yet
// parsed.
func NewDriver(e *Engine) *Driver {
	d := &Driver{Engine: e}

	cmd := &cobra.Command{
		Use:           "pake [flags] [goals...]",
		Short:         "pake runs build tasks declared in this script",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	fs := cmd.Flags()
	fs.StringArrayVarP(&d.flags.defines, "define", "D", nil, "set a define, name[=value]")
	fs.IntVarP(&d.flags.jobs, "jobs", "j", 1, "maximum number of concurrently running tasks")
	fs.StringVarP(&d.flags.directory, "directory", "C", "", "change directory before executing")
	fs.BoolVarP(&d.flags.dryRun, "dry-run", "n", false, "visit tasks without executing them")
	fs.BoolVarP(&d.flags.showTasks, "show-tasks", "t", false, "list all task names and the default task set")
	// spec.md gives --show-task-info the shorthand "-ti", which pflag cannot
	// represent: shorthands are single runes. The long flag is kept exact
	// and the shorthand is dropped rather than picking an unspec'd rune.
	fs.BoolVar(&d.flags.showTaskInfo, "show-task-info", false, "list documented tasks with their documentation strings")
	fs.IntVar(&d.flags.subpakeDepth, "_subpake_depth", 0, "internal: nesting depth of this process")
	fs.MarkHidden("_subpake_depth")
	fs.BoolVar(&d.flags.stdinDefines, "stdin-defines", false, "internal: parse a Define Store mapping from stdin")
	fs.MarkHidden("stdin-defines")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return d.execute(cmd.Context(), args)
	}

	d.cmd = cmd
	return d
}

// Main parses os.Args[1:] (or d.Args if set) and runs the engine, returning
// the process exit code a caller should pass to os.Exit. Diagnostics are
// written to d.Engine.Stderr.
func (d *Driver) Main() int {
	err := d.Run(context.Background())
	if err != nil {
		fmt.Fprintln(d.Engine.Stderr, err)
	}
	return ExitCode(err)
}

// Run parses flags and executes the requested operation: rendering
// --show-tasks/--show-task-info, dry-running goals, or running goals, in
// that priority order.
func (d *Driver) Run(ctx context.Context) error {
	args := d.Args
	if args == nil {
		args = os.Args[1:]
	}

	d.cmd.SetArgs(args)
	d.cmd.SetOut(d.Engine.Stdout)
	d.cmd.SetErr(d.Engine.Stderr)
	return d.cmd.ExecuteContext(ctx)
}

func (d *Driver) execute(ctx context.Context, goals []string) error {
	f := d.flags

	// spec.md §6 marks these combinations mutually exclusive. Checked here,
	// rather than with cobra's own MarkFlagsMutuallyExclusive, because
	// cobra validates flag groups before RunE is ever invoked and returns
	// a plain, untyped error from Execute — which would bypass the
	// BadArguments exit-code mapping entirely.
	if f.dryRun && d.cmd.Flags().Changed("jobs") {
		return &BadArgumentsError{Message: "-n/--dry-run and -j/--jobs are mutually exclusive"}
	}
	if f.dryRun && (f.showTasks || f.showTaskInfo) {
		return &BadArgumentsError{Message: "-n/--dry-run is mutually exclusive with -t/--show-tasks and --show-task-info"}
	}

	if f.directory != "" {
		if err := os.Chdir(f.directory); err != nil {
			return fmt.Errorf("pake: %w", err)
		}
	}

	d.Engine.SubpakeDepth = f.subpakeDepth

	if f.stdinDefines {
		if err := d.parseStdinDefines(); err != nil {
			return err
		}
	}
	for _, tok := range f.defines {
		name, v, err := define.ParseDefineFlag(tok)
		if err != nil {
			return &BadDefineValueError{Token: tok, Cause: err}
		}
		d.Engine.SetDefine(name, v)
	}

	switch {
	case f.showTasks:
		return d.renderTaskList(false)
	case f.showTaskInfo:
		return d.renderTaskList(true)
	case f.dryRun:
		return d.Engine.DryRun(ctx, goals)
	default:
		return d.Engine.Run(ctx, goals, f.jobs)
	}
}

func (d *Driver) parseStdinDefines() error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("pake: reading stdin defines: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	s, err := define.ParseMapping(string(data))
	if err != nil {
		return fmt.Errorf("pake: parsing stdin defines: %w", err)
	}
	for _, name := range s.Names() {
		v, _ := s.Get(name)
		d.Engine.SetDefine(name, v)
	}
	return nil
}

func (d *Driver) renderTaskList(withDoc bool) error {
	tasks := d.Engine.Tasks()
	names := make([]string, 0, len(tasks))
	byName := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name())
		byName[t.Name()] = t
	}
	sort.Strings(names)

	entries := make([]taskListEntry, 0, len(names))
	for _, n := range names {
		t := byName[n]
		if withDoc && t.Doc() == "" {
			continue
		}
		entries = append(entries, taskListEntry{Name: n, Doc: t.Doc()})
	}

	doc := struct {
		Tasks   []taskListEntry `yaml:"tasks"`
		Default []string        `yaml:"default,omitempty"`
	}{
		Tasks:   entries,
		Default: d.Engine.DefaultGoals(),
	}

	enc := yaml.NewEncoder(d.Engine.Stdout)
	defer enc.Close()
	return enc.Encode(doc)
}
