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
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// specKind identifies which alternative of the input/output spec grammar a
// Spec holds: a fixed path, a glob expression, a producer function
// evaluated at schedule time, or a pattern transform applied to a task's
// already-realized inputs.
type specKind int

const (
	specLiteral specKind = iota
	specGlob
	specProducer
	specTransformer
)

// Spec describes one declared input or output of a task, in the form
// accepted by Register's WithInputs/WithOutputs options. Build one with
// Path, Glob, Producer, or Pattern.
type Spec struct {
	kind        specKind
	literal     string
	producer    func() ([]string, error)
	transformer func(inputs []string) ([]string, error)
}

// Path declares a single fixed file path.
func Path(path string) Spec {
	return Spec{kind: specLiteral, literal: path}
}

// Glob declares every existing path matching a filepath.Match pattern,
// resolved at schedule time, sorted for determinism. Grounded on
// original_source/pake/pake.py's _Glob.
func Glob(pattern string) Spec {
	return Spec{kind: specGlob, literal: pattern}
}

// Producer declares a set of paths computed by fn, re-evaluated every time
// the task it belongs to is considered for execution.
func Producer(fn func() ([]string, error)) Spec {
	return Spec{kind: specProducer, producer: fn}
}

// Pattern declares outputs derived from a task's realized inputs by textual
// substitution. tmpl may use "%" as a stand-in for an input's base name
// without extension, "{dir}" for its containing directory, and "{ext}" for
// its extension including the leading dot. One output is produced per
// input. Grounded on original_source/pake/pake.py's _OutPattern.
func Pattern(tmpl string) Spec {
	return Spec{
		kind: specTransformer,
		transformer: func(inputs []string) ([]string, error) {
			out := make([]string, len(inputs))
			for i, in := range inputs {
				out[i] = expandPattern(tmpl, in)
			}
			return out, nil
		},
	}
}

func expandPattern(tmpl, input string) string {
	dir := filepath.Dir(input)
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)

	r := strings.NewReplacer("{dir}", dir, "{ext}", ext)
	s := r.Replace(tmpl)
	return strings.ReplaceAll(s, "%", base)
}

// resolveInputSpecs realizes a task's declared inputs. Transformer specs
// are not valid as inputs, since they depend on a realized input list that
// does not yet exist; resolveInputSpecs rejects them.
func resolveInputSpecs(specs []Spec) ([]string, error) {
	var out []string
	for _, s := range specs {
		switch s.kind {
		case specLiteral:
			out = append(out, s.literal)
		case specGlob:
			matches, err := filepath.Glob(s.literal)
			if err != nil {
				return nil, fmt.Errorf("pake: bad glob %q: %w", s.literal, err)
			}
			sort.Strings(matches)
			out = append(out, matches...)
		case specProducer:
			paths, err := s.producer()
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
		case specTransformer:
			return nil, fmt.Errorf("pake: Pattern specs are only valid in WithOutputs, not WithInputs")
		}
	}
	return out, nil
}

// resolveOutputSpecs realizes a task's declared outputs given its already
// realized inputs, which Pattern specs consume.
func resolveOutputSpecs(specs []Spec, inputs []string) ([]string, error) {
	var out []string
	for _, s := range specs {
		switch s.kind {
		case specLiteral:
			out = append(out, s.literal)
		case specGlob:
			matches, err := filepath.Glob(s.literal)
			if err != nil {
				return nil, fmt.Errorf("pake: bad glob %q: %w", s.literal, err)
			}
			sort.Strings(matches)
			out = append(out, matches...)
		case specProducer:
			paths, err := s.producer()
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
		case specTransformer:
			paths, err := s.transformer(inputs)
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
		}
	}
	return out, nil
}

// Body is a task's executable body. ctx exposes the task's realized
// inputs/outputs, change-detection results, output buffering, and the
// subprocess/subpake helpers.
type Body func(ctx *Context) error

// Task is one registered unit of work: a name, a body, declared
// dependencies, and declared input/output specs.
type Task struct {
	name         string
	body         Body
	doc          string
	dependencies []string
	inputSpecs   []Spec
	outputSpecs  []Spec
}

// Name returns the task's registered name.
func (t *Task) Name() string { return t.name }

// Doc returns the task's documentation string, set with WithDoc, or "" if
// none was given.
func (t *Task) Doc() string { return t.doc }

// Dependencies returns the names of the task's immediate dependencies, in
// the order they were declared.
func (t *Task) Dependencies() []string { return append([]string(nil), t.dependencies...) }

// TaskOption configures a Task at Register time.
type TaskOption func(*Task)

// WithDependencies declares the names of tasks that must run, or be
// considered, before this one.
func WithDependencies(names ...string) TaskOption {
	return func(t *Task) { t.dependencies = append(t.dependencies, names...) }
}

// WithInputs declares the task's inputs.
func WithInputs(specs ...Spec) TaskOption {
	return func(t *Task) { t.inputSpecs = append(t.inputSpecs, specs...) }
}

// WithOutputs declares the task's outputs.
func WithOutputs(specs ...Spec) TaskOption {
	return func(t *Task) { t.outputSpecs = append(t.outputSpecs, specs...) }
}

// WithDoc attaches a one-line description shown by --show-task-info.
func WithDoc(doc string) TaskOption {
	return func(t *Task) { t.doc = doc }
}
