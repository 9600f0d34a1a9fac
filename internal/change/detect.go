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

// Package change implements the task change detector: given a task's
// realized inputs and outputs, it decides whether the task body must run
// and which input/output pairs are outdated.
package change

import (
	"fmt"
	"os"
	"time"
)

// Tolerance is the minimum mtime delta, input minus output, that counts as
// "input is newer". This avoids false positives on filesystems with coarse
// mtime granularity. It is a compile-time constant rather than a setting:
// the spec calls the 0.1s figure heuristic but not something to expose to
// users without evidence that it needs tuning.
const Tolerance = 100 * time.Millisecond

// InputNotFoundError reports that a declared input did not exist when a
// task was about to execute.
type InputNotFoundError struct {
	Input string
}

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("input %q does not exist", e.Input)
}

// ErrMissingOutputs reports that a task declared inputs but no outputs.
var ErrMissingOutputs = fmt.Errorf("inputs declared without any outputs")

// Outcome is the result of a change detection decision.
type Outcome struct {
	// Eligible reports whether the task body must run.
	Eligible bool

	// OutdatedInputs and OutdatedOutputs are subsets of the inputs and
	// outputs examined, always respecting outdated_inputs ⊆ inputs and
	// outdated_outputs ⊆ outputs.
	OutdatedInputs  []string
	OutdatedOutputs []string
}

// Detect applies the decision table of spec.md §4.3 to a task's realized
// inputs and outputs. hasDependencies and anyDependencyRan feed the
// dependency-only rerun rule and the general "no dependency ran" skip rule.
//
// Detect stats every input first and returns *InputNotFoundError
// immediately if one is missing, before computing anything else.
func Detect(inputs, outputs []string, hasDependencies, anyDependencyRan bool) (Outcome, error) {
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return Outcome{}, &InputNotFoundError{Input: in}
		}
	}

	switch {
	case len(inputs) > 0 && len(outputs) == 0:
		return Outcome{}, ErrMissingOutputs

	case len(inputs) == 0 && len(outputs) == 0:
		if !hasDependencies {
			return Outcome{Eligible: true}, nil
		}
		return Outcome{Eligible: anyDependencyRan}, nil

	case len(inputs) == 0:
		var missing []string
		for _, o := range outputs {
			if !exists(o) {
				missing = append(missing, o)
			}
		}
		return finish(Outcome{OutdatedOutputs: missing}, anyDependencyRan), nil

	case len(inputs) == len(outputs):
		var oi, oo []string
		for i := range inputs {
			in, out := inputs[i], outputs[i]
			if !exists(out) || inputNewer(in, out) {
				oi = append(oi, in)
				oo = append(oo, out)
			}
		}
		return finish(Outcome{OutdatedInputs: oi, OutdatedOutputs: oo}, anyDependencyRan), nil

	default:
		var oi, oo []string
		anyOutputMissing := false
		for _, o := range outputs {
			if !exists(o) {
				anyOutputMissing = true
				break
			}
		}
		for _, in := range inputs {
			outdated := anyOutputMissing
			if !outdated {
				for _, o := range outputs {
					if inputNewer(in, o) {
						outdated = true
						break
					}
				}
			}
			if outdated {
				oi = append(oi, in)
			}
		}
		for _, o := range outputs {
			outdated := !exists(o)
			if !outdated {
				for _, in := range inputs {
					if inputNewer(in, o) {
						outdated = true
						break
					}
				}
			}
			if outdated {
				oo = append(oo, o)
			}
		}
		return finish(Outcome{OutdatedInputs: oi, OutdatedOutputs: oo}, anyDependencyRan), nil
	}
}

func finish(o Outcome, anyDependencyRan bool) Outcome {
	o.Eligible = len(o.OutdatedInputs) > 0 || len(o.OutdatedOutputs) > 0 || anyDependencyRan
	return o
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func inputNewer(input, output string) bool {
	si, err := os.Stat(input)
	if err != nil {
		return false
	}
	so, err := os.Stat(output)
	if err != nil {
		return true
	}
	return si.ModTime().Sub(so.ModTime()) > Tolerance
}
