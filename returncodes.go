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

import "errors"

// Exit codes, stable across versions, returned by the cmd/pake driver. The
// engine itself never calls os.Exit; ExitCode maps an error returned from
// Run/DryRun/Register/etc. to the code a driver should exit with.
const (
	Success                 = 0
	BadArguments            = 1
	BadDefineValue          = 2
	NoTasksDefined          = 3
	NoTasksSpecified        = 4
	UndefinedTask           = 5
	CyclicDependency        = 6
	TaskInputNotFound       = 7
	TaskOutputMissing       = 8
	TaskSubprocessException = 9
	SubpakeException        = 10
	TaskException           = 11
)

// ExitCode maps an error returned by the engine to the stable exit code a
// driver should terminate with. A nil error maps to Success.
func ExitCode(err error) int {
	if err == nil {
		return Success
	}

	var (
		redefined  *RedefinedTaskError
		undefined  *UndefinedTaskError
		cyclic     *CyclicDependencyError
		missingOut *MissingOutputsError
		inputNF    *InputNotFoundError
		subproc    *SubprocessError
		subpake    *SubpakeError
		taskErr    *TaskError
		badDefine  *BadDefineValueError
		badArgs    *BadArgumentsError
	)

	switch {
	case errors.As(err, &badArgs):
		return BadArguments
	case errors.Is(err, ErrNoTasksDefined):
		return NoTasksDefined
	case errors.Is(err, ErrNoTasksSpecified):
		return NoTasksSpecified
	case errors.As(err, &redefined), errors.As(err, &undefined):
		if redefined != nil {
			// Redefinition is a programming error in the build script
			// itself, not a CLI usage error; it still has no dedicated
			// exit code in spec.md's table, so it is reported as
			// BadArguments like other registration-time misuse.
			return BadArguments
		}
		return UndefinedTask
	case errors.As(err, &cyclic):
		return CyclicDependency
	case errors.As(err, &missingOut):
		return TaskOutputMissing
	case errors.As(err, &inputNF):
		return TaskInputNotFound
	case errors.As(err, &subproc):
		return TaskSubprocessException
	case errors.As(err, &subpake):
		return SubpakeException
	case errors.As(err, &badDefine):
		return BadDefineValue
	case errors.As(err, &taskErr):
		return TaskException
	default:
		return TaskException
	}
}
