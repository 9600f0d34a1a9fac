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
	"testing"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	e := New()
	mustRegister(t, e, "build", nil)
	e.Stdout = &bytes.Buffer{}
	e.Stderr = &bytes.Buffer{}
	d := NewDriver(e)
	return d
}

func TestDryRunAndJobsAreMutuallyExclusive(t *testing.T) {
	d := newTestDriver(t)
	d.Args = []string{"-n", "-j", "4", "build"}

	err := d.Run(context.Background())
	var bad *BadArgumentsError
	if !errors.As(err, &bad) {
		t.Fatalf("got %v, want *BadArgumentsError", err)
	}
	if ExitCode(err) != BadArguments {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), BadArguments)
	}
}

func TestDryRunAndShowTasksAreMutuallyExclusive(t *testing.T) {
	d := newTestDriver(t)
	d.Args = []string{"-n", "-t", "build"}

	err := d.Run(context.Background())
	var bad *BadArgumentsError
	if !errors.As(err, &bad) {
		t.Fatalf("got %v, want *BadArgumentsError", err)
	}
}

func TestDryRunAloneIsAllowed(t *testing.T) {
	d := newTestDriver(t)
	d.Args = []string{"-n", "build"}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}
