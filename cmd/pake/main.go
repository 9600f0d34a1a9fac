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

// Command pake is an example build script: a small, self-contained
// pakefile demonstrating task registration, dependency edges, input/output
// specs, and subprocess invocation. A real build script looks exactly like
// this one, with its own tasks in place of the ones below; pake itself is
// a library, not a script interpreter.
package main

import (
	"os"
	"path/filepath"

	"github.com/cue-lang/pake"
)

func main() {
	os.Exit(run())
}

func run() int {
	eng := pake.New()

	eng.Register("clean", func(ctx *pake.Context) error {
		for _, out := range []string{"build/out.txt"} {
			os.Remove(out)
			ctx.Printf("removed %s\n", out)
		}
		return nil
	})

	eng.Register("compile", func(ctx *pake.Context) error {
		if err := os.MkdirAll("build", 0o755); err != nil {
			return err
		}
		ctx.Print("compiling")
		return ctx.Call([]string{"cp", "src/main.txt", "build/out.txt"})
	},
		pake.WithInputs(pake.Glob("src/*.txt")),
		pake.WithOutputs(pake.Path(filepath.Join("build", "out.txt"))),
		pake.WithDoc("compile src/*.txt into build/out.txt"),
	)

	eng.Register("build", func(ctx *pake.Context) error {
		ctx.Print("build complete")
		return nil
	},
		pake.WithDependencies("compile"),
		pake.WithDoc("build the project"),
	)

	eng.SetDefaultGoals("build")

	return pake.NewDriver(eng).Main()
}
