// Copyright 2019 CUE Authors
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

package dag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func diamond() *Graph {
	g := New()
	for _, n := range []string{"A", "B", "C", "D"} {
		g.AddNode(n)
	}
	g.AddEdge("D", "B")
	g.AddEdge("D", "C")
	g.AddEdge("B", "A")
	g.AddEdge("C", "A")
	return g
}

func TestTopologicalSortDiamond(t *testing.T) {
	g := diamond()
	order, err := g.TopologicalSort("D")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A", "B", "C", "D"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestTopologicalSortRestrictsToReachable(t *testing.T) {
	g := diamond()
	g.AddNode("E")
	order, err := g.TopologicalSort("B")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A", "B"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectCycle(t *testing.T) {
	g := New()
	g.AddNode("X")
	g.AddNode("Y")
	g.AddEdge("X", "Y")
	g.AddEdge("Y", "X")

	c := g.DetectCycle()
	if c == nil {
		t.Fatal("expected a cycle, got none")
	}
}

func TestDetectCycleNone(t *testing.T) {
	g := diamond()
	if c := g.DetectCycle(); c != nil {
		t.Fatalf("unexpected cycle: %v", c)
	}
}

func TestUnionPreservesPerGoalOrder(t *testing.T) {
	got := Union([]string{"A", "B"}, []string{"B", "C"}, []string{"A", "D"})
	want := []string{"A", "B", "C", "D"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("union mismatch (-want +got):\n%s", diff)
	}
}

func TestAddEdgeUnknownNodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown node")
		}
	}()
	g := New()
	g.AddNode("A")
	g.AddEdge("A", "B")
}
