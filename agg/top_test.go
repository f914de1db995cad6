// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package agg

import (
	"fmt"
	"testing"

	"github.com/google/szl/value"
)

func topType(param int) Type {
	return Type{
		Kind: "top", Param: param,
		Element: value.Descriptor{Kind: value.String}, HasWeight: true,
		Weight: value.Descriptor{Kind: value.Int},
	}
}

func TestTopAddRejected(t *testing.T) {
	w := mustWriter(t, topType(2))
	k := w.CreateEntry()
	if _, err := k.Add(encString("x")); err == nil {
		t.Fatal("expected Add on a top kernel to be rejected")
	}
}

// TestTopHeapCapacityIsTenTimesParam exercises the exact (non-sketch)
// path: with param=2, the candidate heap now holds up to 20 distinct
// elements before any of them is forced through the sketch, so a
// 15-element, fully-distinct stream must be tracked exactly.
func TestTopHeapCapacityIsTenTimesParam(t *testing.T) {
	w := mustWriter(t, topType(2))
	k := w.CreateEntry()

	for i := 0; i < 15; i++ {
		elem := fmt.Sprintf("elem%02d", i)
		if _, err := k.AddWeighted(encString(elem), value.NewInt(int64(i))); err != nil {
			t.Fatalf("AddWeighted(%q): %v", elem, err)
		}
	}

	tk := k.(*topKernel)
	if tk.heap.Cap() != 20 {
		t.Fatalf("heap capacity = %d, want 20 (param*10)", tk.heap.Cap())
	}
	if tk.heap.Len() != 15 {
		t.Fatalf("heap should hold every one of the 15 distinct candidates exactly (capacity 20), got %d", tk.heap.Len())
	}
}

func TestTopKeepsHeaviestElementsDisplayed(t *testing.T) {
	w := mustWriter(t, topType(2))
	k := w.CreateEntry()

	weights := map[string]int64{"x": 5, "y": 3, "z": 7}
	for _, name := range []string{"x", "y", "z"} {
		if _, err := k.AddWeighted(encString(name), value.NewInt(weights[name])); err != nil {
			t.Fatalf("AddWeighted(%q): %v", name, err)
		}
	}

	rows := k.FlushDisplay()
	if len(rows) != 3 {
		t.Fatalf("FlushDisplay() returned %d rows, want 3 (every candidate fits within the capacity-20 heap)", len(rows))
	}
}

func TestTopMergeSumsSharedCandidateWeights(t *testing.T) {
	w := mustWriter(t, topType(5))

	a := w.CreateEntry()
	mustAddWeighted(t, a, "a", 10)
	mustAddWeighted(t, a, "b", 5)

	b := w.CreateEntry()
	mustAddWeighted(t, b, "a", 3)
	mustAddWeighted(t, b, "c", 8)

	if status := a.Merge(b.Flush()); status != MergeOk {
		t.Fatalf("Merge() = %v, want MergeOk", status)
	}
	if got, ok := a.(*topKernel).heap.Find(string(encString("a"))); !ok || got.Int() != 13 {
		t.Fatalf("merged weight for %q = %v, ok %v, want 13", "a", got, ok)
	}
	if a.TotElems() != 4 {
		t.Fatalf("TotElems() after merge = %d, want 4", a.TotElems())
	}
}

func TestTopClearResetsHeapAndSketchDims(t *testing.T) {
	w := mustWriter(t, topType(3))
	k := w.CreateEntry().(*topKernel)
	mustAddWeighted(t, k, "a", 1)
	k.Clear()
	if k.heap.Cap() != 30 {
		t.Fatalf("heap capacity after Clear = %d, want 30 (param*10)", k.heap.Cap())
	}
	if k.TotElems() != 0 {
		t.Fatalf("TotElems() after Clear = %d, want 0", k.TotElems())
	}
}
