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
	"testing"

	"github.com/google/szl/value"
)

func weightedSampleType(param int) Type {
	return Type{
		Kind: "weightedsample", Param: param,
		Element: value.Descriptor{Kind: value.String}, HasWeight: true,
		Weight: value.Descriptor{Kind: value.Float},
	}
}

func TestWeightedSampleAddRejected(t *testing.T) {
	w := mustWriter(t, weightedSampleType(1))
	k := w.CreateEntry()
	if _, err := k.Add(encString("x")); err == nil {
		t.Fatal("expected Add on a weightedsample kernel to be rejected")
	}
}

func TestWeightedSampleIgnoresNonPositiveWeight(t *testing.T) {
	SetRandomSeed(1)
	w := mustWriter(t, weightedSampleType(4))
	k := w.CreateEntry()

	if _, err := k.AddWeighted(encString("zero"), value.NewFloat(0)); err != nil {
		t.Fatal(err)
	}
	if _, err := k.AddWeighted(encString("neg"), value.NewFloat(-1)); err != nil {
		t.Fatal(err)
	}
	if k.TotElems() != 2 {
		t.Fatalf("TotElems() = %d, want 2", k.TotElems())
	}
	if k.TupleCount() != 0 {
		t.Fatalf("TupleCount() = %d, want 0: zero/negative weights must be ignored", k.TupleCount())
	}
}

func TestWeightedSampleKeepsEverythingUnderCapacity(t *testing.T) {
	SetRandomSeed(42)
	w := mustWriter(t, weightedSampleType(10))
	k := w.CreateEntry()

	for _, s := range []string{"a", "b", "c"} {
		if _, err := k.AddWeighted(encString(s), value.NewFloat(1)); err != nil {
			t.Fatalf("AddWeighted(%q): %v", s, err)
		}
	}
	if k.TupleCount() != 3 {
		t.Fatalf("TupleCount() = %d, want 3", k.TupleCount())
	}
}

func TestWeightedSampleMergeStaysCapped(t *testing.T) {
	SetRandomSeed(7)
	w := mustWriter(t, weightedSampleType(2))

	a := w.CreateEntry()
	for _, s := range []string{"a", "b", "c"} {
		if _, err := a.AddWeighted(encString(s), value.NewFloat(1)); err != nil {
			t.Fatal(err)
		}
	}
	b := w.CreateEntry()
	for _, s := range []string{"d", "e"} {
		if _, err := b.AddWeighted(encString(s), value.NewFloat(1)); err != nil {
			t.Fatal(err)
		}
	}
	if status := a.Merge(b.Flush()); status != MergeOk {
		t.Fatalf("Merge() = %v, want MergeOk", status)
	}
	if a.TupleCount() != 2 {
		t.Fatalf("weightedsample(2) should remain capped at 2 after a merge, got %d", a.TupleCount())
	}
	if a.TotElems() != 5 {
		t.Fatalf("TotElems() after merge = %d, want 5", a.TotElems())
	}
}
