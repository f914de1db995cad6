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

	"github.com/google/szl/codec"
	"github.com/google/szl/value"
)

func TestBootstrapSumAddWeightedUnsupported(t *testing.T) {
	w := mustWriter(t, Type{Kind: "bootstrapsum", Param: 4, Element: value.Descriptor{Kind: value.Int}})
	k := w.CreateEntry()
	if _, err := k.AddWeighted(encInt(1), value.NewInt(1)); err == nil {
		t.Fatal("expected AddWeighted on a bootstrapsum kernel to be rejected")
	}
}

func TestBootstrapSumFlushDisplayReportsMeanAndStddev(t *testing.T) {
	SetRandomSeed(123)
	w := mustWriter(t, Type{Kind: "bootstrapsum", Param: 20, Element: value.Descriptor{Kind: value.Int}})
	k := w.CreateEntry()

	for _, v := range []int64{1, 2, 3, 4, 5} {
		if _, err := k.Add(encInt(v)); err != nil {
			t.Fatalf("Add(%d): %v", v, err)
		}
	}
	if k.TotElems() != 5 {
		t.Fatalf("TotElems() = %d, want 5", k.TotElems())
	}

	rows := k.FlushDisplay()
	if len(rows) != 1 {
		t.Fatalf("FlushDisplay() returned %d rows, want 1", len(rows))
	}
	dec := codec.NewDecoder(rows[0])
	mean, err := dec.Next()
	if err != nil || mean.Kind != value.Float {
		t.Fatalf("mean = %v, err %v, want a float", mean, err)
	}
	stddev, err := dec.Next()
	if err != nil || stddev.Kind != value.Float {
		t.Fatalf("stddev = %v, err %v, want a float", stddev, err)
	}
	if stddev.Float() < 0 {
		t.Fatalf("stddev = %v, want non-negative", stddev.Float())
	}
}

func TestBootstrapSumMergeCombinesReplicates(t *testing.T) {
	SetRandomSeed(456)
	w := mustWriter(t, Type{Kind: "bootstrapsum", Param: 8, Element: value.Descriptor{Kind: value.Int}})

	a := w.CreateEntry()
	for _, v := range []int64{1, 2} {
		if _, err := a.Add(encInt(v)); err != nil {
			t.Fatal(err)
		}
	}
	b := w.CreateEntry()
	for _, v := range []int64{3, 4} {
		if _, err := b.Add(encInt(v)); err != nil {
			t.Fatal(err)
		}
	}
	if status := a.Merge(b.Flush()); status != MergeOk {
		t.Fatalf("Merge() = %v, want MergeOk", status)
	}
	if a.TotElems() != 4 {
		t.Fatalf("TotElems() after merge = %d, want 4", a.TotElems())
	}
	if a.Flush() == nil {
		t.Fatal("Flush() after merge should not be nil")
	}
}
