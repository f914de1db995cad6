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

func maxMinType(param int, maximize string) Type {
	return Type{
		Kind: maximize, Param: param,
		Element: value.Descriptor{Kind: value.String}, HasWeight: true,
		Weight: value.Descriptor{Kind: value.Int},
	}
}

func TestMaximumKeepsTheTwoHeaviest(t *testing.T) {
	w := mustWriter(t, maxMinType(2, "maximum"))
	k := w.CreateEntry()

	weights := map[string]int64{"x": 5, "y": 3, "z": 7}
	for _, name := range []string{"x", "y", "z"} {
		if _, err := k.AddWeighted(encString(name), value.NewInt(weights[name])); err != nil {
			t.Fatalf("AddWeighted(%q): %v", name, err)
		}
	}
	if k.TupleCount() != 2 {
		t.Fatalf("TupleCount() = %d, want 2", k.TupleCount())
	}

	rows := k.FlushDisplay()
	if len(rows) != 2 {
		t.Fatalf("FlushDisplay() returned %d rows, want 2", len(rows))
	}
	wantOrder := []string{"z", "x"}
	wantWeight := []int64{7, 5}
	for i, row := range rows {
		dec := codec.NewDecoder(row)
		w, err := dec.Next()
		if err != nil || w.Int() != wantWeight[i] {
			t.Fatalf("row %d weight = %v, err %v, want %d", i, w, err, wantWeight[i])
		}
		raw, err := dec.Next()
		if err != nil || raw.Kind != value.Bytes {
			t.Fatalf("row %d elem = %v, err %v, want bytes", i, raw, err)
		}
		e, err := decodeElem(raw.Bytes())
		if err != nil || e.String() != wantOrder[i] {
			t.Fatalf("row %d elem = %v, err %v, want %q", i, e, err, wantOrder[i])
		}
	}
}

func TestMinimumKeepsTheTwoLightest(t *testing.T) {
	w := mustWriter(t, maxMinType(2, "minimum"))
	k := w.CreateEntry()

	weights := map[string]int64{"x": 5, "y": 3, "z": 7}
	for _, name := range []string{"x", "y", "z"} {
		if _, err := k.AddWeighted(encString(name), value.NewInt(weights[name])); err != nil {
			t.Fatalf("AddWeighted(%q): %v", name, err)
		}
	}

	rows := k.FlushDisplay()
	wantOrder := []string{"y", "x"}
	for i, row := range rows {
		dec := codec.NewDecoder(row)
		dec.Next() // weight
		raw, err := dec.Next()
		if err != nil || raw.Kind != value.Bytes {
			t.Fatalf("row %d elem = %v, err %v, want bytes", i, raw, err)
		}
		e, err := decodeElem(raw.Bytes())
		if err != nil || e.String() != wantOrder[i] {
			t.Fatalf("row %d elem = %v, err %v, want %q", i, e, err, wantOrder[i])
		}
	}
}

func TestMaxMinAddUnsupported(t *testing.T) {
	w := mustWriter(t, maxMinType(1, "maximum"))
	k := w.CreateEntry()
	if _, err := k.Add(encString("x")); err == nil {
		t.Fatal("expected Add on a maximum kernel to be rejected")
	}
}

func TestMaximumMergeCombinesCandidates(t *testing.T) {
	w := mustWriter(t, maxMinType(2, "maximum"))

	a := w.CreateEntry()
	mustAddWeighted(t, a, "x", 5)
	mustAddWeighted(t, a, "y", 3)

	b := w.CreateEntry()
	mustAddWeighted(t, b, "z", 7)

	if status := a.Merge(b.Flush()); status != MergeOk {
		t.Fatalf("Merge() = %v, want MergeOk", status)
	}
	if a.TupleCount() != 2 {
		t.Fatalf("TupleCount() after merge = %d, want 2", a.TupleCount())
	}

	rows := a.FlushDisplay()
	dec := codec.NewDecoder(rows[0])
	wv, _ := dec.Next()
	if wv.Int() != 7 {
		t.Fatalf("heaviest after merge = %d, want 7", wv.Int())
	}
}

func mustAddWeighted(t *testing.T, k Kernel, elem string, weight int64) {
	t.Helper()
	if _, err := k.AddWeighted(encString(elem), value.NewInt(weight)); err != nil {
		t.Fatalf("AddWeighted(%q, %d): %v", elem, weight, err)
	}
}
