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

package emit

import (
	"testing"

	"github.com/google/szl/agg"
	"github.com/google/szl/value"
)

func mustWriter(t *testing.T, typ agg.Type) agg.Writer {
	t.Helper()
	w, err := agg.NewWriter(typ)
	if err != nil {
		t.Fatalf("NewWriter(%+v): %v", typ, err)
	}
	return w
}

// emitInt emits a single unindexed int element into tbl.
func emitInt(e *Emitter, v int64) {
	e.Begin(EmitGroup, 0)
	e.Begin(ElementGroup, 0)
	e.PutInt(v)
	e.End(ElementGroup, 0)
	e.End(EmitGroup, 0)
}

func TestEmitSumEndToEnd(t *testing.T) {
	w := mustWriter(t, agg.Type{Kind: "sum", Element: value.Descriptor{Kind: value.Int}})
	tbl := NewTable("t", w)

	e := NewEmitter(tbl)
	for _, v := range []int64{1, 2, 3} {
		emitInt(e, v)
		if err := must(e); err != nil {
			t.Fatalf("emit %d: %v", v, err)
		}
	}

	if tbl.Len() != 1 {
		t.Fatalf("sum table should have exactly one (unindexed) key, got %d", tbl.Len())
	}

	var gotKey, gotVal []byte
	err := tbl.FlushAll(func(k, v []byte) error {
		gotKey, gotVal = k, v
		return nil
	})
	if err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if len(gotKey) != 0 {
		t.Fatalf("expected empty key for an unindexed table, got %x", gotKey)
	}
	if len(gotVal) == 0 {
		t.Fatalf("expected a non-empty flush for a sum of 1+2+3")
	}
}

func must(e *Emitter) error {
	_, err := e.Result()
	return err
}

func TestEmitBadStateSetsFailedFlag(t *testing.T) {
	w := mustWriter(t, agg.Type{Kind: "sum", Element: value.Descriptor{Kind: value.Int}})
	tbl := NewTable("t", w)
	e := NewEmitter(tbl)

	// Two ELEMENT groups in a row is not a legal emit grammar.
	e.Begin(EmitGroup, 0)
	e.Begin(ElementGroup, 0)
	e.PutInt(1)
	e.End(ElementGroup, 0)
	e.Begin(ElementGroup, 0)
	if !e.Failed() {
		t.Fatalf("expected the driver's internal error flag to be set after a duplicate ELEMENT group")
	}
}

func TestEmitArrayInsideWeightRejected(t *testing.T) {
	w := mustWriter(t, agg.Type{
		Kind: "maximum", Param: 1,
		Element: value.Descriptor{Kind: value.String}, HasWeight: true,
		Weight: value.Descriptor{Kind: value.Int},
	})
	tbl := NewTable("t", w)
	e := NewEmitter(tbl)

	e.Begin(EmitGroup, 0)
	e.Begin(ElementGroup, 0)
	e.PutString("x")
	e.End(ElementGroup, 0)
	e.Begin(WeightGroup, 0)
	e.Begin(ArrayGroup, 2)
	if !e.Failed() {
		t.Fatalf("expected ARRAY inside WEIGHT to be rejected")
	}
}

func TestEmitStringWithEmbeddedNulRejected(t *testing.T) {
	w := mustWriter(t, agg.Type{Kind: "set", Param: 4, Element: value.Descriptor{Kind: value.String}})
	tbl := NewTable("t", w)
	e := NewEmitter(tbl)

	e.Begin(EmitGroup, 0)
	e.Begin(ElementGroup, 0)
	if err := e.PutString("a\x00b"); err == nil {
		t.Fatalf("PutString(embedded NUL) = nil error, want non-nil")
	}
	e.End(ElementGroup, 0)
	e.End(EmitGroup, 0)
	if !e.Failed() {
		t.Fatalf("expected the driver's internal error flag to be set after an embedded-NUL string")
	}
}

func TestShardDeterministic(t *testing.T) {
	a := Shard("mytable", "mykey", 16)
	b := Shard("mytable", "mykey", 16)
	if a != b {
		t.Fatalf("Shard must be deterministic: got %d then %d", a, b)
	}
	if a < 0 || a >= 16 {
		t.Fatalf("Shard out of range: %d", a)
	}
}

func TestRoundRobinCycles(t *testing.T) {
	rr := NewRoundRobin()
	seen := map[int]int{}
	for i := 0; i < 12; i++ {
		seen[rr.Next(4)]++
	}
	for i := 0; i < 4; i++ {
		if seen[i] != 3 {
			t.Fatalf("expected perfectly even round-robin distribution, got %v", seen)
		}
	}
}
