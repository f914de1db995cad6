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

package value

import "testing"

func TestEqualAndLess(t *testing.T) {
	cases := []struct {
		a, b       TypedValue
		wantEqual  bool
		wantLessAB bool
	}{
		{NewInt(1), NewInt(1), true, false},
		{NewInt(1), NewInt(2), false, true},
		{NewFloat(-1.5), NewFloat(2.5), false, true},
		{NewString("abc"), NewString("abd"), false, true},
		{NewBytes([]byte{1, 2}), NewBytes([]byte{1, 2}), true, false},
		{NewBool(false), NewBool(true), false, true},
	}
	for _, c := range cases {
		if got := c.a.Equal(c.b); got != c.wantEqual {
			t.Errorf("Equal(%v, %v) = %v, want %v", c.a, c.b, got, c.wantEqual)
		}
		if got := c.a.Less(c.b); got != c.wantLessAB {
			t.Errorf("Less(%v, %v) = %v, want %v", c.a, c.b, got, c.wantLessAB)
		}
	}
}

func TestTupleLess(t *testing.T) {
	a := NewTuple([]TypedValue{NewInt(1), NewInt(2)})
	b := NewTuple([]TypedValue{NewInt(1), NewInt(3)})
	if !a.Less(b) {
		t.Fatal("expected a < b on second field")
	}
	if b.Less(a) {
		t.Fatal("b should not be less than a")
	}
	short := NewTuple([]TypedValue{NewInt(1)})
	if !short.Less(a) {
		t.Fatal("shorter tuple with equal prefix should be less")
	}
}

func TestCloneIndependence(t *testing.T) {
	orig := NewTuple([]TypedValue{NewBytes([]byte{1, 2, 3})})
	clone := orig.Clone()
	clone.Elems[0].raw[0] = 0xff
	if orig.Elems[0].raw[0] == 0xff {
		t.Fatal("clone shares backing storage with original")
	}
}

func TestNumFlatsAndLeafOps(t *testing.T) {
	tup := NewTuple([]TypedValue{NewInt(1), NewInt(2), NewInt(3)})
	if n := tup.NumFlats(); n != 3 {
		t.Fatalf("NumFlats() = %d, want 3", n)
	}
	other := NewTuple([]TypedValue{NewInt(10), NewInt(20), NewInt(30)})
	if !tup.LessAtPos(1, other) {
		t.Fatal("expected tup < other at pos 1")
	}
	sum := tup.Add(other)
	want := []int64{11, 22, 33}
	for i, w := range want {
		if sum.Elems[i].Int() != w {
			t.Fatalf("sum.Elems[%d] = %d, want %d", i, sum.Elems[i].Int(), w)
		}
	}
}

func TestAssignAtPos(t *testing.T) {
	dst := NewTuple([]TypedValue{NewInt(0), NewInt(0)})
	src := NewTuple([]TypedValue{NewInt(7), NewInt(8)})
	src.AssignAtPos(1, &dst)
	if dst.Elems[1].Int() != 8 {
		t.Fatalf("dst.Elems[1] = %d, want 8", dst.Elems[1].Int())
	}
	if dst.Elems[0].Int() != 0 {
		t.Fatalf("dst.Elems[0] unexpectedly modified: %d", dst.Elems[0].Int())
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	v := NewTuple([]TypedValue{NewInt(1), NewString("x")})
	d := v.Of()
	if d.Kind != Tuple || len(d.Elems) != 2 {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if d.Elems[0].Kind != Int || d.Elems[1].Kind != String {
		t.Fatalf("unexpected field kinds: %+v", d.Elems)
	}
}
