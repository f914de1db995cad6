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

package sketch

import (
	"testing"

	"github.com/google/szl/value"
)

func TestDimsProducesValidShape(t *testing.T) {
	for _, total := range []int{100, 1000, 100000, 1} {
		nTabs, tabSize := Dims(total)
		if nTabs < MinTabs || nTabs > MaxTabs || nTabs&1 == 0 {
			t.Fatalf("Dims(%d) nTabs = %d, invalid", total, nTabs)
		}
		if tabSize <= 0 || tabSize&(tabSize-1) != 0 {
			t.Fatalf("Dims(%d) tabSize = %d, not a power of two", total, tabSize)
		}
	}
}

func TestAddSubEstimateHeavyHitter(t *testing.T) {
	nTabs, tabSize := Dims(10000)
	s := New(nTabs, tabSize, value.NewInt(0))

	// a single heavy key added many times should be estimated close to
	// its true total weight despite sketch collisions.
	heavy := s.ComputeIndex("heavy-key")
	for i := 0; i < 1000; i++ {
		s.AddSub(heavy, value.NewInt(1), true)
	}
	// some noise from unrelated keys.
	for i := 0; i < 200; i++ {
		idx := s.ComputeIndex(string(rune('a' + i%26)))
		s.AddSub(idx, value.NewInt(1), true)
	}

	est := s.Estimate(heavy)
	got := est.Int()
	if got < 900 || got > 1100 {
		t.Fatalf("Estimate() = %d, want close to 1000", got)
	}
}

func TestAddSketchShapeMismatch(t *testing.T) {
	a := New(15, 4, value.NewInt(0))
	b := New(15, 8, value.NewInt(0))
	if err := a.AddSketch(b); err != ErrShapeMismatch {
		t.Fatalf("AddSketch with mismatched tabSize: got %v, want ErrShapeMismatch", err)
	}
}

func TestAddSketchMerge(t *testing.T) {
	nTabs, tabSize := Dims(1000)
	a := New(nTabs, tabSize, value.NewInt(0))
	b := New(nTabs, tabSize, value.NewInt(0))

	idx := a.ComputeIndex("k")
	a.AddSub(idx, value.NewInt(5), true)
	b.AddSub(b.ComputeIndex("k"), value.NewInt(7), true)

	if err := a.AddSketch(b); err != nil {
		t.Fatal(err)
	}
	est := a.Estimate(a.ComputeIndex("k"))
	if est.Int() != 12 {
		t.Fatalf("Estimate() after merge = %d, want 12", est.Int())
	}
}

func TestStdDeviationZeroWhenEmpty(t *testing.T) {
	s := New(15, 4, value.NewInt(0))
	devs := s.StdDeviation()
	for _, d := range devs {
		if d != 0 {
			t.Fatalf("expected zero deviation on empty sketch, got %v", d)
		}
	}
}
