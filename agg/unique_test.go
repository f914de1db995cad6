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

func TestUniqueAddWeightedUnsupported(t *testing.T) {
	w := mustWriter(t, Type{Kind: "unique", Param: 1024, Element: value.Descriptor{Kind: value.String}})
	k := w.CreateEntry()
	if _, err := k.AddWeighted(encString("x"), value.NewInt(1)); err == nil {
		t.Fatal("expected AddWeighted on a unique kernel to be rejected")
	}
}

// TestUniqueEstimateIsExactUnderCapacity exercises N < maxElems: every
// distinct hash fits in the sample, so the estimate must equal N
// exactly.
func TestUniqueEstimateIsExactUnderCapacity(t *testing.T) {
	w := mustWriter(t, Type{Kind: "unique", Param: 1024, Element: value.Descriptor{Kind: value.String}})
	k := w.CreateEntry()

	const n = 200
	for i := 0; i < n; i++ {
		if _, err := k.Add(encString(fmt.Sprintf("token-%d", i))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	for i := 0; i < n; i++ { // repeat every token once: must not change the distinct count
		if _, err := k.Add(encString(fmt.Sprintf("token-%d", i))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if k.TotElems() != 2*n {
		t.Fatalf("TotElems() = %d, want %d", k.TotElems(), 2*n)
	}

	uk := k.(*uniqueKernel)
	if got := uk.estimate(); got != n {
		t.Fatalf("estimate() = %d, want %d (exact under capacity)", got, n)
	}
}

// TestUniqueEstimateIsWithinToleranceOverCapacity checks the
// k-minimum-values estimator stays within a generous factor of the
// true distinct count once the sample has filled (n == param).
func TestUniqueEstimateIsWithinToleranceOverCapacity(t *testing.T) {
	const param = 64
	w := mustWriter(t, Type{Kind: "unique", Param: param, Element: value.Descriptor{Kind: value.String}})
	k := w.CreateEntry().(*uniqueKernel)

	const trueDistinct = 20000
	for i := 0; i < trueDistinct; i++ {
		if _, err := k.Add(encString(fmt.Sprintf("item-%d", i))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if len(k.hashes) != param {
		t.Fatalf("sample should have filled to capacity %d, got %d", param, len(k.hashes))
	}

	got := k.estimate()
	if got <= 0 {
		t.Fatalf("estimate() = %d, want a positive estimate", got)
	}
	// KMV variance is high at this sample size; just check we are in
	// the right order of magnitude rather than asserting tight bounds.
	if got < trueDistinct/10 || got > trueDistinct*10 {
		t.Fatalf("estimate() = %d, want within an order of magnitude of %d", got, trueDistinct)
	}
}

func TestUniqueMergeCombinesSamples(t *testing.T) {
	w := mustWriter(t, Type{Kind: "unique", Param: 1024, Element: value.Descriptor{Kind: value.String}})

	a := w.CreateEntry()
	for i := 0; i < 10; i++ {
		if _, err := a.Add(encString(fmt.Sprintf("a-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	b := w.CreateEntry()
	for i := 0; i < 10; i++ {
		if _, err := b.Add(encString(fmt.Sprintf("b-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	if status := a.Merge(b.Flush()); status != MergeOk {
		t.Fatalf("Merge() = %v, want MergeOk", status)
	}
	if a.TotElems() != 20 {
		t.Fatalf("TotElems() after merge = %d, want 20", a.TotElems())
	}
	if got := a.(*uniqueKernel).estimate(); got != 20 {
		t.Fatalf("estimate() after merging two disjoint 10-element samples = %d, want 20", got)
	}
}
