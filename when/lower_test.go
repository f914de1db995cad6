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

package when

import (
	"errors"
	"testing"
)

// walk counts how many Stmt nodes of each kind a rewritten tree
// contains, which is enough to assert gross shape (a for loop was
// generated, a break exists, etc.) without needing a full code
// generator to execute the result.
type shapeCounts struct {
	fors, whiles, breaks, ifs, assigns int
}

func countShape(s *Stmt, c *shapeCounts) {
	if s == nil {
		return
	}
	switch s.Kind {
	case SFor:
		c.fors++
		countShape(s.Init, c)
		countShape(s.Post, c)
		countShape(s.Body, c)
	case SWhileTrue:
		c.whiles++
		countShape(s.Body, c)
	case SBreak:
		c.breaks++
	case SIf:
		c.ifs++
		countShape(s.Then, c)
		countShape(s.Else, c)
	case SAssign:
		c.assigns++
	case SBlock:
		for _, st := range s.List {
			countShape(st, c)
		}
	}
}

func TestLowerZeroQuantifiers(t *testing.T) {
	body := Opaque("body")
	cond := Call("def", Var("x"))
	out, err := Lower(nil, WhenStmt{Cond: cond, Body: body})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if out.Kind != SIf || out.Then != body || out.Cond != cond {
		t.Fatalf("zero-quantifier when should lower to a plain if, got %+v", out)
	}
}

func TestLowerSingleSomeOverArray(t *testing.T) {
	env := MapEnv{"a": ShapeArray}
	cond := BinOp("==", Index(Var("a"), Var("i")), Var("target"))
	body := Opaque("found")
	out, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Type: "int", Kind: Some}},
		Cond:        cond,
		Body:        body,
	})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var c shapeCounts
	countShape(out, &c)
	if c.fors != 1 {
		t.Fatalf("expected exactly one for loop, got %d", c.fors)
	}
	if c.breaks != 1 {
		t.Fatalf("'some' should break once the predicate matches, got %d breaks", c.breaks)
	}
	if c.whiles != 0 {
		t.Fatalf("'some' should not need a while(true) wrapper, got %d", c.whiles)
	}
}

func TestLowerSingleAllWrapsWhileTrue(t *testing.T) {
	env := MapEnv{"a": ShapeArray}
	cond := BinOp(">", Index(Var("a"), Var("i")), Lit(int64(0)))
	out, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Type: "int", Kind: All}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var c shapeCounts
	countShape(out, &c)
	if c.whiles != 1 {
		t.Fatalf("'all' should wrap a while(true), got %d", c.whiles)
	}
	if c.fors != 1 {
		t.Fatalf("expected one inner for loop, got %d", c.fors)
	}
}

func TestLowerNoConstraintFails(t *testing.T) {
	env := MapEnv{}
	cond := BinOp("==", Var("i"), Lit(int64(0))) // i never indexes a container
	_, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: Some}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if !errors.Is(err, ErrNoConstraint) {
		t.Fatalf("expected ErrNoConstraint, got %v", err)
	}
}

func TestLowerTooComplexRejected(t *testing.T) {
	env := MapEnv{"a": ShapeArray}
	cond := Index(Index(Var("a"), Var("i")), Var("i")) // a[i][i]
	_, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: Some}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if !errors.Is(err, ErrTooComplex) {
		t.Fatalf("expected ErrTooComplex for a[i][i], got %v", err)
	}
}

func TestLowerMixedArrayMapRejected(t *testing.T) {
	env := MapEnv{"a": ShapeArray, "m": ShapeMap}
	cond := BinOp("&&",
		Index(Var("a"), Var("i")),
		Index(Var("m"), Var("i")),
	)
	_, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: Each}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("expected ErrAnalysis for mixed array/map use, got %v", err)
	}
}

func TestLowerMultipleSameKindEachNestsDirectly(t *testing.T) {
	env := MapEnv{"a": ShapeArray, "b": ShapeArray}
	cond := BinOp("==", Index(Var("a"), Var("i")), Index(Var("b"), Var("j")))
	out, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: Each}, {Name: "j", Kind: Each}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var c shapeCounts
	countShape(out, &c)
	if c.fors != 2 {
		t.Fatalf("expected two nested for loops, got %d", c.fors)
	}
	if c.breaks != 0 {
		t.Fatalf("'each'/'each' should never need a break, got %d", c.breaks)
	}
}

func TestLowerMixedKindSomeThenAllInnermostSucceeds(t *testing.T) {
	env := MapEnv{"a": ShapeArray, "b": ShapeArray}
	cond := BinOp("==", Index(Var("a"), Var("i")), Index(Var("b"), Var("j")))
	out, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: Some}, {Name: "j", Kind: All}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var c shapeCounts
	countShape(out, &c)
	if c.fors != 2 {
		t.Fatalf("expected two nested for loops, got %d", c.fors)
	}
}

func TestLowerMixedKindNonInnermostAllUnimplemented(t *testing.T) {
	env := MapEnv{"a": ShapeArray, "b": ShapeArray}
	cond := BinOp("==", Index(Var("a"), Var("i")), Index(Var("b"), Var("j")))
	_, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: All}, {Name: "j", Kind: Some}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented for a non-innermost 'all', got %v", err)
	}
}

func TestLowerSkipsDefGuardWhenAlreadyConjunctionOfDefs(t *testing.T) {
	env := MapEnv{"a": ShapeArray}
	cond := Call("def", Index(Var("a"), Var("i")))
	out, err := Lower(env, WhenStmt{
		Quantifiers: []Quantifier{{Name: "i", Kind: Each}},
		Cond:        cond,
		Body:        Opaque("body"),
	})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var c shapeCounts
	countShape(out, &c)
	// The $packed range preamble, the loop's init and post, and the
	// quantifier binding: four assigns, with no extra guard temp.
	if c.assigns != 4 {
		t.Fatalf("expected exactly four assigns (range preamble, loop init/post, quantifier binding) when cond is already def-guarded, got %d", c.assigns)
	}
}

func TestLowerMapAloneUsesCombineRange(t *testing.T) {
	env := MapEnv{"m": ShapeMap}
	cond := Call("def", Index(Var("m"), Var("k")))
	plan, err := planFor(env, cond, Quantifier{Name: "k", Kind: Some})
	if err != nil {
		t.Fatalf("planFor: %v", err)
	}
	if plan.loop == nil {
		t.Fatalf("expected a counted loop for a single map variable")
	}
	if plan.bindExpr.Kind != ECall || plan.bindExpr.Name != "$getkeybyindex" {
		t.Fatalf("a lone map quantifier should bind via $getkeybyindex, got %+v", plan.bindExpr)
	}
}

func TestLowerMultipleMapsUseCombineKeys(t *testing.T) {
	env := MapEnv{"m1": ShapeMap, "m2": ShapeMap}
	cond := BinOp("&&", Index(Var("m1"), Var("k")), Index(Var("m2"), Var("k")))
	plan, err := planFor(env, cond, Quantifier{Name: "k", Kind: Each})
	if err != nil {
		t.Fatalf("planFor: %v", err)
	}
	if len(plan.preamble) != 1 || plan.preamble[0].Value.Name != "$combinekeys" {
		t.Fatalf("expected a $combinekeys preamble call, got %+v", plan.preamble)
	}
}
