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

import "fmt"

// rangePlan is the outcome of CombineRange for one quantifier: the
// bounded counted-loop shell it should run inside, plus the
// expression that computes the quantifier's bound value from the
// loop's index variable on each iteration.
type rangePlan struct {
	preamble []*Stmt // statements to run once, before the loop (e.g. $combinerange/$combinekeys calls)
	loop     *Stmt   // an SFor shell (Body unset)
	bindExpr *Expr   // the value to assign to the quantifier's name each iteration
}

// uniqueArrayVars returns the distinct variable names referenced by
// uses, in first-seen order.
func uniqueArrayVars(uses []candidateUse) []*Expr {
	seen := map[string]bool{}
	var out []*Expr
	for _, u := range uses {
		if seen[u.array.Name] {
			continue
		}
		seen[u.array.Name] = true
		out = append(out, u.array)
	}
	return out
}

// CombineRange implements spec.md §4.6 step 2: choose how quant's
// domain is iterated, given its classified predicate uses.
func CombineRange(quant string, uses []candidateUse) (*rangePlan, error) {
	hasArray, hasMap := false, false
	for _, u := range uses {
		if u.shape == ShapeArray {
			hasArray = true
		} else {
			hasMap = true
		}
	}
	if hasArray && hasMap {
		return nil, ErrAnalysis
	}

	vars := uniqueArrayVars(uses)
	indexVar := "$index_" + quant

	if hasArray || len(vars) == 1 {
		// All uses on arrays, or a single map variable used alone:
		// $combinerange(n, min1, max1, ...) returns (max<<32 | min),
		// the intersection of every use's index range. Every use here
		// ranges over the whole container (spec.md only special-cases
		// explicit a[lo:hi] bounds; absent those, the bound is [0,
		// len(a))), so min is always 0 and max is len(a).
		args := []*Expr{Lit(int64(len(vars)))}
		for _, v := range vars {
			args = append(args, Lit(int64(0)), Call("len", v))
		}
		packed := "$packed_" + quant
		pre := []*Stmt{
			Assign(packed, Call("$combinerange", args...), true),
		}
		minExpr := BinOp("&", Var(packed), Lit(uint64(0xffffffff)))
		maxExpr := BinOp(">>", Var(packed), Lit(uint(32)))
		loop := For(
			Assign(indexVar, minExpr, true),
			BinOp("<", Var(indexVar), maxExpr),
			Assign(indexVar, BinOp("+", Var(indexVar), Lit(int64(1))), false),
		)
		var bind *Expr
		if hasMap {
			// a single map variable used alone: the range is over
			// position, the quantifier's value is the key at that
			// position.
			bind = Call("$getkeybyindex", vars[0], Var(indexVar))
		} else {
			bind = Var(indexVar)
		}
		return &rangePlan{preamble: pre, loop: loop, bindExpr: bind}, nil
	}

	// Multiple map variables, or a complex map expression:
	// $combinekeys(n, m1, ...) returns the union of their key arrays;
	// iterate over that array directly.
	args := []*Expr{Lit(int64(len(vars)))}
	args = append(args, vars...)
	keys := "$keys_" + quant
	pre := []*Stmt{
		Assign(keys, Call("$combinekeys", args...), true),
	}
	loop := For(
		Assign(indexVar, Lit(int64(0)), true),
		BinOp("<", Var(indexVar), Call("len", Var(keys))),
		Assign(indexVar, BinOp("+", Var(indexVar), Lit(int64(1))), false),
	)
	bind := Index(Var(keys), Var(indexVar))
	return &rangePlan{preamble: pre, loop: loop, bindExpr: bind}, nil
}

// planFor runs classify+CombineRange for one quantifier, wrapping any
// failure with the quantifier's name the way spec.md §7's single-line
// diagnostics ("quantifier %N must be constrained...") do.
func planFor(env Env, cond *Expr, q Quantifier) (*rangePlan, error) {
	uses, err := classify(env, cond, q.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: quantifier %q", err, q.Name)
	}
	plan, err := CombineRange(q.Name, uses)
	if err != nil {
		return nil, fmt.Errorf("%w: quantifier %q", err, q.Name)
	}
	return plan, nil
}
