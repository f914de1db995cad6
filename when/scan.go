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

// candidateUse is one "a[q]" or "a[q:...]" occurrence of a quantifier
// found in the predicate.
type candidateUse struct {
	array *Expr // the 'a' sub-expression
	shape Shape
}

// countVarUses returns the number of EVar leaves named name anywhere
// in e.
func countVarUses(e *Expr, name string) int {
	if e == nil {
		return 0
	}
	n := 0
	if e.Kind == EVar && e.Name == name {
		n++
	}
	n += countVarUses(e.X, name)
	n += countVarUses(e.Y, name)
	n += countVarUses(e.Z, name)
	for _, a := range e.Args {
		n += countVarUses(a, name)
	}
	return n
}

// isVar reports whether e is a plain variable reference.
func isVar(e *Expr) bool { return e != nil && e.Kind == EVar }

// findCandidateUses walks e collecting every EIndex/ESlice node of the
// form "a[q]"/"a[q:hi]"/"a[lo:q]" where the index position is exactly
// the quantifier variable q, continuing to recurse into every child so
// uses of other quantifiers (or further uses of q inside a, which
// classify below rejects as too complex) are not missed.
func findCandidateUses(e *Expr, quant string) []*Expr {
	if e == nil {
		return nil
	}
	var out []*Expr
	switch e.Kind {
	case EIndex:
		if isVar(e.Y) && e.Y.Name == quant {
			out = append(out, e)
		}
	case ESlice:
		if (isVar(e.Y) && e.Y.Name == quant) || (isVar(e.Z) && e.Z.Name == quant) {
			out = append(out, e)
		}
	}
	out = append(out, findCandidateUses(e.X, quant)...)
	out = append(out, findCandidateUses(e.Y, quant)...)
	out = append(out, findCandidateUses(e.Z, quant)...)
	for _, a := range e.Args {
		out = append(out, findCandidateUses(a, quant)...)
	}
	return out
}

// isConjunctionOfDefs reports whether e is already built entirely out
// of `def(...)` calls combined with `&&`, in which case the lowering
// must not add a redundant def-guard around it (spec.md §4.6 step 5).
func isConjunctionOfDefs(e *Expr) bool {
	if e == nil {
		return false
	}
	switch {
	case e.Kind == ECall && e.Name == "def":
		return true
	case e.Kind == EBinOp && e.Name == "&&":
		return isConjunctionOfDefs(e.X) && isConjunctionOfDefs(e.Y)
	default:
		return false
	}
}

// classify validates and shape-tags every candidate use of quant in
// cond. It fails with ErrNoConstraint if any use's array operand is
// not a plain variable reference (spec.md §4.6 step 1 restricts
// candidate uses to exactly that shape), or if quant is never used.
func classify(env Env, cond *Expr, quant string) ([]candidateUse, error) {
	raw := findCandidateUses(cond, quant)
	if len(raw) == 0 {
		return nil, ErrNoConstraint
	}
	total := countVarUses(cond, quant)
	if total != len(raw) {
		return nil, ErrTooComplex
	}
	out := make([]candidateUse, 0, len(raw))
	for _, use := range raw {
		if countVarUses(use.X, quant) > 0 {
			return nil, ErrTooComplex
		}
		if !isVar(use.X) {
			return nil, ErrNoConstraint
		}
		shape, ok := env.ShapeOf(use.X.Name)
		if !ok {
			return nil, ErrNoConstraint
		}
		out = append(out, candidateUse{array: use.X, shape: shape})
	}
	return out, nil
}
