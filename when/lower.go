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

// Lower rewrites w into an equivalent tree of explicit bounded loops
// (spec.md §4.6). Zero quantifiers lower to a plain if; one quantifier
// takes the dedicated single-quantifier path; two or more follow the
// same-kind/mixed-kind nesting rules.
func Lower(env Env, w WhenStmt) (*Stmt, error) {
	switch len(w.Quantifiers) {
	case 0:
		return If(w.Cond, w.Body, nil), nil
	case 1:
		return lowerSingle(env, w.Quantifiers[0], w.Cond, w.Body)
	default:
		return lowerMulti(env, w.Quantifiers, w.Cond, w.Body)
	}
}

// protectCond implements spec.md §4.6 step 5: guard cond with
// `def(tmp) && tmp` where tmp holds cond's value, evaluated once, so
// an out-of-range quantifier use inside cond can never propagate an
// Undef into the if-test. Skipped when cond is already a conjunction
// of def() calls.
func protectCond(cond *Expr, tempName string) (*Expr, *Stmt) {
	if isConjunctionOfDefs(cond) {
		return cond, nil
	}
	assign := Assign(tempName, cond, true)
	protected := BinOp("&&", Call("def", Var(tempName)), Var(tempName))
	return protected, assign
}

func lowerSingle(env Env, q Quantifier, cond *Expr, body *Stmt) (*Stmt, error) {
	plan, err := planFor(env, cond, q)
	if err != nil {
		return nil, err
	}
	protectedCond, guard := protectCond(cond, "$cond_"+q.Name)

	bindQ := Assign(q.Name, plan.bindExpr, true)
	inner := []*Stmt{bindQ}
	if guard != nil {
		inner = append(inner, guard)
	}

	switch q.Kind {
	case Some:
		inner = append(inner, If(protectedCond, Block(body, Break()), nil))
		plan.loop.Body = Block(inner...)
		return Block(append(plan.preamble, plan.loop)...), nil
	case Each:
		inner = append(inner, If(protectedCond, body, nil))
		plan.loop.Body = Block(inner...)
		return Block(append(plan.preamble, plan.loop)...), nil
	default: // All
		w := While()
		inner = append(inner, If(protectedCond, Block(), BreakTo(w)))
		plan.loop.Body = Block(inner...)
		w.Body = Block(plan.loop, body, BreakTo(w))
		return Block(append(plan.preamble, w)...), nil
	}
}

func lowerMulti(env Env, qs []Quantifier, cond *Expr, body *Stmt) (*Stmt, error) {
	plans := make([]*rangePlan, len(qs))
	var preamble []*Stmt
	for i, q := range qs {
		p, err := planFor(env, cond, q)
		if err != nil {
			return nil, err
		}
		plans[i] = p
		preamble = append(preamble, p.preamble...)
	}

	sameKind := true
	for _, q := range qs[1:] {
		if q.Kind != qs[0].Kind {
			sameKind = false
			break
		}
	}
	protectedCond, guard := protectCond(cond, "$cond_multi")

	if sameKind {
		return lowerNestedSameKind(qs, plans, protectedCond, guard, body, preamble)
	}
	return lowerMixedKind(qs, plans, protectedCond, guard, body, preamble)
}

// lowerNestedSameKind implements spec.md §4.6 step 4's simple case:
// "if all have the same kind it generates nested fors directly."
func lowerNestedSameKind(qs []Quantifier, plans []*rangePlan, cond *Expr, guard *Stmt, body *Stmt, preamble []*Stmt) (*Stmt, error) {
	n := len(qs)
	kind := qs[0].Kind

	var innermost []*Stmt
	innermost = append(innermost, Assign(qs[n-1].Name, plans[n-1].bindExpr, true))
	if guard != nil {
		innermost = append(innermost, guard)
	}

	var whileLoop *Stmt // only used for All
	switch kind {
	case Each:
		innermost = append(innermost, If(cond, body, nil))
	case Some:
		innermost = append(innermost, If(cond, Block(body, BreakTo(plans[0].loop)), nil))
	default: // All
		whileLoop = While()
		innermost = append(innermost, If(cond, Block(), BreakTo(whileLoop)))
	}
	plans[n-1].loop.Body = Block(innermost...)
	cur := plans[n-1].loop

	for i := n - 2; i >= 0; i-- {
		bindStmt := Assign(qs[i].Name, plans[i].bindExpr, true)
		plans[i].loop.Body = Block(bindStmt, cur)
		cur = plans[i].loop
	}

	if kind == All {
		whileLoop.Body = Block(cur, body, BreakTo(whileLoop))
		cur = whileLoop
	}
	return Block(append(preamble, cur)...), nil
}

// lowerMixedKind implements spec.md §4.6 step 4's general case: a
// shared boolean flag coordinates early termination across levels of
// differing kind. An `all` quantifier is only supported innermost;
// anything else is the documented open gap (spec.md §9).
func lowerMixedKind(qs []Quantifier, plans []*rangePlan, cond *Expr, guard *Stmt, body *Stmt, preamble []*Stmt) (*Stmt, error) {
	n := len(qs)
	allCount := 0
	for i, q := range qs {
		if q.Kind != All {
			continue
		}
		allCount++
		if i != n-1 || allCount > 1 {
			return nil, ErrUnimplemented
		}
	}

	const succeeded = "$succeeded"
	preamble = append(preamble, Assign(succeeded, Lit(false), true))

	innermost := qs[n-1]
	var innerStmts []*Stmt
	innerStmts = append(innerStmts, Assign(innermost.Name, plans[n-1].bindExpr, true))
	if guard != nil {
		innerStmts = append(innerStmts, guard)
	}

	switch innermost.Kind {
	case Some:
		innerStmts = append(innerStmts, If(cond, Block(body, Assign(succeeded, Lit(true), false), Break()), nil))
	case Each:
		innerStmts = append(innerStmts, If(cond, body, nil))
	default: // All
		innerStmts = append(innerStmts, If(cond, Block(), Block(Assign(succeeded, Lit(false), false), Break())))
	}
	plans[n-1].loop.Body = Block(innerStmts...)
	cur := plans[n-1].loop

	if innermost.Kind == All {
		// Re-armed every time an outer binding enters this level, so
		// each outer binding gets its own independent "did every inner
		// binding satisfy cond" verdict, mirroring the single-quantifier
		// `all` skeleton's while(true)-scoped $succeeded per pass.
		rearm := Assign(succeeded, Lit(true), false)
		cur = Block(rearm, cur, If(Var(succeeded), Block(body), nil))
	}

	for i := n - 2; i >= 0; i-- {
		bindStmt := Assign(qs[i].Name, plans[i].bindExpr, true)
		switch qs[i].Kind {
		case Each:
			plans[i].loop.Body = Block(bindStmt, cur)
		case Some:
			plans[i].loop.Body = Block(bindStmt, cur, If(Var(succeeded), Break(), nil))
		default: // All: excluded above for any non-innermost position
			return nil, ErrUnimplemented
		}
		cur = plans[i].loop
	}

	return Block(append(preamble, cur)...), nil
}
