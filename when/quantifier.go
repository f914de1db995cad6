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

// Kind is one of the three quantifier kinds a `when` clause may bind.
type Kind int

const (
	// Some requires the predicate to hold for at least one binding;
	// the body runs once, for the first binding found.
	Some Kind = iota
	// Each runs the body once per binding for which the predicate holds.
	Each
	// All requires the predicate to hold for every binding; the body
	// runs once, only if no binding violates the predicate.
	All
)

func (k Kind) String() string {
	switch k {
	case Some:
		return "some"
	case Each:
		return "each"
	case All:
		return "all"
	default:
		return "invalid"
	}
}

// Quantifier is one `name: kind type` binder of a `when` clause.
type Quantifier struct {
	Name string
	Type string // declared element type name; informational only, not interpreted by Lower
	Kind Kind
}

// Shape classifies the container a quantifier ranges over.
type Shape int

const (
	ShapeArray Shape = iota
	ShapeMap
)

// Env answers shape questions about the variables a `when` predicate
// references, standing in for the front-end's symbol table (out of
// scope per spec.md §1).
type Env interface {
	// ShapeOf reports whether the variable named name is array- or
	// map-typed, and whether name is known at all.
	ShapeOf(name string) (Shape, bool)
}

// MapEnv is a trivial Env backed by a name->Shape table, sufficient
// for tests and small embeddings.
type MapEnv map[string]Shape

func (e MapEnv) ShapeOf(name string) (Shape, bool) {
	s, ok := e[name]
	return s, ok
}

// WhenStmt is the declarative statement Lower rewrites: `when (q1,
// ..., qk; cond) body`. Body is carried through opaque: the lowering
// never inspects it, only decides where copies of it are spliced into
// the rewritten loop tree.
type WhenStmt struct {
	Quantifiers []Quantifier
	Cond        *Expr
	Body        *Stmt
}
