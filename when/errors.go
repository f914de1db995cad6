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

import "errors"

// The when analyser produces a single-line error per construct it
// cannot handle (spec.md §7); these are the sentinels Lower wraps with
// the offending quantifier's name via fmt.Errorf("%w: ...").
var (
	// ErrNoConstraint is returned when a quantifier's predicate use is
	// not a simple "a[q]"/"a[q:...]" expression with a itself a plain
	// variable reference, so no range can be derived for it.
	ErrNoConstraint = errors.New("when: quantifier must be constrained by a simple index expression")
	// ErrTooComplex is returned when a quantifier appears more than
	// once within what the scan treats as a single sub-expression
	// (e.g. a[q][q]).
	ErrTooComplex = errors.New("when: quantifier used too many times in a single expression")
	// ErrAnalysis is returned when a single quantifier's uses mix
	// array- and map-shaped containers, which have no common iteration
	// strategy.
	ErrAnalysis = errors.New("when: can't handle mixed array and map access in 'when' analysis")
	// ErrUnimplemented is returned for mixed-kind quantifier
	// combinations this lowering does not attempt: specifically an
	// `all` quantifier that is not innermost among mixed kinds. The
	// spec records this as a known gap in the original implementation,
	// not a case to invent semantics for.
	ErrUnimplemented = errors.New("when: mixed-kind 'when' with a non-innermost 'all' is unimplemented")
)
