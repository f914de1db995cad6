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

// A Weight is a TypedValue guaranteed to be numeric: it is used as the
// type alias for weight-carrying aggregators (maximum, minimum, top,
// sample, distinctsample) and by sketch.CountSketch's cell storage.
type Weight = TypedValue

// IsNumeric reports whether v is an int/uint/float scalar or a tuple
// all of whose leaves are numeric scalars.
func (v TypedValue) IsNumeric() bool {
	switch v.Kind {
	case Int, Uint, Float:
		return true
	case Tuple:
		for _, e := range v.Elems {
			if !e.IsNumeric() {
				return false
			}
		}
		return len(v.Elems) > 0
	default:
		return false
	}
}

// NumFlats returns the number of numeric leaf slots in v (nflats in
// the original terminology): 1 for a scalar, the sum over fields for
// a tuple.
func (v TypedValue) NumFlats() int {
	if v.Kind != Tuple {
		return 1
	}
	n := 0
	for _, e := range v.Elems {
		n += e.NumFlats()
	}
	return n
}

// IsOrdered reports whether v's kind supports Less, which every kind
// does except Map — used by the maximum/minimum/top/sample kernels to
// validate a table's weight type at registration time.
func (v TypedValue) IsOrdered() bool {
	return v.Kind != Invalid && v.Kind != Map
}

// Zero returns the zero value matching descriptor d's shape.
func Zero(d Descriptor) TypedValue {
	switch d.Kind {
	case Bool:
		return NewBool(false)
	case Int:
		return NewInt(0)
	case Uint:
		return NewUint(0)
	case Float:
		return NewFloat(0)
	case Fingerprint:
		return NewFingerprint(0)
	case Time:
		return NewTime(0)
	case Bytes:
		return NewBytes(nil)
	case String:
		return NewString("")
	case Tuple:
		elems := make([]TypedValue, len(d.Elems))
		for i, e := range d.Elems {
			elems[i] = Zero(e)
		}
		return NewTuple(elems)
	case Array:
		return NewArray(nil)
	case Map:
		return NewMap(nil)
	default:
		return TypedValue{}
	}
}

// IsNumericDescriptor reports whether a value shaped like d would report
// true from IsNumeric, without needing an instance.
func IsNumericDescriptor(d Descriptor) bool {
	switch d.Kind {
	case Int, Uint, Float:
		return true
	case Tuple:
		if len(d.Elems) == 0 {
			return false
		}
		for _, e := range d.Elems {
			if !IsNumericDescriptor(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AssignZero returns the zero value with the same shape (kind and, for
// tuples, field count/kinds) as v.
func (v TypedValue) AssignZero() TypedValue {
	switch v.Kind {
	case Int:
		return NewInt(0)
	case Uint:
		return NewUint(0)
	case Float:
		return NewFloat(0)
	case Tuple:
		elems := make([]TypedValue, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = e.AssignZero()
		}
		return NewTuple(elems)
	default:
		return v
	}
}

// AddTo adds v into *dst component-wise. v and *dst must have the same
// numeric shape.
func (v TypedValue) AddTo(dst *TypedValue) {
	switch v.Kind {
	case Int:
		dst.i += v.i
	case Uint:
		dst.u += v.u
	case Float:
		dst.f += v.f
	case Tuple:
		for i := range v.Elems {
			v.Elems[i].AddTo(&dst.Elems[i])
		}
	}
}

// SubFrom subtracts v from *dst component-wise (dst -= v).
func (v TypedValue) SubFrom(dst *TypedValue) {
	switch v.Kind {
	case Int:
		dst.i -= v.i
	case Uint:
		dst.u -= v.u
	case Float:
		dst.f -= v.f
	case Tuple:
		for i := range v.Elems {
			v.Elems[i].SubFrom(&dst.Elems[i])
		}
	}
}

// Negate returns the component-wise negation of v.
func (v TypedValue) Negate() TypedValue {
	switch v.Kind {
	case Int:
		return NewInt(-v.i)
	case Uint:
		return NewUint(-v.u)
	case Float:
		return NewFloat(-v.f)
	case Tuple:
		elems := make([]TypedValue, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = e.Negate()
		}
		return NewTuple(elems)
	default:
		return v
	}
}

// Add returns a new value holding v + o. v and o must have the same
// numeric shape.
func (v TypedValue) Add(o TypedValue) TypedValue {
	dst := v.Clone()
	o.AddTo(&dst)
	return dst
}

// leafAt returns a pointer to v's leaf at flattened position pos,
// walking the tuple structure in stable left-to-right order and
// decrementing pos past each field it skips. A non-tuple v is its own
// single leaf; a pos past the last leaf yields nil.
func (v *TypedValue) leafAt(pos int) *TypedValue {
	if v.Kind != Tuple {
		return v
	}
	for i := range v.Elems {
		n := v.Elems[i].NumFlats()
		if pos < n {
			return v.Elems[i].leafAt(pos)
		}
		pos -= n
	}
	return nil
}

// LessAtPos reports whether v's leaf at flat position pos is less than
// o's leaf at the same position. Used by the sketch median estimator's
// per-leaf nth_element, and by positional merges of tuple weights.
func (v TypedValue) LessAtPos(pos int, o TypedValue) bool {
	lv := (&v).leafAt(pos)
	lo := (&o).leafAt(pos)
	return lv.Less(*lo)
}

// AssignAtPos copies v's leaf at flat position pos into dst's leaf at
// the same position. dst must already have a matching shape.
func (v TypedValue) AssignAtPos(pos int, dst *TypedValue) {
	lv := (&v).leafAt(pos)
	ld := dst.leafAt(pos)
	*ld = *lv
}

// ToFloat appends the float64 value of every numeric leaf of v, in
// flattened order, to out and returns the extended slice. Used only
// for display purposes (e.g. CountSketch.StdDeviation).
func (v TypedValue) ToFloat(out []float64) []float64 {
	switch v.Kind {
	case Int:
		return append(out, float64(v.i))
	case Uint:
		return append(out, float64(v.u))
	case Float:
		return append(out, v.f)
	case Tuple:
		for _, e := range v.Elems {
			out = e.ToFloat(out)
		}
		return out
	default:
		return out
	}
}
