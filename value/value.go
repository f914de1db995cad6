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

// Package value implements the tagged value model shared by every
// aggregator kernel: a TypedValue is a tagged sum over the scalar and
// composite kinds a szl program can emit, together with the positional
// (per-leaf) operations the sketch and heap machinery need.
package value

import "fmt"

// Kind identifies the tag of a TypedValue.
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Int
	Uint
	Float
	Fingerprint
	Time
	Bytes
	String
	Array
	Tuple
	Map
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case Fingerprint:
		return "fingerprint"
	case Time:
		return "time"
	case Bytes:
		return "bytes"
	case String:
		return "string"
	case Array:
		return "array"
	case Tuple:
		return "tuple"
	case Map:
		return "map"
	default:
		return "invalid"
	}
}

// Pair is one key/value entry of a Map-kind TypedValue.
type Pair struct {
	Key, Value TypedValue
}

// TypedValue is a tagged sum of scalar and composite values. Composite
// values own their children: copying a TypedValue that holds an Array,
// Tuple or Map shares the backing slice, so callers that need an
// independent copy must call Clone.
type TypedValue struct {
	Kind Kind

	b bool
	i int64
	u uint64
	f float64

	// Bytes holds the raw payload for Bytes and String (String length
	// is measured in encoded bytes, not code points).
	raw []byte

	// Elems holds children for Array and Tuple.
	Elems []TypedValue

	// Pairs holds entries for Map.
	Pairs []Pair
}

// Descriptor describes the shape of a TypedValue without its data. It
// is the minimum information the decoder needs to know how many
// elements a Tuple or Array carries and what kind each leaf is,
// since the canonical encoding carries no embedded schema.
type Descriptor struct {
	Kind  Kind
	Elems []Descriptor // Tuple: per-field descriptor. Array/Map: single element descriptor at Elems[0] (Map: key at [0], value at [1]).
}

// Of returns the descriptor matching v's current shape.
func (v TypedValue) Of() Descriptor {
	d := Descriptor{Kind: v.Kind}
	switch v.Kind {
	case Tuple:
		d.Elems = make([]Descriptor, len(v.Elems))
		for i, e := range v.Elems {
			d.Elems[i] = e.Of()
		}
	case Array:
		if len(v.Elems) > 0 {
			d.Elems = []Descriptor{v.Elems[0].Of()}
		}
	case Map:
		if len(v.Pairs) > 0 {
			d.Elems = []Descriptor{v.Pairs[0].Key.Of(), v.Pairs[0].Value.Of()}
		}
	}
	return d
}

func NewBool(b bool) TypedValue { return TypedValue{Kind: Bool, b: b} }
func NewInt(i int64) TypedValue { return TypedValue{Kind: Int, i: i} }
func NewUint(u uint64) TypedValue { return TypedValue{Kind: Uint, u: u} }
func NewFloat(f float64) TypedValue { return TypedValue{Kind: Float, f: f} }
func NewFingerprint(fp uint64) TypedValue { return TypedValue{Kind: Fingerprint, u: fp} }
func NewTime(t uint64) TypedValue { return TypedValue{Kind: Time, u: t} }

func NewBytes(b []byte) TypedValue {
	return TypedValue{Kind: Bytes, raw: append([]byte(nil), b...)}
}

func NewString(s string) TypedValue {
	return TypedValue{Kind: String, raw: []byte(s)}
}

func NewArray(elems []TypedValue) TypedValue {
	return TypedValue{Kind: Array, Elems: elems}
}

func NewTuple(elems []TypedValue) TypedValue {
	return TypedValue{Kind: Tuple, Elems: elems}
}

func NewMap(pairs []Pair) TypedValue {
	return TypedValue{Kind: Map, Pairs: pairs}
}

func (v TypedValue) Bool() bool    { return v.b }
func (v TypedValue) Int() int64    { return v.i }
func (v TypedValue) Uint() uint64  { return v.u }
func (v TypedValue) Float() float64 { return v.f }
func (v TypedValue) Bytes() []byte { return v.raw }
func (v TypedValue) String() string {
	if v.Kind == String || v.Kind == Bytes {
		return string(v.raw)
	}
	return fmt.Sprintf("%s(%v)", v.Kind, v.i)
}

// Clone returns a deep copy of v.
func (v TypedValue) Clone() TypedValue {
	out := v
	if v.raw != nil {
		out.raw = append([]byte(nil), v.raw...)
	}
	if v.Elems != nil {
		out.Elems = make([]TypedValue, len(v.Elems))
		for i, e := range v.Elems {
			out.Elems[i] = e.Clone()
		}
	}
	if v.Pairs != nil {
		out.Pairs = make([]Pair, len(v.Pairs))
		for i, p := range v.Pairs {
			out.Pairs[i] = Pair{Key: p.Key.Clone(), Value: p.Value.Clone()}
		}
	}
	return out
}

// Memory estimates the number of bytes v occupies, for the aggregator
// kernels' approximate accounting.
func (v TypedValue) Memory() int {
	const wordSize = 8
	mem := wordSize * 2 // Kind tag + scalar fields, rough
	mem += len(v.raw)
	for _, e := range v.Elems {
		mem += e.Memory()
	}
	for _, p := range v.Pairs {
		mem += p.Key.Memory() + p.Value.Memory()
	}
	return mem
}

// Equal reports whether v and o have the same kind and contents.
func (v TypedValue) Equal(o TypedValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Bool:
		return v.b == o.b
	case Int:
		return v.i == o.i
	case Uint, Fingerprint, Time:
		return v.u == o.u
	case Float:
		return v.f == o.f
	case Bytes, String:
		return string(v.raw) == string(o.raw)
	case Array, Tuple:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.Pairs) != len(o.Pairs) {
			return false
		}
		for i := range v.Pairs {
			if !v.Pairs[i].Key.Equal(o.Pairs[i].Key) || !v.Pairs[i].Value.Equal(o.Pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Less is a total order over values of the same kind, used by the
// encoder-order property and by set/distinctsample ordering. Composite
// kinds compare element by element, shorter-is-less on a common prefix.
func (v TypedValue) Less(o TypedValue) bool {
	switch v.Kind {
	case Bool:
		return !v.b && o.b
	case Int:
		return v.i < o.i
	case Uint, Fingerprint, Time:
		return v.u < o.u
	case Float:
		return v.f < o.f
	case Bytes, String:
		return string(v.raw) < string(o.raw)
	case Array, Tuple:
		n := len(v.Elems)
		if len(o.Elems) < n {
			n = len(o.Elems)
		}
		for i := 0; i < n; i++ {
			if v.Elems[i].Less(o.Elems[i]) {
				return true
			}
			if o.Elems[i].Less(v.Elems[i]) {
				return false
			}
		}
		return len(v.Elems) < len(o.Elems)
	}
	return false
}
