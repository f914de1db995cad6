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

// Package agg implements the output-table aggregator kernels: one
// implementation per table kind (sum, set, sample, weightedsample,
// maximum, minimum, top, unique, distinctsample, bootstrapsum,
// collection), each able to add elements, flush its state to a byte
// string another kernel of the same shape can merge, and clear back to
// empty.
//
// The package keeps the original two-level split between a stateless
// Writer (validates a table's type/param at registration time and
// constructs entries) and a stateful Kernel (one instance per unique
// key), matching the original SzlTabWriter/SzlTabEntry split rather
// than folding them into a single constructor.
package agg

import (
	"errors"
	"fmt"

	"github.com/google/szl/codec"
	"github.com/google/szl/value"
)

// MergeStatus reports the outcome of a Kernel.Merge call.
type MergeStatus int

const (
	MergeOk MergeStatus = iota
	MergeError
)

func (s MergeStatus) String() string {
	if s == MergeOk {
		return "MergeOk"
	}
	return "MergeError"
}

var (
	// ErrUnsupported is returned by an operation a table kind does not
	// implement (e.g. AddWeighted on a sum table), mirroring the
	// original's LOG(FATAL)-guarded default methods.
	ErrUnsupported = errors.New("agg: operation not supported by this table kind")
	// ErrInvalidParam is returned by a Writer factory when a table's
	// kind/param/type combination is not constructible.
	ErrInvalidParam = errors.New("agg: invalid table parameters")
)

// Type describes the type-level parameters of a table: its kind name,
// its integer parameter (the N in set(N), sample(N), top(N), ...), the
// shape of its element, and (if HasWeight) the shape of its weight.
type Type struct {
	Kind      string
	Param     int
	Element   value.Descriptor
	HasWeight bool
	Weight    value.Descriptor
}

// Kernel is a stateful, one-per-key aggregator entry.
type Kernel interface {
	// Add adds an already-encoded element with an implicit weight of 1.
	Add(elem []byte) (memDelta int, err error)
	// AddWeighted adds an already-encoded element with an explicit
	// numeric weight.
	AddWeighted(elem []byte, weight value.Weight) (memDelta int, err error)
	// Flush serializes enough state for a peer Kernel of the same shape
	// to Merge, and resets tot_elems/internal state. An empty result
	// (nil) means there is nothing to report.
	Flush() []byte
	// FlushDisplay serializes the current state for display purposes,
	// one row per result, without resetting anything.
	FlushDisplay() [][]byte
	// Merge combines the output of a peer's Flush into this kernel's
	// state. There is no rollback: on MergeError the kernel's state is
	// undefined and the caller should discard it.
	Merge(data []byte) MergeStatus
	// Clear zeroes the kernel back to its just-constructed state.
	Clear()
	// Memory estimates the kernel's current memory footprint in bytes.
	Memory() int
	// TupleCount reports how many rows the next FlushDisplay will produce.
	TupleCount() int
	// TotElems reports the cumulative count of every Add/AddWeighted
	// call ever made, including elements later dropped or aggregated away.
	TotElems() int64
}

// Writer is a stateless per-table-kind factory: it has already
// validated a Type (addable/ordered/numeric constraints) and knows how
// to build fresh Kernel instances for each new key.
type Writer interface {
	Aggregates() bool
	Filters() bool
	HasWeight() bool
	Param() int
	CreateEntry() Kernel
}

// WriterFactory validates t and, if valid, returns a Writer for it.
type WriterFactory func(t Type) (Writer, error)

var registry = map[string]WriterFactory{}

// Register installs a WriterFactory under kind. Called from each
// kernel's init().
func Register(kind string, f WriterFactory) {
	registry[kind] = f
}

// NewWriter looks up t.Kind in the registry and constructs a Writer for it.
func NewWriter(t Type) (Writer, error) {
	f, ok := registry[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table kind %q", ErrInvalidParam, t.Kind)
	}
	return f(t)
}

// decodeElem decodes a single, self-delimited value from already-
// encoded element bytes, failing if any trailing bytes remain.
func decodeElem(elem []byte) (value.TypedValue, error) {
	dec := codec.NewDecoder(elem)
	v, err := dec.Next()
	if err != nil {
		return value.TypedValue{}, err
	}
	if !dec.Done() {
		return value.TypedValue{}, fmt.Errorf("%w: trailing bytes after element", codec.ErrInvalidValue)
	}
	return v, nil
}

// isAddable reports whether d's shape supports AddTo/SubFrom: any
// numeric scalar, or a tuple whose leaves are all numeric.
func isAddable(d value.Descriptor) bool {
	return value.IsNumericDescriptor(d)
}

// isOrdered reports whether d's shape supports Less: every kind but Map.
func isOrdered(d value.Descriptor) bool {
	return d.Kind != value.Invalid && d.Kind != value.Map
}
