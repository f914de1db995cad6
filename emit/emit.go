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

// Package emit implements the emit driver: the state machine that
// turns a sequence of begin/end/put calls for a single emit statement
// into an encoded index key, element and optional weight, then
// dispatches Add/AddWeighted to the per-key aggregator Kernel that
// owns that table's entry for the key.
package emit

import (
	"errors"
	"fmt"

	"github.com/google/szl/agg"
	"github.com/google/szl/codec"
	"github.com/google/szl/value"
)

// Kind identifies which group a Begin/End call opens or closes. Emit,
// Index, Element and Weight are the driver's own slots; Array, Map
// and Tuple are the composite value groups that may nest inside them.
type Kind uint8

const (
	EmitGroup Kind = iota
	IndexGroup
	ElementGroup
	WeightGroup
	ArrayGroup
	MapGroup
	TupleGroup
)

var (
	// ErrBadState is the internal error flag the driver sets when a
	// begin/end sequence violates the emit grammar (spec.md §4.5,
	// §8 property 7): no output is produced for the offending emit.
	ErrBadState = errors.New("emit: begin/end sequence violates the emit grammar")
	// ErrNoEmitter is the error Result reports after End(EmitGroup) when
	// the Emitter has no Table attached (spec.md §7, NoEmitter).
	ErrNoEmitter = errors.New("emit: no emitter registered for this table")
)

// frame records one open ARRAY/MAP/TUPLE group nested inside the
// current slot.
type frame struct {
	kind Kind
}

// Emitter drives a single output table's Emitter-shaped API (spec.md
// §4.5): it owns the scratch encoders for the current emit statement
// and looks up or creates the Table's per-key Kernel on End(EmitGroup).
type Emitter struct {
	table *Table

	open                               bool
	seenIndex, seenElement, seenWeight bool
	slot                               Kind // IndexGroup/ElementGroup/WeightGroup, or EmitGroup if no slot is open
	stack                              []frame

	keyEnc, elemEnc, weightEnc *codec.Encoder
	cur                        *codec.Encoder // nil outside any slot

	failed  bool
	lastMem int
	lastErr error
}

// NewEmitter returns an Emitter that dispatches into t. t may be nil,
// in which case every End(EmitGroup) fails with ErrNoEmitter (the
// NoEmitter runtime error of spec.md §7).
func NewEmitter(t *Table) *Emitter {
	return &Emitter{table: t}
}

// Failed reports whether the emit driver's internal error flag is
// currently set for the in-progress (or just-finished) emit.
func (e *Emitter) Failed() bool { return e.failed }

// Result returns the outcome of the most recently completed
// End(EmitGroup): the memory delta the kernel reported and any error.
func (e *Emitter) Result() (int, error) { return e.lastMem, e.lastErr }

func (e *Emitter) fail(err error) {
	e.failed = true
	if e.lastErr == nil {
		e.lastErr = err
	}
}

// Begin opens a group. n is the composite's element count for
// ARRAY/TUPLE/MAP (MAP additionally records n as its pair count), and
// is ignored for EmitGroup/IndexGroup/ElementGroup/WeightGroup.
func (e *Emitter) Begin(kind Kind, n int) {
	if e.failed && kind != EmitGroup {
		return
	}
	switch kind {
	case EmitGroup:
		if e.open {
			e.fail(ErrBadState)
			return
		}
		*e = Emitter{table: e.table, open: true}
		e.keyEnc = codec.NewEncoder()
		e.elemEnc = codec.NewEncoder()
	case IndexGroup:
		if !e.open || e.slot != EmitGroup || e.seenIndex || e.seenElement {
			e.fail(ErrBadState)
			return
		}
		e.seenIndex = true
		e.slot = IndexGroup
		e.cur = e.keyEnc
	case ElementGroup:
		if !e.open || e.slot != EmitGroup || e.seenElement {
			e.fail(ErrBadState)
			return
		}
		e.seenElement = true
		e.slot = ElementGroup
		e.cur = e.elemEnc
	case WeightGroup:
		if !e.open || e.slot != EmitGroup || e.seenWeight || !e.seenElement {
			e.fail(ErrBadState)
			return
		}
		e.seenWeight = true
		e.slot = WeightGroup
		e.weightEnc = codec.NewEncoder()
		e.cur = e.weightEnc
	case ArrayGroup, MapGroup, TupleGroup:
		if !e.open || e.slot == EmitGroup {
			e.fail(ErrBadState)
			return
		}
		if e.slot == WeightGroup {
			// spec.md §4.5: ARRAY/MAP inside WEIGHT is an unsupported
			// combination; TUPLE (a fixed-shape scalar grouping) is
			// still allowed since weights may be tuple-shaped.
			if kind != TupleGroup {
				e.fail(ErrBadState)
				return
			}
		}
		e.stack = append(e.stack, frame{kind: kind})
		vk := groupValueKind(kind)
		e.cur.Start(vk)
		if kind == MapGroup {
			e.cur.PutInt(int64(n))
		}
	}
}

// End closes the group most recently opened by the matching Begin.
func (e *Emitter) End(kind Kind, n int) {
	if e.failed && kind != EmitGroup {
		return
	}
	switch kind {
	case IndexGroup, ElementGroup, WeightGroup:
		if !e.open || e.slot != kind || len(e.stack) != 0 {
			e.fail(ErrBadState)
			return
		}
		e.slot = EmitGroup
		e.cur = nil
	case ArrayGroup, MapGroup, TupleGroup:
		if !e.open || len(e.stack) == 0 || e.stack[len(e.stack)-1].kind != kind {
			e.fail(ErrBadState)
			return
		}
		e.stack = e.stack[:len(e.stack)-1]
		e.cur.End(groupValueKind(kind))
	case EmitGroup:
		e.endEmit()
	}
}

func groupValueKind(k Kind) value.Kind {
	switch k {
	case ArrayGroup:
		return value.Array
	case MapGroup:
		return value.Map
	default:
		return value.Tuple
	}
}

// endEmit closes the EMIT group: if the state machine is in a
// consistent, complete state (exactly one ELEMENT seen, no composite
// left open) it builds the encoded key/element/weight and dispatches
// Add or AddWeighted to the table's per-key Kernel.
func (e *Emitter) endEmit() {
	if !e.open || e.slot != EmitGroup || !e.seenElement || len(e.stack) != 0 {
		e.fail(ErrBadState)
		e.open = false
		return
	}
	e.open = false
	if e.failed {
		return
	}
	if e.table == nil {
		e.lastErr = ErrNoEmitter
		return
	}

	key := []byte{}
	if e.seenIndex {
		key = e.keyEnc.Take()
	}
	elemBytes := e.elemEnc.Take()
	kernel := e.table.entry(key)

	if e.seenWeight {
		wb := e.weightEnc.Take()
		dec := codec.NewDecoder(wb)
		w, err := dec.Next()
		if err != nil || !dec.Done() {
			e.lastErr = fmt.Errorf("%w: malformed weight", codec.ErrInvalidValue)
			return
		}
		e.lastMem, e.lastErr = kernel.AddWeighted(elemBytes, w)
		return
	}
	e.lastMem, e.lastErr = kernel.Add(elemBytes)
}

// Scalar puts forward to whichever slot encoder is currently active.
// Calling one outside any slot (directly under EMIT, or after the
// EMIT has closed) sets the internal error flag instead of panicking.

func (e *Emitter) PutBool(b bool) { e.put(func(enc *codec.Encoder) error { enc.PutBool(b); return nil }) }
func (e *Emitter) PutBytes(p []byte) { e.put(func(enc *codec.Encoder) error { enc.PutBytes(p); return nil }) }
func (e *Emitter) PutInt(i int64) { e.put(func(enc *codec.Encoder) error { enc.PutInt(i); return nil }) }
func (e *Emitter) PutUint(u uint64) { e.put(func(enc *codec.Encoder) error { enc.PutUint(u); return nil }) }
func (e *Emitter) PutFloat(f float64) { e.put(func(enc *codec.Encoder) error { enc.PutFloat(f); return nil }) }
func (e *Emitter) PutFingerprint(fp uint64) { e.put(func(enc *codec.Encoder) error { enc.PutFingerprint(fp); return nil }) }
// PutString encodes s into the currently open slot, failing the emit
// (spec.md §4.1) if s contains an embedded NUL.
func (e *Emitter) PutString(s string) error { return e.put(func(enc *codec.Encoder) error { return enc.PutString(s) }) }
func (e *Emitter) PutTime(t uint64) { e.put(func(enc *codec.Encoder) error { enc.PutTime(t); return nil }) }

func (e *Emitter) put(do func(*codec.Encoder) error) error {
	if e.failed {
		return e.lastErr
	}
	if e.cur == nil {
		e.fail(ErrBadState)
		return ErrBadState
	}
	if err := do(e.cur); err != nil {
		e.fail(err)
		return err
	}
	return nil
}

// Table is one output table: a validated agg.Writer together with the
// live per-key Kernel entries it has accumulated across emits and
// merges.
type Table struct {
	Name    string
	Writer  agg.Writer
	entries map[string]agg.Kernel
}

// NewTable returns an empty Table backed by w.
func NewTable(name string, w agg.Writer) *Table {
	return &Table{Name: name, Writer: w, entries: make(map[string]agg.Kernel)}
}

func (t *Table) entry(key []byte) agg.Kernel {
	k, ok := t.entries[string(key)]
	if !ok {
		k = t.Writer.CreateEntry()
		t.entries[string(key)] = k
	}
	return k
}

// Merge mirrors Add on the driver side (spec.md §4.5): it looks up or
// creates the entry for key and merges data into it.
func (t *Table) Merge(key, data []byte) agg.MergeStatus {
	return t.entry(key).Merge(data)
}

// FlushAll walks every key the table has seen, flushes its Kernel, and
// invokes write(key, value) for every non-empty result, matching
// spec.md §4.5's flush_all.
func (t *Table) FlushAll(write func(key, value []byte) error) error {
	for k, entry := range t.entries {
		v := entry.Flush()
		if len(v) == 0 {
			continue
		}
		if err := write([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// Len reports how many distinct keys the table currently holds entries for.
func (t *Table) Len() int { return len(t.entries) }

// ForEach calls f once per live key/Kernel pair, in unspecified order,
// for callers that need to inspect entries without flushing them (a
// driver's --print_tables/--memory_limit support, for example).
func (t *Table) ForEach(f func(key []byte, k agg.Kernel)) {
	for k, entry := range t.entries {
		f([]byte(k), entry)
	}
}

// TotalMemory sums Memory() across every live entry.
func (t *Table) TotalMemory() int {
	total := 0
	for _, entry := range t.entries {
		total += entry.Memory()
	}
	return total
}
