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

package agg

import (
	"fmt"
	"sort"

	"github.com/google/szl/codec"
	"github.com/google/szl/heap"
	"github.com/google/szl/value"
)

func init() {
	Register("maximum", newMaxMinWriter(true))
	Register("minimum", newMaxMinWriter(false))
}

type maxMinWriter struct {
	param    int
	weight   value.Descriptor
	maximize bool
}

// newMaxMinWriter returns a WriterFactory closed over which direction
// (maximum or minimum) the table ranks by, so both registrations share
// one implementation the way the original's szlmaximum.cc does via a
// constructor flag.
func newMaxMinWriter(maximize bool) WriterFactory {
	return func(t Type) (Writer, error) {
		if t.Param <= 0 {
			return nil, fmt.Errorf("%w: requires a positive size parameter", ErrInvalidParam)
		}
		if !t.HasWeight || !isOrdered(t.Weight) {
			return nil, fmt.Errorf("%w: requires an ordered weight", ErrInvalidParam)
		}
		return &maxMinWriter{param: t.Param, weight: t.Weight, maximize: maximize}, nil
	}
}

func (w *maxMinWriter) Aggregates() bool { return true }
func (w *maxMinWriter) Filters() bool    { return false }
func (w *maxMinWriter) HasWeight() bool  { return true }
func (w *maxMinWriter) Param() int       { return w.param }

func (w *maxMinWriter) CreateEntry() Kernel {
	return &maxMinKernel{param: w.param, maximize: w.maximize, heap: newMaxMinHeap(w.param, w.maximize)}
}

type maxMinItem struct {
	elem   []byte
	weight value.Weight
}

// newMaxMinHeap builds a BoundedHeap whose "less" relation keeps the
// param largest weights for maximum (the ordinary BoundedHeap sense)
// or, for minimum, inverts the comparison so the param smallest
// weights are the ones that survive eviction.
func newMaxMinHeap(param int, maximize bool) *heap.BoundedHeap[maxMinItem] {
	if maximize {
		return heap.NewBounded(param, func(a, b maxMinItem) bool { return a.weight.Less(b.weight) })
	}
	return heap.NewBounded(param, func(a, b maxMinItem) bool { return b.weight.Less(a.weight) })
}

// maxMinKernel keeps the param most extreme (elem, weight) pairs seen,
// in the direction fixed at construction time.
type maxMinKernel struct {
	param    int
	maximize bool
	heap     *heap.BoundedHeap[maxMinItem]
	tot      int64
}

func (k *maxMinKernel) Add(elem []byte) (int, error) {
	return 0, fmt.Errorf("%w: maximum/minimum", ErrUnsupported)
}

func (k *maxMinKernel) insert(item maxMinItem) int {
	wasFull := k.heap.Full()
	var prevLen int
	if wasFull {
		if s, ok := k.heap.Smallest(); ok {
			prevLen = len(s.elem) + s.weight.Memory()
		}
	}
	if !k.heap.Add(item) {
		return 0
	}
	size := len(item.elem) + item.weight.Memory()
	if wasFull {
		return size - prevLen
	}
	return size
}

func (k *maxMinKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	k.tot++
	item := maxMinItem{elem: append([]byte(nil), elem...), weight: w.Clone()}
	return k.insert(item), nil
}

// sortedItems returns the retained items ordered for display: most
// extreme first (largest weight for maximum, smallest for minimum).
func (k *maxMinKernel) sortedItems() []maxMinItem {
	out := append([]maxMinItem(nil), k.heap.Items()...)
	sort.Slice(out, func(i, j int) bool {
		if k.maximize {
			return out[j].weight.Less(out[i].weight)
		}
		return out[i].weight.Less(out[j].weight)
	})
	return out
}

func (k *maxMinKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	items := k.heap.Items()
	enc.PutInt(int64(len(items)))
	for _, it := range items {
		codec.Put(enc, it.weight)
		enc.PutBytes(it.elem)
	}
	out := enc.Take()
	k.Clear()
	return out
}

func (k *maxMinKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	items := k.sortedItems()
	rows := make([][]byte, len(items))
	for i, it := range items {
		enc := codec.NewEncoder()
		codec.Put(enc, it.weight)
		enc.PutBytes(it.elem)
		rows[i] = enc.Take()
	}
	return rows
}

func (k *maxMinKernel) Merge(data []byte) MergeStatus {
	if len(data) == 0 {
		return MergeOk
	}
	dec := codec.NewDecoder(data)
	extra, err := dec.Next()
	if err != nil || extra.Kind != value.Int || extra.Int() <= 0 {
		return MergeError
	}
	n, err := dec.Next()
	if err != nil || n.Kind != value.Int || n.Int() < 0 {
		return MergeError
	}
	for i := int64(0); i < n.Int(); i++ {
		w, err := dec.Next()
		if err != nil {
			return MergeError
		}
		elem, err := dec.Next()
		if err != nil || elem.Kind != value.Bytes {
			return MergeError
		}
		k.insert(maxMinItem{elem: elem.Bytes(), weight: w})
	}
	if !dec.Done() {
		return MergeError
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *maxMinKernel) Clear() {
	k.tot = 0
	k.heap = newMaxMinHeap(k.param, k.maximize)
}

func (k *maxMinKernel) Memory() int {
	mem := 24
	for _, it := range k.heap.Items() {
		mem += len(it.elem) + it.weight.Memory()
	}
	return mem
}

func (k *maxMinKernel) TupleCount() int { return k.heap.Len() }
func (k *maxMinKernel) TotElems() int64 { return k.tot }
