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
	"math"
	"sort"

	"github.com/google/szl/codec"
	"github.com/google/szl/heap"
	"github.com/google/szl/value"
)

func init() {
	Register("weightedsample", newWeightedSampleWriter)
}

type weightedSampleWriter struct {
	param  int
	weight value.Descriptor
}

func newWeightedSampleWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: weightedsample requires a positive size parameter", ErrInvalidParam)
	}
	if !t.HasWeight || !value.IsNumericDescriptor(t.Weight) || len(t.Weight.Elems) != 0 {
		return nil, fmt.Errorf("%w: weightedsample requires a scalar numeric weight", ErrInvalidParam)
	}
	return &weightedSampleWriter{param: t.Param, weight: t.Weight}, nil
}

func (w *weightedSampleWriter) Aggregates() bool { return true }
func (w *weightedSampleWriter) Filters() bool    { return false }
func (w *weightedSampleWriter) HasWeight() bool  { return true }
func (w *weightedSampleWriter) Param() int       { return w.param }

func (w *weightedSampleWriter) CreateEntry() Kernel {
	return &weightedSampleKernel{param: w.param, weight: w.weight, heap: newWeightedSampleHeap(w.param)}
}

type wsItem struct {
	elem   []byte
	weight value.Weight
	key    float64
}

// newWeightedSampleHeap orders items so the heap's "smallest" element
// (the one a new arrival must beat to be kept) is the current largest
// A-ExpJ key, i.e. the weakest candidate: larger key means smaller
// priority, so priority-less(a,b) is key(a) > key(b).
func newWeightedSampleHeap(param int) *heap.BoundedHeap[wsItem] {
	return heap.NewBounded(param, func(a, b wsItem) bool { return a.key > b.key })
}

// weightedSampleKernel implements the Efraimidis-Spirakis A-ExpJ
// weighted reservoir sampling algorithm: every element gets a key
// drawn from an exponential distribution scaled by the inverse of its
// weight, and the param elements with the smallest keys are kept. A
// heavier element is more likely to draw a small key, so it is more
// likely to survive — and because each element's key depends only on
// its own weight and an independent random draw, merging two samples
// and keeping the smallest-key param elements of the union reproduces
// the same distribution as a single pass over the combined stream.
type weightedSampleKernel struct {
	param  int
	weight value.Descriptor
	heap   *heap.BoundedHeap[wsItem]
	tot    int64
}

func weightMagnitude(w value.Weight) float64 {
	vals := w.ToFloat(nil)
	if len(vals) == 0 {
		return 0
	}
	return vals[0]
}

func (k *weightedSampleKernel) insert(item wsItem) int {
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

func (k *weightedSampleKernel) Add(elem []byte) (int, error) {
	return 0, fmt.Errorf("%w: weightedsample", ErrUnsupported)
}

func (k *weightedSampleKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	k.tot++
	weight := weightMagnitude(w)
	if weight <= 0 {
		return 0, nil
	}
	key := -math.Log(nextUnitFloat()) / weight
	item := wsItem{elem: append([]byte(nil), elem...), weight: w.Clone(), key: key}
	return k.insert(item), nil
}

func (k *weightedSampleKernel) sortedItems() []wsItem {
	out := append([]wsItem(nil), k.heap.Items()...)
	sort.Slice(out, func(i, j int) bool { return string(out[i].elem) < string(out[j].elem) })
	return out
}

func (k *weightedSampleKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	items := k.heap.Items()
	enc.PutInt(int64(len(items)))
	for _, it := range items {
		enc.PutFloat(it.key)
		enc.PutBytes(it.elem)
		codec.Put(enc, it.weight)
	}
	out := enc.Take()
	k.Clear()
	return out
}

func (k *weightedSampleKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	items := k.sortedItems()
	rows := make([][]byte, len(items))
	for i, it := range items {
		enc := codec.NewEncoder()
		enc.PutBytes(it.elem)
		codec.Put(enc, it.weight)
		rows[i] = enc.Take()
	}
	return rows
}

func (k *weightedSampleKernel) Merge(data []byte) MergeStatus {
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
		key, err := dec.Next()
		if err != nil || key.Kind != value.Float {
			return MergeError
		}
		elem, err := dec.Next()
		if err != nil || elem.Kind != value.Bytes {
			return MergeError
		}
		w, err := dec.Next()
		if err != nil {
			return MergeError
		}
		k.insert(wsItem{elem: elem.Bytes(), weight: w, key: key.Float()})
	}
	if !dec.Done() {
		return MergeError
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *weightedSampleKernel) Clear() {
	k.tot = 0
	k.heap = newWeightedSampleHeap(k.param)
}

func (k *weightedSampleKernel) Memory() int {
	mem := 24
	for _, it := range k.heap.Items() {
		mem += len(it.elem) + it.weight.Memory()
	}
	return mem
}

func (k *weightedSampleKernel) TupleCount() int { return k.heap.Len() }
func (k *weightedSampleKernel) TotElems() int64 { return k.tot }
