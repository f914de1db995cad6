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
	Register("sample", newSampleWriter)
}

type sampleWriter struct {
	param int
}

func newSampleWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: sample requires a positive size parameter", ErrInvalidParam)
	}
	return &sampleWriter{param: t.Param}, nil
}

func (w *sampleWriter) Aggregates() bool { return true }
func (w *sampleWriter) Filters() bool    { return false }
func (w *sampleWriter) HasWeight() bool  { return false }
func (w *sampleWriter) Param() int       { return w.param }

func (w *sampleWriter) CreateEntry() Kernel {
	return &sampleKernel{param: w.param, heap: newSampleHeap(w.param)}
}

type sampleItem struct {
	elem []byte
	tag  uint64
}

func newSampleHeap(param int) *heap.BoundedHeap[sampleItem] {
	return heap.NewBounded(param, func(a, b sampleItem) bool { return a.tag < b.tag })
}

// sampleKernel keeps an unweighted uniform random sample of up to
// param elements: every added element is given a fresh random tag and
// the heap retains the param largest tags seen. Because the retained
// set depends only on each element's own tag, merging two samples and
// keeping the largest-tag param elements of the union yields exactly
// the same distribution as a single reservoir over the combined
// stream, so Flush/Merge stay associative.
type sampleKernel struct {
	param int
	heap  *heap.BoundedHeap[sampleItem]
	tot   int64
}

func (k *sampleKernel) insert(item sampleItem) int {
	wasFull := k.heap.Full()
	var prevLen int
	if wasFull {
		if s, ok := k.heap.Smallest(); ok {
			prevLen = len(s.elem)
		}
	}
	if !k.heap.Add(item) {
		return 0
	}
	if wasFull {
		return len(item.elem) - prevLen
	}
	return len(item.elem)
}

func (k *sampleKernel) Add(elem []byte) (int, error) {
	k.tot++
	item := sampleItem{elem: append([]byte(nil), elem...), tag: nextRandom()}
	return k.insert(item), nil
}

func (k *sampleKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	return 0, fmt.Errorf("%w: sample", ErrUnsupported)
}

func (k *sampleKernel) sortedItems() []sampleItem {
	out := append([]sampleItem(nil), k.heap.Items()...)
	sort.Slice(out, func(i, j int) bool { return string(out[i].elem) < string(out[j].elem) })
	return out
}

func (k *sampleKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	items := k.heap.Items()
	enc.PutInt(int64(len(items)))
	for _, it := range items {
		enc.PutUint(it.tag)
		enc.PutBytes(it.elem)
	}
	out := enc.Take()
	k.Clear()
	return out
}

func (k *sampleKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	items := k.sortedItems()
	rows := make([][]byte, len(items))
	for i, it := range items {
		enc := codec.NewEncoder()
		enc.PutBytes(it.elem)
		rows[i] = enc.Take()
	}
	return rows
}

func (k *sampleKernel) Merge(data []byte) MergeStatus {
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
		// PutUint shares the integer tags, so the tag decodes as an Int
		// carrying the same 64 bits.
		tag, err := dec.Next()
		if err != nil || tag.Kind != value.Int {
			return MergeError
		}
		elem, err := dec.Next()
		if err != nil || elem.Kind != value.Bytes {
			return MergeError
		}
		k.insert(sampleItem{elem: elem.Bytes(), tag: uint64(tag.Int())})
	}
	if !dec.Done() {
		return MergeError
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *sampleKernel) Clear() {
	k.tot = 0
	k.heap = newSampleHeap(k.param)
}

func (k *sampleKernel) Memory() int {
	mem := 24
	for _, it := range k.heap.Items() {
		mem += len(it.elem)
	}
	return mem
}

func (k *sampleKernel) TupleCount() int { return k.heap.Len() }
func (k *sampleKernel) TotElems() int64 { return k.tot }
