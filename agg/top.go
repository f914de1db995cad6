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

	"github.com/google/szl/codec"
	"github.com/google/szl/heap"
	"github.com/google/szl/sketch"
	"github.com/google/szl/value"
)

func init() {
	Register("top", newTopWriter)
}

type topWriter struct {
	param  int
	weight value.Descriptor
}

func newTopWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: top requires a positive size parameter", ErrInvalidParam)
	}
	if !t.HasWeight || !isAddable(t.Weight) {
		return nil, fmt.Errorf("%w: top requires a numeric weight", ErrInvalidParam)
	}
	return &topWriter{param: t.Param, weight: t.Weight}, nil
}

func (w *topWriter) Aggregates() bool { return true }
func (w *topWriter) Filters() bool    { return false }
func (w *topWriter) HasWeight() bool  { return true }
func (w *topWriter) Param() int       { return w.param }

func (w *topWriter) CreateEntry() Kernel {
	// spec.md §4.4: candidates are kept in a heap of capacity 10*N, with
	// a dims(100*N)-sized CountSketch backing the residual estimate.
	nTabs, tabSize := sketch.Dims(w.param * 100)
	zero := value.Zero(w.weight)
	return &topKernel{
		param:   w.param,
		zero:    zero,
		heap:    heap.NewTop[value.Weight](w.param*10, func(a, b value.Weight) bool { return a.Less(b) }),
		sketch:  sketch.New(nTabs, tabSize, zero),
		nTabs:   nTabs,
		tabSize: tabSize,
	}
}

// topKernel keeps up to 10*param heavy candidates exactly, in a
// TopHeap indexed by encoded element, and tracks the combined weight
// of every non-candidate element in a CountSketch so that an element
// which later accumulates enough weight to displace a candidate can
// be detected without storing every key ever seen.
type topKernel struct {
	param   int
	zero    value.TypedValue
	heap    *heap.TopHeap[value.Weight]
	sketch  *sketch.CountSketch
	nTabs   int
	tabSize int
	tot     int64
}

func (k *topKernel) Add(elem []byte) (int, error) {
	return 0, fmt.Errorf("%w: top", ErrUnsupported)
}

func (k *topKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	k.tot++
	key := string(elem)
	if v, ok := k.heap.Find(key); ok {
		nv := v.Clone()
		w.AddTo(&nv)
		k.heap.UpdateWeight(key, nv)
		return 0, nil
	}
	if !k.heap.Full() {
		k.heap.AddNewElem(key, w.Clone())
		return len(elem) + w.Memory(), nil
	}

	idx := k.sketch.ComputeIndex(key)
	k.sketch.AddSub(idx, w, true)
	est := k.sketch.Estimate(idx)

	small, ok := k.heap.SmallestEntry()
	if ok && small.Value.Less(est) {
		sIdx := k.sketch.ComputeIndex(small.Key)
		k.sketch.AddSub(sIdx, small.Value, true)
		k.sketch.AddSub(idx, est, false)
		k.heap.ReplaceSmallest(key, est)
	}
	return 0, nil
}

func (k *topKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	entries := k.heap.Sort()
	enc.PutInt(int64(len(entries)))
	for _, e := range entries {
		enc.PutBytes([]byte(e.Key))
		codec.Put(enc, e.Value)
	}
	enc.PutInt(int64(k.tabSize))
	enc.PutInt(int64(k.nTabs))
	k.sketch.Encode(enc, codec.Put)
	out := enc.Take()
	k.Clear()
	return out
}

// FlushDisplay reports the candidates heaviest first, one row each:
// the weight, the element, then one float error bar per weight leaf
// from the sketch's StdDeviation.
func (k *topKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	devs := k.sketch.StdDeviation()
	entries := k.heap.Sort()
	rows := make([][]byte, len(entries))
	for i, e := range entries {
		enc := codec.NewEncoder()
		codec.Put(enc, e.Value)
		enc.PutBytes([]byte(e.Key))
		for _, d := range devs {
			enc.PutFloat(d)
		}
		rows[len(entries)-1-i] = enc.Take()
	}
	return rows
}

// Merge combines a peer's exact candidates and residual sketch into
// this kernel. Existing candidates are first reweighted with whatever
// mass the peer's sketch attributes to them (and that mass is removed
// from the peer's sketch so it isn't double-counted), the peer's exact
// candidates are then applied one at a time (a matching candidate
// absorbs the weight, a new one is inserted while the heap has room,
// and otherwise the heavier of it and the smallest candidate is kept,
// with the other's weight added to this kernel's sketch), and finally
// the two sketches are combined cell by cell.
func (k *topKernel) Merge(data []byte) MergeStatus {
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
	type cand struct {
		key    string
		weight value.Weight
	}
	cands := make([]cand, 0, n.Int())
	for i := int64(0); i < n.Int(); i++ {
		elem, err := dec.Next()
		if err != nil || elem.Kind != value.Bytes {
			return MergeError
		}
		w, err := dec.Next()
		if err != nil {
			return MergeError
		}
		cands = append(cands, cand{key: string(elem.Bytes()), weight: w})
	}
	tabSize, err := dec.Next()
	if err != nil || tabSize.Kind != value.Int || tabSize.Int() <= 0 {
		return MergeError
	}
	nTabs, err := dec.Next()
	if err != nil || nTabs.Kind != value.Int || nTabs.Int() <= 0 {
		return MergeError
	}
	incoming := sketch.New(int(nTabs.Int()), int(tabSize.Int()), k.zero)
	if err := incoming.Decode(dec); err != nil {
		return MergeError
	}
	if !dec.Done() {
		return MergeError
	}

	for _, e := range k.heap.Sort() {
		idx := incoming.ComputeIndex(e.Key)
		est := incoming.Estimate(idx)
		nv := e.Value.Clone()
		est.AddTo(&nv)
		k.heap.UpdateWeight(e.Key, nv)
		incoming.AddSub(idx, est, false)
	}

	for _, c := range cands {
		if v, ok := k.heap.Find(c.key); ok {
			nv := v.Clone()
			c.weight.AddTo(&nv)
			k.heap.UpdateWeight(c.key, nv)
			continue
		}
		if !k.heap.Full() {
			k.heap.AddNewElem(c.key, c.weight.Clone())
			continue
		}
		small, _ := k.heap.SmallestEntry()
		if small.Value.Less(c.weight) {
			idx := k.sketch.ComputeIndex(small.Key)
			k.sketch.AddSub(idx, small.Value, true)
			k.heap.ReplaceSmallest(c.key, c.weight.Clone())
		} else {
			idx := k.sketch.ComputeIndex(c.key)
			k.sketch.AddSub(idx, c.weight, true)
		}
	}

	if err := k.sketch.AddSketch(incoming); err != nil {
		return MergeError
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *topKernel) Clear() {
	k.tot = 0
	k.heap = heap.NewTop[value.Weight](k.param*10, func(a, b value.Weight) bool { return a.Less(b) })
	k.sketch = sketch.New(k.nTabs, k.tabSize, k.zero)
}

func (k *topKernel) Memory() int {
	mem := 24 + k.sketch.Memory()
	for _, e := range k.heap.Sort() {
		mem += len(e.Key) + e.Value.Memory()
	}
	return mem
}

func (k *topKernel) TupleCount() int { return k.heap.Len() }
func (k *topKernel) TotElems() int64 { return k.tot }
