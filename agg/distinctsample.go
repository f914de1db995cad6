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
	"github.com/google/szl/value"
)

func init() {
	Register("distinctsample", newDistinctSampleWriter)
}

type distinctSampleWriter struct {
	param int
}

func newDistinctSampleWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: distinctsample requires a positive size parameter", ErrInvalidParam)
	}
	if !t.HasWeight || !isAddable(t.Weight) {
		return nil, fmt.Errorf("%w: distinctsample requires a numeric weight", ErrInvalidParam)
	}
	return &distinctSampleWriter{param: t.Param}, nil
}

func (w *distinctSampleWriter) Aggregates() bool { return true }
func (w *distinctSampleWriter) Filters() bool    { return false }
func (w *distinctSampleWriter) HasWeight() bool  { return true }
func (w *distinctSampleWriter) Param() int       { return w.param }

func (w *distinctSampleWriter) CreateEntry() Kernel {
	return &distinctSampleKernel{param: w.param, index: map[string]int{}}
}

type distinctSampleItem struct {
	key    string
	elem   []byte
	weight value.Weight
	hash   uint64
}

// distinctSampleKernel samples up to param distinct elements, each
// carrying the sum of every weight it was ever added with, using the
// same k-minimum-values selection as unique: retained elements are
// those whose MD5-derived hash is among the param smallest seen,
// ordered by (hash, key) so the retained set and its ordering depend
// only on the elements themselves, never on arrival order.
type distinctSampleKernel struct {
	param int
	items []distinctSampleItem // sorted ascending by (hash, key)
	index map[string]int
	tot   int64
}

func (k *distinctSampleKernel) Add(elem []byte) (int, error) {
	return 0, fmt.Errorf("%w: distinctsample", ErrUnsupported)
}

func (k *distinctSampleKernel) itemsMemory() int {
	mem := 0
	for _, it := range k.items {
		mem += len(it.elem) + it.weight.Memory()
	}
	return mem
}

func (k *distinctSampleKernel) searchPos(hash uint64, key string) int {
	return sort.Search(len(k.items), func(i int) bool {
		if k.items[i].hash != hash {
			return k.items[i].hash > hash
		}
		return k.items[i].key >= key
	})
}

func (k *distinctSampleKernel) reindexFrom(pos int) {
	for i := pos; i < len(k.items); i++ {
		k.index[k.items[i].key] = i
	}
}

func (k *distinctSampleKernel) mergeOne(hash uint64, elem []byte, w value.Weight) {
	key := string(elem)
	if i, ok := k.index[key]; ok {
		w.AddTo(&k.items[i].weight)
		return
	}
	pos := k.searchPos(hash, key)
	item := distinctSampleItem{key: key, elem: append([]byte(nil), elem...), weight: w.Clone(), hash: hash}
	if len(k.items) < k.param {
		k.items = append(k.items, distinctSampleItem{})
		copy(k.items[pos+1:], k.items[pos:len(k.items)-1])
		k.items[pos] = item
		k.reindexFrom(pos)
		return
	}
	last := k.items[len(k.items)-1]
	if hash >= last.hash {
		return
	}
	delete(k.index, last.key)
	copy(k.items[pos+1:], k.items[pos:len(k.items)-1])
	k.items[pos] = item
	k.reindexFrom(pos)
}

func (k *distinctSampleKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	k.tot++
	before := k.itemsMemory()
	k.mergeOne(elemHash(elem), elem, w)
	return k.itemsMemory() - before, nil
}

func (k *distinctSampleKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	enc.PutInt(int64(len(k.items)))
	for _, it := range k.items {
		enc.PutUint(it.hash)
		enc.PutBytes(it.elem)
		codec.Put(enc, it.weight)
	}
	out := enc.Take()
	k.Clear()
	return out
}

// FlushDisplay reports each sampled element's weight, rescaled via
// InverseHistogram once the sample is at capacity (meaning the full
// set of distinct elements may not all have been observed directly).
func (k *distinctSampleKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	weights := make([]value.Weight, len(k.items))
	for i, it := range k.items {
		weights[i] = it.weight
	}
	if len(k.items) == k.param && k.param > 0 {
		fraction := float64(k.items[len(k.items)-1].hash) / (float64(math.MaxUint64) + 1)
		weights = InverseHistogram(weights, fraction)
	}
	rows := make([][]byte, len(k.items))
	for i, it := range k.items {
		enc := codec.NewEncoder()
		enc.PutBytes(it.elem)
		codec.Put(enc, weights[i])
		rows[i] = enc.Take()
	}
	return rows
}

func (k *distinctSampleKernel) Merge(data []byte) MergeStatus {
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
		// PutUint shares the integer tags, so the hash decodes as an Int
		// carrying the same 64 bits.
		h, err := dec.Next()
		if err != nil || h.Kind != value.Int {
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
		k.mergeOne(uint64(h.Int()), elem.Bytes(), w)
	}
	if !dec.Done() {
		return MergeError
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *distinctSampleKernel) Clear() {
	k.tot = 0
	k.items = nil
	k.index = map[string]int{}
}

func (k *distinctSampleKernel) Memory() int     { return 24 + k.itemsMemory() }
func (k *distinctSampleKernel) TupleCount() int { return len(k.items) }
func (k *distinctSampleKernel) TotElems() int64 { return k.tot }
