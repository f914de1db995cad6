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
	"crypto/md5"
	"fmt"
	"math"
	"sort"

	"github.com/google/szl/codec"
	"github.com/google/szl/value"
)

func init() {
	Register("unique", newUniqueWriter)
}

type uniqueWriter struct {
	param int
}

func newUniqueWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: unique requires a positive size parameter", ErrInvalidParam)
	}
	return &uniqueWriter{param: t.Param}, nil
}

func (w *uniqueWriter) Aggregates() bool { return true }
func (w *uniqueWriter) Filters() bool    { return false }
func (w *uniqueWriter) HasWeight() bool  { return false }
func (w *uniqueWriter) Param() int       { return w.param }

func (w *uniqueWriter) CreateEntry() Kernel {
	return &uniqueKernel{param: w.param}
}

// uniqueKernel estimates the number of distinct elements added using a
// k-minimum-values sketch: it keeps the param smallest distinct
// MD5-derived hashes ever seen. While fewer than param distinct hashes
// have appeared, the count is exact; once the sample fills up, the
// density of hashes below the sample's largest retained value gives an
// unbiased estimate of how many distinct values exist in the full
// hash space.
type uniqueKernel struct {
	param  int
	hashes []uint64 // sorted ascending, len <= param, always distinct
	tot    int64
}

func elemHash(elem []byte) uint64 {
	sum := md5.Sum(elem)
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return h
}

// addHash folds h into the sample, returning the memory delta of the
// change (0 if h was already present or was rejected as too large to
// belong in the current sample).
func (k *uniqueKernel) addHash(h uint64) int {
	i := sort.Search(len(k.hashes), func(i int) bool { return k.hashes[i] >= h })
	if i < len(k.hashes) && k.hashes[i] == h {
		return 0
	}
	if len(k.hashes) < k.param {
		k.hashes = append(k.hashes, 0)
		copy(k.hashes[i+1:], k.hashes[i:len(k.hashes)-1])
		k.hashes[i] = h
		return 8
	}
	if h >= k.hashes[len(k.hashes)-1] {
		return 0
	}
	copy(k.hashes[i+1:], k.hashes[i:len(k.hashes)-1])
	k.hashes[i] = h
	return 0
}

func (k *uniqueKernel) Add(elem []byte) (int, error) {
	k.tot++
	return k.addHash(elemHash(elem)), nil
}

func (k *uniqueKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	return 0, fmt.Errorf("%w: unique", ErrUnsupported)
}

// estimate returns the current k-minimum-values estimate of the total
// number of distinct elements added.
func (k *uniqueKernel) estimate() int64 {
	n := len(k.hashes)
	if n < k.param || n == 0 {
		return int64(n)
	}
	vk := k.hashes[n-1]
	if vk == 0 {
		return int64(n)
	}
	ratio := float64(vk) / (float64(math.MaxUint64) + 1)
	return int64(float64(n) / ratio)
}

func (k *uniqueKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	enc.PutInt(int64(len(k.hashes)))
	for _, h := range k.hashes {
		enc.PutUint(h)
	}
	out := enc.Take()
	k.Clear()
	return out
}

func (k *uniqueKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.estimate())
	return [][]byte{enc.Take()}
}

func (k *uniqueKernel) Merge(data []byte) MergeStatus {
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
		k.addHash(uint64(h.Int()))
	}
	if !dec.Done() {
		return MergeError
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *uniqueKernel) Clear() {
	k.tot = 0
	k.hashes = nil
}

func (k *uniqueKernel) Memory() int     { return 24 + 8*len(k.hashes) }
func (k *uniqueKernel) TupleCount() int { return 1 }
func (k *uniqueKernel) TotElems() int64 { return k.tot }
