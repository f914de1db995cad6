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
	"github.com/google/szl/value"
)

func init() {
	Register("sum", newSumWriter)
}

type sumWriter struct {
	elem value.Descriptor
}

func newSumWriter(t Type) (Writer, error) {
	if !isAddable(t.Element) {
		return nil, fmt.Errorf("%w: can't add elements of kind %s", ErrInvalidParam, t.Element.Kind)
	}
	return &sumWriter{elem: t.Element}, nil
}

func (w *sumWriter) Aggregates() bool { return true }
func (w *sumWriter) Filters() bool    { return false }
func (w *sumWriter) HasWeight() bool  { return false }
func (w *sumWriter) Param() int       { return 0 }

func (w *sumWriter) CreateEntry() Kernel {
	return &sumKernel{shape: w.elem}
}

// sumKernel accumulates the component-wise sum of every added element.
type sumKernel struct {
	shape    value.Descriptor
	tot      int64
	sum      value.TypedValue
	hasValue bool
}

func (k *sumKernel) Add(elem []byte) (int, error) {
	v, err := decodeElem(elem)
	if err != nil {
		return 0, err
	}
	k.tot++
	before := 0
	if k.hasValue {
		before = k.sum.Memory()
		v.AddTo(&k.sum)
	} else {
		k.sum = v.Clone()
		k.hasValue = true
	}
	return k.sum.Memory() - before, nil
}

func (k *sumKernel) AddWeighted(elem []byte, weight value.Weight) (int, error) {
	return 0, fmt.Errorf("%w: sum", ErrUnsupported)
}

func (k *sumKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	codec.Put(enc, k.sum)
	out := enc.Take()
	k.Clear()
	return out
}

func (k *sumKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return [][]byte{nil}
	}
	enc := codec.NewEncoder()
	codec.Put(enc, k.sum)
	return [][]byte{enc.Take()}
}

func (k *sumKernel) Merge(data []byte) MergeStatus {
	if len(data) == 0 {
		return MergeOk
	}
	dec := codec.NewDecoder(data)
	extra, err := dec.Next()
	if err != nil || extra.Kind != value.Int || extra.Int() <= 0 {
		return MergeError
	}
	sum, err := dec.Next()
	if err != nil || !dec.Done() {
		return MergeError
	}
	if k.hasValue {
		sum.AddTo(&k.sum)
	} else {
		k.sum = sum
		k.hasValue = true
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *sumKernel) Clear() {
	k.tot = 0
	k.sum = value.Zero(k.shape)
	k.hasValue = false
}

func (k *sumKernel) Memory() int     { return 32 + k.sum.Memory() }
func (k *sumKernel) TupleCount() int { return 1 }
func (k *sumKernel) TotElems() int64 { return k.tot }
