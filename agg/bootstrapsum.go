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

	"github.com/google/szl/codec"
	"github.com/google/szl/value"
)

func init() {
	Register("bootstrapsum", newBootstrapSumWriter)
}

type bootstrapSumWriter struct {
	param int
	elem  value.Descriptor
}

func newBootstrapSumWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: bootstrapsum requires a positive replicate count", ErrInvalidParam)
	}
	if !isAddable(t.Element) || len(t.Element.Elems) != 0 {
		return nil, fmt.Errorf("%w: bootstrapsum requires a scalar numeric element", ErrInvalidParam)
	}
	return &bootstrapSumWriter{param: t.Param, elem: t.Element}, nil
}

func (w *bootstrapSumWriter) Aggregates() bool { return true }
func (w *bootstrapSumWriter) Filters() bool    { return false }
func (w *bootstrapSumWriter) HasWeight() bool  { return false }
func (w *bootstrapSumWriter) Param() int       { return w.param }

func (w *bootstrapSumWriter) CreateEntry() Kernel {
	return &bootstrapSumKernel{param: w.param, shape: w.elem, sums: zeroSums(w.param, w.elem)}
}

func zeroSums(n int, shape value.Descriptor) []value.TypedValue {
	sums := make([]value.TypedValue, n)
	for i := range sums {
		sums[i] = value.Zero(shape)
	}
	return sums
}

// poisson1 draws from a Poisson(1) distribution via Knuth's algorithm,
// used as the per-replicate resampling weight of the Poisson
// bootstrap: on average each replicate counts an element once, but
// the variance across replicates of the resulting sums estimates the
// sampling variance of the true sum.
func poisson1() int {
	const l = 0.36787944117144233 // math.Exp(-1)
	k := 0
	p := 1.0
	for {
		k++
		p *= nextUnitFloat()
		if p <= l {
			return k - 1
		}
	}
}

// bootstrapSumKernel keeps param independent running sums, each over
// the same element stream but Poisson-reweighted independently, so
// that the spread across replicates approximates the sum's sampling
// variance without needing every raw element retained.
type bootstrapSumKernel struct {
	param int
	shape value.Descriptor
	sums  []value.TypedValue
	tot   int64
}

func (k *bootstrapSumKernel) sumsMemory() int {
	mem := 0
	for _, s := range k.sums {
		mem += s.Memory()
	}
	return mem
}

func (k *bootstrapSumKernel) Add(elem []byte) (int, error) {
	v, err := decodeElem(elem)
	if err != nil {
		return 0, err
	}
	k.tot++
	before := k.sumsMemory()
	for r := 0; r < k.param; r++ {
		c := poisson1()
		if c == 0 {
			continue
		}
		contrib := v.Clone()
		for i := 1; i < c; i++ {
			v.AddTo(&contrib)
		}
		contrib.AddTo(&k.sums[r])
	}
	return k.sumsMemory() - before, nil
}

func (k *bootstrapSumKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	return 0, fmt.Errorf("%w: bootstrapsum", ErrUnsupported)
}

func (k *bootstrapSumKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	for _, s := range k.sums {
		codec.Put(enc, s)
	}
	out := enc.Take()
	k.Clear()
	return out
}

// FlushDisplay reports the mean and standard deviation of the param
// replicate sums: the mean estimates the true sum, and the standard
// deviation is the bootstrap estimate of that sum's sampling error.
func (k *bootstrapSumKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	vals := make([]float64, k.param)
	var sum float64
	for i, s := range k.sums {
		f := s.ToFloat(nil)
		if len(f) > 0 {
			vals[i] = f[0]
		}
		sum += vals[i]
	}
	mean := sum / float64(k.param)
	var varSum float64
	for _, v := range vals {
		d := v - mean
		varSum += d * d
	}
	stddev := math.Sqrt(varSum / float64(k.param))

	enc := codec.NewEncoder()
	enc.PutFloat(mean)
	enc.PutFloat(stddev)
	return [][]byte{enc.Take()}
}

func (k *bootstrapSumKernel) Merge(data []byte) MergeStatus {
	if len(data) == 0 {
		return MergeOk
	}
	dec := codec.NewDecoder(data)
	extra, err := dec.Next()
	if err != nil || extra.Kind != value.Int || extra.Int() <= 0 {
		return MergeError
	}
	sums := make([]value.TypedValue, k.param)
	for i := 0; i < k.param; i++ {
		s, err := dec.Next()
		if err != nil {
			return MergeError
		}
		sums[i] = s
	}
	if !dec.Done() {
		return MergeError
	}
	for i := range k.sums {
		sums[i].AddTo(&k.sums[i])
	}
	k.tot += extra.Int()
	return MergeOk
}

func (k *bootstrapSumKernel) Clear() {
	k.tot = 0
	k.sums = zeroSums(k.param, k.shape)
}

func (k *bootstrapSumKernel) Memory() int     { return 24 + k.sumsMemory() }
func (k *bootstrapSumKernel) TupleCount() int { return 1 }
func (k *bootstrapSumKernel) TotElems() int64 { return k.tot }
