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

// Package sketch implements a CountSketch, as described in "Finding
// Frequent Items in Data Streams" (Charikar, Chen, Farach-Colton): a
// fixed-size two-dimensional table of weights that lets the top
// aggregator estimate the weight of any key without storing every key
// it has ever seen.
package sketch

import (
	"crypto/md5"
	"errors"
	"math"
	"sort"

	"github.com/google/szl/codec"
	"github.com/google/szl/value"
)

const (
	// MinTabs and MaxTabs bound the number of rows. An odd row count
	// lets Estimate take a true median.
	MinTabs = 15
	MaxTabs = 31
)

var ErrShapeMismatch = errors.New("sketch: shape mismatch in AddSketch")

// Dims returns table dimensions (an odd row count in [MinTabs, MaxTabs]
// and a power-of-two column count) such that nTabs*tabSize is
// approximately totalSize.
func Dims(totalSize int) (nTabs, tabSize int) {
	ts := totalSize / 31
	bits := 2
	for bits < 32 && ts > (1<<uint(bits)) {
		bits++
	}
	tabs := MaxTabs
	for tabs > MinTabs {
		if (tabs-2)<<uint(bits) < totalSize {
			break
		}
		tabs -= 2
	}
	return tabs, 1 << uint(bits)
}

// index holds, for each of the nTabs rows, the column this key hashed
// to and the sign (0 = add, 1 = subtract) to apply there.
type index struct {
	elem [MaxTabs]int
	sign [MaxTabs]int
}

// CountSketch is a two-dimensional array of weights plus the hashing
// scheme used to project keys into it.
type CountSketch struct {
	weights []value.TypedValue // nTabs * tabSize cells
	tmp     [MaxTabs]value.TypedValue
	nTabs   int
	tabSize int
	tabBits int
	zero    value.TypedValue // zero value with the weight's shape
}

// New builds a sketch with the given dimensions (as returned by Dims)
// whose cells start at zero, shaped like zero.
func New(nTabs, tabSize int, zero value.TypedValue) *CountSketch {
	if nTabs < MinTabs || nTabs > MaxTabs || nTabs&1 == 0 {
		panic("sketch: nTabs must be odd and within [MinTabs, MaxTabs]")
	}
	if tabSize <= 0 || tabSize&(tabSize-1) != 0 {
		panic("sketch: tabSize must be a positive power of two")
	}
	bits := 0
	for tabSize > (1 << uint(bits)) {
		bits++
	}
	s := &CountSketch{
		nTabs:   nTabs,
		tabSize: tabSize,
		tabBits: bits,
		zero:    zero.AssignZero(),
	}
	s.weights = make([]value.TypedValue, nTabs*tabSize)
	for i := range s.weights {
		s.weights[i] = s.zero.Clone()
	}
	return s
}

func (s *CountSketch) NTabs() int   { return s.nTabs }
func (s *CountSketch) TabSize() int { return s.tabSize }

// Memory estimates the number of bytes the sketch currently occupies.
func (s *CountSketch) Memory() int {
	mem := 0
	for i := range s.weights {
		mem += s.weights[i].Memory()
	}
	return mem
}

// ComputeIndex derives the per-row (column, sign) pairs for key by
// consuming bits from repeated MD5 digests of key, rehashing whenever
// the current digest is exhausted.
func (s *CountSketch) ComputeIndex(key string) *index {
	digest := md5.Sum([]byte(key))
	idx := &index{}

	digi := 0
	var bits uint32
	nbits := 0
	origin := 0
	for i := 0; i < s.nTabs; i++ {
		for nbits < s.tabBits+1 {
			if digi == md5.Size {
				digest = md5.Sum(digest[:])
				digi = 0
			}
			bits |= uint32(digest[digi]) << uint(nbits)
			digi++
			nbits += 8
		}
		ind := int(bits) & ((1 << uint(s.tabBits)) - 1)
		idx.elem[i] = origin + ind
		origin += s.tabSize
		bits >>= uint(s.tabBits)
		idx.sign[i] = int(bits & 1)
		bits >>= 1
		nbits -= s.tabBits + 1
	}
	return idx
}

// AddSub adds or subtracts val at every row of idx, flipping the
// operation according to each row's sign bit so that, on average,
// unrelated keys cancel out and the estimate for any one key converges
// to its true total weight.
func (s *CountSketch) AddSub(idx *index, val value.TypedValue, isAdd bool) {
	addFlag := 0
	if isAdd {
		addFlag = 1
	}
	for i := 0; i < s.nTabs; i++ {
		w := &s.weights[idx.elem[i]]
		if idx.sign[i] == addFlag {
			val.SubFrom(w)
		} else {
			val.AddTo(w)
		}
	}
}

// Estimate computes the median-of-rows weight estimate for idx,
// per leaf position of the weight's shape. The median is more robust
// to sketch collisions than the mean.
func (s *CountSketch) Estimate(idx *index) value.TypedValue {
	values := make([]value.TypedValue, s.nTabs)
	for i := 0; i < s.nTabs; i++ {
		w := s.weights[idx.elem[i]]
		if idx.sign[i] != 0 {
			values[i] = w.Negate()
		} else {
			values[i] = w
		}
	}

	est := s.zero.Clone()
	nflats := s.zero.NumFlats()
	mid := s.nTabs / 2
	for pos := 0; pos < nflats; pos++ {
		p := pos
		sort.Slice(values, func(i, j int) bool {
			return values[i].LessAtPos(p, values[j])
		})
		values[mid].AssignAtPos(pos, &est)
	}
	return est
}

// StdDeviation computes, per leaf position, the standard deviation
// across sketch columns of the per-column weight estimate. It gives a
// display-time error bar for an estimate produced by this sketch.
func (s *CountSketch) StdDeviation() []float64 {
	nflats := s.zero.NumFlats()
	deviations := make([]float64, nflats)
	if s.tabSize == 0 {
		return deviations
	}

	columns := make([][]float64, s.tabSize)
	ave := make([]float64, nflats)
	for i := 0; i < s.tabSize; i++ {
		idx := &index{}
		origin := 0
		for row := 0; row < s.nTabs; row++ {
			idx.elem[row] = i + origin
			idx.sign[row] = 0
			origin += s.tabSize
		}
		col := s.Estimate(idx)
		colv := col.ToFloat(make([]float64, 0, nflats))
		columns[i] = colv
		for j := 0; j < nflats; j++ {
			ave[j] += colv[j]
		}
	}

	for j := 0; j < nflats; j++ {
		ave[j] /= float64(s.tabSize)
	}
	for i := 0; i < s.tabSize; i++ {
		for j := 0; j < nflats; j++ {
			d := columns[i][j] - ave[j]
			deviations[j] += d * d
		}
	}
	for j := 0; j < nflats; j++ {
		if deviations[j] > 0.00000001 {
			deviations[j] = math.Sqrt(deviations[j] / float64(s.tabSize))
		} else {
			deviations[j] = 0
		}
	}
	return deviations
}

// AddSketch merges another sketch of identical dimensions into s by
// adding weights cell by cell.
func (s *CountSketch) AddSketch(o *CountSketch) error {
	if o.tabSize != s.tabSize || o.nTabs != s.nTabs {
		return ErrShapeMismatch
	}
	for i := range s.weights {
		o.weights[i].AddTo(&s.weights[i])
	}
	return nil
}

// Encode appends every cell's weight, in row-major order, to enc. put's
// error return is ignored: sketch cells always hold the weight's
// numeric shape, which Put never rejects.
func (s *CountSketch) Encode(enc *codec.Encoder, put func(*codec.Encoder, value.TypedValue) error) {
	for i := range s.weights {
		put(enc, s.weights[i])
	}
}

// Decode reads nTabs*tabSize weights, in row-major order, from dec.
func (s *CountSketch) Decode(dec *codec.Decoder) error {
	for i := range s.weights {
		v, err := dec.Next()
		if err != nil {
			return err
		}
		s.weights[i] = v
	}
	return nil
}
