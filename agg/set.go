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
	"golang.org/x/exp/slices"
)

func init() {
	Register("set", newSetWriter)
}

type setWriter struct {
	param int
}

func newSetWriter(t Type) (Writer, error) {
	if t.Param <= 0 {
		return nil, fmt.Errorf("%w: set requires a positive size parameter", ErrInvalidParam)
	}
	return &setWriter{param: t.Param}, nil
}

func (w *setWriter) Aggregates() bool { return true }
func (w *setWriter) Filters() bool    { return false }
func (w *setWriter) HasWeight() bool  { return false }
func (w *setWriter) Param() int       { return w.param }

func (w *setWriter) CreateEntry() Kernel {
	return &setKernel{param: w.param, elems: map[string][]byte{}}
}

// setKernel tracks up to param distinct elements. Once a (param+1)th
// distinct element would be added, the set can no longer represent its
// full membership and permanently switches to overflowed: the
// individual elements are dropped and only the total count survives.
type setKernel struct {
	param      int
	elems      map[string][]byte
	overflowed bool
	tot        int64
}

func (k *setKernel) Add(elem []byte) (int, error) {
	k.tot++
	if k.overflowed {
		return 0, nil
	}
	key := string(elem)
	if _, ok := k.elems[key]; ok {
		return 0, nil
	}
	if len(k.elems) >= k.param {
		mem := k.memoryElems()
		k.overflowed = true
		k.elems = nil
		return -mem, nil
	}
	k.elems[key] = elem
	return len(elem) + len(key), nil
}

func (k *setKernel) AddWeighted(elem []byte, w value.Weight) (int, error) {
	return 0, fmt.Errorf("%w: set", ErrUnsupported)
}

func (k *setKernel) memoryElems() int {
	mem := 0
	for key, v := range k.elems {
		mem += len(key) + len(v)
	}
	return mem
}

func (k *setKernel) sortedElems() [][]byte {
	out := make([][]byte, 0, len(k.elems))
	for _, v := range k.elems {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b []byte) bool { return string(a) < string(b) })
	return out
}

func (k *setKernel) Flush() []byte {
	if k.tot == 0 {
		return nil
	}
	enc := codec.NewEncoder()
	enc.PutInt(k.tot)
	enc.PutBool(k.overflowed)
	if k.overflowed {
		enc.PutInt(0)
	} else {
		elems := k.sortedElems()
		enc.PutInt(int64(len(elems)))
		for _, e := range elems {
			enc.PutBytes(e)
		}
	}
	out := enc.Take()
	k.Clear()
	return out
}

func (k *setKernel) FlushDisplay() [][]byte {
	if k.tot == 0 {
		return nil
	}
	if k.overflowed {
		enc := codec.NewEncoder()
		enc.PutBool(true)
		return [][]byte{enc.Take()}
	}
	elems := k.sortedElems()
	rows := make([][]byte, len(elems))
	for i, e := range elems {
		enc := codec.NewEncoder()
		enc.PutBool(false)
		enc.PutBytes(e)
		rows[i] = enc.Take()
	}
	return rows
}

func (k *setKernel) Merge(data []byte) MergeStatus {
	if len(data) == 0 {
		return MergeOk
	}
	dec := codec.NewDecoder(data)
	extra, err := dec.Next()
	if err != nil || extra.Kind != value.Int || extra.Int() <= 0 {
		return MergeError
	}
	ovf, err := dec.Next()
	if err != nil || ovf.Kind != value.Bool {
		return MergeError
	}
	n, err := dec.Next()
	if err != nil || n.Kind != value.Int || n.Int() < 0 {
		return MergeError
	}
	elems := make([][]byte, 0, n.Int())
	for i := int64(0); i < n.Int(); i++ {
		v, err := dec.Next()
		if err != nil || v.Kind != value.Bytes {
			return MergeError
		}
		elems = append(elems, v.Bytes())
	}
	if !dec.Done() {
		return MergeError
	}

	k.tot += extra.Int()
	if k.overflowed || ovf.Bool() {
		k.overflowed = true
		k.elems = nil
		return MergeOk
	}
	if k.elems == nil {
		k.elems = map[string][]byte{}
	}
	for _, e := range elems {
		key := string(e)
		if _, ok := k.elems[key]; ok {
			continue
		}
		if len(k.elems) >= k.param {
			k.overflowed = true
			k.elems = nil
			break
		}
		k.elems[key] = e
	}
	return MergeOk
}

func (k *setKernel) Clear() {
	k.tot = 0
	k.overflowed = false
	k.elems = map[string][]byte{}
}

func (k *setKernel) Memory() int { return 24 + k.memoryElems() }

func (k *setKernel) TupleCount() int {
	if k.overflowed {
		return 1
	}
	return len(k.elems)
}

func (k *setKernel) TotElems() int64 { return k.tot }
