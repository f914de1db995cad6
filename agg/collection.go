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

import "github.com/google/szl/value"

func init() {
	Register("collection", newCollectionWriter)
}

// collectionWriter backs non-aggregating tables: records pass straight
// through the emit driver to the table's output writer, and the
// registry only needs a type-valid, otherwise-inert entry.
type collectionWriter struct{}

func newCollectionWriter(t Type) (Writer, error) {
	return &collectionWriter{}, nil
}

func (w *collectionWriter) Aggregates() bool { return false }
func (w *collectionWriter) Filters() bool    { return false }
func (w *collectionWriter) HasWeight() bool  { return false }
func (w *collectionWriter) Param() int       { return 0 }

func (w *collectionWriter) CreateEntry() Kernel { return &collectionKernel{} }

type collectionKernel struct{}

func (k *collectionKernel) Add(elem []byte) (int, error)                  { return 0, nil }
func (k *collectionKernel) AddWeighted(elem []byte, w value.Weight) (int, error) { return 0, nil }
func (k *collectionKernel) Flush() []byte                                 { return nil }
func (k *collectionKernel) FlushDisplay() [][]byte                        { return nil }
func (k *collectionKernel) Merge(data []byte) MergeStatus                 { return MergeOk }
func (k *collectionKernel) Clear()                                        {}
func (k *collectionKernel) Memory() int                                   { return 0 }
func (k *collectionKernel) TupleCount() int                               { return 0 }
func (k *collectionKernel) TotElems() int64                               { return 0 }
