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

package main

import "github.com/google/szl/agg"

// setSampleSeed lets --seed replace the sample/weightedsample kernels'
// default host/pid/time-derived seed with a reproducible value, for
// scripts that want deterministic output across runs.
func setSampleSeed(seed uint64) {
	agg.SetRandomSeed(seed)
}
