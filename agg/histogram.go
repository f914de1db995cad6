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

// InverseHistogram scales each of weights by the inverse of fraction,
// the share of the distinct-key space a k-minimum-values sample is
// estimated to cover. distinctsample uses it to turn the weight
// actually observed for each sampled distinct element into an
// estimate of that element's total weight contribution across the
// full, unsampled stream: once the sample saturates its capacity, the
// smallest-hash threshold implies roughly what fraction of all
// distinct keys were ever seen, and dividing by that fraction
// rescales the observed weights accordingly.
//
// fraction outside (0, 1) means the sample never saturated (every
// distinct key was seen directly), so weights are returned unscaled.
func InverseHistogram(weights []value.Weight, fraction float64) []value.Weight {
	if fraction <= 0 || fraction >= 1 {
		return weights
	}
	scale := 1 / fraction
	out := make([]value.Weight, len(weights))
	for i, w := range weights {
		out[i] = scaleWeight(w, scale)
	}
	return out
}

func scaleWeight(w value.Weight, scale float64) value.Weight {
	switch w.Kind {
	case value.Int:
		return value.NewInt(int64(float64(w.Int()) * scale))
	case value.Uint:
		return value.NewUint(uint64(float64(w.Uint()) * scale))
	case value.Float:
		return value.NewFloat(w.Float() * scale)
	case value.Tuple:
		elems := make([]value.TypedValue, len(w.Elems))
		for i, e := range w.Elems {
			elems[i] = scaleWeight(e, scale)
		}
		return value.NewTuple(elems)
	default:
		return w
	}
}
