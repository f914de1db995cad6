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
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sample and weightedsample draw their random tags from this
// package-level generator rather than one instance per table, the
// same way the original process seeded a single global RNG from the
// host name, pid and time at startup. SetRandomSeed lets callers
// (tests, and a driver's --seed flag) replace that default with a
// reproducible value.
var (
	randMu    sync.Mutex
	randState uint64
)

func init() {
	SetRandomSeed(defaultSeed())
}

// SetRandomSeed reseeds the package-level sampling generator used by
// the sample and weightedsample kernels.
func SetRandomSeed(seed uint64) {
	randMu.Lock()
	defer randMu.Unlock()
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	randState = seed
}

// defaultSeed mixes the host name, process id, wall-clock time and a
// random UUID into a single seed, so two processes started at
// different times (or on different hosts) get different sample
// selections without any configuration.
func defaultSeed() uint64 {
	seed := uint64(time.Now().UnixNano())
	seed ^= uint64(os.Getpid()) * 0x100000001b3
	if host, err := os.Hostname(); err == nil {
		for _, c := range host {
			seed = seed*31 + uint64(c)
		}
	}
	id := uuid.New()
	seed ^= binary.LittleEndian.Uint64(id[:8])
	seed ^= binary.LittleEndian.Uint64(id[8:])
	return seed
}

// nextRandom returns the next value from a xorshift64* generator,
// advancing the shared state.
func nextRandom() uint64 {
	randMu.Lock()
	defer randMu.Unlock()
	if randState == 0 {
		randState = 0x9e3779b97f4a7c15
	}
	randState ^= randState << 13
	randState ^= randState >> 7
	randState ^= randState << 17
	return randState * 2685821657736338717
}

// nextUnitFloat returns a pseudo-random float64 drawn uniformly from
// (0, 1): 0 is excluded so -math.Log of the result is always finite,
// and 1 is never produced.
func nextUnitFloat() float64 {
	for {
		v := float64(nextRandom()>>11) / float64(uint64(1)<<53)
		if v > 0 {
			return v
		}
	}
}
