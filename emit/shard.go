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

package emit

import (
	"sync/atomic"

	"github.com/dchest/siphash"
)

// shardKey0/shardKey1 are the fixed SipHash-2-4 keys used for the
// aggregating-table sharding contract of spec.md §6: "the shard for
// (table, key) is fingerprint(table || key) % N". A fixed key is
// required, not a per-process random one, so that two independent
// shards hashing the same (table, key) agree on which reducer owns
// it; keyed hashing (rather than an unkeyed fingerprint) follows the
// same choice vm/interphash.go and ion/zion/hash.go make for fast
// string hashing elsewhere in the stack.
const (
	shardKey0 uint64 = 0x736a6c5f73686172 // "sjl_shar"
	shardKey1 uint64 = 0x645f73697068ff00 // "d_siph"+0xff,0x00
)

// Shard returns the reducer index in [0, n) responsible for (table,
// key) among n aggregating shards.
func Shard(table, key string, n int) int {
	if n <= 0 {
		return 0
	}
	h := siphash.Hash(shardKey0, shardKey1, append([]byte(table), key...))
	return int(h % uint64(n))
}

// RoundRobin hands out shard indices in rotation for tables that have
// no indices and do not aggregate (spec.md §6: "for non-aggregating
// tables without indices, the driver shards round-robin").
type RoundRobin struct {
	next uint32
}

// Next returns the next shard index in [0, n) in round-robin order.
func (r *RoundRobin) Next(n int) int {
	if n <= 0 {
		return 0
	}
	v := atomic.AddUint32(&r.next, 1) - 1
	return int(v % uint32(n))
}

// NewRoundRobin returns a fresh round-robin shard chooser.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }
