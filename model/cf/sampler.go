// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cf

import (
	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/dataset"
)

// sampler draws (user, positive item, negative item) triples. Users whose
// train row is empty or covers every item have no valid pair and are never
// drawn.
type sampler struct {
	nUsers   int32
	nItems   int32
	rows     [][]int32
	sets     []mapset.Set[int32]
	eligible *bitset.BitSet
}

func newSampler(train *dataset.SparseMatrix[float64]) *sampler {
	s := &sampler{
		nUsers:   train.NumRows(),
		nItems:   train.NumColumns(),
		rows:     make([][]int32, train.NumRows()),
		sets:     make([]mapset.Set[int32], train.NumRows()),
		eligible: bitset.New(uint(train.NumRows())),
	}
	for u := int32(0); u < s.nUsers; u++ {
		s.rows[u] = train.Row(u)
		s.sets[u] = mapset.NewThreadUnsafeSet(s.rows[u]...)
		if n := len(s.rows[u]); n > 0 && n < int(s.nItems) {
			s.eligible.Set(uint(u))
		}
	}
	return s
}

func (s *sampler) countEligible() int {
	return int(s.eligible.Count())
}

// sample must not be called if no user is eligible.
func (s *sampler) sample(rng base.RandomGenerator) (user, pos, neg int32) {
	for {
		user = rng.Int31n(s.nUsers)
		if s.eligible.Test(uint(user)) {
			break
		}
	}
	pos = s.rows[user][rng.Intn(len(s.rows[user]))]
	neg, _ = rng.SampleInt32(0, s.nItems, s.sets[user])
	return
}
