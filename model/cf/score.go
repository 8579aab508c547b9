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
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// PopularityCache keeps the popularity of an item from its first computation
// until the end of a training run. Entries are never refreshed, so within a
// run an item's popularity is frozen at the weights of the first user that
// touched it.
type PopularityCache struct {
	mu     sync.RWMutex
	values []float64
	filled *bitset.BitSet
}

func NewPopularityCache(nItems int32) *PopularityCache {
	return &PopularityCache{
		values: make([]float64, nItems),
		filled: bitset.New(uint(nItems)),
	}
}

func (c *PopularityCache) Get(item int32) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.filled.Test(uint(item)) {
		return 0, false
	}
	return c.values[item], true
}

// GetOrCompute returns the cached value of item, computing and storing it on
// the first access.
func (c *PopularityCache) GetOrCompute(item int32, compute func() float64) float64 {
	if value, ok := c.Get(item); ok {
		return value
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filled.Test(uint(item)) {
		return c.values[item]
	}
	value := compute()
	c.values[item] = value
	c.filled.Set(uint(item))
	return value
}

// Len returns the number of cached items.
func (c *PopularityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.filled.Count())
}
