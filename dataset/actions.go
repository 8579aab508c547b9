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

package dataset

// MaxActions is the largest number of action channels.
const MaxActions = 9

// Actions holds one count table per action channel and the per-item totals of
// every channel. Channel ids start at 1.
type Actions struct {
	tables     []*SparseMatrix[int]
	itemCounts [][]int
}

func NewActions(numActions int, nUsers, nItems int32) *Actions {
	a := &Actions{
		tables:     make([]*SparseMatrix[int], numActions),
		itemCounts: make([][]int, numActions),
	}
	for k := range a.tables {
		a.tables[k] = NewSparseMatrix[int](nUsers, nItems)
		a.itemCounts[k] = make([]int, nItems)
	}
	return a
}

func (a *Actions) NumActions() int {
	return len(a.tables)
}

func (a *Actions) Resize(nUsers, nItems int32) {
	for k := range a.tables {
		a.tables[k].Resize(nUsers, nItems)
		for int32(len(a.itemCounts[k])) < nItems {
			a.itemCounts[k] = append(a.itemCounts[k], 0)
		}
	}
}

// Record counts one action. Channels outside [1, NumActions] are ignored and
// reported as false.
func (a *Actions) Record(channel int, user, item int32) bool {
	if channel < 1 || channel > len(a.tables) {
		return false
	}
	a.tables[channel-1].Add(user, item, 1)
	a.itemCounts[channel-1][item]++
	return true
}

// Channel returns the count table of a channel, or nil for an unknown channel.
func (a *Actions) Channel(channel int) *SparseMatrix[int] {
	if channel < 1 || channel > len(a.tables) {
		return nil
	}
	return a.tables[channel-1]
}

// ItemCount returns how many times item received actions of a channel.
func (a *Actions) ItemCount(channel int, item int32) int {
	if channel < 1 || channel > len(a.tables) || int(item) >= len(a.itemCounts[channel-1]) {
		return 0
	}
	return a.itemCounts[channel-1][item]
}

// ItemCounts returns the per-channel totals of an item. Position k holds
// channel k+1.
func (a *Actions) ItemCounts(item int32) []float64 {
	counts := make([]float64, len(a.tables))
	for k := range counts {
		counts[k] = float64(a.ItemCount(k+1, item))
	}
	return counts
}

// Indicators returns whether each channel holds (user, item). Position k holds
// channel k+1.
func (a *Actions) Indicators(user, item int32) []float64 {
	indicators := make([]float64, len(a.tables))
	for k, table := range a.tables {
		if table.Contains(user, item) {
			indicators[k] = 1
		}
	}
	return indicators
}
