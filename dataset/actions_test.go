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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActions(t *testing.T) {
	a := NewActions(3, 2, 2)
	assert.Equal(t, 3, a.NumActions())
	assert.True(t, a.Record(1, 0, 1))
	assert.True(t, a.Record(1, 0, 1))
	assert.True(t, a.Record(3, 1, 1))
	assert.False(t, a.Record(0, 0, 0))
	assert.False(t, a.Record(4, 0, 0))
	assert.Nil(t, a.Channel(4))

	// repeated actions share one entry
	assert.Equal(t, 1, a.Channel(1).Size())
	count, _ := a.Channel(1).Get(0, 1)
	assert.Equal(t, 2, count)
	assert.Equal(t, []float64{2, 0, 1}, a.ItemCounts(1))
	assert.Equal(t, []float64{1, 0, 0}, a.Indicators(0, 1))
	assert.Equal(t, []float64{0, 0, 1}, a.Indicators(1, 1))
	assert.Equal(t, []float64{0, 0, 0}, a.Indicators(1, 0))

	// totals equal column sums
	for k := 1; k <= a.NumActions(); k++ {
		for i := int32(0); i < 2; i++ {
			assert.Equal(t, a.Channel(k).ColumnSum(i), a.ItemCount(k, i))
		}
	}

	a.Resize(3, 4)
	assert.Equal(t, int32(3), a.Channel(2).NumRows())
	assert.Equal(t, int32(4), a.Channel(2).NumColumns())
	assert.Equal(t, []float64{0, 0, 0}, a.ItemCounts(3))
	assert.True(t, a.Record(2, 2, 3))
	assert.Equal(t, 1, a.ItemCount(2, 3))
	assert.Zero(t, a.ItemCount(2, 9))
}
