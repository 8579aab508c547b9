// Copyright 2022 gorse Project Authors
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

package heap

import (
	"math"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func values(elems []Elem[int32, float64]) []int32 {
	return lo.Map(elems, func(e Elem[int32, float64], _ int) int32 { return e.Value })
}

func TestTopKFilter(t *testing.T) {
	a := NewTopKFilter[int32, float64](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	assert.Equal(t, []int32{20, 10, 30}, values(a.PopAll()))

	a = NewTopKFilter[int32, float64](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	a.Push(40, 2)
	a.Push(50, 5)
	a.Push(12, 10)
	a.Push(67, 7)
	a.Push(32, 9)
	elems := a.PopAll()
	assert.Equal(t, []Elem[int32, float64]{
		{Value: 12, Weight: 10},
		{Value: 32, Weight: 9},
		{Value: 20, Weight: 8},
	}, elems)
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilter[int32, float64](2)
	for i := int32(0); i < 5; i++ {
		a.Push(i, 1)
	}
	assert.Equal(t, []int32{0, 1}, values(a.PopAll()))

	a = NewTopKFilter[int32, float64](3)
	a.Push(0, 1)
	a.Push(1, 3)
	a.Push(2, 1)
	a.Push(3, 3)
	a.Push(4, 1)
	assert.Equal(t, []int32{1, 3, 0}, values(a.PopAll()))
}

func TestTopKFilterNaN(t *testing.T) {
	a := NewTopKFilter[int32, float64](3)
	a.Push(0, math.NaN())
	a.Push(1, 0.5)
	a.Push(2, math.NaN())
	assert.Equal(t, []Elem[int32, float64]{{Value: 1, Weight: 0.5}}, a.PopAll())
	assert.Empty(t, a.PopAll())
}
