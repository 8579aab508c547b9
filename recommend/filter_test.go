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


package recommend

import (
	"testing"

	"github.com/gorse-io/actionrank/base"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemFilter(t *testing.T) {
	items := []RecommendedItem{
		{UserId: "u0", ItemId: "i0", Score: 0.9},
		{UserId: "u0", ItemId: "i1", Score: 0.2},
		{UserId: "u1", ItemId: "i0", Score: 0.6},
	}
	filter, err := NewItemFilter(`score > 0.5 && user != "u1"`)
	require.NoError(t, err)
	assert.Equal(t, items[:1], filter.Filter(items))

	filter, err = NewItemFilter("")
	require.NoError(t, err)
	assert.Equal(t, items, filter.Filter(items))

	_, err = NewItemFilter("score +")
	assert.True(t, errors.Is(err, base.ErrInvalidConfiguration))
	// not a boolean
	_, err = NewItemFilter("score * 2")
	assert.True(t, errors.Is(err, base.ErrInvalidConfiguration))
}
