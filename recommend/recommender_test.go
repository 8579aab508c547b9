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
	"context"
	"math"
	"strings"
	"testing"

	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/base/progress"
	"github.com/gorse-io/actionrank/dataset"
	"github.com/gorse-io/actionrank/model"
	"github.com/gorse-io/actionrank/model/cf"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockModel struct {
	model.BaseModel
	predict func(user, item int32) float64
	invalid error
	err     error
	panic   bool
	fitted  bool
	cleared bool
}

func (m *mockModel) Fit(_ context.Context, _ *dataset.SparseMatrix[float64], _ *dataset.Actions, config *cf.FitConfig) (cf.Score, error) {
	m.fitted = true
	if m.panic {
		panic("mock")
	}
	if config.OnEpoch != nil {
		config.OnEpoch(1, 1)
	}
	return cf.Score{Epochs: 1, Loss: 1}, m.err
}

func (m *mockModel) Validate() error {
	return m.invalid
}

func (m *mockModel) Predict(user, item int32) float64 {
	return m.predict(user, item)
}

func (m *mockModel) Clear() {
	m.cleared = true
}

// diagonal returns an n by n train matrix where user u has consumed item u.
func diagonal(n int32) *dataset.SparseMatrix[float64] {
	train := dataset.NewSparseMatrix[float64](n, n)
	for u := int32(0); u < n; u++ {
		train.Set(u, u, 1)
	}
	return train
}

func newIndex(names ...string) *dataset.Index {
	index := dataset.NewIndex()
	for _, name := range names {
		index.Resolve(name)
	}
	return index
}

func rankingConfig(topN int) Config {
	config := DefaultConfig()
	config.TopN = topN
	return config
}

func trained(t *testing.T, m Model, config Config, train, test *dataset.SparseMatrix[float64]) *Recommender {
	r := New(m, config)
	require.NoError(t, r.Setup(train, test, nil, nil, nil, nil))
	_, err := r.Train(context.Background())
	require.NoError(t, err)
	return r
}

func TestRecommender_Setup(t *testing.T) {
	train := dataset.NewSparseMatrix[float64](3, 4)
	train.Set(0, 0, 2)
	train.Set(0, 1, 4)
	train.Set(1, 2, 2)
	test := dataset.NewSparseMatrix[float64](3, 4)
	test.Set(0, 3, 1)
	test.Set(2, 0, 1)
	test.Set(2, 1, 1)

	r := New(&mockModel{}, rankingConfig(5))
	assert.Equal(t, StateCreated, r.State())
	assert.Nil(t, r.Context())
	require.NoError(t, r.Setup(train, test, nil, nil, nil, nil))
	assert.Equal(t, StateSetUp, r.State())
	c := r.Context()
	assert.Equal(t, int32(3), c.NumUsers)
	assert.Equal(t, int32(4), c.NumItems)
	assert.Equal(t, 3, c.NumRates)
	assert.Equal(t, []float64{2, 4}, c.RatingScale)
	assert.Equal(t, 2.0, c.MinRate)
	assert.Equal(t, 4.0, c.MaxRate)
	assert.InDelta(t, 8.0/3, c.GlobalMean, 1e-12)
	assert.Equal(t, []int{2, 3, 4}, c.DroppedItems)
	assert.Equal(t, 2, c.MaxTestItems)
	assert.Equal(t, []int{1, 1, 1, 0}, c.ItemUsers)
	assert.Equal(t, 1, c.ColdItems)
	assert.Equal(t, 5, c.TopN)
	assert.True(t, c.Ranking)
}

func TestRecommender_SetupSingleRating(t *testing.T) {
	r := New(&mockModel{}, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(3), nil, nil, nil, nil, nil))
	assert.Equal(t, 0.0, r.Context().MinRate)
	assert.Equal(t, 1.0, r.Context().MaxRate)
	assert.Zero(t, r.Context().MaxTestItems)
	assert.NotNil(t, r.Context().Test)
}

func TestRecommender_InvalidTopN(t *testing.T) {
	for _, topN := range []int{0, -3} {
		r := New(&mockModel{}, rankingConfig(topN))
		err := r.Setup(diagonal(2), nil, nil, nil, nil, nil)
		assert.True(t, errors.Is(err, base.ErrInvalidConfiguration))
		assert.Equal(t, StateCreated, r.State())
	}
	// top n is ignored in rating mode
	config := rankingConfig(0)
	config.Ranking = false
	r := New(&mockModel{}, config)
	assert.NoError(t, r.Setup(diagonal(2), nil, nil, nil, nil, nil))
}

func TestRecommender_WrongState(t *testing.T) {
	r := New(&mockModel{predict: func(int32, int32) float64 { return 0 }}, rankingConfig(1))
	_, err := r.Train(context.Background())
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = r.Recommend()
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = r.Evaluate()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Equal(t, StateCreated, r.State())

	require.NoError(t, r.Setup(diagonal(2), nil, nil, nil, nil, nil))
	err = r.Setup(diagonal(2), nil, nil, nil, nil, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = r.Recommend()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Equal(t, StateSetUp, r.State())
}

func TestRecommender_Ranking(t *testing.T) {
	m := &mockModel{predict: func(_, item int32) float64 { return float64(item) }}
	r := New(m, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(3), nil, nil, nil, newIndex("u0", "u1", "u2"), newIndex("i0", "i1", "i2")))
	result, err := r.Train(context.Background())
	require.NoError(t, err)
	assert.True(t, m.fitted)
	assert.False(t, result.Partial)
	assert.Equal(t, 1, result.Score.Epochs)
	assert.Equal(t, StateTrained, r.State())
	assert.Nil(t, r.RecommendedItems())

	list, err := r.Recommend()
	require.NoError(t, err)
	assert.Equal(t, StateRanked, r.State())
	for u := int32(0); u < 3; u++ {
		items := list.Items(u)
		assert.Len(t, items, 1)
		assert.NotContains(t, items, u)
	}
	assert.Equal(t, []int32{2}, list.Items(0))
	assert.Equal(t, []int32{2}, list.Items(1))
	assert.Equal(t, []int32{1}, list.Items(2))
	assert.Equal(t, []RecommendedItem{
		{User: 0, Item: 2, UserId: "u0", ItemId: "i2", Score: 2},
		{User: 1, Item: 2, UserId: "u1", ItemId: "i2", Score: 2},
		{User: 2, Item: 1, UserId: "u2", ItemId: "i1", Score: 1},
	}, r.RecommendedItems())
}

func TestRecommender_RankingOrder(t *testing.T) {
	train := dataset.NewSparseMatrix[float64](1, 6)
	train.Set(0, 2, 1)
	m := &mockModel{predict: func(_, item int32) float64 {
		return []float64{0.3, 0.9, 0, math.NaN(), 0.9, 0.5}[item]
	}}
	list, err := trained(t, m, rankingConfig(10), train, nil).Recommend()
	require.NoError(t, err)
	// NaN is skipped and the tie keeps the lower index first
	assert.Equal(t, []int32{1, 4, 5, 0}, list.Items(0))
	assert.Equal(t, []float64{0.9, 0.9, 0.5, 0.3}, lo.Map(list.User(0), func(r RecommendedItem, _ int) float64 {
		return r.Score
	}))
}

func TestRecommender_TieBreak(t *testing.T) {
	m := &mockModel{predict: func(int32, int32) float64 { return 0.5 }}
	list, err := trained(t, m, rankingConfig(1), diagonal(3), nil).Recommend()
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, list.Items(0))
	assert.Equal(t, []int32{0}, list.Items(1))
	assert.Equal(t, []int32{0}, list.Items(2))
}

func TestRecommender_EmptyRecommendation(t *testing.T) {
	m := &mockModel{predict: func(int32, int32) float64 { return math.NaN() }}
	r := trained(t, m, rankingConfig(3), diagonal(3), nil)
	_, err := r.Recommend()
	assert.True(t, errors.Is(err, base.ErrEmptyRecommendation))
	assert.Equal(t, StateTrained, r.State())
}

func TestRecommender_Rating(t *testing.T) {
	train := dataset.NewSparseMatrix[float64](3, 3)
	train.Set(0, 0, 1)
	train.Set(1, 1, 3)
	train.Set(2, 2, 3)
	test := dataset.NewSparseMatrix[float64](3, 3)
	test.Set(0, 1, 2)
	test.Set(1, 0, 1)
	test.Set(1, 2, 3)
	m := &mockModel{predict: func(user, item int32) float64 {
		switch {
		case user == 0 && item == 1:
			return 5
		case user == 1 && item == 0:
			return math.NaN()
		default:
			return -3
		}
	}}
	config := DefaultConfig()
	config.Ranking = false
	r := trained(t, m, config, train, test)
	list, err := r.Recommend()
	require.NoError(t, err)
	assert.Equal(t, StateRated, r.State())
	assert.Equal(t, 3, list.Size())
	assert.Equal(t, []RecommendedItem{{User: 0, Item: 1, Score: 3}}, list.User(0))
	assert.Equal(t, []int32{0, 2}, list.Items(1))
	assert.InDelta(t, 7.0/3, list.User(1)[0].Score, 1e-12)
	assert.Equal(t, 1.0, list.User(1)[1].Score)
	assert.Empty(t, list.User(2))
	// raw ids fall back to indices
	assert.Equal(t, "1", r.RecommendedItems()[0].ItemId)
}

func TestRecommender_TrainFailure(t *testing.T) {
	predict := func(int32, int32) float64 { return 1 }

	m := &mockModel{predict: predict, err: errors.New("boom")}
	r := New(m, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(2), nil, nil, nil, nil, nil))
	result, err := r.Train(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.EqualError(t, result.Err, "boom")
	assert.Equal(t, StateTrained, r.State())
	_, err = r.Recommend()
	assert.NoError(t, err)

	m = &mockModel{predict: predict, panic: true}
	r = New(m, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(2), nil, nil, nil, nil, nil))
	result, err = r.Train(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Contains(t, result.Err.Error(), "mock")

	m = &mockModel{predict: predict, err: errors.Annotate(base.ErrNumericDivergence, "loss = NaN")}
	r = New(m, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(2), nil, nil, nil, nil, nil))
	_, err = r.Train(context.Background())
	assert.True(t, errors.Is(err, base.ErrNumericDivergence))
	assert.Equal(t, StateSetUp, r.State())
}

func TestRecommender_InvalidModelParams(t *testing.T) {
	// rejected at setup
	r := New(cf.NewBPRPlus(model.Params{model.Alpha: 1.5}), rankingConfig(1))
	err := r.Setup(diagonal(3), nil, nil, nil, nil, nil)
	assert.True(t, errors.Is(err, base.ErrInvalidConfiguration))
	assert.Equal(t, StateCreated, r.State())
	for _, params := range []model.Params{
		{model.NFactors: 0},
		{model.NumActions: 10},
		{model.SamplesPerUser: 0},
	} {
		r = New(cf.NewBPRPlus(params), rankingConfig(1))
		err = r.Setup(diagonal(3), nil, nil, nil, nil, nil)
		assert.True(t, errors.Is(err, base.ErrInvalidConfiguration), params)
	}
	r = New(&mockModel{invalid: errors.Annotate(base.ErrInvalidConfiguration, "n_factors = 0")}, rankingConfig(1))
	err = r.Setup(diagonal(3), nil, nil, nil, nil, nil)
	assert.True(t, errors.Is(err, base.ErrInvalidConfiguration))
	assert.Nil(t, r.Context())

	// fatal when reported by fit
	m := &mockModel{
		predict: func(int32, int32) float64 { return math.NaN() },
		err:     errors.Annotate(base.ErrInvalidConfiguration, "alpha = 1.5"),
	}
	r = New(m, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(2), nil, nil, nil, nil, nil))
	_, err = r.Train(context.Background())
	assert.True(t, errors.Is(err, base.ErrInvalidConfiguration))
	assert.Equal(t, StateSetUp, r.State())
	_, err = r.Recommend()
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRecommender_Evaluate(t *testing.T) {
	train := diagonal(3)
	test := dataset.NewSparseMatrix[float64](3, 3)
	test.Set(0, 2, 1)
	test.Set(1, 0, 1)
	m := &mockModel{predict: func(_, item int32) float64 { return float64(item) }}
	epochs := 0
	config := rankingConfig(1)
	config.OnEpoch = func(int, float64) { epochs++ }
	r := trained(t, m, config, train, test)
	assert.Equal(t, 1, epochs)
	_, err := r.Recommend()
	require.NoError(t, err)
	scores, err := r.Evaluate(NewPrecision(1), NewRecall(1))
	require.NoError(t, err)
	// user 0 hits item 2, user 1 misses item 0
	assert.Equal(t, map[string]float64{"Precision@1": 0.5, "Recall@1": 0.5}, scores)
	assert.Equal(t, StateEvaluated, r.State())
	_, err = r.Evaluate()
	assert.True(t, errors.Is(err, errors.NotValid))

	names := lo.Map(r.Progress(), func(p progress.Progress, _ int) string { return p.Name })
	assert.ElementsMatch(t, []string{"Setup", "Train", "Rank", "Evaluate"}, names)
	for _, p := range r.Progress() {
		assert.Equal(t, progress.StatusComplete, p.Status)
	}

	require.NoError(t, r.Cleanup())
	assert.True(t, m.cleared)
	assert.Equal(t, StateCleanedUp, r.State())
	assert.Nil(t, r.Context())
	assert.Nil(t, r.RecommendedItems())
	assert.True(t, errors.Is(r.Cleanup(), errors.NotValid))
	assert.NoError(t, r.SaveModel("model.bin"))
	assert.NoError(t, r.LoadModel("model.bin"))
}

func TestRecommender_BPRPlus(t *testing.T) {
	loader := dataset.NewLoader(dataset.DefaultLoadOptions())
	require.NoError(t, loader.Read(strings.NewReader("u1 i1 1\nu2 i2 1\nu3 i3 1\nu1 i2 1\n"), "actions"))
	data := loader.Dataset()
	m := cf.NewBPRPlus(model.Params{model.NEpochs: 5, model.RandomState: 3})
	config := rankingConfig(1)
	config.Verbose = false
	r := New(m, config)
	require.NoError(t, r.Setup(data.Preference, nil, nil, data.Actions, data.UserIndex, data.ItemIndex))
	result, err := r.Train(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.Equal(t, 5, result.Score.Epochs)
	list, err := r.Recommend()
	require.NoError(t, err)
	for u := int32(0); u < data.CountUsers(); u++ {
		items := list.Items(u)
		assert.Len(t, items, 1)
		assert.False(t, data.Preference.Contains(u, items[0]))
	}
	items := r.RecommendedItems()
	assert.Len(t, items, 3)
	assert.Equal(t, "u1", items[0].UserId)
	assert.Equal(t, "i3", items[0].ItemId)
	require.NoError(t, r.Cleanup())
	assert.Nil(t, m.UserFactor)
}

func TestRecommender_Cancel(t *testing.T) {
	m := cf.NewBPRPlus(model.Params{model.NEpochs: 5})
	r := New(m, rankingConfig(1))
	require.NoError(t, r.Setup(diagonal(3), nil, nil, nil, nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Train(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateSetUp, r.State())
}
