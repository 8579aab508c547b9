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
	"fmt"
	"math"
	"sort"

	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/base/log"
	"github.com/gorse-io/actionrank/base/progress"
	"github.com/gorse-io/actionrank/common/heap"
	"github.com/gorse-io/actionrank/dataset"
	"github.com/gorse-io/actionrank/model"
	"github.com/gorse-io/actionrank/model/cf"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type State int

const (
	StateCreated State = iota
	StateSetUp
	StateTrained
	StateRanked
	StateRated
	StateEvaluated
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateSetUp:
		return "SetUp"
	case StateTrained:
		return "Trained"
	case StateRanked:
		return "Ranked"
	case StateRated:
		return "Rated"
	case StateEvaluated:
		return "Evaluated"
	case StateCleanedUp:
		return "CleanedUp"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Model is a trainable scorer over dense user and item indices.
type Model interface {
	model.Model
	Fit(ctx context.Context, train *dataset.SparseMatrix[float64], actions *dataset.Actions, config *cf.FitConfig) (cf.Score, error)
	// Predict returns NaN for pairs it cannot score.
	Predict(user, item int32) float64
}

type Config struct {
	Ranking   bool
	TopN      int
	EarlyStop bool
	Verbose   bool
	Jobs      int
	OnEpoch   func(epoch int, loss float64)
}

func DefaultConfig() Config {
	return Config{
		Ranking: true,
		TopN:    10,
		Verbose: true,
		Jobs:    1,
	}
}

// Context carries the data bound at setup and the statistics derived from it.
type Context struct {
	Train     *dataset.SparseMatrix[float64]
	Test      *dataset.SparseMatrix[float64]
	Valid     *dataset.SparseMatrix[float64]
	Actions   *dataset.Actions
	UserIndex *dataset.Index
	ItemIndex *dataset.Index

	Ranking bool
	TopN    int

	NumUsers    int32
	NumItems    int32
	NumRates    int
	RatingScale []float64
	MaxRate     float64
	MinRate     float64
	GlobalMean  float64
	// DroppedItems[u] is the number of items absent from the train row of u.
	DroppedItems []int
	MaxTestItems int
	// ItemUsers[i] is the number of train users of item i.
	ItemUsers []int
	ColdItems int
}

// TrainResult reports how training ended. Partial is set when the model
// failed with a recoverable error, which is kept in Err.
type TrainResult struct {
	Partial bool
	Err     error
	Score   cf.Score
}

// Recommender drives a model through setup, training, recommendation,
// evaluation and cleanup. Every operation must be called in that order.
type Recommender struct {
	model  Model
	config Config
	state  State
	ctx    *Context
	list   *RecommendedList
	tracer *progress.Tracer
}

func New(m Model, config Config) *Recommender {
	return &Recommender{
		model:  m,
		config: config,
		state:  StateCreated,
		tracer: progress.NewTracer("recommender"),
	}
}

func (r *Recommender) State() State {
	return r.state
}

// Context returns nil before setup.
func (r *Recommender) Context() *Context {
	return r.ctx
}

func (r *Recommender) Progress() []progress.Progress {
	return r.tracer.List()
}

func (r *Recommender) expect(op string, states ...State) error {
	for _, s := range states {
		if r.state == s {
			return nil
		}
	}
	return errors.NotValidf("%s in state %v", op, r.state)
}

// Setup binds the data and computes statistics. test and valid may be nil.
func (r *Recommender) Setup(train, test, valid *dataset.SparseMatrix[float64], actions *dataset.Actions, userIndex, itemIndex *dataset.Index) error {
	if err := r.expect("setup", StateCreated); err != nil {
		return err
	}
	if train == nil {
		return errors.NotValidf("nil train set")
	}
	if r.config.Ranking && r.config.TopN <= 0 {
		return errors.Annotatef(base.ErrInvalidConfiguration, "top n should be positive, got %d", r.config.TopN)
	}
	if err := r.model.Validate(); err != nil {
		return errors.Trace(err)
	}
	_, span := r.tracer.Start(context.Background(), "Setup", 1)
	defer span.End()
	if test == nil {
		test = dataset.NewSparseMatrix[float64](train.NumRows(), train.NumColumns())
	}
	c := &Context{
		Train:     train,
		Test:      test,
		Valid:     valid,
		Actions:   actions,
		UserIndex: userIndex,
		ItemIndex: itemIndex,
		Ranking:   r.config.Ranking,
		TopN:      r.config.TopN,
		NumUsers:  train.NumRows(),
		NumItems:  train.NumColumns(),
		NumRates:  train.Size(),
	}
	c.RatingScale = train.Values()
	if n := len(c.RatingScale); n > 0 {
		c.MinRate, c.MaxRate = c.RatingScale[0], c.RatingScale[n-1]
		if c.MinRate == c.MaxRate {
			c.MinRate = 0
		}
	}
	c.GlobalMean = train.Mean()
	c.DroppedItems = make([]int, c.NumUsers)
	for u := int32(0); u < c.NumUsers; u++ {
		c.DroppedItems[u] = int(c.NumItems) - train.RowSize(u)
		c.MaxTestItems = max(c.MaxTestItems, test.RowSize(u))
	}
	c.ItemUsers = make([]int, c.NumItems)
	for i := int32(0); i < c.NumItems; i++ {
		c.ItemUsers[i] = train.ColumnSize(i)
		if c.ItemUsers[i] == 0 {
			c.ColdItems++
		}
	}
	r.ctx = c
	r.state = StateSetUp
	log.Logger().Info("recommender set up",
		zap.Int32("n_users", c.NumUsers),
		zap.Int32("n_items", c.NumItems),
		zap.Int("n_rates", c.NumRates),
		zap.Float64s("rating_scale", c.RatingScale),
		zap.Float64("global_mean", c.GlobalMean),
		zap.Int("max_test_items", c.MaxTestItems),
		zap.Int("cold_items", c.ColdItems))
	return nil
}

// Train fits the model. Invalid configuration, numeric divergence and
// cancellation are returned as errors and leave the recommender set up. Any other failure, panics
// included, is logged and reported as a partial result so that
// recommendations can still be produced from the current model state.
func (r *Recommender) Train(ctx context.Context) (result TrainResult, err error) {
	if err = r.expect("train", StateSetUp); err != nil {
		return
	}
	ctx, span := r.tracer.Start(ctx, "Train", 1)
	defer span.End()
	config := cf.NewFitConfig().
		SetJobs(r.config.Jobs).
		SetVerbose(r.config.Verbose).
		SetEarlyStop(r.config.EarlyStop).
		SetOnEpoch(r.config.OnEpoch)
	score, fitErr := r.fit(ctx, config)
	result.Score = score
	if fitErr != nil {
		if errors.Is(fitErr, base.ErrInvalidConfiguration) ||
			errors.Is(fitErr, base.ErrNumericDivergence) || ctx.Err() != nil {
			span.Fail(fitErr)
			return result, errors.Trace(fitErr)
		}
		log.Logger().Warn("training ended early, recommending from current model", zap.Error(fitErr))
		result.Partial = true
		result.Err = fitErr
	}
	r.state = StateTrained
	return result, nil
}

func (r *Recommender) fit(ctx context.Context, config *cf.FitConfig) (score cf.Score, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("model panicked: %v", p)
		}
	}()
	return r.model.Fit(ctx, r.ctx.Train, r.ctx.Actions, config)
}

// Recommend produces the recommended list. In ranking mode every user gets
// the top n items outside its train row, ties broken by lower item index,
// and base.ErrEmptyRecommendation is returned if nothing could be scored. In
// rating mode every test pair is scored and clamped to the rating bounds.
func (r *Recommender) Recommend() (*RecommendedList, error) {
	if err := r.expect("recommend", StateTrained); err != nil {
		return nil, err
	}
	if r.config.Ranking {
		_, span := r.tracer.Start(context.Background(), "Rank", int(r.ctx.NumUsers))
		defer span.End()
		list := r.rank(span)
		if list.Size() == 0 {
			err := errors.Annotatef(base.ErrEmptyRecommendation, "%d users, %d items", r.ctx.NumUsers, r.ctx.NumItems)
			span.Fail(err)
			return nil, err
		}
		r.list = list
		r.state = StateRanked
	} else {
		_, span := r.tracer.Start(context.Background(), "Rate", int(r.ctx.NumUsers))
		defer span.End()
		r.list = r.rate(span)
		r.state = StateRated
	}
	log.Logger().Info("recommended", zap.Int("size", r.list.Size()), zap.Stringer("state", r.state))
	return r.list, nil
}

func (r *Recommender) rank(span *progress.Span) *RecommendedList {
	c := r.ctx
	list := NewRecommendedList(c.NumUsers)
	for u := int32(0); u < c.NumUsers; u++ {
		filter := heap.NewTopKFilter[int32, float64](c.TopN)
		for i := int32(0); i < c.NumItems; i++ {
			if c.Train.Contains(u, i) {
				continue
			}
			filter.Push(i, r.model.Predict(u, i))
		}
		for _, e := range filter.PopAll() {
			list.Add(u, e.Value, e.Weight)
		}
		span.Add(1)
	}
	return list
}

func (r *Recommender) rate(span *progress.Span) *RecommendedList {
	c := r.ctx
	list := NewRecommendedList(c.NumUsers)
	for u := int32(0); u < c.Test.NumRows() && u < c.NumUsers; u++ {
		for _, i := range c.Test.Row(u) {
			score := r.model.Predict(u, i)
			if math.IsNaN(score) {
				score = c.GlobalMean
			}
			list.Add(u, i, r.bound(score))
		}
		span.Add(1)
	}
	return list
}

func (r *Recommender) bound(score float64) float64 {
	if score > r.ctx.MaxRate {
		return r.ctx.MaxRate
	}
	if score < r.ctx.MinRate {
		return r.ctx.MinRate
	}
	return score
}

// RecommendedItems returns the recommended list with raw identifiers. It is
// nil before recommendation.
func (r *Recommender) RecommendedItems() []RecommendedItem {
	if r.list == nil {
		return nil
	}
	return r.list.Named(r.ctx.UserIndex, r.ctx.ItemIndex)
}

// Evaluate runs evaluators over the recommended list. Results are keyed by
// evaluator name.
func (r *Recommender) Evaluate(evaluators ...Evaluator) (map[string]float64, error) {
	if err := r.expect("evaluate", StateRanked, StateRated); err != nil {
		return nil, err
	}
	_, span := r.tracer.Start(context.Background(), "Evaluate", len(evaluators))
	defer span.End()
	scores := make(map[string]float64, len(evaluators))
	for _, e := range evaluators {
		scores[e.Name()] = e.Evaluate(r.ctx, r.list)
		span.Add(1)
	}
	names := lo.Keys(scores)
	sort.Strings(names)
	for _, name := range names {
		log.Logger().Info("evaluated", zap.String("metric", name), zap.Float64("score", scores[name]))
	}
	r.state = StateEvaluated
	return scores, nil
}

// Cleanup releases the model and the bound data. It may be called from any
// state but only once.
func (r *Recommender) Cleanup() error {
	if r.state == StateCleanedUp {
		return errors.NotValidf("cleanup in state %v", r.state)
	}
	r.model.Clear()
	r.ctx = nil
	r.list = nil
	r.state = StateCleanedUp
	return nil
}

// SaveModel does nothing. Trained models are not persisted.
func (r *Recommender) SaveModel(string) error {
	return nil
}

// LoadModel does nothing. Trained models are not persisted.
func (r *Recommender) LoadModel(string) error {
	return nil
}
