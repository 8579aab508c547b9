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
	"fmt"
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/stat"
)

// Evaluator scores a recommended list against the test set in ctx.
type Evaluator interface {
	Name() string
	Evaluate(ctx *Context, list *RecommendedList) float64
}

// NewEvaluator creates an evaluator by metric name. Ranking metrics are
// computed at n.
func NewEvaluator(name string, n int) (Evaluator, error) {
	switch name {
	case "precision":
		return NewPrecision(n), nil
	case "recall":
		return NewRecall(n), nil
	case "ndcg":
		return NewNDCG(n), nil
	case "auc":
		return NewAUC(), nil
	case "rmse":
		return NewRMSE(), nil
	case "mae":
		return NewMAE(), nil
	}
	return nil, errors.NotSupportedf("metric %q", name)
}

// rankScorer scores the top n items of one user against the test items of
// that user.
type rankScorer func(test map[int32]struct{}, rankList []int32, n int) float64

// rankEvaluator averages a rankScorer over users with test items.
type rankEvaluator struct {
	name   string
	n      int
	scorer rankScorer
}

func (e *rankEvaluator) Name() string {
	return fmt.Sprintf("%s@%d", e.name, e.n)
}

func (e *rankEvaluator) Evaluate(ctx *Context, list *RecommendedList) float64 {
	var scores []float64
	for u := int32(0); u < ctx.Test.NumRows(); u++ {
		test := testSet(ctx, u)
		if len(test) == 0 {
			continue
		}
		rankList := list.Items(u)
		if len(rankList) > e.n {
			rankList = rankList[:e.n]
		}
		scores = append(scores, e.scorer(test, rankList, e.n))
	}
	if len(scores) == 0 {
		return 0
	}
	return stat.Mean(scores, nil)
}

func testSet(ctx *Context, user int32) map[int32]struct{} {
	items := ctx.Test.Row(user)
	set := make(map[int32]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func hits(test map[int32]struct{}, rankList []int32) int {
	count := 0
	for _, item := range rankList {
		if _, ok := test[item]; ok {
			count++
		}
	}
	return count
}

// NewPrecision creates the precision evaluator, the fraction of the n
// recommended slots holding a test item.
func NewPrecision(n int) Evaluator {
	return &rankEvaluator{name: "Precision", n: n, scorer: func(test map[int32]struct{}, rankList []int32, n int) float64 {
		return float64(hits(test, rankList)) / float64(n)
	}}
}

// NewRecall creates the recall evaluator, the fraction of test items that
// have been recommended.
func NewRecall(n int) Evaluator {
	return &rankEvaluator{name: "Recall", n: n, scorer: func(test map[int32]struct{}, rankList []int32, _ int) float64 {
		return float64(hits(test, rankList)) / float64(len(test))
	}}
}

// NewNDCG creates the normalized discounted cumulative gain evaluator.
//
//	IDCG = \sum^{min(|REL|, n)}_{i=1} \frac {1} {\log_2(i+1)}
//	DCG = \sum^{N}_{i=1} \frac {rel_i} {\log_2(i+1)}
func NewNDCG(n int) Evaluator {
	return &rankEvaluator{name: "NDCG", n: n, scorer: func(test map[int32]struct{}, rankList []int32, n int) float64 {
		idcg := 0.0
		for i := 0; i < len(test) && i < n; i++ {
			idcg += 1.0 / math.Log2(float64(i)+2.0)
		}
		dcg := 0.0
		for i, item := range rankList {
			if _, ok := test[item]; ok {
				dcg += 1.0 / math.Log2(float64(i)+2.0)
			}
		}
		return dcg / idcg
	}}
}

type auc struct{}

// NewAUC creates the area under ROC curve evaluator. Candidates of a user are
// the items absent from its train row. Test items are positives and the
// others negatives. Items left out of the list rank below every listed item
// and test items left out count as misordered.
func NewAUC() Evaluator {
	return auc{}
}

func (auc) Name() string {
	return "AUC"
}

func (auc) Evaluate(ctx *Context, list *RecommendedList) float64 {
	var scores []float64
	for u := int32(0); u < ctx.Test.NumRows() && u < int32(len(ctx.DroppedItems)); u++ {
		test := testSet(ctx, u)
		negatives := ctx.DroppedItems[u] - len(test)
		if len(test) == 0 || negatives <= 0 {
			continue
		}
		correct, seenNegatives := 0, 0
		for _, item := range list.Items(u) {
			if _, ok := test[item]; ok {
				correct += negatives - seenNegatives
			} else {
				seenNegatives++
			}
		}
		scores = append(scores, float64(correct)/float64(len(test)*negatives))
	}
	if len(scores) == 0 {
		return 0
	}
	return stat.Mean(scores, nil)
}

// rateEvaluator accumulates errors between rated pairs and test values.
type rateEvaluator struct {
	name   string
	loss   func(diff float64) float64
	reduce func(mean float64) float64
}

// NewRMSE creates the root mean square error evaluator.
func NewRMSE() Evaluator {
	return &rateEvaluator{
		name:   "RMSE",
		loss:   func(diff float64) float64 { return diff * diff },
		reduce: math.Sqrt,
	}
}

// NewMAE creates the mean absolute error evaluator.
func NewMAE() Evaluator {
	return &rateEvaluator{
		name:   "MAE",
		loss:   math.Abs,
		reduce: func(mean float64) float64 { return mean },
	}
}

func (e *rateEvaluator) Name() string {
	return e.name
}

func (e *rateEvaluator) Evaluate(ctx *Context, list *RecommendedList) float64 {
	var losses []float64
	list.ForEach(func(r RecommendedItem) {
		if truth, ok := ctx.Test.Get(r.User, r.Item); ok {
			losses = append(losses, e.loss(r.Score-truth))
		}
	})
	if len(losses) == 0 {
		return 0
	}
	return e.reduce(stat.Mean(losses, nil))
}
