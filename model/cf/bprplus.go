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
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/base/log"
	"github.com/gorse-io/actionrank/base/progress"
	"github.com/gorse-io/actionrank/common/parallel"
	"github.com/gorse-io/actionrank/dataset"
	"github.com/gorse-io/actionrank/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

type Score struct {
	Epochs       int
	Loss         float64
	TrainLoss    float64
	RegLoss      float64
	DeltaLoss    float64
	LearningRate float64
	Converged    bool
}

type FitConfig struct {
	// Jobs > 1 runs samples of an epoch concurrently without locks. Concurrent
	// updates to the same user or item may be lost and a channel weight vector
	// may briefly leave the simplex.
	Jobs      int
	Verbose   bool
	EarlyStop bool
	// OnEpoch is called after every epoch with the epoch number and its loss.
	OnEpoch func(epoch int, loss float64)
}

func NewFitConfig() *FitConfig {
	return &FitConfig{Jobs: 1}
}

func (config *FitConfig) SetVerbose(verbose bool) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetEarlyStop(earlyStop bool) *FitConfig {
	config.EarlyStop = earlyStop
	return config
}

func (config *FitConfig) SetOnEpoch(onEpoch func(epoch int, loss float64)) *FitConfig {
	config.OnEpoch = onEpoch
	return config
}

// BPRPlus is Bayesian personalized ranking over several weighted action
// channels. The score of item i for user u is
//
//	a * popularity(u, i) + factor(u, i) + (1 - a) * experience(u, i)
//
// where
//
//	factor(u, i)     = logistic(k * <p_u, q_i> + b)
//	popularity(u, i) = logistic(s_p * <c_i, w_u>)   cached per item
//	experience(u, i) = logistic(s_e * <e_ui, w_u>)
//
// c_i holds the action counts of item i per channel, e_ui tells whether user u
// performed each action on item i and w_u is the channel weight vector of u,
// kept on the probability simplex by a softmax after every update.
type BPRPlus struct {
	model.BaseModel
	UserFactor    [][]float64
	ItemFactor    [][]float64
	ChannelWeight [][]float64
	popularity    *PopularityCache
	actions       *dataset.Actions
	nUsers        int32
	nItems        int32
	// hyper parameters
	nFactors        int
	nEpochs         int
	lr              float64
	maxLr           float64
	regUser         float64
	regItem         float64
	regWeight       float64
	initMean        float64
	initStdDev      float64
	boldDriver      bool
	decay           float64
	alpha           float64
	samplesPerUser  int
	numActions      int
	factorScale     float64
	factorBias      float64
	popularityScale float64
	experienceScale float64
}

func NewBPRPlus(params model.Params) *BPRPlus {
	bpr := new(BPRPlus)
	bpr.SetParams(params)
	return bpr
}

func (bpr *BPRPlus) SetParams(params model.Params) {
	bpr.BaseModel.SetParams(params)
	bpr.nFactors = bpr.Params.GetInt(model.NFactors, 10)
	bpr.nEpochs = bpr.Params.GetInt(model.NEpochs, 100)
	bpr.lr = bpr.Params.GetFloat64(model.Lr, 0.01)
	bpr.maxLr = bpr.Params.GetFloat64(model.MaxLr, 0.01)
	bpr.regUser = bpr.Params.GetFloat64(model.RegUser, 0.01)
	bpr.regItem = bpr.Params.GetFloat64(model.RegItem, 0.01)
	bpr.regWeight = bpr.Params.GetFloat64(model.RegWeight, 0.001)
	bpr.initMean = bpr.Params.GetFloat64(model.InitMean, 0)
	bpr.initStdDev = bpr.Params.GetFloat64(model.InitStdDev, 0.5)
	bpr.boldDriver = bpr.Params.GetBool(model.BoldDriver, false)
	bpr.decay = bpr.Params.GetFloat64(model.Decay, 1)
	bpr.alpha = bpr.Params.GetFloat64(model.Alpha, 1)
	bpr.samplesPerUser = bpr.Params.GetInt(model.SamplesPerUser, 10)
	bpr.numActions = bpr.Params.GetInt(model.NumActions, dataset.MaxActions)
	bpr.factorScale = bpr.Params.GetFloat64(model.FactorScale, 1)
	bpr.factorBias = bpr.Params.GetFloat64(model.FactorBias, 0)
	bpr.popularityScale = bpr.Params.GetFloat64(model.PopularityScale, 1)
	bpr.experienceScale = bpr.Params.GetFloat64(model.ExperienceScale, 1)
}

// Validate reports out-of-range hyper-parameters as base.ErrInvalidConfiguration.
func (bpr *BPRPlus) Validate() error {
	switch {
	case bpr.nFactors <= 0:
		return errors.Annotatef(base.ErrInvalidConfiguration, "n_factors = %d", bpr.nFactors)
	case bpr.nEpochs < 0:
		return errors.Annotatef(base.ErrInvalidConfiguration, "n_epochs = %d", bpr.nEpochs)
	case bpr.samplesPerUser <= 0:
		return errors.Annotatef(base.ErrInvalidConfiguration, "samples_per_user = %d", bpr.samplesPerUser)
	case bpr.alpha < 0 || bpr.alpha > 1:
		return errors.Annotatef(base.ErrInvalidConfiguration, "alpha = %v", bpr.alpha)
	case bpr.numActions < 1 || bpr.numActions > dataset.MaxActions:
		return errors.Annotatef(base.ErrInvalidConfiguration, "num_actions = %d", bpr.numActions)
	}
	return nil
}

// Init allocates factors and channel weights for the shape of train. Every
// user starts from the same softmax-normalized random weight vector.
func (bpr *BPRPlus) Init(train *dataset.SparseMatrix[float64], actions *dataset.Actions) {
	bpr.nUsers, bpr.nItems = train.NumRows(), train.NumColumns()
	if actions == nil {
		actions = dataset.NewActions(bpr.numActions, bpr.nUsers, bpr.nItems)
	}
	bpr.actions = actions
	rng := bpr.GetRandomGenerator()
	bpr.UserFactor = rng.NormalMatrix(int(bpr.nUsers), bpr.nFactors, bpr.initMean, bpr.initStdDev)
	bpr.ItemFactor = rng.NormalMatrix(int(bpr.nItems), bpr.nFactors, bpr.initMean, bpr.initStdDev)
	initWeight := rng.UniformVector(actions.NumActions(), 0, 1)
	Softmax(initWeight)
	bpr.ChannelWeight = make([][]float64, bpr.nUsers)
	for u := range bpr.ChannelWeight {
		bpr.ChannelWeight[u] = append([]float64(nil), initWeight...)
	}
	bpr.popularity = NewPopularityCache(bpr.nItems)
}

// Clear model weights.
func (bpr *BPRPlus) Clear() {
	bpr.UserFactor = nil
	bpr.ItemFactor = nil
	bpr.ChannelWeight = nil
	bpr.popularity = nil
	bpr.actions = nil
	bpr.nUsers, bpr.nItems = 0, 0
}

// Fit trains the model on train. Action tables may cover more pairs than
// train but must have the same shape. Non-nil errors other than
// base.ErrNumericDivergence leave the model usable with its current weights.
func (bpr *BPRPlus) Fit(ctx context.Context, train *dataset.SparseMatrix[float64], actions *dataset.Actions, config *FitConfig) (Score, error) {
	if config == nil {
		config = NewFitConfig()
	}
	log.Logger().Info("fit bpr+",
		zap.Int("train_set_size", train.Size()),
		zap.Any("params", bpr.GetParams()),
		zap.Int("jobs", config.Jobs),
		zap.Bool("early_stop", config.EarlyStop))
	if err := bpr.Validate(); err != nil {
		return Score{}, errors.Trace(err)
	}
	bpr.Init(train, actions)
	s := newSampler(train)
	if s.countEligible() == 0 {
		return Score{}, errors.Annotatef(base.ErrNoTrainingSample,
			"none of %d users has both positive and negative items", bpr.nUsers)
	}
	jobs := max(config.Jobs, 1)
	rng := make([]base.RandomGenerator, jobs)
	for i := range rng {
		rng[i] = base.NewRandomGenerator(bpr.GetRandomGenerator().Int63())
	}
	sched := &schedule{rate: bpr.lr, maxRate: bpr.maxLr, decay: bpr.decay, boldDriver: bpr.boldDriver}
	nSamples := int(bpr.nUsers) * bpr.samplesPerUser
	level := log.VerboseLevel(config.Verbose)

	var score Score
	_, span := progress.Start(ctx, "BPRPlus.Fit", bpr.nEpochs)
	defer span.End()
	for epoch := 1; epoch <= bpr.nEpochs; epoch++ {
		fitStart := time.Now()
		trainLoss := make([]float64, jobs)
		regLoss := make([]float64, jobs)
		rate := sched.rate
		err := parallel.Parallel(ctx, nSamples, jobs, func(workerId, _ int) error {
			user, pos, neg := s.sample(rng[workerId])
			l, r := bpr.update(user, pos, neg, rate)
			trainLoss[workerId] += l
			regLoss[workerId] += r
			return nil
		})
		if err != nil {
			span.Fail(err)
			return score, errors.Trace(err)
		}
		score.Epochs = epoch
		score.TrainLoss = floats.Sum(trainLoss)
		score.RegLoss = floats.Sum(regLoss)
		score.Loss = score.TrainLoss + score.RegLoss
		score.LearningRate = rate
		converged, delta, err := sched.converged(epoch, score.Loss)
		if err != nil {
			span.Fail(err)
			log.Logger().Error("fit bpr+ diverged", zap.Int("epoch", epoch), zap.Error(err))
			return score, errors.Trace(err)
		}
		score.DeltaLoss, score.Converged = delta, converged
		log.Logger().Log(level, fmt.Sprintf("fit bpr+ %v/%v", epoch, bpr.nEpochs),
			zap.String("fit_time", time.Since(fitStart).String()),
			zap.Float64("loss", score.Loss),
			zap.Float64("loss_train", score.TrainLoss),
			zap.Float64("loss_reg", score.RegLoss),
			zap.Float64("delta_loss", delta),
			zap.Float64("learning_rate", rate))
		span.Add(1)
		if config.OnEpoch != nil {
			config.OnEpoch(epoch, score.Loss)
		}
		if converged && config.EarlyStop {
			break
		}
		sched.update(epoch, score.Loss)
	}
	log.Logger().Info("fit bpr+ complete",
		zap.Int("epochs", score.Epochs),
		zap.Float64("loss", score.Loss),
		zap.Bool("converged", score.Converged))
	return score, nil
}

// update applies one SGD step to the sampled triple and returns the ranking
// loss and the regularization loss of the values it touched.
func (bpr *BPRPlus) update(user, pos, neg int32, lr float64) (float64, float64) {
	pu, qi, qj := bpr.UserFactor[user], bpr.ItemFactor[pos], bpr.ItemFactor[neg]
	w := bpr.ChannelWeight[user]
	posMf, negMf := bpr.FactorTerm(user, pos), bpr.FactorTerm(user, neg)
	posPop, negPop := bpr.Popularity(user, pos), bpr.Popularity(user, neg)
	posEu, negEu := bpr.Experience(user, pos), bpr.Experience(user, neg)
	diff := bpr.blend(posPop, posMf, posEu) - bpr.blend(negPop, negMf, negEu)
	loss := math.Log1p(math.Exp(-diff))
	deri := logistic(-diff)

	var reg float64
	k := bpr.factorScale
	posGrad, negGrad := k*posMf*(1-posMf), k*negMf*(1-negMf)
	for f := range pu {
		puf, qif, qjf := pu[f], qi[f], qj[f]
		pu[f] += lr * (deri*(posGrad*qif-negGrad*qjf) - bpr.regUser*puf)
		qi[f] += lr * (deri*posGrad*puf - bpr.regItem*qif)
		qj[f] += lr * (-deri*negGrad*puf - bpr.regItem*qjf)
		reg += bpr.regUser*puf*puf + bpr.regItem*qif*qif + bpr.regItem*qjf*qjf
	}

	posCounts, negCounts := bpr.actions.ItemCounts(pos), bpr.actions.ItemCounts(neg)
	posActs, negActs := bpr.actions.Indicators(user, pos), bpr.actions.Indicators(user, neg)
	popGrad := bpr.alpha * bpr.popularityScale
	expGrad := (1 - bpr.alpha) * bpr.experienceScale
	for c := range w {
		grad := popGrad*(posPop*(1-posPop)*posCounts[c]-negPop*(1-negPop)*negCounts[c]) +
			expGrad*(posEu*(1-posEu)*posActs[c]-negEu*(1-negEu)*negActs[c])
		w[c] += lr * (deri*grad - bpr.regWeight*w[c])
		reg += bpr.regWeight * w[c] * w[c]
	}
	Softmax(w)
	return loss, reg
}

func (bpr *BPRPlus) blend(popularity, factor, experience float64) float64 {
	return bpr.alpha*popularity + factor + (1-bpr.alpha)*experience
}

// FactorTerm returns logistic(k * <p_u, q_i> + b).
func (bpr *BPRPlus) FactorTerm(user, item int32) float64 {
	return logistic(bpr.factorScale*floats.Dot(bpr.UserFactor[user], bpr.ItemFactor[item]) + bpr.factorBias)
}

// Popularity returns the cached popularity of item, computing it with the
// weights of user on the first access.
func (bpr *BPRPlus) Popularity(user, item int32) float64 {
	return bpr.popularity.GetOrCompute(item, func() float64 {
		return logistic(bpr.popularityScale * floats.Dot(bpr.actions.ItemCounts(item), bpr.ChannelWeight[user]))
	})
}

// Experience returns the squashed sum of user's weighted actions on item.
func (bpr *BPRPlus) Experience(user, item int32) float64 {
	return logistic(bpr.experienceScale * floats.Dot(bpr.actions.Indicators(user, item), bpr.ChannelWeight[user]))
}

// Predict returns the ranking score, or NaN for unknown users and items.
func (bpr *BPRPlus) Predict(user, item int32) float64 {
	if user < 0 || user >= bpr.nUsers || item < 0 || item >= bpr.nItems {
		return math.NaN()
	}
	return bpr.blend(bpr.Popularity(user, item), bpr.FactorTerm(user, item), bpr.Experience(user, item))
}

func (bpr *BPRPlus) GetUserFactor(user int32) []float64 {
	return bpr.UserFactor[user]
}

func (bpr *BPRPlus) GetItemFactor(item int32) []float64 {
	return bpr.ItemFactor[item]
}

func (bpr *BPRPlus) GetChannelWeights(user int32) []float64 {
	return bpr.ChannelWeight[user]
}

// PopularityCache returns the cache of the last run.
func (bpr *BPRPlus) PopularityCache() *PopularityCache {
	return bpr.popularity
}
