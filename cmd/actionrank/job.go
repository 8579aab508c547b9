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


package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gorse-io/actionrank/base/log"
	"github.com/gorse-io/actionrank/config"
	"github.com/gorse-io/actionrank/dataset"
	"github.com/gorse-io/actionrank/model/cf"
	"github.com/gorse-io/actionrank/recommend"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Job runs ingestion, splitting, training, recommendation and evaluation
// once. Recommendations accepted by the output filter are written to
// Config.Recommender.OutputPath on Fs when it is set.
type Job struct {
	Config *config.Config
	Fs     afero.Fs
	// Out receives the metrics table.
	Out io.Writer
	// Err receives the training progress bar.
	Err io.Writer
}

func (job *Job) Run(ctx context.Context) error {
	start := time.Now()
	conf := job.Config

	// load data
	opts, err := conf.Data.LoadOptions()
	if err != nil {
		return errors.Trace(err)
	}
	data, err := dataset.LoadDataset(job.Fs, strings.Join(conf.Data.InputPath, " "), opts)
	if err != nil {
		return errors.Trace(err)
	}
	splitter, err := conf.Data.GetSplitter()
	if err != nil {
		return errors.Trace(err)
	}
	train, test := splitter(data, conf.Data.Seed)
	log.Logger().Info("split dataset",
		zap.String("splitter", conf.Data.Splitter),
		zap.Int("train_size", train.Size()),
		zap.Int("test_size", test.Size()))
	evaluators, err := conf.Recommender.GetEvaluators()
	if err != nil {
		return errors.Trace(err)
	}
	filter, err := recommend.NewItemFilter(conf.Recommender.OutputFilter)
	if err != nil {
		return errors.Trace(err)
	}

	// train
	bar := progressbar.NewOptions(conf.Model.NEpochs,
		progressbar.OptionSetWriter(job.Err),
		progressbar.OptionSetDescription("training"),
		progressbar.OptionShowCount())
	rc := conf.GetRecommendConfig()
	rc.OnEpoch = func(int, float64) {
		_ = bar.Add(1)
	}
	r := recommend.New(cf.NewBPRPlus(conf.GetParams()), rc)
	defer func() {
		if err := r.Cleanup(); err != nil {
			log.Logger().Warn("failed to clean up recommender", zap.Error(err))
		}
	}()
	if err = r.Setup(train, test, nil, data.Actions, data.UserIndex, data.ItemIndex); err != nil {
		return errors.Trace(err)
	}
	result, err := r.Train(ctx)
	_ = bar.Finish()
	if err != nil {
		return errors.Trace(err)
	}
	if result.Partial {
		log.Logger().Warn("use partially trained model", zap.Error(result.Err))
	}

	// recommend and evaluate
	if _, err = r.Recommend(); err != nil {
		return errors.Trace(err)
	}
	if conf.Recommender.OutputPath != "" {
		if err = job.writeRecommendations(conf.Recommender.OutputPath, filter.Filter(r.RecommendedItems())); err != nil {
			return errors.Trace(err)
		}
	}
	scores, err := r.Evaluate(evaluators...)
	if err != nil {
		return errors.Trace(err)
	}
	if err = job.printScores(result.Score, scores); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("complete job", zap.Duration("time", time.Since(start)))
	return nil
}

// writeRecommendations writes one "user item score" line per recommended item.
func (job *Job) writeRecommendations(path string, items []recommend.RecommendedItem) error {
	f, err := job.Fs.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, item := range items {
		if _, err = fmt.Fprintf(w, "%s %s %v\n", item.UserId, item.ItemId, item.Score); err != nil {
			return errors.Trace(err)
		}
	}
	if err = w.Flush(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("write recommendations", zap.String("path", path), zap.Int("n_items", len(items)))
	return nil
}

func (job *Job) printScores(score cf.Score, scores map[string]float64) error {
	table := tablewriter.NewWriter(job.Out)
	table.Header("Metric", "Score")
	rows := [][]string{
		{"Epochs", fmt.Sprint(score.Epochs)},
		{"Loss", fmt.Sprintf("%.6f", score.Loss)},
	}
	names := lo.Keys(scores)
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%.6f", scores[name])})
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return errors.Trace(err)
		}
	}
	return table.Render()
}
