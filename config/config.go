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


package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/dataset"
	"github.com/gorse-io/actionrank/model"
	"github.com/gorse-io/actionrank/recommend"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const envPrefix = "ACTIONRANK"

// Config is the configuration of a training job.
type Config struct {
	Data        DataConfig        `mapstructure:"data"`
	Model       ModelConfig       `mapstructure:"model"`
	Recommender RecommenderConfig `mapstructure:"recommender"`
}

// DataConfig is the configuration for ingestion and splitting.
type DataConfig struct {
	InputPath         []string      `mapstructure:"input_path" validate:"min=1,dive,required"`
	ColumnFormat      string        `mapstructure:"column_format" validate:"oneof=UIR UIRT uir uirt"`
	BinarizeThreshold float64       `mapstructure:"binarize_threshold"`
	ActionChannels    bool          `mapstructure:"action_channels"`
	NumActions        int           `mapstructure:"num_actions" validate:"gte=1,lte=9"`
	TimeUnit          time.Duration `mapstructure:"time_unit" validate:"gt=0"`
	Splitter          string        `mapstructure:"splitter" validate:"oneof=ratio loo"`
	TestRatio         float64       `mapstructure:"test_ratio" validate:"gte=0,lt=1"`
	Seed              int64         `mapstructure:"seed"`
}

// ModelConfig holds the hyper-parameters of the ranking model.
type ModelConfig struct {
	NFactors       int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs        int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr             float64 `mapstructure:"lr" validate:"gt=0"`
	MaxLr          float64 `mapstructure:"max_lr" validate:"gte=0"`
	RegUser        float64 `mapstructure:"reg_user" validate:"gte=0"`
	RegItem        float64 `mapstructure:"reg_item" validate:"gte=0"`
	RegWeight      float64 `mapstructure:"reg_weight" validate:"gte=0"`
	InitMean       float64 `mapstructure:"init_mean"`
	InitStd        float64 `mapstructure:"init_std" validate:"gte=0"`
	BoldDriver     bool    `mapstructure:"bold_driver"`
	Decay          float64 `mapstructure:"decay" validate:"gt=0,lte=1"`
	Alpha          float64 `mapstructure:"alpha" validate:"gte=0,lte=1"`
	SamplesPerUser int     `mapstructure:"samples_per_user" validate:"gt=0"`
	RandomState    int64   `mapstructure:"random_state"`
	NJobs          int     `mapstructure:"n_jobs" validate:"gt=0"`
}

// RecommenderConfig is the configuration of the training harness.
type RecommenderConfig struct {
	Ranking    bool     `mapstructure:"ranking"`
	TopN       int      `mapstructure:"top_n"`
	EarlyStop  bool     `mapstructure:"early_stop"`
	Verbose    bool     `mapstructure:"verbose"`
	Metrics    []string `mapstructure:"metrics" validate:"dive,oneof=precision recall ndcg auc rmse mae"`
	OutputPath string   `mapstructure:"output_path"`
	// OutputFilter is a boolean expression over user, item and score
	// selecting the recommendations written to OutputPath.
	OutputFilter string `mapstructure:"output_filter"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			InputPath:         []string{"data/actions"},
			ColumnFormat:      "UIR",
			BinarizeThreshold: -1,
			ActionChannels:    true,
			NumActions:        dataset.MaxActions,
			TimeUnit:          time.Second,
			Splitter:          "ratio",
			TestRatio:         0.2,
		},
		Model: ModelConfig{
			NFactors:       10,
			NEpochs:        100,
			Lr:             0.01,
			MaxLr:          0.01,
			RegUser:        0.01,
			RegItem:        0.01,
			RegWeight:      0.001,
			InitStd:        0.5,
			Decay:          1,
			Alpha:          1,
			SamplesPerUser: 10,
			NJobs:          1,
		},
		Recommender: RecommenderConfig{
			Ranking: true,
			TopN:    10,
			Verbose: true,
			Metrics: []string{"precision", "recall", "ndcg", "auc"},
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [data]
	v.SetDefault("data.input_path", defaultConfig.Data.InputPath)
	v.SetDefault("data.column_format", defaultConfig.Data.ColumnFormat)
	v.SetDefault("data.binarize_threshold", defaultConfig.Data.BinarizeThreshold)
	v.SetDefault("data.action_channels", defaultConfig.Data.ActionChannels)
	v.SetDefault("data.num_actions", defaultConfig.Data.NumActions)
	v.SetDefault("data.time_unit", defaultConfig.Data.TimeUnit)
	v.SetDefault("data.splitter", defaultConfig.Data.Splitter)
	v.SetDefault("data.test_ratio", defaultConfig.Data.TestRatio)
	v.SetDefault("data.seed", defaultConfig.Data.Seed)
	// [model]
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	v.SetDefault("model.lr", defaultConfig.Model.Lr)
	v.SetDefault("model.max_lr", defaultConfig.Model.MaxLr)
	v.SetDefault("model.reg_user", defaultConfig.Model.RegUser)
	v.SetDefault("model.reg_item", defaultConfig.Model.RegItem)
	v.SetDefault("model.reg_weight", defaultConfig.Model.RegWeight)
	v.SetDefault("model.init_mean", defaultConfig.Model.InitMean)
	v.SetDefault("model.init_std", defaultConfig.Model.InitStd)
	v.SetDefault("model.bold_driver", defaultConfig.Model.BoldDriver)
	v.SetDefault("model.decay", defaultConfig.Model.Decay)
	v.SetDefault("model.alpha", defaultConfig.Model.Alpha)
	v.SetDefault("model.samples_per_user", defaultConfig.Model.SamplesPerUser)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	v.SetDefault("model.n_jobs", defaultConfig.Model.NJobs)
	// [recommender]
	v.SetDefault("recommender.ranking", defaultConfig.Recommender.Ranking)
	v.SetDefault("recommender.top_n", defaultConfig.Recommender.TopN)
	v.SetDefault("recommender.early_stop", defaultConfig.Recommender.EarlyStop)
	v.SetDefault("recommender.verbose", defaultConfig.Recommender.Verbose)
	v.SetDefault("recommender.metrics", defaultConfig.Recommender.Metrics)
	v.SetDefault("recommender.output_path", defaultConfig.Recommender.OutputPath)
	v.SetDefault("recommender.output_filter", defaultConfig.Recommender.OutputFilter)
}

// stringToFieldsHookFunc splits a string into a slice on white space.
func stringToFieldsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf([]string{}) {
			return data, nil
		}
		return strings.Fields(data.(string)), nil
	}
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToFieldsHookFunc(),
	))
}

// LoadConfig reads the configuration file at path. Every key can be
// overridden by an environment variable, e.g. ACTIONRANK_MODEL_N_EPOCHS for
// model.n_epochs. An empty path reads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks value ranges. Violations are base.ErrInvalidConfiguration.
func (config *Config) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return errors.Annotatef(base.ErrInvalidConfiguration, "%v", err)
	}
	return nil
}

// LoadOptions converts the data section into loader options.
func (config *DataConfig) LoadOptions() (dataset.LoadOptions, error) {
	format, err := dataset.ParseFormat(config.ColumnFormat)
	if err != nil {
		return dataset.LoadOptions{}, err
	}
	return dataset.LoadOptions{
		Format:            format,
		BinarizeThreshold: config.BinarizeThreshold,
		ActionChannels:    config.ActionChannels,
		NumActions:        config.NumActions,
		TimeUnit:          config.TimeUnit,
	}, nil
}

func (config *DataConfig) GetSplitter() (dataset.Splitter, error) {
	return dataset.NewSplitter(config.Splitter, config.TestRatio)
}

// GetParams converts the model section into hyper-parameters. The number of
// action channels comes from the data section.
func (config *Config) GetParams() model.Params {
	return model.Params{
		model.NFactors:       config.Model.NFactors,
		model.NEpochs:        config.Model.NEpochs,
		model.Lr:             config.Model.Lr,
		model.MaxLr:          config.Model.MaxLr,
		model.RegUser:        config.Model.RegUser,
		model.RegItem:        config.Model.RegItem,
		model.RegWeight:      config.Model.RegWeight,
		model.InitMean:       config.Model.InitMean,
		model.InitStdDev:     config.Model.InitStd,
		model.BoldDriver:     config.Model.BoldDriver,
		model.Decay:          config.Model.Decay,
		model.Alpha:          config.Model.Alpha,
		model.SamplesPerUser: config.Model.SamplesPerUser,
		model.RandomState:    config.Model.RandomState,
		model.NumActions:     config.Data.NumActions,
	}
}

// GetRecommendConfig converts the recommender section into harness options.
func (config *Config) GetRecommendConfig() recommend.Config {
	return recommend.Config{
		Ranking:   config.Recommender.Ranking,
		TopN:      config.Recommender.TopN,
		EarlyStop: config.Recommender.EarlyStop,
		Verbose:   config.Recommender.Verbose,
		Jobs:      config.Model.NJobs,
	}
}

// GetEvaluators creates the evaluators listed in metrics. Ranking metrics are
// computed at top n.
func (config *RecommenderConfig) GetEvaluators() ([]recommend.Evaluator, error) {
	evaluators := make([]recommend.Evaluator, 0, len(config.Metrics))
	for _, name := range config.Metrics {
		e, err := recommend.NewEvaluator(name, config.TopN)
		if err != nil {
			return nil, errors.Trace(err)
		}
		evaluators = append(evaluators, e)
	}
	return evaluators, nil
}
