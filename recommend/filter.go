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
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ItemFilter keeps recommended items for which a boolean expression holds.
// The expression sees the raw ids as user and item and the score as score,
// e.g. `score > 0.5 && item != "i0"`.
type ItemFilter struct {
	program *vm.Program
}

func itemEnv(r RecommendedItem) map[string]any {
	return map[string]any{
		"user":  r.UserId,
		"item":  r.ItemId,
		"score": r.Score,
	}
}

// NewItemFilter compiles filter. An empty filter keeps every item.
func NewItemFilter(filter string) (*ItemFilter, error) {
	if filter == "" {
		return &ItemFilter{}, nil
	}
	program, err := expr.Compile(filter, expr.Env(itemEnv(RecommendedItem{})), expr.AsBool())
	if err != nil {
		return nil, errors.Annotatef(base.ErrInvalidConfiguration, "filter %q: %v", filter, err)
	}
	return &ItemFilter{program: program}, nil
}

// Filter returns the items accepted by the expression in their original
// order. Items the expression fails on are dropped.
func (f *ItemFilter) Filter(items []RecommendedItem) []RecommendedItem {
	if f.program == nil {
		return items
	}
	var kept []RecommendedItem
	for _, item := range items {
		result, err := expr.Run(f.program, itemEnv(item))
		if err != nil {
			log.Logger().Error("evaluate filter", zap.String("user", item.UserId), zap.String("item", item.ItemId), zap.Error(err))
			continue
		}
		if result.(bool) {
			kept = append(kept, item)
		}
	}
	return kept
}
