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
	"math"

	"github.com/gorse-io/actionrank/base"
	"github.com/juju/errors"
)

// convergenceThreshold is the loss change below which training has converged.
const convergenceThreshold = 1e-5

// schedule adapts the learning rate between epochs and detects convergence.
type schedule struct {
	rate       float64
	maxRate    float64
	decay      float64
	boldDriver bool
	lastLoss   float64
}

// converged compares loss with the previous epoch. A NaN or infinite loss is
// reported as base.ErrNumericDivergence.
func (s *schedule) converged(epoch int, loss float64) (bool, float64, error) {
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return false, 0, errors.Annotatef(base.ErrNumericDivergence, "loss = %v at epoch %d", loss, epoch)
	}
	delta := s.lastLoss - loss
	return math.Abs(delta) < convergenceThreshold, delta, nil
}

// update is called at the end of every epoch. With bold driver the rate grows
// 5% after an improving epoch and halves otherwise, starting from the second
// epoch. Otherwise a decay in (0, 1) shrinks it. The result never exceeds a
// positive maximum.
func (s *schedule) update(epoch int, loss float64) {
	defer func() { s.lastLoss = loss }()
	if s.rate < 0 {
		return
	}
	if s.boldDriver && epoch > 1 {
		if math.Abs(s.lastLoss) > math.Abs(loss) {
			s.rate *= 1.05
		} else {
			s.rate *= 0.5
		}
	} else if s.decay > 0 && s.decay < 1 {
		s.rate *= s.decay
	}
	if s.maxRate > 0 && s.rate > s.maxRate {
		s.rate = s.maxRate
	}
}
