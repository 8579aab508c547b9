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

package base

import "github.com/juju/errors"

// Error kinds shared by ingestion, training and ranking. Callers wrap them with
// errors.Annotatef and test them with errors.Is.
const (
	// ErrMalformedRecord means a record or a field could not be parsed. It aborts
	// ingestion of the current source.
	ErrMalformedRecord = errors.ConstError("malformed record")
	// ErrInvalidConfiguration is fatal at setup.
	ErrInvalidConfiguration = errors.ConstError("invalid configuration")
	// ErrNumericDivergence means the training loss became NaN or infinite.
	ErrNumericDivergence = errors.ConstError("numeric divergence")
	// ErrEmptyRecommendation means no candidate was scored for any user.
	ErrEmptyRecommendation = errors.ConstError("empty recommendation")
	// ErrNoTrainingSample means no user has both a positive and a negative item.
	ErrNoTrainingSample = errors.ConstError("no training sample")
)
