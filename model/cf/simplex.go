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

	"gonum.org/v1/gonum/floats"
)

// Softmax maps x in place onto the probability simplex. The maximum is
// subtracted before exponentiation to avoid overflow.
func Softmax(x []float64) {
	if len(x) == 0 {
		return
	}
	m := floats.Max(x)
	for i := range x {
		x[i] = math.Exp(x[i] - m)
	}
	floats.Scale(1/floats.Sum(x), x)
}
