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

package dataset

import (
	"github.com/gorse-io/actionrank/base"
	"github.com/juju/errors"
)

// Splitter splits the preference matrix of a dataset into disjoint train and
// test matrices of the same shape.
type Splitter func(d *Dataset, seed int64) (train, test *SparseMatrix[float64])

type entry struct {
	row, col int32
	value    float64
}

func entries(m *SparseMatrix[float64]) []entry {
	all := make([]entry, 0, m.Size())
	m.ForEach(func(row, col int32, value float64) {
		all = append(all, entry{row, col, value})
	})
	return all
}

// NewRatioSplitter holds out a random testRatio share of all entries.
func NewRatioSplitter(testRatio float64) Splitter {
	return func(d *Dataset, seed int64) (*SparseMatrix[float64], *SparseMatrix[float64]) {
		train := NewSparseMatrix[float64](d.CountUsers(), d.CountItems())
		test := NewSparseMatrix[float64](d.CountUsers(), d.CountItems())
		all := entries(d.Preference)
		testSize := int(float64(len(all)) * testRatio)
		rng := base.NewRandomGenerator(seed)
		for i, j := range rng.Perm(len(all)) {
			e := all[j]
			if i < testSize {
				test.Set(e.row, e.col, e.value)
			} else {
				train.Set(e.row, e.col, e.value)
			}
		}
		return train, test
	}
}

// NewUserLOOSplitter moves one random entry of every user with at least two
// entries to the test matrix.
func NewUserLOOSplitter() Splitter {
	return func(d *Dataset, seed int64) (*SparseMatrix[float64], *SparseMatrix[float64]) {
		train := NewSparseMatrix[float64](d.CountUsers(), d.CountItems())
		test := NewSparseMatrix[float64](d.CountUsers(), d.CountItems())
		rng := base.NewRandomGenerator(seed)
		for user := int32(0); user < d.Preference.NumRows(); user++ {
			items := d.Preference.Row(user)
			out := -1
			if len(items) > 1 {
				out = rng.Intn(len(items))
			}
			for i, item := range items {
				value, _ := d.Preference.Get(user, item)
				if i == out {
					test.Set(user, item, value)
				} else {
					train.Set(user, item, value)
				}
			}
		}
		return train, test
	}
}

// NewSplitter creates a splitter by name.
func NewSplitter(name string, testRatio float64) (Splitter, error) {
	switch name {
	case "ratio":
		return NewRatioSplitter(testRatio), nil
	case "loo":
		return NewUserLOOSplitter(), nil
	default:
		return nil, errors.Annotatef(base.ErrInvalidConfiguration, "unknown splitter %q", name)
	}
}
