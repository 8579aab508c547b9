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
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// SparseMatrix stores at most one value per (row, column). Rows are hash maps and
// every column keeps the set of rows holding an entry, so both directions can be
// iterated without a scan.
type SparseMatrix[T Number] struct {
	rows    []map[int32]T
	columns []mapset.Set[int32]
	size    int
}

// NewSparseMatrix creates an empty matrix of the given shape.
func NewSparseMatrix[T Number](nRows, nColumns int32) *SparseMatrix[T] {
	m := &SparseMatrix[T]{}
	m.Resize(nRows, nColumns)
	return m
}

func (m *SparseMatrix[T]) NumRows() int32 {
	return int32(len(m.rows))
}

func (m *SparseMatrix[T]) NumColumns() int32 {
	return int32(len(m.columns))
}

// Size returns the number of entries.
func (m *SparseMatrix[T]) Size() int {
	return m.size
}

// Resize grows the matrix. Shrinking is ignored.
func (m *SparseMatrix[T]) Resize(nRows, nColumns int32) {
	for int32(len(m.rows)) < nRows {
		m.rows = append(m.rows, nil)
	}
	for int32(len(m.columns)) < nColumns {
		m.columns = append(m.columns, nil)
	}
}

func (m *SparseMatrix[T]) checkColumn(col int32) {
	if col < 0 || int(col) >= len(m.columns) {
		panic(fmt.Sprintf("column index %d out of range [0, %d)", col, len(m.columns)))
	}
}

// Set inserts or replaces the value at (row, col).
func (m *SparseMatrix[T]) Set(row, col int32, value T) {
	m.checkColumn(col)
	if m.rows[row] == nil {
		m.rows[row] = make(map[int32]T)
	}
	if _, exist := m.rows[row][col]; !exist {
		m.size++
		if m.columns[col] == nil {
			m.columns[col] = mapset.NewThreadUnsafeSet[int32]()
		}
		m.columns[col].Add(row)
	}
	m.rows[row][col] = value
}

// Add increments the value at (row, col) and returns the new value. A missing
// entry counts as zero.
func (m *SparseMatrix[T]) Add(row, col int32, delta T) T {
	value, _ := m.Get(row, col)
	m.Set(row, col, value+delta)
	return value + delta
}

func (m *SparseMatrix[T]) Get(row, col int32) (T, bool) {
	if row < 0 || int(row) >= len(m.rows) || m.rows[row] == nil {
		return 0, false
	}
	value, exist := m.rows[row][col]
	return value, exist
}

func (m *SparseMatrix[T]) Contains(row, col int32) bool {
	_, exist := m.Get(row, col)
	return exist
}

// Row returns the columns of a row in ascending order.
func (m *SparseMatrix[T]) Row(row int32) []int32 {
	cols := lo.Keys(m.rows[row])
	slices.Sort(cols)
	return cols
}

func (m *SparseMatrix[T]) RowSize(row int32) int {
	return len(m.rows[row])
}

// Column returns the rows of a column in ascending order.
func (m *SparseMatrix[T]) Column(col int32) []int32 {
	if m.columns[col] == nil {
		return nil
	}
	rows := m.columns[col].ToSlice()
	slices.Sort(rows)
	return rows
}

func (m *SparseMatrix[T]) ColumnSize(col int32) int {
	if m.columns[col] == nil {
		return 0
	}
	return m.columns[col].Cardinality()
}

func (m *SparseMatrix[T]) ColumnSum(col int32) T {
	var sum T
	if m.columns[col] == nil {
		return sum
	}
	for row := range m.columns[col].Iter() {
		sum += m.rows[row][col]
	}
	return sum
}

// ForEach visits entries in row-major ascending order.
func (m *SparseMatrix[T]) ForEach(f func(row, col int32, value T)) {
	for row := range m.rows {
		if len(m.rows[row]) == 0 {
			continue
		}
		for _, col := range m.Row(int32(row)) {
			f(int32(row), col, m.rows[row][col])
		}
	}
}

// Values returns distinct values in ascending order.
func (m *SparseMatrix[T]) Values() []T {
	distinct := mapset.NewThreadUnsafeSet[T]()
	for _, row := range m.rows {
		for _, value := range row {
			distinct.Add(value)
		}
	}
	values := distinct.ToSlice()
	slices.Sort(values)
	return values
}

// Mean returns the mean of all entries, or zero if the matrix is empty.
func (m *SparseMatrix[T]) Mean() float64 {
	if m.size == 0 {
		return 0
	}
	values := make([]float64, 0, m.size)
	for _, row := range m.rows {
		for _, value := range row {
			values = append(values, float64(value))
		}
	}
	return stat.Mean(values, nil)
}
