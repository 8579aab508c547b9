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

// Index maps raw identifiers to dense indices in first-seen order. Indices are
// never reassigned or removed. An Index is not safe for concurrent writers.
type Index struct {
	si  map[string]int32
	is  []string
	cnt []int
}

func NewIndex() *Index {
	return &Index{si: map[string]int32{}}
}

// Count returns the number of identifiers.
func (idx *Index) Count() int32 {
	return int32(len(idx.is))
}

// Resolve returns the index of s, assigning the next index if s is new.
func (idx *Index) Resolve(s string) int32 {
	if y, ok := idx.si[s]; ok {
		idx.cnt[y]++
		return y
	}
	y := int32(len(idx.is))
	idx.si[s] = y
	idx.is = append(idx.is, s)
	idx.cnt = append(idx.cnt, 1)
	return y
}

// Id returns the index of s or -1.
func (idx *Index) Id(s string) int32 {
	if y, ok := idx.si[s]; ok {
		return y
	}
	return -1
}

func (idx *Index) String(id int32) (string, bool) {
	if id < 0 || int(id) >= len(idx.is) {
		return "", false
	}
	return idx.is[id], true
}

// Names returns raw identifiers ordered by index.
func (idx *Index) Names() []string {
	return idx.is
}

// Freq returns how many times id was resolved.
func (idx *Index) Freq(id int32) int {
	if id < 0 || int(id) >= len(idx.cnt) {
		return 0
	}
	return idx.cnt[id]
}
