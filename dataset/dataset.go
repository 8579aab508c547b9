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

// Dataset is the result of ingestion. It is read-only once loaded.
type Dataset struct {
	UserIndex  *Index
	ItemIndex  *Index
	Preference *SparseMatrix[float64]
	// Timestamps holds milliseconds since epoch. It is nil if no record carried
	// a timestamp.
	Timestamps *SparseMatrix[int64]
	// Actions is nil unless action channels were enabled.
	Actions *Actions
	// Records is the number of ingested records, duplicates included.
	Records int
}

func (d *Dataset) CountUsers() int32 {
	return d.UserIndex.Count()
}

func (d *Dataset) CountItems() int32 {
	return d.ItemIndex.Count()
}
