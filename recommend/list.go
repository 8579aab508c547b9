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
	"strconv"

	"github.com/gorse-io/actionrank/dataset"
	"github.com/samber/lo"
)

// RecommendedItem is a scored (user, item) pair. UserId and ItemId are the
// raw identifiers and are only filled by Recommender.RecommendedItems.
type RecommendedItem struct {
	User   int32
	Item   int32
	UserId string
	ItemId string
	Score  float64
}

// RecommendedList holds one list per user. In ranking mode a user list is
// ordered by descending score, in rating mode by ascending item index.
type RecommendedList struct {
	lists [][]RecommendedItem
}

func NewRecommendedList(nUsers int32) *RecommendedList {
	return &RecommendedList{lists: make([][]RecommendedItem, nUsers)}
}

func (l *RecommendedList) NumUsers() int32 {
	return int32(len(l.lists))
}

// Add appends an item to the list of user.
func (l *RecommendedList) Add(user, item int32, score float64) {
	l.lists[user] = append(l.lists[user], RecommendedItem{User: user, Item: item, Score: score})
}

// User returns the list of user.
func (l *RecommendedList) User(user int32) []RecommendedItem {
	if user < 0 || int(user) >= len(l.lists) {
		return nil
	}
	return l.lists[user]
}

// Items returns the item indices recommended to user in list order.
func (l *RecommendedList) Items(user int32) []int32 {
	return lo.Map(l.User(user), func(r RecommendedItem, _ int) int32 {
		return r.Item
	})
}

// Size returns the number of entries over all users.
func (l *RecommendedList) Size() int {
	return lo.SumBy(l.lists, func(list []RecommendedItem) int {
		return len(list)
	})
}

// ForEach visits entries user by user in list order.
func (l *RecommendedList) ForEach(f func(r RecommendedItem)) {
	for _, list := range l.lists {
		for _, r := range list {
			f(r)
		}
	}
}

// Named returns every entry with raw identifiers resolved. An index missing
// from userIndex or itemIndex falls back to its decimal form.
func (l *RecommendedList) Named(userIndex, itemIndex *dataset.Index) []RecommendedItem {
	items := make([]RecommendedItem, 0, l.Size())
	l.ForEach(func(r RecommendedItem) {
		r.UserId = rawId(userIndex, r.User)
		r.ItemId = rawId(itemIndex, r.Item)
		items = append(items, r)
	})
	return items
}

func rawId(index *dataset.Index, id int32) string {
	if index != nil {
		if name, ok := index.String(id); ok {
			return name
		}
	}
	return strconv.Itoa(int(id))
}
