// Copyright 2024 BINARY Members
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kway

import (
	"container/heap"
)

// Merge k-way merges already key-sorted shard lists into one globally
// sorted list. Unlike an LSM merge of overlapping memtables/sstables,
// the index's shards partition the key space disjointly (one key lives
// in exactly one shard), so there is no tombstone/latest-wins
// resolution to do here — only ordering.
func Merge(lists ...[]Element) []Element {
	h := &Heap{}
	heap.Init(h)

	for i, list := range lists {
		if len(list) > 0 {
			heap.Push(h, Element{Key: list[0].Key, Value: list[0].Value, LI: i})
			lists[i] = list[1:]
		}
	}

	merged := make([]Element, 0, h.Len())
	for h.Len() > 0 {
		e := heap.Pop(h).(Element)
		merged = append(merged, e)
		if len(lists[e.LI]) > 0 {
			heap.Push(h, Element{Key: lists[e.LI][0].Key, Value: lists[e.LI][0].Value, LI: e.LI})
			lists[e.LI] = lists[e.LI][1:]
		}
	}
	return merged
}
