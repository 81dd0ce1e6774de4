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
	"bytes"

	"github.com/cellkv/cellkv/cell"
)

// Element is one (key, cell) pair drawn from one of the sorted shard
// lists being merged.
type Element struct {
	Key   []byte
	Value *cell.Cell
	// LI is the source list index.
	LI int
}

// Heap is a min-heap of Elements ordered by key.
type Heap []Element

func (h *Heap) Len() int {
	return len(*h)
}

func (h *Heap) Less(i, j int) bool {
	c := bytes.Compare((*h)[i].Key, (*h)[j].Key)
	if c != 0 {
		return c < 0
	}
	return (*h)[i].LI < (*h)[j].LI
}

func (h *Heap) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
}

func (h *Heap) Push(x any) {
	*h = append(*h, x.(Element))
}

// Pop the minimum element in heap
// 1. move the minimum element to the end of slice
// 2. pop it (what this method does)
// 3. heapify
func (h *Heap) Pop() any {
	curr := *h
	n := len(curr)
	e := curr[n-1]
	*h = curr[0 : n-1]
	return e
}
