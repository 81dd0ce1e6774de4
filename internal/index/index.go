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

// Package index implements the ordered, non-transactional key index
// that the transaction core consumes: Lookup, InsertIfAbsent, RangeScan.
// It is the one concrete external collaborator this repository ships
// so the core is runnable end to end.
package index

import (
	"sync"

	"github.com/cellkv/cellkv/cell"
	"github.com/cellkv/cellkv/pkg/filter"
	"github.com/cellkv/cellkv/pkg/kway"
	"github.com/cellkv/cellkv/pkg/utils"
)

const shardCount = 16

// Index is a sharded skiplist of cells. Keys are bucketed across
// shardCount independent skiplists (each with its own mutex and bloom
// filter) so unrelated keys don't contend on the same lock; a
// RangeScan merges the shards' sorted sub-ranges with pkg/kway.
type Index struct {
	shards [shardCount]*shard
}

type shard struct {
	mu   sync.RWMutex
	list *skiplist
	// bloom is a negative-lookup filter built on the shard's first
	// insert. Every later insert adds its key to it, and it is rebuilt
	// (resized for the current key count) once the shard has grown by
	// rebuildSlack keys since the last build, so it never lacks a key
	// the shard holds. It only ever produces a fast "definitely absent"
	// answer, never a "definitely present" one.
	bloom        *filter.Filter
	bloomAsOf    int
	rebuildSlack int
}

// New constructs an empty Index. maxLevel and p configure the per-shard
// skiplist's level fan-out and promotion probability.
func New(maxLevel int, p float64) *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &shard{
			list:         newSkiplist(maxLevel, p),
			rebuildSlack: 64,
		}
	}
	return idx
}

func (idx *Index) shardFor(key []byte) *shard {
	return idx.shards[utils.Hash(key)%shardCount]
}

// Lookup returns the cell for key, if one has ever been created.
func (idx *Index) Lookup(key []byte) (*cell.Cell, bool) {
	sh := idx.shardFor(key)

	sh.mu.RLock()
	if sh.bloom != nil && !sh.bloom.MayContain(key) {
		sh.mu.RUnlock()
		return nil, false
	}
	c, ok := sh.list.get(key)
	sh.mu.RUnlock()
	return c, ok
}

// InsertIfAbsent returns the cell now present in the index for key,
// allocating and inserting a fresh one if none existed. If two callers
// race, both get back the single cell that won the race.
func (idx *Index) InsertIfAbsent(key []byte) *cell.Cell {
	sh := idx.shardFor(key)

	sh.mu.Lock()
	c := sh.list.loadOrStore(key, cell.New)
	if sh.bloom == nil || sh.list.Size()-sh.bloomAsOf >= sh.rebuildSlack {
		sh.rebuildBloomLocked()
	} else {
		sh.bloom.Add(key)
	}
	sh.mu.Unlock()
	return c
}

func (sh *shard) rebuildBloomLocked() {
	entries := sh.list.scan(nil, nil)
	bf := filter.NewDefault(max(len(entries), 1))
	for _, e := range entries {
		bf.Add(e.key)
	}
	sh.bloom = bf
	sh.bloomAsOf = sh.list.Size()
}

// RangeScan enumerates every (key, cell) pair with lo <= key < hi, in
// ascending key order, k-way merging the participating shards.
// visit returning false stops the scan early.
func (idx *Index) RangeScan(lo, hi []byte, visit func(key []byte, c *cell.Cell) bool) {
	lists := make([][]kway.Element, 0, shardCount)
	for _, sh := range idx.shards {
		sh.mu.RLock()
		raw := sh.list.scan(lo, hi)
		elems := make([]kway.Element, len(raw))
		for i, e := range raw {
			elems[i] = kway.Element{Key: e.key, Value: e.cell}
		}
		sh.mu.RUnlock()
		if len(elems) > 0 {
			lists = append(lists, elems)
		}
	}

	for _, e := range kway.Merge(lists...) {
		if !visit(e.Key, e.Value) {
			return
		}
	}
}

// Len returns the total number of distinct keys ever inserted across
// all shards (diagnostics only).
func (idx *Index) Len() int {
	n := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		n += sh.list.Size()
		sh.mu.RUnlock()
	}
	return n
}
