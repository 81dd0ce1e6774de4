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

package index

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/cellkv/cellkv/cell"
)

// skiplist is a classic leveled skip list keyed by raw bytes, holding
// one *cell.Cell per logical key. Every version of a key lives inside
// that one cell's version array, so the list only ever holds one node
// per logical key.
type skiplist struct {
	maxLevel int
	p        float64
	level    int
	rand     *rand.Rand
	size     int
	head     *node
}

type node struct {
	key  []byte
	cell *cell.Cell
	next []*node
}

func newSkiplist(maxLevel int, p float64) *skiplist {
	return &skiplist{
		maxLevel: maxLevel,
		p:        p,
		level:    1,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		head: &node{
			next: make([]*node, maxLevel),
		},
	}
}

func (s *skiplist) Size() int {
	return s.size
}

// loadOrStore returns the existing cell for key, or inserts and
// returns a freshly allocated one if key is absent. It implements the
// index contract's InsertIfAbsent: the caller always gets back
// "whichever the index now contains".
func (s *skiplist) loadOrStore(key []byte, alloc func() *cell.Cell) *cell.Cell {
	curr := s.head
	update := make([]*node, s.maxLevel)

	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && bytes.Compare(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	if n := curr.next[0]; n != nil && bytes.Equal(n.key, key) {
		return n.cell
	}

	level := s.randomLevel()
	if level > s.level {
		for i := s.level; i < level; i++ {
			update[i] = s.head
		}
		s.level = level
	}

	n := &node{
		key:  append([]byte(nil), key...),
		cell: alloc(),
		next: make([]*node, level),
	}
	for i := range level {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.size++
	return n.cell
}

func (s *skiplist) get(key []byte) (*cell.Cell, bool) {
	curr := s.head
	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && bytes.Compare(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
	}
	curr = curr.next[0]
	if curr != nil && bytes.Equal(curr.key, key) {
		return curr.cell, true
	}
	return nil, false
}

// scan returns every (key, cell) pair with lo <= key < hi, in ascending
// order. hi == nil means unbounded.
func (s *skiplist) scan(lo, hi []byte) []entry {
	curr := s.head
	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && bytes.Compare(curr.next[i].key, lo) < 0 {
			curr = curr.next[i]
		}
	}
	curr = curr.next[0]

	var out []entry
	for curr != nil {
		if hi != nil && bytes.Compare(curr.key, hi) >= 0 {
			break
		}
		out = append(out, entry{key: curr.key, cell: curr.cell})
		curr = curr.next[0]
	}
	return out
}

type entry struct {
	key  []byte
	cell *cell.Cell
}

// for n <= maxLevel, level >= n has probability p^(n-1)
func (s *skiplist) randomLevel() int {
	level := 1
	for s.rand.Float64() < s.p && level < s.maxLevel {
		level++
	}
	return level
}
