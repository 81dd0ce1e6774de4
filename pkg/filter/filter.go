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

package filter

import (
	"hash"
	"math"

	"github.com/spaolacci/murmur3"
)

const _defaultP = 0.01

type Filter struct {
	bitset  []bool
	hashFns []hash.Hash32
	m       int
}

// New creates a new BloomFilter, deriving its bitset size and number of hash functions from n and p.
// n: expected nums of elements
// p: expected rate of false errors
func New(n int, p float64) *Filter {
	if n <= 0 {
		n = 1
	}
	// size of bitset
	// m = -(n * ln(p)) / (ln(2)^2)
	m := int(math.Ceil(-float64(n) * math.Log(p) / math.Pow(math.Log(2), 2)))
	if m <= 0 {
		m = 1
	}
	// nums of hash functions used
	// k = (m/n) * ln(2)
	k := int(math.Round((float64(m) / float64(n)) * math.Log(2)))
	if k <= 0 {
		k = 1
	}

	hashFns := make([]hash.Hash32, k)
	for i := range k {
		hashFns[i] = murmur3.New32WithSeed(uint32(i))
	}

	return &Filter{
		bitset:  make([]bool, m),
		hashFns: hashFns,
		m:       m,
	}
}

// NewDefault sizes a Filter for n expected keys at the default (1%)
// false-positive rate, the shard sizing used by the index.
func NewDefault(n int) *Filter {
	return New(n, _defaultP)
}

// Add adds a key to the BloomFilter.
func (f *Filter) Add(key []byte) {
	for _, fn := range f.hashFns {
		_, _ = fn.Write(key)
		index := int(fn.Sum32()) % f.m
		f.bitset[index] = true
		fn.Reset()
	}
}

// MayContain checks whether a key could be present in the BloomFilter.
// A false return is a proof of absence; a true return may be a false
// positive.
func (f *Filter) MayContain(key []byte) bool {
	for _, fn := range f.hashFns {
		_, _ = fn.Write(key)
		index := int(fn.Sum32()) % f.m
		fn.Reset()
		if !f.bitset[index] {
			return false
		}
	}
	return true
}
