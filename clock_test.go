// Copyright 2025 BINARY Members
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

package cellkv

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellkv/cellkv/cell"
)

func TestClockStartsAtMinTID(t *testing.T) {
	c := newClock()
	defer c.stop()

	assert.Equal(t, cell.MinTID, c.peek())
}

func TestClockIncrementAndFetchStartsAtMinTIDPlusOne(t *testing.T) {
	c := newClock()
	defer c.stop()

	assert.Equal(t, cell.MinTID+1, c.incrementAndFetch())
	assert.Equal(t, cell.MinTID+1, c.peek())
}

func TestClockPeekDoesNotAdvance(t *testing.T) {
	c := newClock()
	defer c.stop()

	c.incrementAndFetch()
	before := c.peek()
	assert.Equal(t, before, c.peek())
}

func TestClockConcurrentIncrementAndFetchUnique(t *testing.T) {
	c := newClock()
	defer c.stop()

	const n = 200
	seen := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = c.incrementAndFetch()
		}(i)
	}
	wg.Wait()

	unique := make(map[uint64]struct{}, n)
	for _, v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, n, "incrementAndFetch must never hand out the same value twice")
}

func TestClockGCHorizonTracksOpenSnapshots(t *testing.T) {
	c := newClock()
	defer c.stop()

	ts := c.peek()
	c.beginSnapshot(ts)
	assert.Equal(t, cell.MinTID, c.gcHorizon())

	c.doneSnapshot(ts)
	assert.Eventually(t, func() bool {
		return c.gcHorizon() == ts
	}, defaultEventuallyWait, defaultEventuallyTick)
}
