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
	"sync/atomic"

	"github.com/cellkv/cellkv/cell"
	"github.com/cellkv/cellkv/pkg/watermark"
)

// clock is the single process-wide monotonic counter transactions draw
// their timestamps from. Snapshot timestamps come from peek; commit
// timestamps come exclusively from incrementAndFetch, so the two never
// collide.
type clock struct {
	counter atomic.Uint64
	mark    *watermark.WaterMark
}

func newClock() *clock {
	c := &clock{mark: watermark.New()}
	c.counter.Store(cell.MinTID)
	return c
}

// peek returns the current value without advancing it: the snapshot
// timestamp a new read-only or read-write transaction starts at.
func (c *clock) peek() uint64 {
	return c.counter.Load()
}

// incrementAndFetch atomically advances the counter by one and
// returns the new value. The first call returns MinTID+1.
func (c *clock) incrementAndFetch() uint64 {
	return c.counter.Add(1)
}

// beginSnapshot records ts as an in-flight snapshot so the GC horizon
// (gcHorizon) won't advance past it until doneSnapshot is called.
// Commit timestamps are not tracked.
func (c *clock) beginSnapshot(ts uint64) {
	c.mark.Begin(ts)
}

// doneSnapshot retires a snapshot previously passed to beginSnapshot.
func (c *clock) doneSnapshot(ts uint64) {
	c.mark.Done(ts)
}

// gcHorizon is the highest timestamp below which no active snapshot
// can still observe a version: an external hook for a caller that
// wants to trim cell history or an on-disk tier. This engine performs
// no GC itself; it only ever reports the horizon.
func (c *clock) gcHorizon() uint64 {
	return c.mark.DoneUntil()
}

func (c *clock) stop() {
	c.mark.Stop()
}
