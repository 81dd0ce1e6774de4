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

// Package cell implements the versioned cell: the cache-aligned,
// lock-protected container of a single key's version history that the
// OCC/MVCC core is built on top of.
package cell

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// MaxVersions is N, the fixed capacity of a cell's version array.
const MaxVersions = 15

// MinTID is the sentinel timestamp meaning "never written".
const MinTID uint64 = 0

const (
	lockedMask  = uint64(1)
	sizeShift   = 1
	sizeMask    = uint64(0xF) << sizeShift
	counterMask = ^uint64(0x1F)
	counterUnit = uint64(1) << 5
)

const cacheLine = 64

// Cell is the versioned cell of component A: a control word packing
// {locked, size, version-counter} and an ascending (timestamp, record
// reference) array of up to MaxVersions entries. The zero value is not
// usable; construct with New.
//
// The control word is the sole synchronization object. Only the lock
// holder may mutate ts/ref. Readers use the stable-read protocol:
// sample the control word, read the arrays, and retry if the control
// word changed underneath them.
type Cell struct {
	cw  atomic.Uint64
	ts  [MaxVersions]uint64
	ref [MaxVersions][]byte
	// pad rounds the struct up to a cache-line multiple so neighboring
	// cells allocated contiguously (e.g. in an index node pool) don't
	// false-share a line with this one.
	_pad [cacheLinePad]byte
}

const cellPayload = 8 + MaxVersions*8 + MaxVersions*24 // cw + ts + ref slice headers (amd64)
const cacheLinePad = (cacheLine - cellPayload%cacheLine) % cacheLine

// New allocates a fresh cell: size 1, containing (MinTID, nil).
func New() *Cell {
	c := &Cell{}
	c.ts[0] = MinTID
	c.ref[0] = nil
	c.cw.Store(pack(false, 1, 0))
	return c
}

func pack(locked bool, size uint8, counter uint64) uint64 {
	var w uint64
	if locked {
		w |= lockedMask
	}
	w |= (uint64(size) << sizeShift) & sizeMask
	w |= (counter << 5) & counterMask
	return w
}

func unpack(w uint64) (locked bool, size uint8, counter uint64) {
	locked = w&lockedMask != 0
	size = uint8((w & sizeMask) >> sizeShift)
	counter = (w & counterMask) >> 5
	return
}

// Lock spins until the locked bit transitions 0->1 via CAS.
func (c *Cell) Lock() {
	for {
		w := c.cw.Load()
		if w&lockedMask == 0 {
			if c.cw.CompareAndSwap(w, w|lockedMask) {
				return
			}
		}
		runtime.Gosched()
	}
}

// Unlock requires the cell locked. It increments the version counter
// by exactly one and clears the locked bit.
func (c *Cell) Unlock() {
	w := c.cw.Load()
	locked, size, counter := unpack(w)
	if !locked {
		panic("cell: unlock of unlocked cell")
	}
	c.cw.Store(pack(false, size, counter+1))
}

// stableVersion spins while the locked bit is observed set and returns
// the observed control word once the cell is seen unlocked.
func (c *Cell) stableVersion() uint64 {
	for {
		w := c.cw.Load()
		if w&lockedMask == 0 {
			return w
		}
		runtime.Gosched()
	}
}

// checkVersion reports whether the control word still equals v.
func (c *Cell) checkVersion(v uint64) bool {
	return c.cw.Load() == v
}

func sizeOf(w uint64) int {
	_, size, _ := unpack(w)
	return int(size)
}

// recordAt scans from newest to oldest and returns the first version
// whose timestamp is <= t. ok is false if even the oldest stored
// version exceeds t (the pre-t entry has been evicted).
func (c *Cell) recordAt(t uint64, size int) (startTs uint64, ref []byte, ok bool) {
	for i := size - 1; i >= 0; i-- {
		if c.ts[i] <= t {
			return c.ts[i], c.ref[i], true
		}
	}
	return 0, nil, false
}

// StableRead performs an optimistic read of the version visible at t,
// retrying whenever a concurrent writer is observed.
func (c *Cell) StableRead(t uint64) (startTs uint64, ref []byte, ok bool) {
	for {
		v := c.stableVersion()
		startTs, ref, ok = c.recordAt(t, sizeOf(v))
		if c.checkVersion(v) {
			return
		}
	}
}

// NewestTimestamp returns the timestamp of the cell's current (newest)
// version, using the stable-read protocol.
func (c *Cell) NewestTimestamp() uint64 {
	for {
		v := c.stableVersion()
		size := sizeOf(v)
		ts := c.ts[size-1]
		if c.checkVersion(v) {
			return ts
		}
	}
}

// IsLatestVersion reports whether the newest stored timestamp is <= t.
func (c *Cell) IsLatestVersion(t uint64) bool {
	return c.NewestTimestamp() <= t
}

// IsSnapshotConsistent implements commit-time read validation: a
// transaction that read this cell's version visible at snapshotTs is
// still consistent iff no intervening version was installed in
// (snapshotTs, commitTs).
//
// commitTs must not equal any version already stored in the cell; the
// writer holds the cell lock while installing and commit timestamps
// are globally unique, so this is an invariant, not a runtime check.
func (c *Cell) IsSnapshotConsistent(snapshotTs, commitTs uint64) bool {
	for {
		v := c.stableVersion()
		size := sizeOf(v)

		// fast path: no write has happened since the snapshot.
		if c.ts[size-1] <= snapshotTs {
			if c.checkVersion(v) {
				return true
			}
			continue
		}

		consistent, found := c.consistentAt(snapshotTs, commitTs, size)
		if c.checkVersion(v) {
			if !found {
				return false
			}
			return consistent
		}
	}
}

func (c *Cell) consistentAt(snapshotTs, commitTs uint64, size int) (consistent bool, found bool) {
	for i := size - 1; i >= 0; i-- {
		if c.ts[i] <= snapshotTs {
			if i == size-1 {
				// no newer version; already handled by the fast path.
				return true, true
			}
			if c.ts[i] == commitTs || c.ts[i+1] == commitTs {
				panic("cell: commit timestamp collides with a stored version")
			}
			return c.ts[i+1] > commitTs, true
		}
	}
	return false, false
}

// WriteRecordAt installs a new version at timestamp t. The caller must
// hold the cell's lock, and t must strictly exceed the newest stored
// timestamp. When the array is full the oldest version is evicted.
func (c *Cell) WriteRecordAt(t uint64, ref []byte) {
	w := c.cw.Load()
	locked, size, _ := unpack(w)
	if !locked {
		panic("cell: write_record_at on an unlocked cell")
	}
	if int(size) > 0 && t <= c.ts[size-1] {
		panic("cell: timestamps must be strictly increasing")
	}

	if int(size) < MaxVersions {
		c.ts[size] = t
		c.ref[size] = ref
		newSize := size + 1
		_, _, counter := unpack(w)
		c.cw.Store(pack(true, newSize, counter))
		return
	}

	// oldest-eviction: shift down, discard index 0.
	copy(c.ts[:MaxVersions-1], c.ts[1:])
	copy(c.ref[:MaxVersions-1], c.ref[1:])
	c.ts[MaxVersions-1] = t
	c.ref[MaxVersions-1] = ref
}

// Size returns the current occupied version-array length (1..MaxVersions).
func (c *Cell) Size() int {
	return sizeOf(c.cw.Load())
}

// VersionCounter returns the control word's version-counter field, for
// tests asserting that every lock/unlock pair advances it by one.
func (c *Cell) VersionCounter() uint64 {
	_, _, counter := unpack(c.cw.Load())
	return counter
}

// DebugLayout exposes the bit-exact observable shape of a cell: the
// raw control word, the ascending timestamp array, and one pointer-width
// value per slot (the record reference's backing array pointer, zero
// for a nil/never-written slot). Intended for debugging tools and tests
// that assert on the wire shape without reaching into unexported fields.
func (c *Cell) DebugLayout() (controlWord uint64, timestamps [MaxVersions]uint64, refPointers [MaxVersions]uintptr) {
	v := c.stableVersion()
	controlWord = v
	timestamps = c.ts
	for i, r := range c.ref {
		if r != nil {
			refPointers[i] = uintptr(unsafe.Pointer(&r[0]))
		}
	}
	return
}
