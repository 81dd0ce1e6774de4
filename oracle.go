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
	"github.com/cellkv/cellkv/cell"
)

// oracle runs the four-phase commit protocol: lock the write set, assign
// a commit timestamp, validate against the read set and absent ranges,
// then install. There is no protocol-wide lock: Phase 1's per-cell
// locks, always taken in ascending key order by every committing
// transaction, are the only synchronization between concurrent
// commits. Two commits with disjoint write sets run Phases 1-4
// entirely in parallel; two with overlapping write sets serialize only
// on the cells they actually share, and the shared global ascending
// order rules out deadlock between them.
type oracle struct {
	engine *Engine
}

func newOracle(e *Engine) *oracle {
	return &oracle{engine: e}
}

// commit runs Phases 1-4 against keys, the committing transaction's
// write set in ascending order. It returns the assigned commit
// timestamp on success, or ErrConflictTxn if validation fails (every
// lock taken in Phase 1 is released either way).
func (o *oracle) commit(t *Txn, keys [][]byte) (uint64, error) {
	// Phase 1: lock the write set in ascending key order. A key this
	// transaction also read is validated here, since Phase 3's stable
	// reads would wait on the lock held by this transaction itself: no
	// version newer than the snapshot, and no unlock before ours locked.
	cells := make([]*cell.Cell, len(keys))
	staleOwnRead := false
	for i, k := range keys {
		c := o.engine.index.InsertIfAbsent(k)
		_, read := t.readSet[string(k)]
		counter := c.VersionCounter()
		fresh := !read || c.IsLatestVersion(t.readTs)
		c.Lock()
		cells[i] = c
		if !fresh || (read && c.VersionCounter() != counter) {
			staleOwnRead = true
		}
	}
	unlockAll := func() {
		for _, c := range cells {
			c.Unlock()
		}
	}
	if staleOwnRead {
		unlockAll()
		return 0, ErrConflictTxn
	}

	// Phase 2: assign the commit timestamp. incrementAndFetch is atomic,
	// so concurrent committers never collide or reorder with each other
	// regardless of which one locked its cells first.
	commitTs := o.engine.clock.incrementAndFetch()

	inWriteSet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		inWriteSet[string(k)] = struct{}{}
	}

	// Phase 3: validate.
	for k, entry := range t.readSet {
		if _, ok := inWriteSet[k]; ok {
			continue
		}
		if !entry.cell.IsSnapshotConsistent(t.readTs, commitTs) {
			unlockAll()
			return 0, ErrConflictTxn
		}
	}

	if o.hasPhantom(t, inWriteSet, commitTs) {
		unlockAll()
		return 0, ErrConflictTxn
	}

	// Phase 4: install and unlock.
	for i, k := range keys {
		cells[i].WriteRecordAt(commitTs, t.writeSet[string(k)])
		cells[i].Unlock()
	}

	return commitTs, nil
}

// hasPhantom consults the index over every range this transaction's
// scans recorded as absent, looking for a key (other than the
// transaction's own write) whose newest version landed in
// (snapshotTs, commitTs] — proof that it was inserted by a transaction
// that committed after this one's snapshot but no later than this
// one's own commit, into a span this transaction relied on being
// empty. A version installed after commitTs belongs to a transaction
// that serializes after this one and is not a phantom for it.
func (o *oracle) hasPhantom(t *Txn, inWriteSet map[string]struct{}, commitTs uint64) bool {
	found := false
	t.absent.forEach(func(r keyRange) {
		if found {
			return
		}
		var hi []byte
		if r.hasHi {
			hi = r.hi
		}
		o.engine.index.RangeScan(r.lo, hi, func(key []byte, c *cell.Cell) bool {
			if _, ok := inWriteSet[string(key)]; ok {
				return true
			}
			newest := c.NewestTimestamp()
			if newest > t.readTs && newest <= commitTs {
				found = true
				return false
			}
			return true
		})
	})
	return found
}
