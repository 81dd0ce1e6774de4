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
	"bytes"
	"errors"
	"sort"

	"github.com/cellkv/cellkv/cell"
)

var (
	ErrReadOnlyTxn  = errors.New("transaction is read-only")
	ErrDiscardedTxn = errors.New("transaction has been discarded")
	ErrEmptyKey     = errors.New("key is empty")
	// ErrConflictTxn is the sole recoverable commit outcome: either a
	// read-set cell changed underneath this transaction's snapshot, or
	// a scanned range acquired a key it had recorded absent.
	ErrConflictTxn = errors.New("transaction aborted: commit conflict")
)

// readEntry is what the read path buffers per key: the version this
// transaction saw, and the cell it came from (reused at commit time
// for IsSnapshotConsistent without a second index lookup).
type readEntry struct {
	startTs uint64
	ref     []byte
	found   bool
	cell    *cell.Cell
}

// Txn holds one transaction's state: a snapshot timestamp, a buffered
// read set, a buffered write set, and an absent range set built up by
// Scan. Writes are invisible to every other transaction until Commit
// installs them, but Get checks this transaction's own write set
// first, so a transaction always sees its own pending writes.
type Txn struct {
	readOnly  bool
	discarded bool

	snapshotDone bool

	engine *Engine

	readTs   uint64
	commitTs uint64

	readSet  map[string]readEntry
	writeSet map[string][]byte
	absent   absentRangeSet
}

// TxnFunc is the callback shape accepted by Engine.View and Engine.Update.
type TxnFunc func(*Txn) error

// Get returns the reference visible to this transaction for key. A
// prior Set/Delete in this transaction takes precedence over the
// snapshot; otherwise the first read of a key locates its cell via the
// index and performs a stable read at the transaction's snapshot
// timestamp, buffering the result for subsequent calls.
func (t *Txn) Get(key string) ([]byte, bool) {
	if t.discarded || key == "" {
		return nil, false
	}

	if ref, ok := t.writeSet[key]; ok {
		return ref, ref != nil
	}
	if entry, ok := t.readSet[key]; ok {
		return entry.ref, entry.found
	}

	c, ok := t.engine.index.Lookup([]byte(key))
	if !ok {
		return nil, false
	}
	startTs, ref, found := c.StableRead(t.readTs)
	t.readSet[key] = readEntry{startTs: startTs, ref: ref, found: found, cell: c}
	return ref, found
}

// Set buffers key=value in the write set, replacing any prior entry.
func (t *Txn) Set(key string, value []byte) error {
	return t.write(key, value)
}

// Delete buffers a tombstone (a nil record reference) for key.
func (t *Txn) Delete(key string) error {
	return t.write(key, nil)
}

func (t *Txn) write(key string, ref []byte) error {
	switch {
	case t.readOnly:
		return ErrReadOnlyTxn
	case t.discarded:
		return ErrDiscardedTxn
	case key == "":
		return ErrEmptyKey
	}
	t.writeSet[key] = ref
	return nil
}

// Scan visits every key in [start, end) with a non-deleted version
// visible to this transaction's snapshot, in ascending order. Every
// key the underlying index holds in range is added to the read set if
// it has a visible version, and the gaps between visible keys — plus
// the outer boundaries — are recorded as absent ranges so a
// concurrent insert into one of those gaps is caught as a phantom at
// commit time. visit returning false stops the scan early, and no
// absent range is recorded for the unexplored remainder.
func (t *Txn) Scan(start, end string, visit func(key string, value []byte) bool) error {
	if t.discarded {
		return ErrDiscardedTxn
	}

	var hi []byte
	hasHi := end != ""
	if hasHi {
		hi = []byte(end)
	}

	cursor := []byte(start)
	exhausted := true

	t.engine.index.RangeScan([]byte(start), hi, func(key []byte, c *cell.Cell) bool {
		startTs, ref, found := c.StableRead(t.readTs)
		if found {
			t.readSet[string(key)] = readEntry{startTs: startTs, ref: ref, found: ref != nil, cell: c}
		}

		if !(found && ref != nil) {
			return true
		}

		t.absent.addRange(keyRange{lo: cursor, hi: append([]byte(nil), key...), hasHi: true})
		cursor = successor(key)

		if !visit(string(key), ref) {
			exhausted = false
			return false
		}
		return true
	})

	if exhausted {
		t.absent.addRange(keyRange{lo: cursor, hi: hi, hasHi: hasHi})
	}
	return nil
}

// successor returns the lexicographically smallest byte string that is
// strictly greater than key — the inclusive lower bound of the gap
// that follows it.
func successor(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

// Commit runs the four-phase commit protocol if the write set is
// non-empty, returning ErrConflictTxn if validation fails. A read-only
// or no-op transaction simply discards.
func (t *Txn) Commit() error {
	if t.discarded {
		return ErrDiscardedTxn
	}
	defer t.finishSnapshot()
	t.discarded = true

	if len(t.writeSet) == 0 {
		return nil
	}

	keys := make([][]byte, 0, len(t.writeSet))
	for k := range t.writeSet {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})

	commitTs, err := t.engine.oracle.commit(t, keys)
	if err != nil {
		return err
	}
	t.commitTs = commitTs
	t.engine.recordAudit(commitTs, keys)
	return nil
}

// Discard abandons the transaction without committing any writes.
// Safe to call multiple times and safe to call after Commit.
func (t *Txn) Discard() {
	if t.discarded {
		return
	}
	t.discarded = true
	t.finishSnapshot()
}

func (t *Txn) finishSnapshot() {
	if t.snapshotDone {
		return
	}
	t.snapshotDone = true
	t.engine.clock.doneSnapshot(t.readTs)
}
