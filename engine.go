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

// Package cellkv is an in-memory OCC/MVCC transaction core: a
// cache-aligned versioned cell per key, a global monotonic clock for
// snapshot and commit timestamps, and a four-phase commit protocol
// that validates a transaction's read set and scanned-absent ranges
// before installing its writes. Durability and compaction are out of
// scope; the engine owns only what's needed to run transactions
// against an in-memory index.
package cellkv

import (
	"sync/atomic"

	"github.com/cellkv/cellkv/internal/audit"
	"github.com/cellkv/cellkv/internal/index"
	"github.com/cellkv/cellkv/pkg/logger"
)

// State is the lifecycle stage of an Engine.
type State uint32

const (
	_ State = iota
	StateInitialize
	StateOpened
	StateClosed
)

// Engine is the top-level handle: the index, the commit oracle, the
// global clock, and the audit trail encoder.
type Engine struct {
	config Config
	logger logger.Logger
	state  atomic.Uint32

	clock  *clock
	oracle *oracle
	index  *index.Index
	trail  *audit.Trail
}

// Open constructs a ready-to-use Engine.
func Open(config Config) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: config,
		logger: config.loggerOrDefault(),
		index:  index.New(config.SkipListMaxLevel, config.SkipListP),
		clock:  newClock(),
		trail:  nil,
	}
	e.state.Store(uint32(StateInitialize))
	e.oracle = newOracle(e)
	e.trail = audit.NewTrail(e.logger)

	e.state.Store(uint32(StateOpened))
	return e, nil
}

// Close stops the engine's background bookkeeping (the clock's
// watermark goroutine). It does not flush or persist anything, since
// this engine is purely in-memory.
func (e *Engine) Close() {
	e.clock.stop()
	e.state.Store(uint32(StateClosed))
}

// State returns the engine's current lifecycle stage.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Begin starts a new transaction at the current snapshot timestamp.
// writable controls whether Set/Delete are permitted.
func (e *Engine) Begin(writable bool) *Txn {
	readTs := e.clock.peek()
	e.clock.beginSnapshot(readTs)

	return &Txn{
		readOnly: !writable,
		engine:   e,
		readTs:   readTs,
		readSet:  make(map[string]readEntry),
		writeSet: make(map[string][]byte),
	}
}

// View runs fn in a read-only transaction, discarding it afterward
// regardless of fn's outcome.
func (e *Engine) View(fn TxnFunc) error {
	t := e.Begin(false)
	defer t.Discard()
	return fn(t)
}

// Update runs fn in a read-write transaction and commits it if fn
// returns nil. fn's own error is returned without attempting commit;
// ErrConflictTxn from Commit propagates to the caller, who decides
// whether to retry with a fresh transaction.
func (e *Engine) Update(fn TxnFunc) error {
	t := e.Begin(true)
	if err := fn(t); err != nil {
		t.Discard()
		return err
	}
	return t.Commit()
}

// CurrentTID returns the clock's current value, for diagnostics.
func (e *Engine) CurrentTID() uint64 {
	return e.clock.peek()
}

// GCHorizon returns the highest timestamp below which no active
// snapshot can still be reading. It is exposed for an external
// caller that wants to trim cell history or build a persistence tier
// on top of this engine; the engine itself performs no GC.
func (e *Engine) GCHorizon() uint64 {
	return e.clock.gcHorizon()
}

// recordAudit best-effort encodes a commit into the audit trail and
// logs its size. Nothing in this engine reads the trail back; it
// exists for an external consumer (replication, offline audit log).
func (e *Engine) recordAudit(commitTs uint64, keys [][]byte) {
	encoded, err := e.trail.Encode(commitTs, keys)
	if err != nil {
		e.logger.Warnf("audit: failed to encode commit %d: %v", commitTs, err)
		return
	}
	e.logger.Debugf("audit: commit %d recorded, %d keys, %d bytes", commitTs, len(keys), len(encoded))
}
