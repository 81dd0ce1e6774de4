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
	"github.com/stretchr/testify/require"
)

func TestOracleCommitAssignsIncreasingTimestamps(t *testing.T) {
	e := setupTestEngine(t)
	defer e.Close()

	var commits []uint64
	for i := 0; i < 5; i++ {
		txn := e.Begin(true)
		require.NoError(t, txn.Set("k", []byte{byte(i)}))
		require.NoError(t, txn.Commit())
		commits = append(commits, txn.commitTs)
	}

	for i := 1; i < len(commits); i++ {
		assert.Greater(t, commits[i], commits[i-1])
	}
}

func TestOracleNoOpWriteSetSkipsCommitProtocol(t *testing.T) {
	e := setupTestEngine(t)
	defer e.Close()

	before := e.CurrentTID()
	txn := e.Begin(true)
	require.NoError(t, txn.Commit())
	assert.Equal(t, before, e.CurrentTID(), "a transaction with nothing to write never consumes a commit timestamp")
}

func TestOracleWriteWriteConflictFreeWhenKeysDisjoint(t *testing.T) {
	e := setupTestEngine(t)
	defer e.Close()

	txnA := e.Begin(true)
	txnB := e.Begin(true)

	require.NoError(t, txnA.Set("a", []byte("1")))
	require.NoError(t, txnB.Set("b", []byte("1")))

	assert.NoError(t, txnA.Commit())
	assert.NoError(t, txnB.Commit())
}

func TestOracleReadSetConflictAbortsLaterCommitter(t *testing.T) {
	e := setupTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Update(func(txn *Txn) error {
		return txn.Set("shared", []byte("v0"))
	}))

	reader := e.Begin(true)
	_, found := reader.Get("shared")
	require.True(t, found)

	require.NoError(t, e.Update(func(txn *Txn) error {
		return txn.Set("shared", []byte("v1"))
	}))

	require.NoError(t, reader.Set("other", []byte("x")))
	err := reader.Commit()
	assert.Equal(t, ErrConflictTxn, err)
}

func TestOracleOwnWriteExemptFromReadSetValidation(t *testing.T) {
	e := setupTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Update(func(txn *Txn) error {
		return txn.Set("k", []byte("v0"))
	}))

	txn := e.Begin(true)
	_, found := txn.Get("k")
	require.True(t, found)
	require.NoError(t, txn.Set("k", []byte("v1")))

	// txn both reads and writes k with no other writer in between; the
	// lock it holds on k during its own commit is never a conflict with
	// its own read.
	assert.NoError(t, txn.Commit())
}

// TestOracleOverlappingWriteSetsCommitConcurrently exercises two
// blind-write transactions whose write sets overlap, both reaching
// Phase 1 at the same time. Neither read "shared" beforehand, so
// there's nothing in either read set for Phase 3 to trip on; the only
// thing keeping their commits from corrupting each other is Phase 1's
// per-cell lock on the key they share. Both must succeed, each with
// its own unique commit timestamp, and the cell must end up holding
// exactly one of the two values, installed in lock-acquisition order.
func TestOracleOverlappingWriteSetsCommitConcurrently(t *testing.T) {
	e := setupTestEngine(t)
	defer e.Close()

	const rounds = 50
	for i := 0; i < rounds; i++ {
		txnA := e.Begin(true)
		txnB := e.Begin(true)
		require.NoError(t, txnA.Set("shared", []byte("A")))
		require.NoError(t, txnA.Set("only-a", []byte("1")))
		require.NoError(t, txnB.Set("shared", []byte("B")))
		require.NoError(t, txnB.Set("only-b", []byte("1")))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = txnA.Commit() }()
		go func() { defer wg.Done(); errs[1] = txnB.Commit() }()
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.NotEqual(t, txnA.commitTs, txnB.commitTs)

		err := e.View(func(txn *Txn) error {
			val, found := txn.Get("shared")
			assert.True(t, found)
			assert.Contains(t, [][]byte{[]byte("A"), []byte("B")}, val)
			return nil
		})
		assert.NoError(t, err)
	}
}
