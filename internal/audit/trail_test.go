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

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellkv/cellkv/pkg/logger"
)

func TestTrailEncodeDecodeRoundTrip(t *testing.T) {
	tr := NewTrail(logger.GetLogger())

	keys := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	encoded, err := tr.Encode(42, keys)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	gotTs, gotKeys, err := tr.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), gotTs)
	assert.Equal(t, keys, gotKeys)
}

func TestTrailEncodeDecodeEmptyKeySet(t *testing.T) {
	tr := NewTrail(logger.GetLogger())

	encoded, err := tr.Encode(7, nil)
	require.NoError(t, err)

	gotTs, gotKeys, err := tr.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), gotTs)
	assert.Empty(t, gotKeys)
}

func TestTrailDecodeRejectsGarbage(t *testing.T) {
	tr := NewTrail(logger.GetLogger())
	_, _, err := tr.Decode([]byte("not a valid record"))
	assert.Error(t, err)
}

func TestRecordStringerHandlesNil(t *testing.T) {
	var r *Record
	assert.Equal(t, "<nil>", r.String())
}
