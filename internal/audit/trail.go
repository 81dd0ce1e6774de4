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

// Package audit produces and parses the commit audit trail: a
// compressed, thrift-encoded record of which keys a transaction
// committed and at what timestamp. Nothing in the core reads this
// trail back to reconstruct state (durability is out of scope); it
// exists for external consumption — replication, debugging, or an
// offline audit log.
package audit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cellkv/cellkv/pkg/bufferpool"
	"github.com/cellkv/cellkv/pkg/logger"
	"github.com/cellkv/cellkv/pkg/utils"
)

// Trail encodes and decodes commit records.
type Trail struct {
	log logger.Logger
}

func NewTrail(log logger.Logger) *Trail {
	return &Trail{log: log}
}

// Encode marshals a commit's key set and commit timestamp into a
// compressed wire record suitable for shipping off-process.
func (t *Trail) Encode(commitTs uint64, keys [][]byte) ([]byte, error) {
	defer utils.Elapsed(time.Now(), t.log, "audit encode")

	raw, err := utils.TMarshal(&Record{
		CommitTs: int64(commitTs),
		Keys:     keys,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: marshal record: %w", err)
	}

	buf := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(buf)

	if err := utils.Compress(bytes.NewReader(raw), buf); err != nil {
		return nil, fmt.Errorf("audit: compress record: %w", err)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// Decode reverses Encode.
func (t *Trail) Decode(data []byte) (commitTs uint64, keys [][]byte, err error) {
	defer utils.Elapsed(time.Now(), t.log, "audit decode")

	buf := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(buf)

	if err := utils.Decompress(bytes.NewReader(data), buf); err != nil {
		return 0, nil, fmt.Errorf("audit: decompress record: %w", err)
	}

	rec := &Record{}
	if err := utils.TUnmarshal(buf.Bytes(), rec); err != nil {
		return 0, nil, fmt.Errorf("audit: unmarshal record: %w", err)
	}
	return uint64(rec.CommitTs), rec.Keys, nil
}
