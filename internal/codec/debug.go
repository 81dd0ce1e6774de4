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

// Package codec encodes the bit-exact cell layout for debugging tools:
// the control word, the ascending timestamp array,
// and the record-reference slots, laid out exactly as an on-disk
// format would. The reference slots hold the backing array pointer of
// each version's record, not the record bytes themselves — this is a
// debugging/instrumentation dump, not a persistence format, since raw
// pointers only mean something within the process that produced them.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cellkv/cellkv/cell"
	"github.com/cellkv/cellkv/utils"
)

// pointerWidth is the width in bytes of a record reference slot. amd64
// and arm64 (the platforms this runs on) are both 8-byte pointers.
const pointerWidth = 8

// DebugLayout is the decoded form of an encoded cell layout.
type DebugLayout struct {
	ControlWord uint64
	Timestamps  [cell.MaxVersions]uint64
	RefPointers [cell.MaxVersions]uintptr
}

// EncodeDebugLayout writes c's layout in a fixed byte order: 8 bytes
// control word, 15*8 bytes timestamps, 15*8 bytes reference pointers.
func EncodeDebugLayout(c *cell.Cell) []byte {
	controlWord, timestamps, refPointers := c.DebugLayout()

	var buf bytes.Buffer
	w := utils.NewErrorWriter(&buf)
	w.Write(binary.LittleEndian, controlWord)
	for _, ts := range timestamps {
		w.Write(binary.LittleEndian, ts)
	}
	for _, ref := range refPointers {
		w.Write(binary.LittleEndian, uint64(ref))
	}
	if err := w.Error(); err != nil {
		// binary.Write only fails on a non-fixed-size value; every
		// field here is a fixed-size uint64, so this is unreachable.
		panic(fmt.Sprintf("codec: encode debug layout: %v", err))
	}
	return buf.Bytes()
}

// DecodeDebugLayout parses bytes produced by EncodeDebugLayout.
func DecodeDebugLayout(data []byte) (DebugLayout, error) {
	var out DebugLayout
	r := utils.NewErrorReader(bytes.NewReader(data))

	r.Read(binary.LittleEndian, &out.ControlWord)
	for i := range out.Timestamps {
		r.Read(binary.LittleEndian, &out.Timestamps[i])
	}
	for i := range out.RefPointers {
		var p uint64
		r.Read(binary.LittleEndian, &p)
		out.RefPointers[i] = uintptr(p)
	}

	if err := r.Error(); err != nil {
		return DebugLayout{}, fmt.Errorf("codec: decode debug layout: %w", err)
	}
	return out, nil
}

// EncodedSize is the fixed wire size of an encoded cell layout.
const EncodedSize = 8 + cell.MaxVersions*8 + cell.MaxVersions*pointerWidth
