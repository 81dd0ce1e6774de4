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
	"context"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
)

// Record is the commit audit trail entry: the commit timestamp a
// transaction was assigned and the keys in its write set. There is no
// thrift IDL for this repository, so Record is written by hand in the
// shape a thriftc-generated struct would take, satisfying
// thrift.TStruct so it can ride pkg/utils.TMarshal/TUnmarshal.
type Record struct {
	CommitTs int64    `thrift:"CommitTs,1" frugal:"1,default,i64" json:"CommitTs"`
	Keys     [][]byte `thrift:"Keys,2" frugal:"2,default,list<binary>" json:"Keys"`
}

const (
	recordFieldCommitTs int16 = 1
	recordFieldKeys     int16 = 2
)

func (r *Record) Write(ctx context.Context, oprot thrift.TProtocol) error {
	if err := oprot.WriteStructBegin(ctx, "Record"); err != nil {
		return err
	}

	if err := oprot.WriteFieldBegin(ctx, "CommitTs", thrift.I64, recordFieldCommitTs); err != nil {
		return err
	}
	if err := oprot.WriteI64(ctx, r.CommitTs); err != nil {
		return err
	}
	if err := oprot.WriteFieldEnd(ctx); err != nil {
		return err
	}

	if err := oprot.WriteFieldBegin(ctx, "Keys", thrift.LIST, recordFieldKeys); err != nil {
		return err
	}
	if err := oprot.WriteListBegin(ctx, thrift.STRING, len(r.Keys)); err != nil {
		return err
	}
	for _, k := range r.Keys {
		if err := oprot.WriteBinary(ctx, k); err != nil {
			return err
		}
	}
	if err := oprot.WriteListEnd(ctx); err != nil {
		return err
	}
	if err := oprot.WriteFieldEnd(ctx); err != nil {
		return err
	}

	if err := oprot.WriteFieldStop(ctx); err != nil {
		return err
	}
	return oprot.WriteStructEnd(ctx)
}

func (r *Record) Read(ctx context.Context, iprot thrift.TProtocol) error {
	if _, err := iprot.ReadStructBegin(ctx); err != nil {
		return err
	}

	for {
		_, fieldType, fieldID, err := iprot.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if fieldType == thrift.STOP {
			break
		}

		switch fieldID {
		case recordFieldCommitTs:
			v, err := iprot.ReadI64(ctx)
			if err != nil {
				return err
			}
			r.CommitTs = v
		case recordFieldKeys:
			_, size, err := iprot.ReadListBegin(ctx)
			if err != nil {
				return err
			}
			r.Keys = make([][]byte, 0, size)
			for i := 0; i < size; i++ {
				k, err := iprot.ReadBinary(ctx)
				if err != nil {
					return err
				}
				r.Keys = append(r.Keys, k)
			}
			if err := iprot.ReadListEnd(ctx); err != nil {
				return err
			}
		default:
			if err := iprot.Skip(ctx, fieldType); err != nil {
				return err
			}
		}

		if err := iprot.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}

	return iprot.ReadStructEnd(ctx)
}

func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Record(CommitTs:%d Keys:%d)", r.CommitTs, len(r.Keys))
}

var _ thrift.TStruct = (*Record)(nil)
