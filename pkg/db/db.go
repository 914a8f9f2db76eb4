// Copyright The Authly Authors.
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

// Package db presents one uniform interface -- query, execute, transact --
// over an embedded SQL engine, the way spec.md §4.1 asks of both an
// in-process engine and a replicated one. Callers address rows by column
// name; integer, text and blob coercions are explicit.
package db

import (
	"context"

	"github.com/authly-sh/authly/pkg/id"
)

// Param is a typed statement parameter. The concrete types below are the
// only admitted parameter shapes: integer, text, blob, and a kind-tagged ID
// marshalled as a blob with a leading kind byte.
type Param interface{ isParam() }

type IntParam int64

func (IntParam) isParam() {}

type TextParam string

func (TextParam) isParam() {}

type BlobParam []byte

func (BlobParam) isParam() {}

// IDParam marshals an id.ID as a 17-byte blob: one kind byte followed by
// the 16 raw bytes, so a column's kind can be checked without a join.
func IDParam(v id.ID) BlobParam {
	b := make([]byte, 17)
	b[0] = byte(v.Kind)
	copy(b[1:], v.Raw[:])
	return BlobParam(b)
}

// DecodeIDBlob is the inverse of IDParam, validating that the stored kind
// byte matches the kind the caller expects.
func DecodeIDBlob(expect id.Kind, b []byte) (id.ID, error) {
	if len(b) != 17 {
		return id.ID{}, Errf(CodeBinaryEncoding, "id blob must be 17 bytes, got %d", len(b))
	}
	if id.Kind(b[0]) != expect {
		return id.ID{}, Errf(CodeBinaryEncoding, "id blob has kind %s, expected %s", id.Kind(b[0]), expect)
	}
	var r id.Raw
	copy(r[:], b[1:])
	return id.ID{Kind: expect, Raw: r}, nil
}

// Statement is one SQL text plus its bound parameters, the unit that
// Transact commits or rejects as a whole.
type Statement struct {
	SQL    string
	Params []Param
}

// Row is a single result row, addressed by column name. Rows are owned:
// callers and parameters must not retain them past the call that produced
// them (spec.md §4.1).
type Row interface {
	Int(col string) (int64, error)
	Text(col string) (string, error)
	Blob(col string) ([]byte, error)
}

// TxResult reports the outcome of one statement within a Transact call.
type TxResult struct {
	RowsAffected int64
	Err          error
}

// DB is the uniform persistence interface every higher layer programs
// against; pkg/directory, pkg/document and pkg/instance never see the
// underlying SQL engine directly.
type DB interface {
	// Query returns owned rows for a read-only statement.
	Query(ctx context.Context, sql string, params ...Param) ([]Row, error)

	// Execute runs one write statement and reports rows affected.
	Execute(ctx context.Context, sql string, params ...Param) (int64, error)

	// Transact runs every statement atomically: either all commit or none
	// do. On failure the returned slice identifies which statement failed
	// by index; statements after the first failure are not attempted.
	Transact(ctx context.Context, stmts []Statement) ([]TxResult, error)

	// IsLeader reports whether this node is presently the cluster leader,
	// the gate for leader-only side effects (DEK generation, cert
	// rotation, certificate redistribution).
	IsLeader() bool

	// LastLogIndex is the highest log index this node has observed,
	// attached to outgoing cluster-bus messages so receivers can detect
	// out-of-order delivery.
	LastLogIndex() uint64

	// Notify broadcasts an opaque payload to every Listen subscriber
	// across the cluster (§4.1, ridden by pkg/cluster).
	Notify(ctx context.Context, payload []byte) error

	// Listen subscribes to broadcast payloads until ctx is done or cancel
	// is called.
	Listen(ctx context.Context) (msgs <-chan []byte, cancel func(), err error)
}
