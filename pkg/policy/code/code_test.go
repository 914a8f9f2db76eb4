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

package code

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/id"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	attrID := id.New(id.KindAttribute)
	prog := []Instr{
		{Op: OpLoadSubjectAttrs},
		{Op: OpLoadConstAttrID, Operand: attrID},
		{Op: OpIdSetContains},
		{Op: OpNot},
		{Op: OpReturn},
	}

	encoded := Encode(prog)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	if diff := cmp.Diff(prog, decoded); diff != "" {
		t.Fatalf("decoded program diverged from the encoded one:\n%s", diff)
	}
}

func TestEncodeDecodeEntityIDOperandRoundTrip(t *testing.T) {
	entID := id.New(id.KindService)
	prog := []Instr{
		{Op: OpLoadSubjectID, Operand: id.BuiltinProp(1).ID()},
		{Op: OpLoadConstEntityID, Operand: entID},
		{Op: OpIsEq},
		{Op: OpReturn},
	}

	decoded, err := Decode(Encode(prog))
	require.NoError(t, err)
	if diff := cmp.Diff(prog, decoded); diff != "" {
		t.Fatalf("decoded program diverged from the encoded one:\n%s", diff)
	}
}

func TestDecodeRejectsTruncatedOperand(t *testing.T) {
	b := []byte{byte(OpLoadConstAttrID)}
	_, err := Decode(b)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	b := []byte{0xFF}
	_, err := Decode(b)
	require.Error(t, err)
}

func TestDecodeEmptyProgramIsEmpty(t *testing.T) {
	decoded, err := Decode(nil)
	require.NoError(t, err)
	require.Empty(t, decoded)
}
