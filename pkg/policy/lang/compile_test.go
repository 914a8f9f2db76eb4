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

package lang

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/policy/code"
)

func TestCompileContainsExpr(t *testing.T) {
	ns, _, hasLegsAttr, _ := traitNamespace(t)
	expr, err := Resolve("Subject.trait contains trait/has_legs", ns)
	require.NoError(t, err)

	ops := Compile(expr)
	require.Len(t, ops, 4)
	require.Equal(t, code.OpLoadSubjectAttrs, ops[0].Op)
	require.Equal(t, code.OpLoadConstAttrID, ops[1].Op)
	require.True(t, ops[1].Operand.Equal(hasLegsAttr))
	require.Equal(t, code.OpIdSetContains, ops[2].Op)
	require.Equal(t, code.OpReturn, ops[3].Op)
}

func TestCompileEntityEquals(t *testing.T) {
	ns, _, _, svc := traitNamespace(t)
	expr, err := Resolve("Subject.a:entity == testservice", ns)
	require.NoError(t, err)

	ops := Compile(expr)
	require.Equal(t, code.OpLoadSubjectID, ops[0].Op)
	require.Equal(t, code.OpLoadConstEntityID, ops[1].Op)
	require.True(t, ops[1].Operand.Equal(svc))
	require.Equal(t, code.OpIsEq, ops[2].Op)
	require.Equal(t, code.OpReturn, ops[3].Op)
}

func TestCompileRoundTripsThroughEncodeDecode(t *testing.T) {
	ns, _, _, _ := traitNamespace(t)
	expr, err := Resolve("not Subject.trait contains trait/has_legs", ns)
	require.NoError(t, err)

	ops := Compile(expr)
	decoded, err := code.Decode(code.Encode(ops))
	require.NoError(t, err)
	require.Equal(t, ops, decoded)
}
