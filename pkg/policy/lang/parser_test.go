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
)

func mustParse(t *testing.T, src string) rawExpr {
	t.Helper()
	e, err := parsePolicy(src)
	require.NoError(t, err)
	return e
}

func TestParseFieldEqualsLabel(t *testing.T) {
	e := mustParse(t, "Subject.a:entity == testservice")
	rel, ok := e.(*rawRelation)
	require.True(t, ok)
	require.Equal(t, RelEquals, rel.op)
	require.Equal(t, termField, rel.lhs.kind)
	require.Equal(t, GlobalSubject, rel.lhs.global)
	require.Equal(t, "a:entity", rel.lhs.label)
	require.Equal(t, termEntity, rel.rhs.kind)
	require.Equal(t, "testservice", rel.rhs.label)
}

func TestParseFieldContainsAttribute(t *testing.T) {
	e := mustParse(t, "Subject.a:role contains a/b:c")
	rel := e.(*rawRelation)
	require.Equal(t, RelContains, rel.op)
	require.Equal(t, termAttr, rel.rhs.kind)
	require.Equal(t, "a", rel.rhs.label)
	require.Equal(t, "b:c", rel.rhs.subLabel)
}

func TestParseConjunction(t *testing.T) {
	e := mustParse(t, "Subject.a:role contains a:b:c and Resource.a:name == foo")
	and, ok := e.(*rawAnd)
	require.True(t, ok)
	_, ok = and.lhs.(*rawRelation)
	require.True(t, ok)
	_, ok = and.rhs.(*rawRelation)
	require.True(t, ok)
}

func TestParseDisjunction(t *testing.T) {
	e := mustParse(t, "Subject.a:role contains a:b:c or Resource.a:name == foo")
	_, ok := e.(*rawOr)
	require.True(t, ok)
}

func TestParseNot(t *testing.T) {
	e := mustParse(t, "not Subject.a:role contains a:b:c")
	n, ok := e.(*rawNot)
	require.True(t, ok)
	_, ok = n.inner.(*rawRelation)
	require.True(t, ok)
}

func TestParseNotBindsTighterThanAnd(t *testing.T) {
	// not > and: "not X and not Y" parses as (not X) and (not Y).
	e := mustParse(t, "not a == b and not c == d")
	and, ok := e.(*rawAnd)
	require.True(t, ok)
	_, ok = and.lhs.(*rawNot)
	require.True(t, ok)
	_, ok = and.rhs.(*rawNot)
	require.True(t, ok)
}

func TestParseAndBindsTighterThanOr(t *testing.T) {
	// and > or: "a == b or c == d and e == f" parses as a==b or (c==d and e==f).
	e := mustParse(t, "a == b or c == d and e == f")
	or, ok := e.(*rawOr)
	require.True(t, ok)
	_, ok = or.lhs.(*rawRelation)
	require.True(t, ok)
	_, ok = or.rhs.(*rawAnd)
	require.True(t, ok)
}

func TestParseParenthesizedNotConjunction(t *testing.T) {
	e := mustParse(t, "(not Subject.a:role contains a:b:c) and (not a == b)")
	and, ok := e.(*rawAnd)
	require.True(t, ok)
	_, ok = and.lhs.(*rawNot)
	require.True(t, ok)
	_, ok = and.rhs.(*rawNot)
	require.True(t, ok)
}

func TestParseParenthesizedDisjunctionOfConjunction(t *testing.T) {
	e := mustParse(t, "(Subject.a:role contains a:b:c and Resource.a:name == foo) or Subject.a:b == label")
	or, ok := e.(*rawOr)
	require.True(t, ok)
	_, ok = or.lhs.(*rawAnd)
	require.True(t, ok)
	_, ok = or.rhs.(*rawRelation)
	require.True(t, ok)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := parsePolicy("a == b )")
	require.Error(t, err)
}

func TestParseRejectsMissingOperator(t *testing.T) {
	_, err := parsePolicy("a b")
	require.Error(t, err)
}

func TestParseRejectsUnterminatedParen(t *testing.T) {
	_, err := parsePolicy("(a == b")
	require.Error(t, err)
}
