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

	"github.com/authly-sh/authly/pkg/id"
)

func traitNamespace(t *testing.T) (*Namespace, id.ID, id.ID, id.ID) {
	t.Helper()
	ns := NewNamespace()
	traitProp := id.New(id.KindProperty)
	hasLegsAttr := id.New(id.KindAttribute)
	svc := id.New(id.KindService)

	require.NoError(t, ns.Define("trait", NamespaceEntry{Kind: EntryProperty, PropID: traitProp}))
	require.NoError(t, ns.Define("trait/has_legs", NamespaceEntry{Kind: EntryAttribute, PropID: traitProp, AttrID: hasLegsAttr}))
	require.NoError(t, ns.Define("testservice", NamespaceEntry{Kind: EntryEntity, EntityID: svc}))
	require.NoError(t, ns.Define("a:entity", NamespaceEntry{Kind: EntryProperty, PropID: id.PropEntity.ID()}))
	return ns, traitProp, hasLegsAttr, svc
}

func TestResolveContainsExpr(t *testing.T) {
	ns, traitProp, hasLegsAttr, _ := traitNamespace(t)
	expr, err := Resolve("Subject.trait contains trait/has_legs", ns)
	require.NoError(t, err)

	contains, ok := expr.(ContainsExpr)
	require.True(t, ok)
	field, ok := contains.Set.(SubjectFieldTerm)
	require.True(t, ok)
	require.True(t, field.PropID.Equal(traitProp))
	attr, ok := contains.Value.(AttrTerm)
	require.True(t, ok)
	require.True(t, attr.AttrID.Equal(hasLegsAttr))
}

func TestResolveEntityEqualsField(t *testing.T) {
	ns, _, _, svc := traitNamespace(t)
	expr, err := Resolve("Subject.a:entity == testservice", ns)
	require.NoError(t, err)

	eq, ok := expr.(EqualsExpr)
	require.True(t, ok)
	ent, ok := eq.RHS.(EntityTerm)
	require.True(t, ok)
	require.True(t, ent.ID.Equal(svc))
}

func TestResolveRejectsUnknownLabel(t *testing.T) {
	ns, _, _, _ := traitNamespace(t)
	_, err := Resolve("Subject.trait contains trait/no_such_attr", ns)
	require.Error(t, err)
	var uae *UnknownAttributeError
	require.ErrorAs(t, err, &uae)
}

func TestResolveRejectsAttrOfWrongProperty(t *testing.T) {
	ns, _, _, _ := traitNamespace(t)
	otherProp := id.New(id.KindProperty)
	require.NoError(t, ns.Define("other", NamespaceEntry{Kind: EntryProperty, PropID: otherProp}))
	otherAttr := id.New(id.KindAttribute)
	// Register an attribute whose stored PropID does not match its own
	// "other/" prefix, forcing the same-property mismatch path.
	require.NoError(t, ns.Define("other/mismatched", NamespaceEntry{Kind: EntryAttribute, PropID: id.New(id.KindProperty), AttrID: otherAttr}))

	_, err := Resolve("Subject.other contains other/mismatched", ns)
	require.Error(t, err)
	var tme *TypeMismatchError
	require.ErrorAs(t, err, &tme)
}

func TestResolveRejectsContainsWithEntityOnLeft(t *testing.T) {
	ns, _, _, _ := traitNamespace(t)
	_, err := Resolve("testservice contains trait/has_legs", ns)
	require.Error(t, err)
}

func TestResolveRejectsEqualsBetweenTwoFields(t *testing.T) {
	ns, _, _, _ := traitNamespace(t)
	require.NoError(t, ns.Define("other", NamespaceEntry{Kind: EntryProperty, PropID: id.New(id.KindProperty)}))
	_, err := Resolve("Subject.trait == Resource.other", ns)
	require.Error(t, err)
	var tme *TypeMismatchError
	require.ErrorAs(t, err, &tme)
}
