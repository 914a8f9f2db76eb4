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

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"
	"github.com/authly-sh/authly/pkg/policy/lang"
)

// buildTrousersEngine compiles the "has_legs => may wear trousers" policy
// from spec.md §8: Subject.trait contains trait/has_legs, triggered when
// the resource carries both kind/trousers and verb/wear.
func buildTrousersEngine(t *testing.T) (*Engine, id.ID, id.ID, id.ID, id.ID) {
	t.Helper()
	ns := lang.NewNamespace()
	traitProp := id.New(id.KindProperty)
	hasLegsAttr := id.New(id.KindAttribute)
	kindAttr := id.New(id.KindAttribute)
	verbAttr := id.New(id.KindAttribute)
	require.NoError(t, ns.Define("trait", lang.NamespaceEntry{Kind: lang.EntryProperty, PropID: traitProp}))
	require.NoError(t, ns.Define("trait/has_legs", lang.NamespaceEntry{Kind: lang.EntryAttribute, PropID: traitProp, AttrID: hasLegsAttr}))

	expr, err := lang.Resolve("Subject.trait contains trait/has_legs", ns)
	require.NoError(t, err)
	ops := lang.Compile(expr)

	policyID := id.New(id.KindPolicy)
	e := New(
		[]Policy{{ID: policyID, Program: ops, Outcome: Allow}},
		[]Trigger{{AttrMatchSet: []id.ID{kindAttr, verbAttr}, PolicyIDs: []id.ID{policyID}}},
	)
	return e, hasLegsAttr, kindAttr, verbAttr, policyID
}

func TestEngineAllowsWhenTriggeredAndPolicyTrue(t *testing.T) {
	e, hasLegsAttr, kindAttr, verbAttr, _ := buildTrousersEngine(t)

	outcome := e.Evaluate(AccessControlParams{
		SubjectAttrs:  []id.ID{hasLegsAttr},
		ResourceAttrs: []id.ID{kindAttr, verbAttr},
	})
	require.Equal(t, Allow, outcome)
}

func TestEngineDeniesOnResourceAttrSubset(t *testing.T) {
	e, hasLegsAttr, kindAttr, _, _ := buildTrousersEngine(t)

	// Only one of the two resource attrs present: the trigger's match set
	// is not a subset of resource attrs, so no policy triggers at all.
	outcome := e.Evaluate(AccessControlParams{
		SubjectAttrs:  []id.ID{hasLegsAttr},
		ResourceAttrs: []id.ID{kindAttr},
	})
	require.Equal(t, Deny, outcome)
}

func TestEngineDeniesWhenSubjectLacksAttribute(t *testing.T) {
	e, _, kindAttr, verbAttr, _ := buildTrousersEngine(t)

	outcome := e.Evaluate(AccessControlParams{
		SubjectAttrs:  nil,
		ResourceAttrs: []id.ID{kindAttr, verbAttr},
	})
	require.Equal(t, Deny, outcome)
}

func TestEngineEmptyTriggersDenies(t *testing.T) {
	e := New(nil, nil)
	outcome := e.Evaluate(AccessControlParams{ResourceAttrs: []id.ID{id.New(id.KindAttribute)}})
	require.Equal(t, Deny, outcome)
}

func TestEngineDenyWinsOverAllow(t *testing.T) {
	sameEntity := id.New(id.KindService)
	// Both policies compile to an always-true "x == x": only their bound
	// Outcome differs, isolating the deny-wins combination rule itself.
	alwaysTrue := []code.Instr{
		{Op: code.OpLoadConstEntityID, Operand: sameEntity},
		{Op: code.OpLoadConstEntityID, Operand: sameEntity},
		{Op: code.OpIsEq},
		{Op: code.OpReturn},
	}
	allowPolicy := Policy{ID: id.New(id.KindPolicy), Program: alwaysTrue, Outcome: Allow}
	denyPolicy := Policy{ID: id.New(id.KindPolicy), Program: alwaysTrue, Outcome: Deny}

	attrID := id.New(id.KindAttribute)
	e := New([]Policy{allowPolicy, denyPolicy}, []Trigger{
		{AttrMatchSet: []id.ID{attrID}, PolicyIDs: []id.ID{allowPolicy.ID, denyPolicy.ID}},
	})

	outcome := e.Evaluate(AccessControlParams{ResourceAttrs: []id.ID{attrID}})
	require.Equal(t, Deny, outcome, "deny-wins must hold regardless of any number of Allow verdicts")
}

func TestEngineBytecodeFaultYieldsError(t *testing.T) {
	badPolicy := Policy{ID: id.New(id.KindPolicy), Program: []code.Instr{
		{Op: code.OpReturn}, // underflow: nothing pushed
	}, Outcome: Allow}

	attrID := id.New(id.KindAttribute)
	e := New([]Policy{badPolicy}, []Trigger{{AttrMatchSet: []id.ID{attrID}, PolicyIDs: []id.ID{badPolicy.ID}}})

	outcome := e.Evaluate(AccessControlParams{ResourceAttrs: []id.ID{attrID}})
	require.Equal(t, Error, outcome)
}

func TestEngineTriggerOrderingDoesNotAffectResult(t *testing.T) {
	e, hasLegsAttr, kindAttr, verbAttr, policyID := buildTrousersEngine(t)
	// Rebuild with the policy bound to Deny and the trigger's match set
	// listed in reversed order: the match set is tested as a set, so the
	// trigger still fires and the policy's Deny verdict is returned.
	e2 := New(
		[]Policy{{ID: policyID, Program: e.policies[policyID].Program, Outcome: Deny}},
		[]Trigger{{AttrMatchSet: []id.ID{verbAttr, kindAttr}, PolicyIDs: []id.ID{policyID}}},
	)
	outcome := e2.Evaluate(AccessControlParams{
		SubjectAttrs:  []id.ID{hasLegsAttr},
		ResourceAttrs: []id.ID{kindAttr, verbAttr},
	})
	require.Equal(t, Deny, outcome)
}
