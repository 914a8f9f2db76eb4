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
	"context"

	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"

	"github.com/authly-sh/authly/pkg/db"
)

// PolicyOutcome pairs a directory policy's label with the engine Outcome
// its bytecode maps a true evaluation to. No outcome is stored with a
// policy: a policy row holds only its label and bytecode, and the cluster
// bus builds every directory's Engine with AllowOnTrue (pkg/document
// accepts only the `[[policy]] allow = "<policy-source>"` form).
type PolicyOutcome func(label string) Outcome

// AllowOnTrue is the PolicyOutcome every document-compiled policy uses
// today: a true bytecode result means Allow.
func AllowOnTrue(string) Outcome { return Allow }

// Build loads every policy and trigger binding scoped to dirID and
// constructs the in-memory Engine pkg/policy/engine.Evaluate runs
// against, grounded on original_source/src/db/directory_db.rs's
// "load policies for directory" queries (via pkg/directory.ListPolicies
// and ListPolicyBindings) and rebuilt whenever the cluster bus reports
// that directory changed.
func Build(ctx context.Context, store db.DB, dirID id.ID, outcomeOf PolicyOutcome) (*Engine, error) {
	rows, err := directory.ListPolicies(ctx, store, dirID)
	if err != nil {
		return nil, err
	}
	policies := make([]Policy, 0, len(rows))
	for _, row := range rows {
		prog, err := code.Decode(row.Expression)
		if err != nil {
			return nil, err
		}
		policies = append(policies, Policy{ID: row.ID, Program: prog, Outcome: outcomeOf(row.Label)})
	}

	bindings, err := directory.ListPolicyBindings(ctx, store, dirID)
	if err != nil {
		return nil, err
	}
	triggers := make([]Trigger, 0, len(bindings))
	for _, b := range bindings {
		triggers = append(triggers, Trigger{AttrMatchSet: b.AttrIDs, PolicyIDs: b.PolicyIDs})
	}

	return New(policies, triggers), nil
}
