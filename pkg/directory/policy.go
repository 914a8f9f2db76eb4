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

package directory

import (
	"context"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// Policy is a compiled access-control rule: its expression is the
// postcard-style serialized bytecode pkg/policy/code encodes and
// pkg/policy/engine evaluates.
type Policy struct {
	ID         id.ID
	DirID      id.ID
	Label      string
	Expression []byte
}

// CreatePolicy inserts a compiled policy row.
func CreatePolicy(ctx context.Context, store db.DB, p Policy) error {
	_, err := store.Execute(ctx,
		`INSERT INTO policy (id, dir_id, label, expression) VALUES (?, ?, ?, ?)`,
		db.IDParam(p.ID), db.IDParam(p.DirID), db.TextParam(p.Label), db.BlobParam(p.Expression))
	return err
}

// ListPolicies lists every policy belonging to a directory, grounded on
// original_source/src/db/directory_db.rs:directory_list_policies.
func ListPolicies(ctx context.Context, store db.DB, dirID id.ID) ([]Policy, error) {
	rows, err := store.Query(ctx, `SELECT id, label, expression FROM policy WHERE dir_id = ?`, db.IDParam(dirID))
	if err != nil {
		return nil, err
	}
	out := make([]Policy, 0, len(rows))
	for _, row := range rows {
		blob, err := row.Blob("id")
		if err != nil {
			return nil, err
		}
		policyID, err := db.DecodeIDBlob(id.KindPolicy, blob)
		if err != nil {
			return nil, err
		}
		label, err := row.Text("label")
		if err != nil {
			return nil, err
		}
		expr, err := row.Blob("expression")
		if err != nil {
			return nil, err
		}
		out = append(out, Policy{ID: policyID, DirID: dirID, Label: label, Expression: expr})
	}
	return out, nil
}

// GetPolicy fetches one policy by id.
func GetPolicy(ctx context.Context, store db.DB, policyID id.ID) (Policy, error) {
	rows, err := store.Query(ctx, `SELECT dir_id, label, expression FROM policy WHERE id = ?`, db.IDParam(policyID))
	if err != nil {
		return Policy{}, err
	}
	if len(rows) == 0 {
		return Policy{}, apierror.New(apierror.CodeNotFound, "no such policy")
	}
	dirBlob, err := rows[0].Blob("dir_id")
	if err != nil {
		return Policy{}, err
	}
	dirID, err := db.DecodeIDBlob(id.KindDirectory, dirBlob)
	if err != nil {
		return Policy{}, err
	}
	label, err := rows[0].Text("label")
	if err != nil {
		return Policy{}, err
	}
	expr, err := rows[0].Blob("expression")
	if err != nil {
		return Policy{}, err
	}
	return Policy{ID: policyID, DirID: dirID, Label: label, Expression: expr}, nil
}

// PolicyBinding is a trigger: when the attribute set is a subset of the
// evaluated resource attributes, every policy in PolicyIDs is triggered
// (spec.md §3's "(attribute_set, policy_set)" pairing).
type PolicyBinding struct {
	AttrIDs   []id.ID
	PolicyIDs []id.ID
}

// CreatePolicyBinding persists one trigger/policy-set pairing under a fresh
// binding key, grouping its attr rows and policy rows together.
func CreatePolicyBinding(ctx context.Context, store db.DB, bindingKey int64, binding PolicyBinding) error {
	for _, attrID := range binding.AttrIDs {
		if _, err := store.Execute(ctx,
			`INSERT INTO policy_trigger (binding_key, attr_id) VALUES (?, ?)`,
			db.IntParam(bindingKey), db.IDParam(attrID)); err != nil {
			return err
		}
	}
	for _, policyID := range binding.PolicyIDs {
		if _, err := store.Execute(ctx,
			`INSERT INTO policy_trigger_policy (binding_key, policy_id) VALUES (?, ?)`,
			db.IntParam(bindingKey), db.IDParam(policyID)); err != nil {
			return err
		}
	}
	return nil
}

// ListPolicyBindings loads every trigger/policy-set pairing scoped to a
// directory's policies, used once at document-compile (and cluster
// "directory changed") time to rebuild pkg/policy/engine's in-memory
// trigger index.
func ListPolicyBindings(ctx context.Context, store db.DB, dirID id.ID) ([]PolicyBinding, error) {
	keyRows, err := store.Query(ctx,
		`SELECT DISTINCT t.binding_key AS binding_key
		 FROM policy_trigger_policy t
		 JOIN policy p ON p.id = t.policy_id
		 WHERE p.dir_id = ?`, db.IDParam(dirID))
	if err != nil {
		return nil, err
	}

	out := make([]PolicyBinding, 0, len(keyRows))
	for _, kr := range keyRows {
		key, err := kr.Int("binding_key")
		if err != nil {
			return nil, err
		}

		attrRows, err := store.Query(ctx, `SELECT attr_id FROM policy_trigger WHERE binding_key = ?`, db.IntParam(key))
		if err != nil {
			return nil, err
		}
		attrIDs := make([]id.ID, 0, len(attrRows))
		for _, row := range attrRows {
			blob, err := row.Blob("attr_id")
			if err != nil {
				return nil, err
			}
			attrID, err := db.DecodeIDBlob(id.KindAttribute, blob)
			if err != nil {
				return nil, err
			}
			attrIDs = append(attrIDs, attrID)
		}

		policyRows, err := store.Query(ctx, `SELECT policy_id FROM policy_trigger_policy WHERE binding_key = ?`, db.IntParam(key))
		if err != nil {
			return nil, err
		}
		policyIDs := make([]id.ID, 0, len(policyRows))
		for _, row := range policyRows {
			blob, err := row.Blob("policy_id")
			if err != nil {
				return nil, err
			}
			policyID, err := db.DecodeIDBlob(id.KindPolicy, blob)
			if err != nil {
				return nil, err
			}
			policyIDs = append(policyIDs, policyID)
		}

		out = append(out, PolicyBinding{AttrIDs: attrIDs, PolicyIDs: policyIDs})
	}
	return out, nil
}
