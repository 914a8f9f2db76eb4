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

package document

import (
	"strings"

	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// insertStatements renders every compiled row in FK-safe order: properties
// and attributes before the entities that reference them, entities before
// their ent_attr/ident/password rows, policies last (policy_trigger rows
// reference a freshly drawn binding key, never a prior one).
func (c *compiler) insertStatements() []db.Statement {
	var stmts []db.Statement

	for _, p := range c.properties {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO property (id, namespace_id, kind, label) VALUES (?, ?, ?, ?)`,
			Params: []db.Param{db.IDParam(p.id), db.IDParam(c.dirID), db.TextParam(string(p.kind)), db.TextParam(p.label)},
		})
	}
	for _, a := range c.attributes {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO attribute (id, prop_id, label) VALUES (?, ?, ?)`,
			Params: []db.Param{db.IDParam(a.id), db.IDParam(a.propID), db.TextParam(a.label)},
		})
	}
	for _, p := range c.personas {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO persona (eid, dir_key, label) VALUES (?, ?, ?)`,
			Params: []db.Param{db.IDParam(p.EID), db.IntParam(int64(c.dirKey)), db.TextParam(p.Label)},
		})
	}
	for _, s := range c.services {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO svc (eid, dir_key, label) VALUES (?, ?, ?)`,
			Params: []db.Param{db.IDParam(s.EID), db.IntParam(int64(c.dirKey)), db.TextParam(s.Label)},
		})
		for _, h := range s.Hosts {
			stmts = append(stmts, db.Statement{
				SQL:    `INSERT INTO svc_host (eid, host) VALUES (?, ?)`,
				Params: []db.Param{db.IDParam(s.EID), db.TextParam(h)},
			})
		}
	}
	for _, k := range c.k8sAccounts {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO svc_k8s_account (eid, namespace, account_name) VALUES (?, ?, ?)`,
			Params: []db.Param{db.IDParam(k.eid), db.TextParam(k.namespace), db.TextParam(k.account)},
		})
	}
	for _, i := range c.idents {
		stmts = append(stmts, db.Statement{
			SQL: `INSERT INTO object_ident (obj_id, prop_id, ciphertext, nonce, fingerprint) VALUES (?, ?, ?, ?, ?)`,
			Params: []db.Param{
				db.IDParam(i.obj), db.IDParam(i.prop.ID()),
				db.BlobParam(i.ident.Ciphertext), db.BlobParam(i.ident.Nonce), db.BlobParam(i.ident.Fingerprint[:]),
			},
		})
	}
	for _, p := range c.passwords {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO ent_password (eid, argon2_hash) VALUES (?, ?)`,
			Params: []db.Param{db.IDParam(p.eid), db.TextParam(p.hash)},
		})
	}
	for _, ea := range c.entAttrs {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO ent_attr (eid, attr_id) VALUES (?, ?) ON CONFLICT (eid, attr_id) DO NOTHING`,
			Params: []db.Param{db.IDParam(ea.eid), db.IDParam(ea.attrID)},
		})
	}
	for _, p := range c.policies {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO policy (id, dir_id, label, expression) VALUES (?, ?, ?, ?)`,
			Params: []db.Param{db.IDParam(p.ID), db.IDParam(p.DirID), db.TextParam(p.Label), db.BlobParam(p.Expression)},
		})
	}
	for _, b := range c.bindings {
		key := randomBindingKey()
		for _, attrID := range b.AttrIDs {
			stmts = append(stmts, db.Statement{
				SQL:    `INSERT INTO policy_trigger (binding_key, attr_id) VALUES (?, ?)`,
				Params: []db.Param{db.IntParam(key), db.IDParam(attrID)},
			})
		}
		for _, policyID := range b.PolicyIDs {
			stmts = append(stmts, db.Statement{
				SQL:    `INSERT INTO policy_trigger_policy (binding_key, policy_id) VALUES (?, ?)`,
				Params: []db.Param{db.IntParam(key), db.IDParam(policyID)},
			})
		}
	}
	return stmts
}

// deleteStatements clears everything a previous application of dirID's
// document left behind, in an order that respects every foreign key the
// schema declares: policy_trigger (whose own dir-scoping subquery still
// needs policy_trigger_policy's rows) is cleared before
// policy_trigger_policy, which is cleared before policy; ent_attr/attribute
// before property; svc_host/svc_k8s_account before svc.
//
// Several tables (property, attribute, ent_attr, object_ident,
// ent_password, policy_trigger, policy_trigger_policy) carry no direct
// dir_id/dir_key column, so their rows are found by joining through the
// tables that do.
func deleteStatements(dirID id.ID, dirKey directory.DirKey, groupEIDs []id.ID) []db.Statement {
	dk := db.IntParam(int64(dirKey))
	di := db.IDParam(dirID)

	stmts := []db.Statement{
		{SQL: `DELETE FROM ent_password WHERE eid IN (SELECT eid FROM persona WHERE dir_key = ?) OR eid IN (SELECT eid FROM svc WHERE dir_key = ?)`,
			Params: []db.Param{dk, dk}},
		{SQL: `DELETE FROM object_ident WHERE obj_id IN (SELECT eid FROM persona WHERE dir_key = ?) OR obj_id IN (SELECT eid FROM svc WHERE dir_key = ?)`,
			Params: []db.Param{dk, dk}},
	}

	entAttrSQL := `DELETE FROM ent_attr WHERE eid IN (SELECT eid FROM persona WHERE dir_key = ?) OR eid IN (SELECT eid FROM svc WHERE dir_key = ?)`
	entAttrParams := []db.Param{dk, dk}
	if len(groupEIDs) > 0 {
		placeholders, params := idInClause(groupEIDs)
		entAttrSQL += ` OR eid IN (` + placeholders + `)`
		entAttrParams = append(entAttrParams, params...)
	}
	stmts = append(stmts, db.Statement{SQL: entAttrSQL, Params: entAttrParams})

	stmts = append(stmts,
		db.Statement{SQL: `DELETE FROM attribute WHERE prop_id IN (SELECT id FROM property WHERE namespace_id = ?)`, Params: []db.Param{di}},
		db.Statement{SQL: `DELETE FROM property WHERE namespace_id = ?`, Params: []db.Param{di}},
		db.Statement{SQL: `DELETE FROM persona WHERE dir_key = ?`, Params: []db.Param{dk}},
		db.Statement{SQL: `DELETE FROM svc_host WHERE eid IN (SELECT eid FROM svc WHERE dir_key = ?)`, Params: []db.Param{dk}},
		db.Statement{SQL: `DELETE FROM svc_k8s_account WHERE eid IN (SELECT eid FROM svc WHERE dir_key = ?)`, Params: []db.Param{dk}},
		db.Statement{SQL: `DELETE FROM svc WHERE dir_key = ?`, Params: []db.Param{dk}},
		db.Statement{SQL: `DELETE FROM policy_trigger WHERE binding_key IN (
			SELECT t.binding_key FROM policy_trigger_policy t JOIN policy p ON p.id = t.policy_id WHERE p.dir_id = ?
		)`, Params: []db.Param{di}},
		db.Statement{SQL: `DELETE FROM policy_trigger_policy WHERE policy_id IN (SELECT id FROM policy WHERE dir_id = ?)`, Params: []db.Param{di}},
		db.Statement{SQL: `DELETE FROM policy WHERE dir_id = ?`, Params: []db.Param{di}},
	)
	return stmts
}

func idInClause(ids []id.ID) (string, []db.Param) {
	placeholders := make([]string, len(ids))
	params := make([]db.Param, len(ids))
	for i, v := range ids {
		placeholders[i] = "?"
		params[i] = db.IDParam(v)
	}
	return strings.Join(placeholders, ", "), params
}
