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

// Package directory stores and queries Authly's core data model (spec.md
// §3): directories, services, personas, properties, attributes,
// entity-attribute assignments, encrypted idents, policies, sessions and
// certificates, all addressed through pkg/db's uniform DB interface.
package directory

import (
	"context"

	"github.com/authly-sh/authly/pkg/db"
)

// schemaStatements creates every table directory.go and its siblings
// address, in dependency order. Each is idempotent (IF NOT EXISTS) so
// Migrate can run unconditionally on every node boot, mirroring the
// teacher's reconciler pattern of unconditionally reasserting desired
// state rather than branching on "already applied".
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS directory (
		dir_key INTEGER PRIMARY KEY AUTOINCREMENT,
		dir_id BLOB NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		label TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS svc (
		eid BLOB PRIMARY KEY,
		dir_key INTEGER NOT NULL REFERENCES directory(dir_key),
		label TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS svc_host (
		eid BLOB NOT NULL REFERENCES svc(eid),
		host TEXT NOT NULL,
		PRIMARY KEY (eid, host)
	)`,
	`CREATE TABLE IF NOT EXISTS svc_k8s_account (
		eid BLOB NOT NULL REFERENCES svc(eid),
		namespace TEXT NOT NULL,
		account_name TEXT NOT NULL,
		PRIMARY KEY (namespace, account_name)
	)`,
	`CREATE TABLE IF NOT EXISTS persona (
		eid BLOB PRIMARY KEY,
		dir_key INTEGER NOT NULL REFERENCES directory(dir_key),
		label TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS persona_foreign (
		dir_key INTEGER NOT NULL,
		foreign_id BLOB NOT NULL,
		persona_id BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (dir_key, foreign_id)
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_directory (
		dir_key INTEGER PRIMARY KEY REFERENCES directory(dir_key),
		client_id TEXT NOT NULL,
		auth_url TEXT NOT NULL,
		auth_req_scope TEXT,
		auth_req_client_id_field TEXT,
		auth_req_nonce_field TEXT,
		auth_res_code_path TEXT,
		token_url TEXT NOT NULL,
		token_req_client_id_field TEXT,
		token_req_client_secret_field TEXT,
		token_req_code_field TEXT,
		token_req_callback_url_field TEXT,
		token_res_access_token_field TEXT,
		user_url TEXT NOT NULL,
		user_res_id_path TEXT,
		user_res_email_path TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS property (
		id BLOB PRIMARY KEY,
		namespace_id BLOB NOT NULL,
		kind TEXT NOT NULL,
		label TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attribute (
		id BLOB PRIMARY KEY,
		prop_id BLOB NOT NULL REFERENCES property(id),
		label TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ent_attr (
		eid BLOB NOT NULL,
		attr_id BLOB NOT NULL REFERENCES attribute(id),
		PRIMARY KEY (eid, attr_id)
	)`,
	`CREATE TABLE IF NOT EXISTS object_ident (
		obj_id BLOB NOT NULL,
		prop_id BLOB NOT NULL,
		ciphertext BLOB NOT NULL,
		nonce BLOB NOT NULL,
		fingerprint BLOB NOT NULL,
		PRIMARY KEY (obj_id, prop_id)
	)`,
	// fingerprint is unique per property so that a second write of an
	// already-claimed ident (e.g. an email another persona owns) surfaces
	// as a constraint violation rather than silently duplicating an
	// identifying value across two objects.
	`CREATE UNIQUE INDEX IF NOT EXISTS object_ident_fingerprint ON object_ident (prop_id, fingerprint)`,
	`CREATE TABLE IF NOT EXISTS ent_password (
		eid BLOB PRIMARY KEY,
		argon2_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS policy (
		id BLOB PRIMARY KEY,
		dir_id BLOB NOT NULL,
		label TEXT NOT NULL,
		expression BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS policy_trigger (
		binding_key INTEGER NOT NULL,
		attr_id BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS policy_trigger_policy (
		binding_key INTEGER NOT NULL,
		policy_id BLOB NOT NULL REFERENCES policy(id)
	)`,
	`CREATE TABLE IF NOT EXISTS session (
		token BLOB PRIMARY KEY,
		eid BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS certificate (
		id BLOB PRIMARY KEY,
		kind TEXT NOT NULL,
		certifies_eid BLOB NOT NULL,
		signed_by_eid BLOB NOT NULL,
		der BLOB NOT NULL,
		not_after INTEGER NOT NULL
	)`,
	// Single row (row_key is always 1): the node's own AuthlyInstance,
	// sealed under the "private-key" property's DEK the same way an
	// identifying ident column is. Never queried by anything but
	// pkg/instance.
	`CREATE TABLE IF NOT EXISTS instance (
		row_key INTEGER PRIMARY KEY CHECK (row_key = 1),
		ciphertext BLOB NOT NULL,
		nonce BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	// A submission code row is deleted the moment it's redeemed
	// (verify-then-invalidate), so its mere presence means "still valid".
	`CREATE TABLE IF NOT EXISTS mandate_submission_code (
		code_hash BLOB PRIMARY KEY,
		created_by BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authority_mandate (
		mandate_eid BLOB PRIMARY KEY,
		created_by BLOB NOT NULL,
		public_key BLOB NOT NULL,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
}

// Migrate creates every table this package needs, if not already present.
func Migrate(ctx context.Context, store db.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := store.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
