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
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// InsertObjectIdent stores a fresh encrypted ident for objID under prop,
// failing if one already exists (the PRIMARY KEY (obj_id, prop_id)
// constraint), so callers distinguish first-write from overwrite.
func InsertObjectIdent(ctx context.Context, store db.DB, objID id.ID, prop id.BuiltinProp, ident crypto.Ident) error {
	_, err := store.Execute(ctx,
		`INSERT INTO object_ident (obj_id, prop_id, ciphertext, nonce, fingerprint) VALUES (?, ?, ?, ?, ?)`,
		db.IDParam(objID), db.IDParam(prop.ID()), db.BlobParam(ident.Ciphertext), db.BlobParam(ident.Nonce), db.BlobParam(ident.Fingerprint[:]))
	return err
}

// UpsertObjectIdent stores or replaces the ident for (objID, prop).
func UpsertObjectIdent(ctx context.Context, store db.DB, objID id.ID, prop id.BuiltinProp, ident crypto.Ident) error {
	_, err := store.Execute(ctx,
		`INSERT INTO object_ident (obj_id, prop_id, ciphertext, nonce, fingerprint) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (obj_id, prop_id) DO UPDATE SET ciphertext = excluded.ciphertext, nonce = excluded.nonce, fingerprint = excluded.fingerprint`,
		db.IDParam(objID), db.IDParam(prop.ID()), db.BlobParam(ident.Ciphertext), db.BlobParam(ident.Nonce), db.BlobParam(ident.Fingerprint[:]))
	return err
}

// FindObjIDByIdentFingerprint resolves the object that owns the given
// fingerprint under prop, the equality-lookup path spec.md §3's
// object-ident invariant exists to support (e.g. "does this email already
// belong to someone").
func FindObjIDByIdentFingerprint(ctx context.Context, store db.DB, prop id.BuiltinProp, fingerprint [32]byte) (id.ID, bool, error) {
	rows, err := store.Query(ctx,
		`SELECT obj_id FROM object_ident WHERE prop_id = ? AND fingerprint = ?`,
		db.IDParam(prop.ID()), db.BlobParam(fingerprint[:]))
	if err != nil {
		return id.ID{}, false, err
	}
	if len(rows) == 0 {
		return id.ID{}, false, nil
	}
	blob, err := rows[0].Blob("obj_id")
	if err != nil {
		return id.ID{}, false, err
	}
	// The stored obj_id's kind byte names its real kind (Persona, Service,
	// ...); callers that need a specific kind cast it themselves.
	if len(blob) != 17 {
		return id.ID{}, false, apierror.New(apierror.CodeBinaryEncoding, "object_ident.obj_id is not a 17-byte id blob")
	}
	var raw id.Raw
	copy(raw[:], blob[1:])
	return id.ID{Kind: id.Kind(blob[0]), Raw: raw}, true, nil
}

// LoadDecryptIdent fetches and decrypts the ident stored for (objID, prop).
func LoadDecryptIdent(ctx context.Context, store db.DB, objID id.ID, prop id.BuiltinProp, deks *crypto.DecryptedDeks) (string, bool, error) {
	rows, err := store.Query(ctx,
		`SELECT ciphertext, nonce FROM object_ident WHERE obj_id = ? AND prop_id = ?`,
		db.IDParam(objID), db.IDParam(prop.ID()))
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	dek, ok := deks.Get(prop)
	if !ok {
		return "", false, apierror.New(apierror.CodeMissingDek, "no dek loaded for property")
	}
	ciphertext, err := rows[0].Blob("ciphertext")
	if err != nil {
		return "", false, err
	}
	nonce, err := rows[0].Blob("nonce")
	if err != nil {
		return "", false, err
	}
	plain, err := crypto.DecryptIdent(dek, crypto.Ident{Ciphertext: ciphertext, Nonce: nonce})
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

// FindEIDByIdent resolves the entity owning a plaintext ident (e.g.
// "alice" as a username), by encrypting the candidate under the property's
// live DEK and comparing fingerprints, never decrypting stored rows.
func FindEIDByIdent(ctx context.Context, store db.DB, prop id.BuiltinProp, plaintext string, deks *crypto.DecryptedDeks) (id.ID, bool, error) {
	dek, ok := deks.Get(prop)
	if !ok {
		return id.ID{}, false, apierror.New(apierror.CodeMissingDek, "no dek loaded for property")
	}
	fp, err := crypto.Fingerprint(dek, plaintext)
	if err != nil {
		return id.ID{}, false, err
	}
	return FindObjIDByIdentFingerprint(ctx, store, prop, fp)
}

// SetPasswordHash stores (or replaces) the argon2 hash for an entity.
func SetPasswordHash(ctx context.Context, store db.DB, eid id.ID, hash string) error {
	_, err := store.Execute(ctx,
		`INSERT INTO ent_password (eid, argon2_hash) VALUES (?, ?)
		 ON CONFLICT (eid) DO UPDATE SET argon2_hash = excluded.argon2_hash`,
		db.IDParam(eid), db.TextParam(hash))
	return err
}

// PasswordHash is the row found by FindPasswordHashByIdent: the entity the
// credential belongs to, plus its stored hash to verify against.
type PasswordHash struct {
	EID  id.ID
	Hash string
}

// FindPasswordHashByIdent resolves a login credential (e.g. a username) to
// the entity's stored password hash, joining the object_ident fingerprint
// lookup with ent_password the way
// find_local_authority_entity_password_hash_by_credential_ident does in
// original_source/crates/authly/src/db/entity_db.rs.
func FindPasswordHashByIdent(ctx context.Context, store db.DB, prop id.BuiltinProp, ident string, deks *crypto.DecryptedDeks) (PasswordHash, bool, error) {
	eid, ok, err := FindEIDByIdent(ctx, store, prop, ident, deks)
	if err != nil || !ok {
		return PasswordHash{}, false, err
	}
	rows, err := store.Query(ctx, `SELECT argon2_hash FROM ent_password WHERE eid = ?`, db.IDParam(eid))
	if err != nil {
		return PasswordHash{}, false, err
	}
	if len(rows) == 0 {
		return PasswordHash{}, false, nil
	}
	hash, err := rows[0].Text("argon2_hash")
	if err != nil {
		return PasswordHash{}, false, err
	}
	return PasswordHash{EID: eid, Hash: hash}, true, nil
}
