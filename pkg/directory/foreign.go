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
	"time"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// OAuthDirectory configures a persona directory whose personas are linked
// in from a third-party OAuth identity provider (spec.md's Non-goal carves
// out the OAuth authorization-code exchange itself; only the resulting
// (dir_key, foreign_id) -> persona_id mapping is in scope here).
type OAuthDirectory struct {
	DirKey       DirKey
	DirID        id.ID
	ClientID     string
	ClientSecret string // decrypted; only populated by GetOAuthDirectory
	AuthURL      string
	TokenURL     string
	UserURL      string
}

// CreateOAuthDirectory persists the endpoint configuration for an OAuth
// persona directory, encrypting the client secret under its DEK.
func CreateOAuthDirectory(ctx context.Context, store db.DB, dirKey DirKey, cfg OAuthDirectory, deks *crypto.DecryptedDeks) error {
	dek, ok := deks.Get(id.PropOAuthClientSecret)
	if !ok {
		return apierror.New(apierror.CodeMissingDek, "no dek loaded for oauth-client-secret")
	}
	ident, err := crypto.EncryptIdent(dek, cfg.ClientSecret)
	if err != nil {
		return err
	}

	_, err = store.Execute(ctx,
		`INSERT INTO oauth_directory (dir_key, client_id, auth_url, token_url, user_url) VALUES (?, ?, ?, ?, ?)`,
		db.IntParam(int64(dirKey)), db.TextParam(cfg.ClientID), db.TextParam(cfg.AuthURL), db.TextParam(cfg.TokenURL), db.TextParam(cfg.UserURL))
	if err != nil {
		return err
	}
	return UpsertObjectIdent(ctx, store, dirDirIdentObjID(dirKey), id.PropOAuthClientSecret, ident)
}

// dirDirIdentObjID gives the OAuth directory's own client secret an
// object_ident row keyed under a Directory-kind id derived from its key,
// since object_ident's obj_id column is a heterogeneous AnyId and the
// client secret belongs to the directory itself, not to any persona.
func dirDirIdentObjID(dirKey DirKey) id.ID {
	var raw id.Raw
	raw[15] = byte(dirKey)
	raw[14] = byte(dirKey >> 8)
	return id.ID{Kind: id.KindDirectory, Raw: raw}
}

// ForeignPersona is a persona whose record of truth lives in a third-party
// directory, identified there by an opaque foreign_id.
type ForeignPersona struct {
	ForeignID []byte
	Email     string
}

// LinkForeignPersona links or re-links a foreign persona to an Authly
// PersonaId, grounded on
// original_source/src/persona_directory.rs:link_foreign_persona. It
// allocates a fresh persona id on first sight of a foreign_id, then always
// returns the same one on subsequent logins. If the foreign identity's
// email collides with an email already owned by a different persona, the
// link transfers to that persona (Open Question decision #1: original
// behavior, not a redesign), with didTransfer reporting the collision so
// callers can log it.
func LinkForeignPersona(ctx context.Context, store db.DB, personaDirKey DirKey, foreign ForeignPersona, deks *crypto.DecryptedDeks) (personaID id.ID, didTransfer bool, err error) {
	dek, ok := deks.Get(id.PropEmail)
	if !ok {
		return id.ID{}, false, apierror.New(apierror.CodeMissingDek, "no dek loaded for email")
	}
	emailIdent, err := crypto.EncryptIdent(dek, foreign.Email)
	if err != nil {
		return id.ID{}, false, err
	}

	now := time.Now().UTC()
	candidate := id.New(id.KindPersona)
	linked, _, err := upsertLinkForeignPersona(ctx, store, personaDirKey, candidate, foreign.ForeignID, now, nil)
	if err != nil {
		return id.ID{}, false, err
	}

	err = InsertObjectIdent(ctx, store, linked, id.PropEmail, emailIdent)
	if err == nil {
		return linked, false, nil
	}

	// The email is already claimed. Either it belongs to another persona
	// (transfer the link to that persona), or this persona already owns a
	// different email (overwrite, matching the original's documented bug:
	// it does not check which directory "owns" the address).
	owner, found, findErr := FindObjIDByIdentFingerprint(ctx, store, id.PropEmail, emailIdent.Fingerprint)
	if findErr != nil {
		return id.ID{}, false, findErr
	}
	if found && !owner.Equal(linked) {
		if owner.Kind != id.KindPersona {
			return id.ID{}, false, apierror.New(apierror.CodeInternal, "email address owned by a non-persona entity")
		}
		relinked, _, err := upsertLinkForeignPersona(ctx, store, personaDirKey, owner, foreign.ForeignID, now, &owner)
		if err != nil {
			return id.ID{}, false, err
		}
		return relinked, true, nil
	}

	if err := UpsertObjectIdent(ctx, store, linked, id.PropEmail, emailIdent); err != nil {
		return id.ID{}, false, err
	}
	return linked, false, nil
}

// upsertLinkForeignPersona allocates (or retrieves) the persona_foreign
// mapping for (dirKey, foreignID). When overwriteWith is non-nil the
// mapping is forced to that persona id regardless of what was there
// before (the email-collision transfer path).
func upsertLinkForeignPersona(ctx context.Context, store db.DB, dirKey DirKey, candidate id.ID, foreignID []byte, now time.Time, overwriteWith *id.ID) (id.ID, bool, error) {
	if overwriteWith != nil {
		_, err := store.Execute(ctx,
			`INSERT INTO persona_foreign (dir_key, foreign_id, persona_id, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (dir_key, foreign_id) DO UPDATE SET persona_id = excluded.persona_id`,
			db.IntParam(int64(dirKey)), db.BlobParam(foreignID), db.IDParam(*overwriteWith), db.IntParam(now.Unix()))
		if err != nil {
			return id.ID{}, false, err
		}
		return *overwriteWith, false, nil
	}

	rows, err := store.Query(ctx,
		`SELECT persona_id FROM persona_foreign WHERE dir_key = ? AND foreign_id = ?`,
		db.IntParam(int64(dirKey)), db.BlobParam(foreignID))
	if err != nil {
		return id.ID{}, false, err
	}
	if len(rows) > 0 {
		blob, err := rows[0].Blob("persona_id")
		if err != nil {
			return id.ID{}, false, err
		}
		existing, err := db.DecodeIDBlob(id.KindPersona, blob)
		if err != nil {
			return id.ID{}, false, err
		}
		return existing, false, nil
	}

	if _, err := store.Execute(ctx,
		`INSERT INTO persona_foreign (dir_key, foreign_id, persona_id, created_at) VALUES (?, ?, ?, ?)`,
		db.IntParam(int64(dirKey)), db.BlobParam(foreignID), db.IDParam(candidate), db.IntParam(now.Unix())); err != nil {
		return id.ID{}, false, err
	}
	return candidate, true, nil
}
