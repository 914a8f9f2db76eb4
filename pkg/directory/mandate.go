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

	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// InsertSubmissionCode records a freshly issued mandate submission code by
// its blake3 hash (the plaintext code itself is never persisted), grounded
// on original_source/src/authority_mandate/submission/authority.rs's
// authority_generate_submission_code.
func InsertSubmissionCode(ctx context.Context, store db.DB, codeHash []byte, createdBy id.ID, now time.Time) error {
	_, err := store.Execute(ctx,
		`INSERT INTO mandate_submission_code (code_hash, created_by, created_at) VALUES (?, ?, ?)`,
		db.BlobParam(codeHash), db.IDParam(createdBy), db.IntParam(now.UTC().Unix()))
	return err
}

// VerifyAndInvalidateSubmissionCode looks up codeHash and deletes it in the
// same call, so a second redemption of the same code always observes
// found=false: two concurrent redemptions race on the DELETE's affected-row
// count, and only the one that actually removed the row succeeds.
func VerifyAndInvalidateSubmissionCode(ctx context.Context, store db.DB, codeHash []byte) (createdBy id.ID, found bool, err error) {
	rows, err := store.Query(ctx, `SELECT created_by FROM mandate_submission_code WHERE code_hash = ?`, db.BlobParam(codeHash))
	if err != nil {
		return id.ID{}, false, err
	}
	if len(rows) == 0 {
		return id.ID{}, false, nil
	}
	blob, err := rows[0].Blob("created_by")
	if err != nil {
		return id.ID{}, false, err
	}
	createdBy, err = db.DecodeIDBlob(id.KindPersona, blob)
	if err != nil {
		return id.ID{}, false, err
	}
	affected, err := store.Execute(ctx, `DELETE FROM mandate_submission_code WHERE code_hash = ?`, db.BlobParam(codeHash))
	if err != nil {
		return id.ID{}, false, err
	}
	if affected == 0 {
		return id.ID{}, false, nil
	}
	return createdBy, true, nil
}

// InsertAuthorityMandate records a newly established mandate relationship
// once its identity certificate has been signed, grounded on
// authority.rs's authority_mandate_db::insert_authority_mandate.
func InsertAuthorityMandate(ctx context.Context, store db.DB, mandateEID, createdBy id.ID, publicKey []byte, role string, now time.Time) error {
	_, err := store.Execute(ctx,
		`INSERT INTO authority_mandate (mandate_eid, created_by, public_key, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		db.IDParam(mandateEID), db.IDParam(createdBy), db.BlobParam(publicKey), db.TextParam(role), db.IntParam(now.UTC().Unix()))
	return err
}
