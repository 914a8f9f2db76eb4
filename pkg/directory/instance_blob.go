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
)

// InstanceBlob is the sealed AuthlyInstance row: pkg/instance owns the
// plaintext shape and the DEK that seals it, this package only stores and
// retrieves the opaque bytes.
type InstanceBlob struct {
	Ciphertext []byte
	Nonce      []byte
	UpdatedAt  time.Time
}

// StoreInstanceBlob upserts the single instance row, replacing whatever
// was there (used both for first boot and for rotation).
func StoreInstanceBlob(ctx context.Context, store db.DB, b InstanceBlob) error {
	_, err := store.Execute(ctx,
		`INSERT INTO instance (row_key, ciphertext, nonce, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (row_key) DO UPDATE SET ciphertext = excluded.ciphertext, nonce = excluded.nonce, updated_at = excluded.updated_at`,
		db.BlobParam(b.Ciphertext), db.BlobParam(b.Nonce), db.IntParam(b.UpdatedAt.UTC().Unix()))
	return err
}

// LoadInstanceBlob fetches the instance row, or (zero, false) if the
// leader has not generated one yet.
func LoadInstanceBlob(ctx context.Context, store db.DB) (InstanceBlob, bool, error) {
	rows, err := store.Query(ctx, `SELECT ciphertext, nonce, updated_at FROM instance WHERE row_key = 1`)
	if err != nil {
		return InstanceBlob{}, false, err
	}
	if len(rows) == 0 {
		return InstanceBlob{}, false, nil
	}
	ciphertext, err := rows[0].Blob("ciphertext")
	if err != nil {
		return InstanceBlob{}, false, err
	}
	nonce, err := rows[0].Blob("nonce")
	if err != nil {
		return InstanceBlob{}, false, err
	}
	updatedAt, err := rows[0].Int("updated_at")
	if err != nil {
		return InstanceBlob{}, false, err
	}
	return InstanceBlob{Ciphertext: ciphertext, Nonce: nonce, UpdatedAt: time.Unix(updatedAt, 0).UTC()}, true, nil
}
