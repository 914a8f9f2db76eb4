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

// Session is a logged-in principal's server-side session record: an opaque
// token bound to an entity and an expiry, per spec.md §3.
type Session struct {
	Token     []byte
	EID       id.ID
	ExpiresAt time.Time
}

// StoreSession persists a freshly minted session, grounded on
// original_source/crates/authly/src/db/session_db.rs:store_session.
func StoreSession(ctx context.Context, store db.DB, s Session) error {
	_, err := store.Execute(ctx,
		`INSERT INTO session (token, eid, expires_at) VALUES (?, ?, ?)`,
		db.BlobParam(s.Token), db.IDParam(s.EID), db.IntParam(s.ExpiresAt.UTC().Unix()))
	return err
}

// GetSession fetches a session by its token, returning (zero, false) if
// the token is unknown (an already-expired row is still returned; callers
// compare ExpiresAt so the Credentials-error oracle collapse happens at
// the pkg/token layer, not here).
func GetSession(ctx context.Context, store db.DB, token []byte) (Session, bool, error) {
	rows, err := store.Query(ctx, `SELECT eid, expires_at FROM session WHERE token = ?`, db.BlobParam(token))
	if err != nil {
		return Session{}, false, err
	}
	if len(rows) == 0 {
		return Session{}, false, nil
	}
	eidBlob, err := rows[0].Blob("eid")
	if err != nil {
		return Session{}, false, err
	}
	eid, err := db.DecodeIDBlob(id.KindPersona, eidBlob)
	if err != nil {
		// Services can also hold sessions (service-login variant); retry
		// decoding as a Service before giving up.
		eid, err = db.DecodeIDBlob(id.KindService, eidBlob)
		if err != nil {
			return Session{}, false, err
		}
	}
	expUnix, err := rows[0].Int("expires_at")
	if err != nil {
		return Session{}, false, err
	}
	return Session{Token: token, EID: eid, ExpiresAt: time.Unix(expUnix, 0).UTC()}, true, nil
}

// DeleteSession removes a session, used by explicit logout.
func DeleteSession(ctx context.Context, store db.DB, token []byte) error {
	_, err := store.Execute(ctx, `DELETE FROM session WHERE token = ?`, db.BlobParam(token))
	return err
}

// SweepExpiredSessions deletes every session whose expiry has passed,
// spec.md §3's "removed on expiry sweeps" lifecycle rule.
func SweepExpiredSessions(ctx context.Context, store db.DB, now time.Time) (int64, error) {
	return store.Execute(ctx, `DELETE FROM session WHERE expires_at < ?`, db.IntParam(now.UTC().Unix()))
}
