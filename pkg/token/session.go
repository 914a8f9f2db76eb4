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

// Package token mints and verifies the two credentials spec.md §3 and §4.3
// describe: opaque server-side session tokens (a hex cookie value) and
// ES256 JWT access tokens (365-day lifetime) signed by the node's local CA.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// sessionTokenWidth is spec.md §3's opaque session token length, grounded
// on original_source/lib/authly-domain/src/session.rs's TOKEN_WIDTH.
const sessionTokenWidth = 20

// SessionCookieName is the cookie the session token travels under,
// grounded on session.rs's SESSION_COOKIE_NAME.
const SessionCookieName = "session-cookie"

// SessionTTL is how long a freshly minted session lives; after that
// AuthenticateSessionCookie rejects it. The row itself stays until
// directory.SweepExpiredSessions is called.
const SessionTTL = time.Hour

// NewSessionToken generates spec.md §8's "20 bytes" random session token.
func NewSessionToken() ([]byte, error) {
	b := make([]byte, sessionTokenWidth)
	if _, err := rand.Read(b); err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "generate session token", err)
	}
	return b, nil
}

// EncodeSessionCookie renders a session token as the lowercase hex string
// a Set-Cookie header carries.
func EncodeSessionCookie(token []byte) string { return hex.EncodeToString(token) }

// DecodeSessionCookie parses a cookie value back into a session token.
func DecodeSessionCookie(value string) ([]byte, error) {
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeCredentials, "invalid session cookie", err)
	}
	return b, nil
}

// InitSession mints and persists a brand-new session for eid, the
// login-time counterpart of original_source's init_session.
func InitSession(ctx context.Context, store db.DB, eid id.ID) (directory.Session, error) {
	tok, err := NewSessionToken()
	if err != nil {
		return directory.Session{}, err
	}
	sess := directory.Session{
		Token:     tok,
		EID:       eid,
		ExpiresAt: time.Now().Add(SessionTTL),
	}
	if err := directory.StoreSession(ctx, store, sess); err != nil {
		return directory.Session{}, err
	}
	return sess, nil
}

// AuthenticateSessionCookie resolves a cookie value to a live session,
// rejecting unknown or expired tokens with the collapsed CodeCredentials
// the rest of the login surface also returns (spec.md §7's oracle note).
func AuthenticateSessionCookie(ctx context.Context, store db.DB, cookieValue string) (directory.Session, error) {
	tok, err := DecodeSessionCookie(cookieValue)
	if err != nil {
		return directory.Session{}, err
	}
	sess, found, err := directory.GetSession(ctx, store, tok)
	if err != nil {
		return directory.Session{}, err
	}
	if !found {
		return directory.Session{}, apierror.New(apierror.CodeCredentials, "no session")
	}
	if sess.ExpiresAt.Before(time.Now()) {
		return directory.Session{}, apierror.New(apierror.CodeCredentials, "session expired")
	}
	return sess, nil
}

// Logout deletes a session outright, used by explicit sign-out.
func Logout(ctx context.Context, store db.DB, token []byte) error {
	return directory.DeleteSession(ctx, store, token)
}
