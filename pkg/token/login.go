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

package token

import (
	"context"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/mtls"
)

// LoginOptions tunes try_username_password_login's peer-service gate, the
// same single knob original_source/lib/authly-domain/src/login.rs's
// LoginOptions exposes for local development.
type LoginOptions struct {
	DisablePeerServiceAuth bool
}

// UsernamePasswordLogin is the HTTP layer's `POST /api/auth/authenticate`
// {username,password} variant: it requires the calling peer service to
// carry AuthlyRole/Authenticate (spec.md §3's builtin role), resolves the
// username to a persona via the encrypted-ident fingerprint, verifies the
// stored Argon2 hash, and mints a fresh session. Grounded on
// try_username_password_login.
func UsernamePasswordLogin(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, peerSvcEID id.ID, username, password string, opts LoginOptions) (id.ID, directory.Session, error) {
	if !opts.DisablePeerServiceAuth {
		if err := mtls.AuthorizePeerService(ctx, store, peerSvcEID, []id.BuiltinAttr{id.AttrRoleAuthenticate}); err != nil {
			return id.ID{}, directory.Session{}, loginErrorFromAuthz(err)
		}
	}

	ehash, found, err := directory.FindPasswordHashByIdent(ctx, store, id.PropUsername, username, deks)
	if err != nil {
		return id.ID{}, directory.Session{}, err
	}
	if !found {
		return id.ID{}, directory.Session{}, apierror.New(apierror.CodeCredentials, "no such credential")
	}
	if !crypto.VerifyPassword(ehash.Hash, password) {
		return id.ID{}, directory.Session{}, apierror.New(apierror.CodeCredentials, "bad password")
	}

	sess, err := InitSession(ctx, store, ehash.EID)
	if err != nil {
		return id.ID{}, directory.Session{}, err
	}
	return ehash.EID, sess, nil
}

// ServiceLogin is the `{serviceName, serviceSecret}` variant spec.md §6
// flags as a "future variant" and SPEC_FULL.md §3 adds now: a service
// authenticates itself with its OAuth client secret rather than a human
// persona's password, gated the same way by AuthlyRole/Authenticate on the
// calling peer.
func ServiceLogin(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, peerSvcEID id.ID, serviceName, serviceSecret string, opts LoginOptions) (id.ID, directory.Session, error) {
	if !opts.DisablePeerServiceAuth {
		if err := mtls.AuthorizePeerService(ctx, store, peerSvcEID, []id.BuiltinAttr{id.AttrRoleAuthenticate}); err != nil {
			return id.ID{}, directory.Session{}, loginErrorFromAuthz(err)
		}
	}

	// serviceName is matched against the entity's Username ident, then the
	// secret is checked against its OAuthClientSecret ident. pkg/document
	// writes Username idents for personas only, so a service is found here
	// only if a Username ident was stored for it.
	svcEID, found, err := directory.FindEIDByIdent(ctx, store, id.PropUsername, serviceName, deks)
	if err != nil {
		return id.ID{}, directory.Session{}, err
	}
	if !found {
		return id.ID{}, directory.Session{}, apierror.New(apierror.CodeCredentials, "no such service")
	}
	stored, found, err := directory.LoadDecryptIdent(ctx, store, svcEID, id.PropOAuthClientSecret, deks)
	if err != nil {
		return id.ID{}, directory.Session{}, err
	}
	if !found || stored != serviceSecret {
		return id.ID{}, directory.Session{}, apierror.New(apierror.CodeCredentials, "bad service secret")
	}

	sess, err := InitSession(ctx, store, svcEID)
	if err != nil {
		return id.ID{}, directory.Session{}, err
	}
	return svcEID, sess, nil
}

// loginErrorFromAuthz maps mtls.AuthorizePeerService's CodeDenied into the
// login taxonomy's UnprivilegedService, spec.md §7's LoginError::Db/
// UnprivilegedService split.
func loginErrorFromAuthz(err error) error {
	var aerr *apierror.Error
	if e, ok := err.(*apierror.Error); ok {
		aerr = e
	}
	if aerr != nil && aerr.Code == apierror.CodeDenied {
		return apierror.New(apierror.CodeUnprivileged, "calling service lacks AuthlyRole/Authenticate")
	}
	return err
}
