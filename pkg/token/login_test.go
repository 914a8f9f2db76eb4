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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/internal/testsupport"
	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

func TestUsernamePasswordLoginSucceedsForPrivilegedPeer(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret)

	dirID := id.New(id.KindDirectory)
	dirKey, err := directory.Create(ctx, s, dirID, directory.KindDocument, "demo")
	require.NoError(t, err)

	// calling peer service, privileged with AuthlyRole/Authenticate
	peerEID := id.New(id.KindService)
	require.NoError(t, directory.CreateService(ctx, s, dirKey, peerEID, "testservice", nil))
	require.NoError(t, directory.AssignEntityAttr(ctx, s, peerEID, id.AttrRoleAuthenticate.ID()))

	// the persona being logged in
	personaEID := id.New(id.KindPersona)
	require.NoError(t, directory.CreatePersona(ctx, s, dirKey, personaEID, "testuser"))

	dek, ok := deks.Get(id.PropUsername)
	require.True(t, ok)
	ident, err := crypto.EncryptIdent(dek, "testuser")
	require.NoError(t, err)
	require.NoError(t, directory.InsertObjectIdent(ctx, s, personaEID, id.PropUsername, ident))

	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, directory.SetPasswordHash(ctx, s, personaEID, hash))

	eid, sess, err := UsernamePasswordLogin(ctx, s, deks, peerEID, "testuser", "secret", LoginOptions{})
	require.NoError(t, err)
	require.True(t, eid.Equal(personaEID))
	require.Len(t, sess.Token, sessionTokenWidth)
	require.True(t, sess.EID.Equal(personaEID))

	_, _, err = UsernamePasswordLogin(ctx, s, deks, peerEID, "testuser", "wrong", LoginOptions{})
	require.Error(t, err)
	var aerr *apierror.Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, apierror.CodeCredentials, aerr.Code)
}

func TestUsernamePasswordLoginDeniesUnprivilegedPeer(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret)

	dirID := id.New(id.KindDirectory)
	dirKey, err := directory.Create(ctx, s, dirID, directory.KindDocument, "demo")
	require.NoError(t, err)

	peerEID := id.New(id.KindService)
	require.NoError(t, directory.CreateService(ctx, s, dirKey, peerEID, "unprivileged", nil))

	_, _, err = UsernamePasswordLogin(ctx, s, deks, peerEID, "testuser", "secret", LoginOptions{})
	require.Error(t, err)
	var aerr *apierror.Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, apierror.CodeUnprivileged, aerr.Code)
}

func TestUsernamePasswordLoginDisablePeerServiceAuth(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret)

	dirID := id.New(id.KindDirectory)
	dirKey, err := directory.Create(ctx, s, dirID, directory.KindDocument, "demo")
	require.NoError(t, err)

	personaEID := id.New(id.KindPersona)
	require.NoError(t, directory.CreatePersona(ctx, s, dirKey, personaEID, "testuser"))
	dek, ok := deks.Get(id.PropUsername)
	require.True(t, ok)
	ident, err := crypto.EncryptIdent(dek, "testuser")
	require.NoError(t, err)
	require.NoError(t, directory.InsertObjectIdent(ctx, s, personaEID, id.PropUsername, ident))
	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, directory.SetPasswordHash(ctx, s, personaEID, hash))

	eid, _, err := UsernamePasswordLogin(ctx, s, deks, id.ID{}, "testuser", "secret", LoginOptions{DisablePeerServiceAuth: true})
	require.NoError(t, err)
	require.True(t, eid.Equal(personaEID))
}

func TestServiceLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret)

	dirID := id.New(id.KindDirectory)
	dirKey, err := directory.Create(ctx, s, dirID, directory.KindDocument, "demo")
	require.NoError(t, err)

	peerEID := id.New(id.KindService)
	require.NoError(t, directory.CreateService(ctx, s, dirKey, peerEID, "caller", nil))
	require.NoError(t, directory.AssignEntityAttr(ctx, s, peerEID, id.AttrRoleAuthenticate.ID()))

	svcEID := id.New(id.KindService)
	require.NoError(t, directory.CreateService(ctx, s, dirKey, svcEID, "otherservice", nil))
	dek, ok := deks.Get(id.PropUsername)
	require.True(t, ok)
	ident, err := crypto.EncryptIdent(dek, "otherservice")
	require.NoError(t, err)
	require.NoError(t, directory.InsertObjectIdent(ctx, s, svcEID, id.PropUsername, ident))

	secretDek, ok := deks.Get(id.PropOAuthClientSecret)
	require.True(t, ok)
	secretIdent, err := crypto.EncryptIdent(secretDek, "s3cr3t")
	require.NoError(t, err)
	require.NoError(t, directory.InsertObjectIdent(ctx, s, svcEID, id.PropOAuthClientSecret, secretIdent))

	eid, sess, err := ServiceLogin(ctx, s, deks, peerEID, "otherservice", "s3cr3t", LoginOptions{})
	require.NoError(t, err)
	require.True(t, eid.Equal(svcEID))
	require.True(t, sess.EID.Equal(svcEID))

	_, _, err = ServiceLogin(ctx, s, deks, peerEID, "otherservice", "wrong", LoginOptions{})
	require.Error(t, err)
}
