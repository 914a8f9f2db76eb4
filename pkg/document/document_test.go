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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/internal/testsupport"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

const demoDocumentUUID = "00000000-0000-0000-0000-000000000001"

const demoDocument = `
[authly-document]
id = "00000000-0000-0000-0000-000000000001"

[[service]]
name = "testservice"
hosts = ["testservice.internal"]

[[persona]]
name = "testuser"
username = "testuser"
password = "secret"
attrs = ["authly:role/authenticate"]
`

func TestApplyDemoDocumentUsernameLogin(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret, id.PropPrivateKey)
	dirID, err := id.ParseDocumentUUID(demoDocumentUUID)
	require.NoError(t, err)

	compiled, err := Apply(ctx, s, deks, dirID, demoDocument)
	require.NoError(t, err)

	hash, found, err := directory.FindPasswordHashByIdent(ctx, s, id.PropUsername, "testuser", deks)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, crypto.VerifyPassword(hash.Hash, "secret"))
	require.False(t, crypto.VerifyPassword(hash.Hash, "wrong"))

	attrs, err := directory.ListEntityAttrs(ctx, s, hash.EID)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.True(t, attrs[0].Equal(id.AttrRoleAuthenticate.ID()))

	svc, err := directory.GetService(ctx, s, deriveID(dirID, id.KindService, "service/testservice"))
	require.NoError(t, err)
	require.Equal(t, "testservice", svc.Label)
	require.Equal(t, []string{"testservice.internal"}, svc.Hosts)

	require.Equal(t, compiled.DirID, dirID)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret, id.PropPrivateKey)
	dirID, err := id.ParseDocumentUUID(demoDocumentUUID)
	require.NoError(t, err)

	first, err := Apply(ctx, s, deks, dirID, demoDocument)
	require.NoError(t, err)
	second, err := Apply(ctx, s, deks, dirID, demoDocument)
	require.NoError(t, err)

	require.Equal(t, first.ContentSum, second.ContentSum)
	require.Equal(t, first.DirKey, second.DirKey)

	rows, err := s.Query(ctx, `SELECT eid FROM persona WHERE dir_key = ?`, db.IntParam(int64(second.DirKey)))
	require.NoError(t, err)
	require.Len(t, rows, 1, "reapplying the same document must not duplicate rows")

	hash, found, err := directory.FindPasswordHashByIdent(ctx, s, id.PropUsername, "testuser", deks)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, crypto.VerifyPassword(hash.Hash, "secret"))
}

func TestApplyRejectsUnknownAttribute(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret, id.PropPrivateKey)
	dirID := id.New(id.KindDirectory)

	_, err := Apply(ctx, s, deks, dirID, `
[[persona]]
name = "bob"
attrs = ["no-such-property/no-such-attr"]
`)
	require.Error(t, err)
}

func TestApplyCompilesPolicyBindings(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropUsername, id.PropEmail, id.PropOAuthClientSecret, id.PropPrivateKey)
	dirID := id.New(id.KindDirectory)

	src := `
[[property]]
label = "trait"
kind = "entity"
tags = ["has_legs"]

[[property]]
label = "kind"
kind = "resource"
tags = ["trousers"]

[[property]]
label = "verb"
kind = "resource"
tags = ["wear"]

[[policy]]
label = "may_wear_trousers"
allow = "Subject.trait contains trait/has_legs"

[[policy_binding]]
attrs = ["kind/trousers", "verb/wear"]
policies = ["may_wear_trousers"]
`
	_, err := Apply(ctx, s, deks, dirID, src)
	require.NoError(t, err)

	policies, err := directory.ListPolicies(ctx, s, dirID)
	require.NoError(t, err)
	require.Len(t, policies, 1)

	bindings, err := directory.ListPolicyBindings(ctx, s, dirID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Len(t, bindings[0].AttrIDs, 2)
	require.Len(t, bindings[0].PolicyIDs, 1)
}
