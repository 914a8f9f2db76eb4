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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

func openTestDB(t *testing.T) *db.SQLite {
	t.Helper()
	s, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, Migrate(context.Background(), s))
	return s
}

func testDeks(t *testing.T) *crypto.DecryptedDeks {
	t.Helper()
	deks := crypto.NewDecryptedDeks()
	m := map[id.BuiltinProp]crypto.DEK{}
	for _, p := range []id.BuiltinProp{id.PropUsername, id.PropEmail, id.PropOAuthClientSecret} {
		var dek crypto.DEK
		dek.Prop = p
		for i := range dek.Key {
			dek.Key[i] = byte(p) + byte(i)
		}
		m[p] = dek
	}
	deks.Store(m)
	return deks
}

func TestCreateAndGetDirectory(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)

	dirID := id.New(id.KindDirectory)
	key, err := Create(ctx, s, dirID, KindDocument, "demo")
	require.NoError(t, err)
	require.NotZero(t, key)

	got, err := Get(ctx, s, dirID)
	require.NoError(t, err)
	require.Equal(t, "demo", got.Label)
	require.Equal(t, KindDocument, got.Kind)
	require.Equal(t, key, got.Key)
}

func TestServiceHostsAndKubernetesBinding(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)

	dirKey, err := Create(ctx, s, id.New(id.KindDirectory), KindDocument, "demo")
	require.NoError(t, err)

	svcEID := id.New(id.KindService)
	require.NoError(t, CreateService(ctx, s, dirKey, svcEID, "testservice", []string{"api.internal"}))

	svc, err := GetService(ctx, s, svcEID)
	require.NoError(t, err)
	require.Equal(t, []string{"api.internal"}, svc.Hosts)

	require.NoError(t, BindKubernetesAccount(ctx, s, svcEID, "authly-test", "testservice"))
	resolved, err := ResolveKubernetesAccount(ctx, s, "authly-test", "testservice")
	require.NoError(t, err)
	require.True(t, resolved.Equal(svcEID))

	_, err = ResolveKubernetesAccount(ctx, s, "authly-test", "no-such-account")
	require.Error(t, err)
}

func TestObjectIdentFingerprintLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	deks := testDeks(t)

	personaID := id.New(id.KindPersona)
	dek, _ := deks.Get(id.PropUsername)
	ident, err := crypto.EncryptIdent(dek, "alice")
	require.NoError(t, err)
	require.NoError(t, InsertObjectIdent(ctx, s, personaID, id.PropUsername, ident))

	found, ok, err := FindEIDByIdent(ctx, s, id.PropUsername, "alice", deks)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, found.Equal(personaID))

	_, ok, err = FindEIDByIdent(ctx, s, id.PropUsername, "bob", deks)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPasswordHashLoginFlow(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	deks := testDeks(t)

	personaID := id.New(id.KindPersona)
	dek, _ := deks.Get(id.PropUsername)
	ident, err := crypto.EncryptIdent(dek, "testuser")
	require.NoError(t, err)
	require.NoError(t, InsertObjectIdent(ctx, s, personaID, id.PropUsername, ident))

	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, SetPasswordHash(ctx, s, personaID, hash))

	found, ok, err := FindPasswordHashByIdent(ctx, s, id.PropUsername, "testuser", deks)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, found.EID.Equal(personaID))
	require.True(t, crypto.VerifyPassword(found.Hash, "secret"))
	require.False(t, crypto.VerifyPassword(found.Hash, "wrong"))

	_, ok, err = FindPasswordHashByIdent(ctx, s, id.PropUsername, "no-such-user", deks)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLinkForeignPersonaIsStableAcrossLogins(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	deks := testDeks(t)

	dirKey, err := Create(ctx, s, id.New(id.KindDirectory), KindPersona, "oauth")
	require.NoError(t, err)

	first, transferred, err := LinkForeignPersona(ctx, s, dirKey, ForeignPersona{ForeignID: []byte("ext-1"), Email: "alice@example.com"}, deks)
	require.NoError(t, err)
	require.False(t, transferred)

	second, transferred, err := LinkForeignPersona(ctx, s, dirKey, ForeignPersona{ForeignID: []byte("ext-1"), Email: "alice@example.com"}, deks)
	require.NoError(t, err)
	require.False(t, transferred)
	require.True(t, first.Equal(second), "the same foreign_id must resolve to the same persona on every login")
}

func TestLinkForeignPersonaTransfersOnEmailCollision(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	deks := testDeks(t)

	dirKey, err := Create(ctx, s, id.New(id.KindDirectory), KindPersona, "oauth")
	require.NoError(t, err)

	owner, _, err := LinkForeignPersona(ctx, s, dirKey, ForeignPersona{ForeignID: []byte("ext-owner"), Email: "shared@example.com"}, deks)
	require.NoError(t, err)

	linked, transferred, err := LinkForeignPersona(ctx, s, dirKey, ForeignPersona{ForeignID: []byte("ext-new"), Email: "shared@example.com"}, deks)
	require.NoError(t, err)
	require.True(t, transferred, "a second foreign_id claiming an already-owned email must transfer to the owner")
	require.True(t, linked.Equal(owner))
}

func TestPolicyBindingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)

	dirID := id.New(id.KindDirectory)
	_, err := Create(ctx, s, dirID, KindDocument, "demo")
	require.NoError(t, err)

	policyID := id.New(id.KindPolicy)
	require.NoError(t, CreatePolicy(ctx, s, Policy{ID: policyID, DirID: dirID, Label: "may-wear-trousers", Expression: []byte{0x01, 0x02}}))

	attrID := id.New(id.KindAttribute)
	require.NoError(t, CreatePolicyBinding(ctx, s, 1, PolicyBinding{AttrIDs: []id.ID{attrID}, PolicyIDs: []id.ID{policyID}}))

	bindings, err := ListPolicyBindings(ctx, s, dirID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Len(t, bindings[0].AttrIDs, 1)
	require.True(t, bindings[0].AttrIDs[0].Equal(attrID))
	require.True(t, bindings[0].PolicyIDs[0].Equal(policyID))

	policies, err := ListPolicies(ctx, s, dirID)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Equal(t, "may-wear-trousers", policies[0].Label)
}

func TestEntityAttrAssignment(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)

	eid := id.New(id.KindPersona)
	attrID := id.New(id.KindAttribute)
	require.NoError(t, AssignEntityAttr(ctx, s, eid, attrID))
	// Re-assigning the same attribute must not error or duplicate.
	require.NoError(t, AssignEntityAttr(ctx, s, eid, attrID))

	attrs, err := ListEntityAttrs(ctx, s, eid)
	require.NoError(t, err)
	require.Len(t, attrs, 1)

	has, err := HasAttr(ctx, s, eid, attrID)
	require.NoError(t, err)
	require.True(t, has)

	has, err = HasAttr(ctx, s, eid, id.New(id.KindAttribute))
	require.NoError(t, err)
	require.False(t, has)
}
