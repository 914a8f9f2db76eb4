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

package mtls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/internal/testsupport"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
)

func TestPeerServiceIDRequiresACertificate(t *testing.T) {
	_, err := PeerServiceID(&tls.ConnectionState{})
	require.Error(t, err)
}

func TestPeerServiceIDParsesCommonName(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	authlyEID := id.New(id.KindService)
	in, err := instance.New(authlyEID, time.Hour)
	require.NoError(t, err)

	svcEID := id.New(id.KindService)
	der, _, err := in.SignWithLocalCA(ctx, s, instance.CSRParams{
		CommonName: svcEID.String(),
		SubjectEID: svcEID,
		NotAfter:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	got, err := PeerServiceID(&tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf}})
	require.NoError(t, err)
	require.True(t, got.Equal(svcEID))
}

func TestAuthorizePeerServiceEnforcesEveryRole(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	svcEID := id.New(id.KindService)

	require.NoError(t, AuthorizePeerService(ctx, s, svcEID, nil))
	require.Error(t, AuthorizePeerService(ctx, s, svcEID, []id.BuiltinAttr{id.AttrRoleAuthenticate}))

	require.NoError(t, directory.AssignEntityAttr(ctx, s, svcEID, id.AttrRoleAuthenticate.ID()))
	require.NoError(t, AuthorizePeerService(ctx, s, svcEID, []id.BuiltinAttr{id.AttrRoleAuthenticate}))
	require.Error(t, AuthorizePeerService(ctx, s, svcEID, []id.BuiltinAttr{id.AttrRoleAuthenticate, id.AttrRoleGrantMandate}))
}
