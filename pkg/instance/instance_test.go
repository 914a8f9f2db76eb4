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

package instance

import (
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/internal/testsupport"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

func TestNewInstanceChainVerifies(t *testing.T) {
	authlyEID := id.New(id.KindService)
	in, err := New(authlyEID, time.Hour)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(in.TrustRootCA.Cert)
	_, err = in.LocalCA.Cert.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	require.NoError(t, err, "local ca must chain to the trust root")
}

func TestSignWithLocalCAIssuesVerifiableLeaf(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	authlyEID := id.New(id.KindService)
	in, err := New(authlyEID, time.Hour)
	require.NoError(t, err)

	subjectEID := id.New(id.KindService)
	der, key, err := in.SignWithLocalCA(ctx, s, CSRParams{
		CommonName: subjectEID.String(),
		SubjectEID: subjectEID,
		NotAfter:   time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, key)

	stored, err := directory.ListCertificates(ctx, s, subjectEID, directory.CertIdentity)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, authlyEID, stored[0].SignedByEID)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(in.LocalCA.Cert)
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	require.NoError(t, err)
}

func TestRotateKeepsTrustRootChangesLocalCA(t *testing.T) {
	authlyEID := id.New(id.KindService)
	in, err := New(authlyEID, time.Hour)
	require.NoError(t, err)

	rotated, err := in.Rotate(time.Hour)
	require.NoError(t, err)

	require.Equal(t, in.TrustRootCA.CertDER, rotated.TrustRootCA.CertDER, "rotation must not touch the trust root")
	require.NotEqual(t, in.LocalCA.CertDER, rotated.LocalCA.CertDER, "rotation must mint a fresh local ca")

	pool := x509.NewCertPool()
	pool.AddCert(rotated.TrustRootCA.Cert)
	_, err = rotated.LocalCA.Cert.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	require.NoError(t, err)
}

func TestJWTKeysAreLocalCAKeyPair(t *testing.T) {
	authlyEID := id.New(id.KindService)
	in, err := New(authlyEID, time.Hour)
	require.NoError(t, err)

	require.True(t, in.JWTEncodingKey().Equal(in.LocalCA.Key))
	require.True(t, in.JWTDecodingKey().Equal(&in.LocalCA.Key.PublicKey))
}

func TestBootstrapLeaderGeneratesAndPersists(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := testsupport.FixedDeks(id.PropPrivateKey)
	authlyEID := id.New(id.KindService)

	snap, err := Bootstrap(ctx, s, deks, authlyEID, time.Hour)
	require.NoError(t, err)
	require.True(t, snap.Load().AuthlyEID.Equal(authlyEID))

	// A second bootstrap against the same store must reload the
	// already-persisted instance rather than minting a new one.
	snap2, err := Bootstrap(ctx, s, deks, id.New(id.KindService), time.Hour)
	require.NoError(t, err)
	require.Equal(t, snap.Load().TrustRootCA.CertDER, snap2.Load().TrustRootCA.CertDER)
	require.True(t, snap2.Load().AuthlyEID.Equal(authlyEID), "reload must return the originally persisted eid, not the caller's")
}

func TestBootstrapMissingDekFails(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	deks := crypto.NewDecryptedDeks()

	_, err := Bootstrap(ctx, s, deks, id.New(id.KindService), time.Hour)
	require.Error(t, err)
}

func TestMarshalUnmarshalInstanceRoundTrip(t *testing.T) {
	authlyEID := id.New(id.KindService)
	in, err := New(authlyEID, time.Hour)
	require.NoError(t, err)

	b, err := marshalInstance(in)
	require.NoError(t, err)

	got, err := unmarshalInstance(b)
	require.NoError(t, err)
	require.True(t, got.AuthlyEID.Equal(in.AuthlyEID))
	require.Equal(t, in.TrustRootCA.CertDER, got.TrustRootCA.CertDER)
	require.Equal(t, in.LocalCA.CertDER, got.LocalCA.CertDER)
	require.Equal(t, in.CAChain, got.CAChain)
}
