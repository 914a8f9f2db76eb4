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

package mandate

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/internal/testsupport"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
)

func TestSubmissionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	authlyEID := id.New(id.KindService)
	in, err := instance.New(authlyEID, time.Hour)
	require.NoError(t, err)

	admin := id.New(id.KindPersona)
	code, err := GenerateSubmissionCode(ctx, s, admin)
	require.NoError(t, err)

	token, mandateEID, err := IssueSubmissionToken(in, "https://authority.internal", code)
	require.NoError(t, err)
	require.False(t, mandateEID.Raw.IsZero())

	mandateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	result, err := FulfillSubmission(ctx, s, in, token, &mandateKey.PublicKey)
	require.NoError(t, err)
	require.True(t, result.MandateEID.Equal(mandateEID))
	require.NotEqual(t, in.LocalCA.CertDER, result.LocalCADER, "the mandate must receive its own freshly minted local CA, not the authority's")
	require.Equal(t, in.CAChain, result.UpstreamCAChain, "the upstream chain must be the authority's entire chain, unmodified")
	require.NotNil(t, result.LocalCAKey)

	mandateCA, err := x509.ParseCertificate(result.LocalCADER)
	require.NoError(t, err)
	require.True(t, mandateCA.IsCA)
	require.True(t, mandateCA.PublicKey.(*ecdsa.PublicKey).Equal(&result.LocalCAKey.PublicKey))

	pool := x509.NewCertPool()
	pool.AddCert(in.LocalCA.Cert)
	_, err = mandateCA.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}})
	require.NoError(t, err, "the mandate's local CA must chain to the authority's local CA")

	leaf, err := x509.ParseCertificate(result.IdentityDER)
	require.NoError(t, err)
	require.Equal(t, mandateEID.String(), leaf.Subject.CommonName)

	_, err = leaf.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}})
	require.NoError(t, err)
}

func TestFulfillSubmissionRejectsReuse(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	authlyEID := id.New(id.KindService)
	in, err := instance.New(authlyEID, time.Hour)
	require.NoError(t, err)

	code, err := GenerateSubmissionCode(ctx, s, id.New(id.KindPersona))
	require.NoError(t, err)
	token, _, err := IssueSubmissionToken(in, "https://authority.internal", code)
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = FulfillSubmission(ctx, s, in, token, &key.PublicKey)
	require.NoError(t, err)

	_, err = FulfillSubmission(ctx, s, in, token, &key.PublicKey)
	require.Error(t, err, "a submission code must not be redeemable twice")
}

func TestFulfillSubmissionRejectsUnknownCode(t *testing.T) {
	ctx := context.Background()
	s := testsupport.OpenDB(t)
	authlyEID := id.New(id.KindService)
	in, err := instance.New(authlyEID, time.Hour)
	require.NoError(t, err)

	token, _, err := IssueSubmissionToken(in, "https://authority.internal", []byte("never-issued"))
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = FulfillSubmission(ctx, s, in, token, &key.PublicKey)
	require.Error(t, err)
}
