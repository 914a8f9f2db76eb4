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

// Package mandate implements cluster-to-cluster trust enrollment: an
// authority issues a single-use submission code and a JWT carrying it, a
// prospective mandate redeems the JWT with a certificate signing request
// for its own identity, and the authority signs and hands back that
// identity plus its own CA chain. Grounded on
// original_source/src/authority_mandate/submission.rs and its authority.rs
// sibling.
package mandate

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/zeebo/blake3"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
)

// submissionCodeTTL is spec.md's enrollment window, matching
// submission.rs's SUBMISSION_CODE_EXPIRATION.
const submissionCodeTTL = 3 * time.Hour

// submissionCodeBytes is the width of a freshly generated code, matching
// authority_generate_submission_code's 256-byte buffer.
const submissionCodeBytes = 256

// leafValidityPeriod is how long a mandate's signed identity certificate
// is valid for before its own enrollment must be repeated.
const leafValidityPeriod = 2 * 365 * 24 * time.Hour

// AuthlyClaims is the "authly" namespace of a submission JWT, the literal
// shape submission.rs's Authly struct carries.
type AuthlyClaims struct {
	AuthorityURL    string `json:"authority_url"`
	Code            []byte `json:"code"`
	MandateEntityID string `json:"mandate_entity_id"`
}

// SubmissionClaims is the whole submission JWT payload.
type SubmissionClaims struct {
	IssuedAt int64        `json:"iat"`
	Expiry   int64        `json:"exp"`
	Authly   AuthlyClaims `json:"authly"`
}

// GenerateSubmissionCode draws a fresh 256-byte code, persists only its
// blake3 hash (never the plaintext), and returns the plaintext code for
// the authority operator to hand to the prospective mandate out of band.
func GenerateSubmissionCode(ctx context.Context, store db.DB, createdBy id.ID) ([]byte, error) {
	code := make([]byte, submissionCodeBytes)
	if _, err := rand.Read(code); err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "generate submission code", err)
	}
	hash := blake3.Sum256(code)
	if err := directory.InsertSubmissionCode(ctx, store, hash[:], createdBy, time.Now()); err != nil {
		return nil, err
	}
	return code, nil
}

// IssueSubmissionToken signs a SubmissionClaims JWT carrying code and a
// freshly minted mandate entity id, using the authority's own local CA key
// (submission.rs signs with the same jsonwebtoken EC DER key the local CA
// holds). The mandate entity id is returned alongside so the authority can
// log or display it before the mandate ever redeems the token.
func IssueSubmissionToken(in *instance.Instance, authorityURL string, code []byte) (string, id.ID, error) {
	mandateEID := id.New(id.KindService)
	now := time.Now().UTC()
	claims := SubmissionClaims{
		IssuedAt: now.Unix(),
		Expiry:   now.Add(submissionCodeTTL).Unix(),
		Authly: AuthlyClaims{
			AuthorityURL:    authorityURL,
			Code:            code,
			MandateEntityID: mandateEID.String(),
		},
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: in.JWTEncodingKey()}, nil)
	if err != nil {
		return "", id.ID{}, apierror.Wrap(apierror.CodeAccessTokenEnc, "build submission jwt signer", err)
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", id.ID{}, apierror.Wrap(apierror.CodeAccessTokenEnc, "sign submission jwt", err)
	}
	return raw, mandateEID, nil
}

// FulfilledMandate is what the authority hands back once a submission is
// redeemed: the mandate's newly signed identity certificate, a fresh local
// CA minted for the mandate itself, and the authority's own upstream CA
// chain, the shape MandateSubmissionData transfers. Per
// mandate_submission.rs's ca_chain construction, the chain the mandate
// receives starts with its own freshly minted local CA and is followed by
// the authority's entire chain, not a substitute for it.
type FulfilledMandate struct {
	MandateEID      id.ID
	IdentityDER     []byte
	LocalCADER      []byte
	LocalCAKey      *ecdsa.PrivateKey
	UpstreamCAChain [][]byte
}

// FulfillSubmission verifies token under in's current signing key, checks
// it hasn't expired, redeems its submission code exactly once, signs
// publicKey into a fresh identity certificate for the mandate, and mints
// the mandate its own local CA signed by in's local CA. Unlike
// authority_fulfill_submission, which parses an externally supplied CSR's
// CommonName and rejects a mismatch against the claimed mandate entity id,
// the common name here is never taken from csrParams at all: it is always
// set to the claims' own mandate_entity_id, so there is no CSR field left
// for a caller to forge a mismatch into.
func FulfillSubmission(ctx context.Context, store db.DB, in *instance.Instance, token string, publicKey *ecdsa.PublicKey) (FulfilledMandate, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		return FulfilledMandate{}, apierror.Wrap(apierror.CodeSubmission, "parse submission token", err)
	}
	var claims SubmissionClaims
	if err := parsed.Claims(in.JWTDecodingKey(), &claims); err != nil {
		return FulfilledMandate{}, apierror.Wrap(apierror.CodeSubmission, "verify submission token", err)
	}
	if time.Now().UTC().Unix() > claims.Expiry {
		return FulfilledMandate{}, apierror.New(apierror.CodeSubmission, "submission token expired")
	}

	mandateEID, err := id.Parse(id.KindService, claims.Authly.MandateEntityID)
	if err != nil {
		return FulfilledMandate{}, apierror.Wrap(apierror.CodeSubmission, "parse mandate entity id", err)
	}

	codeHash := blake3.Sum256(claims.Authly.Code)
	createdBy, found, err := directory.VerifyAndInvalidateSubmissionCode(ctx, store, codeHash[:])
	if err != nil {
		return FulfilledMandate{}, err
	}
	if !found {
		return FulfilledMandate{}, apierror.New(apierror.CodeSubmission, "submission code invalid or already used")
	}

	der, err := in.SignCSR(ctx, store, instance.CSRParams{
		CommonName: mandateEID.String(),
		SubjectEID: mandateEID,
		NotAfter:   time.Now().Add(leafValidityPeriod),
	}, publicKey)
	if err != nil {
		return FulfilledMandate{}, err
	}

	publicKeyDER, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return FulfilledMandate{}, apierror.Wrap(apierror.CodeInternal, "marshal mandate public key", err)
	}
	if err := directory.InsertAuthorityMandate(ctx, store, mandateEID, createdBy, publicKeyDER, "subject", time.Now()); err != nil {
		return FulfilledMandate{}, err
	}

	mandateLocalCA, err := instance.GenerateLocalCA(mandateEID, time.Now().Add(leafValidityPeriod), in.LocalCA)
	if err != nil {
		return FulfilledMandate{}, err
	}

	return FulfilledMandate{
		MandateEID:      mandateEID,
		IdentityDER:     der,
		LocalCADER:      mandateLocalCA.CertDER,
		LocalCAKey:      mandateLocalCA.Key,
		UpstreamCAChain: in.CAChain,
	}, nil
}
