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
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
)

// accessTokenTTL is spec.md §4.3's 365-day access token lifetime, grounded
// on original_source/lib/authly-domain/src/access_token.rs's EXPIRATION.
const accessTokenTTL = 365 * 24 * time.Hour

// AuthlyClaims is the token's "authly" namespace, the literal shape
// access_token.rs's Authly struct serializes.
type AuthlyClaims struct {
	EntityID         string   `json:"entity_id"`
	EntityAttributes []string `json:"entity_attributes"`
}

// AccessTokenClaims is the whole JWT payload, shaped to match
// access_token.rs's AuthlyAccessTokenClaims exactly: a bare iat/exp pair
// plus the nested "authly" object, with no issuer/audience/subject
// claims the rest of the ecosystem expects of a generic jwt.Claims.
type AccessTokenClaims struct {
	IssuedAt int64        `json:"iat"`
	Expiry   int64        `json:"exp"`
	Authly   AuthlyClaims `json:"authly"`
}

// CreateAccessToken mints a fresh ES256 JWT for sess, re-reading its
// current attribute set from the directory so a token always reflects the
// entity's attributes as of signing time (spec.md §4.3: "an access token
// is created from scratch every time").
func CreateAccessToken(ctx context.Context, store db.DB, in *instance.Instance, sess directory.Session) (string, error) {
	attrIDs, err := directory.ListEntityAttrs(ctx, store, sess.EID)
	if err != nil {
		return "", err
	}
	attrs := sets.New[string]()
	for _, a := range attrIDs {
		attrs.Insert(a.String())
	}

	now := time.Now().UTC()
	claims := AccessTokenClaims{
		IssuedAt: now.Unix(),
		Expiry:   now.Add(accessTokenTTL).Unix(),
		Authly: AuthlyClaims{
			EntityID:         sess.EID.String(),
			EntityAttributes: attrs.UnsortedList(),
		},
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: in.JWTEncodingKey()}, nil)
	if err != nil {
		return "", apierror.Wrap(apierror.CodeAccessTokenEnc, "build jwt signer", err)
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", apierror.Wrap(apierror.CodeAccessTokenEnc, "sign access token", err)
	}
	return raw, nil
}

// VerifyAccessToken verifies an access token under in's decoding key and
// returns its claims, rejecting anything not signed by the current local
// CA (spec.md §8: "tokens signed by a stale key after rotation stop
// verifying once the stale key's not_after passes" — enforced simply by
// only ever offering the current key here).
func VerifyAccessToken(raw string, in *instance.Instance) (AccessTokenClaims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		return AccessTokenClaims{}, apierror.Wrap(apierror.CodeAccessTokenVfy, "parse access token", err)
	}
	var claims AccessTokenClaims
	if err := parsed.Claims(in.JWTDecodingKey(), &claims); err != nil {
		return AccessTokenClaims{}, apierror.Wrap(apierror.CodeAccessTokenVfy, "verify access token", err)
	}
	return claims, nil
}

// EntityID parses the claims' entity_id back into an id.ID, accepting
// either a Persona or a Service (spec.md §8's "entity_id" scenario uses a
// persona; service-login access tokens carry a Service id instead).
func (c AccessTokenClaims) EntityID() (id.ID, error) {
	if eid, err := id.Parse(id.KindPersona, c.Authly.EntityID); err == nil {
		return eid, nil
	}
	if eid, err := id.Parse(id.KindService, c.Authly.EntityID); err == nil {
		return eid, nil
	}
	return id.ID{}, apierror.New(apierror.CodeAccessTokenVfy, "unrecognized entity_id kind")
}
