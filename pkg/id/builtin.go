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

package id

import "encoding/binary"

// BuiltinProp enumerates the fixed, statically known properties every
// Authly deployment ships with. Builtins occupy reserved low IDs (<=2^16)
// so they can be recognized without a database round trip.
type BuiltinProp uint16

const (
	PropEntity BuiltinProp = iota + 1
	PropUsername
	PropEmail
	PropOAuthClientSecret
	PropAuthlyRole
	PropKubernetesAccount
	PropPrivateKey
)

// Label returns the builtin property's document-facing label.
func (p BuiltinProp) Label() string {
	switch p {
	case PropEntity:
		return "entity"
	case PropUsername:
		return "username"
	case PropEmail:
		return "email"
	case PropOAuthClientSecret:
		return "oauth-client-secret"
	case PropAuthlyRole:
		return "authly:role"
	case PropKubernetesAccount:
		return "kubernetes-account"
	case PropPrivateKey:
		return "private-key"
	default:
		return ""
	}
}

// Encrypted reports whether values stored against this property must go
// through the crypto envelope (AEAD ciphertext + fingerprint) rather than
// being stored as plaintext.
func (p BuiltinProp) Encrypted() bool {
	switch p {
	case PropUsername, PropEmail, PropOAuthClientSecret, PropPrivateKey:
		return true
	default:
		return false
	}
}

// ID returns the property's 128-bit ID: the builtin's numeric value packed
// into the low two bytes of an otherwise-zero Property-kind ID, making the
// mapping deterministic and collision-free with randomly generated IDs
// (which would need to hit this exact low range by chance).
func (p BuiltinProp) ID() ID {
	var raw Raw
	binary.BigEndian.PutUint16(raw[14:], uint16(p))
	return ID{Kind: KindProperty, Raw: raw}
}

// AllBuiltinProps lists every builtin property.
func AllBuiltinProps() []BuiltinProp {
	return []BuiltinProp{
		PropEntity, PropUsername, PropEmail, PropOAuthClientSecret,
		PropAuthlyRole, PropKubernetesAccount, PropPrivateKey,
	}
}

// BuiltinAttr enumerates builtin attribute values, in particular the
// `AuthlyRole/*` family that gates Authly's own privileged operations.
type BuiltinAttr uint16

const (
	AttrRoleAuthenticate BuiltinAttr = iota + 1
	AttrRoleGetAccessToken
	AttrRoleApplyDocument
	AttrRoleGrantMandate
)

// Prop returns the property this builtin attribute belongs to.
func (a BuiltinAttr) Prop() BuiltinProp { return PropAuthlyRole }

// Label returns the attribute's document-facing label, e.g.
// "authly:role/authenticate".
func (a BuiltinAttr) Label() string {
	switch a {
	case AttrRoleAuthenticate:
		return "authly:role/authenticate"
	case AttrRoleGetAccessToken:
		return "authly:role/get_access_token"
	case AttrRoleApplyDocument:
		return "authly:role/apply_document"
	case AttrRoleGrantMandate:
		return "authly:role/grant_mandate"
	default:
		return ""
	}
}

// ID returns the attribute's 128-bit ID, packed the same way BuiltinProp.ID
// packs its numeric value, but tagged as an Attribute.
func (a BuiltinAttr) ID() ID {
	var raw Raw
	binary.BigEndian.PutUint16(raw[14:], uint16(a))
	return ID{Kind: KindAttribute, Raw: raw}
}

// AllBuiltinAttrs lists every builtin attribute.
func AllBuiltinAttrs() []BuiltinAttr {
	return []BuiltinAttr{
		AttrRoleAuthenticate, AttrRoleGetAccessToken,
		AttrRoleApplyDocument, AttrRoleGrantMandate,
	}
}

// LabelToBuiltinAttr resolves a document-facing label back to its builtin
// attribute, used by the document compiler and policy namespace resolution.
func LabelToBuiltinAttr(label string) (BuiltinAttr, bool) {
	for _, a := range AllBuiltinAttrs() {
		if a.Label() == label {
			return a, true
		}
	}
	return 0, false
}

// LabelToBuiltinProp resolves a document-facing label back to its builtin
// property.
func LabelToBuiltinProp(label string) (BuiltinProp, bool) {
	for _, p := range AllBuiltinProps() {
		if p.Label() == label {
			return p, true
		}
	}
	return 0, false
}

// BuiltinAttrByID resolves an attribute ID back to its builtin attribute,
// if any -- builtin attributes are never persisted to the attribute table
// (seedBuiltins registers them by label in-memory only), so a caller
// rendering a readable attribute set must fall back to this rather than a
// database lookup.
func BuiltinAttrByID(attrID ID) (BuiltinAttr, bool) {
	if attrID.Kind != KindAttribute {
		return 0, false
	}
	for _, a := range AllBuiltinAttrs() {
		if a.ID().Equal(attrID) {
			return a, true
		}
	}
	return 0, false
}
