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

// Package id implements Authly's 128-bit kind-tagged identifiers.
//
// Every persisted identifier carries a Kind discriminator alongside its raw
// value so that, for example, a Service ID can never be silently accepted
// where a Persona ID is expected.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates what an ID refers to. It is never persisted without
// the ID it tags, and an ID's Kind never changes once assigned.
type Kind uint8

const (
	KindDirectory Kind = iota + 1
	KindService
	KindPersona
	KindGroup
	KindDomain
	KindProperty
	KindAttribute
	KindPolicy
	KindCertificate
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "Directory"
	case KindService:
		return "Service"
	case KindPersona:
		return "Persona"
	case KindGroup:
		return "Group"
	case KindDomain:
		return "Domain"
	case KindProperty:
		return "Property"
	case KindAttribute:
		return "Attribute"
	case KindPolicy:
		return "Policy"
	case KindCertificate:
		return "Certificate"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// prefix is the one-letter textual prefix used in the document format
// (e.g. "s.<32-hex>" for a service), matching the teacher's convention of a
// short discriminator before an opaque hex blob.
func (k Kind) prefix() byte {
	switch k {
	case KindDirectory:
		return 'd'
	case KindService:
		return 's'
	case KindPersona:
		return 'p'
	case KindGroup:
		return 'g'
	case KindDomain:
		return 'o'
	case KindProperty:
		return 'r'
	case KindAttribute:
		return 'a'
	case KindPolicy:
		return 'y'
	case KindCertificate:
		return 'c'
	default:
		return 0
	}
}

// Raw is the 128-bit value carried by every ID, with no kind information of
// its own: kind always travels alongside it, never inside it.
type Raw [16]byte

// Hex renders the raw value as 32 lowercase hex digits, the form used for
// bare (unprefixed) IDs such as JWT claims.
func (r Raw) Hex() string { return hex.EncodeToString(r[:]) }

// IsZero reports whether r is the all-zero value, used to detect
// uninitialized IDs.
func (r Raw) IsZero() bool { return r == Raw{} }

// ParseRawHex parses 32 hex digits into a Raw value.
func ParseRawHex(s string) (Raw, error) {
	var r Raw
	if len(s) != 32 {
		return r, fmt.Errorf("id: raw hex must be 32 characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return r, fmt.Errorf("id: invalid hex: %w", err)
	}
	copy(r[:], b)
	return r, nil
}

// NewRaw draws a fresh 128-bit value from the system CSPRNG.
func NewRaw() Raw {
	var r Raw
	if _, err := rand.Read(r[:]); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken
		// beyond repair; there is no sane fallback.
		panic(fmt.Sprintf("id: crypto/rand unavailable: %v", err))
	}
	return r
}

// ID is a kind-tagged 128-bit identifier, the concrete type every persisted
// identifier column ultimately is. Marshalled as a blob with a leading kind
// byte followed by 16 raw bytes (see pkg/db for the wire form).
type ID struct {
	Kind Kind
	Raw  Raw
}

// New allocates a fresh ID of the given kind.
func New(kind Kind) ID {
	return ID{Kind: kind, Raw: NewRaw()}
}

// String renders the canonical textual form: "<prefix>.<32-hex>" when the
// kind has a defined prefix, otherwise the bare hex.
func (id ID) String() string {
	p := id.Kind.prefix()
	if p == 0 {
		return id.Raw.Hex()
	}
	return string(p) + "." + id.Raw.Hex()
}

// Equal reports whether two IDs refer to the same kind and value.
func (id ID) Equal(other ID) bool {
	return id.Kind == other.Kind && id.Raw == other.Raw
}

// Parse parses a textual ID, requiring it to be of the given kind. A prefix
// mismatch (the string names a different kind) is rejected, preserving the
// invariant that an ID's kind is immutable and never ambiguous.
func Parse(expect Kind, s string) (ID, error) {
	hexPart := s
	if len(s) > 1 && s[1] == '.' {
		gotPrefix := s[0]
		if gotPrefix != expect.prefix() {
			return ID{}, fmt.Errorf("id: %q has wrong kind prefix for %s", s, expect)
		}
		hexPart = s[2:]
	}
	raw, err := ParseRawHex(hexPart)
	if err != nil {
		return ID{}, err
	}
	return ID{Kind: expect, Raw: raw}, nil
}

// ParseAny parses a prefixed textual ID without a known expected kind,
// returning whatever kind the prefix names. Used when decoding heterogeneous
// relations (AnyId columns).
func ParseAny(s string) (ID, error) {
	if len(s) < 2 || s[1] != '.' {
		return ID{}, fmt.Errorf("id: %q is not a prefixed identifier", s)
	}
	for k := KindDirectory; k <= KindCertificate; k++ {
		if k.prefix() == s[0] {
			return Parse(k, s)
		}
	}
	return ID{}, fmt.Errorf("id: %q has an unrecognized kind prefix", s)
}

// ParseDocumentUUID parses the `id = "<uuid>"` field of a document's
// [authly-document] table (spec.md §6) into a Directory-kind ID. Document
// ids travel in RFC4122 dashed form rather than the "d.<32-hex>" prefixed
// form ID.String renders, since a document author hand-writes one per
// spec.md's example; github.com/google/uuid gives the dashed form a real
// parser instead of a bespoke one.
func ParseDocumentUUID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: %q is not a valid document uuid: %w", s, err)
	}
	var raw Raw
	copy(raw[:], u[:])
	return ID{Kind: KindDirectory, Raw: raw}, nil
}

// DocumentUUID renders a Directory-kind ID back into the dashed textual
// form a document's [authly-document] id field uses.
func (id ID) DocumentUUID() string {
	return uuid.UUID(id.Raw).String()
}

// EntityId is the subset of ID that may act as a subject: a Persona, a
// Service, or a Group. It is a distinct Go type so that a function
// expecting an EntityId cannot be handed, say, a Policy ID by mistake.
type EntityId struct{ id ID }

// NewEntityId validates kind and wraps id as an EntityId.
func NewEntityId(id ID) (EntityId, error) {
	switch id.Kind {
	case KindPersona, KindService, KindGroup:
		return EntityId{id: id}, nil
	default:
		return EntityId{}, fmt.Errorf("id: %s is not a valid entity kind", id.Kind)
	}
}

// ID returns the underlying kind-tagged ID.
func (e EntityId) ID() ID { return e.id }

func (e EntityId) String() string { return e.id.String() }

// AnyId covers every kind, used for heterogeneous relations such as policy
// trigger sets that may reference entities or attributes interchangeably.
type AnyId = ID
