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

package crypto

import (
	"crypto/subtle"

	"github.com/zeebo/blake3"

	"github.com/authly-sh/authly/pkg/apierror"
)

// Ident is an encrypted identifying value as stored in the object_ident
// table: ciphertext plus a deterministic fingerprint computed under the
// same DEK, used as an equality-searchable index.
type Ident struct {
	Ciphertext  []byte
	Nonce       []byte
	Fingerprint [32]byte
}

// EncryptIdent seals plaintext under dek with AES-GCM and a fresh random
// nonce (DESIGN.md explains the substitution for GCM-SIV), and computes its
// fingerprint as the blake3 keyed hash of plaintext under the same dek.
func EncryptIdent(dek DEK, plaintext string) (Ident, error) {
	ciphertext, nonce, err := aesGCMSeal(dek.Key, []byte(plaintext))
	if err != nil {
		return Ident{}, err
	}
	fp, err := Fingerprint(dek, plaintext)
	if err != nil {
		return Ident{}, err
	}
	return Ident{Ciphertext: ciphertext, Nonce: nonce, Fingerprint: fp}, nil
}

// DecryptIdent recovers the plaintext of an Ident, used by paths that need
// the cleartext back (e.g. the OAuth client secret).
func DecryptIdent(dek DEK, ident Ident) (string, error) {
	plain, err := aesGCMOpen(dek.Key, ident.Nonce, ident.Ciphertext)
	if err != nil {
		return "", apierror.Wrap(apierror.CodeAead, "decrypt ident", err)
	}
	return string(plain), nil
}

// SealBytes encrypts an arbitrary byte blob under dek, for callers that
// need the raw AEAD envelope without an Ident's searchable fingerprint
// (e.g. pkg/instance's sealed AuthlyInstance row).
func SealBytes(dek DEK, plaintext []byte) (ciphertext, nonce []byte, err error) {
	return aesGCMSeal(dek.Key, plaintext)
}

// OpenBytes recovers a blob sealed with SealBytes.
func OpenBytes(dek DEK, nonce, ciphertext []byte) ([]byte, error) {
	plain, err := aesGCMOpen(dek.Key, nonce, ciphertext)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeAead, "decrypt sealed bytes", err)
	}
	return plain, nil
}

// Fingerprint computes the blake3 keyed MAC of plaintext under dek, the
// deterministic search key used for equality lookups against encrypted
// columns without ever decrypting them.
func Fingerprint(dek DEK, plaintext string) ([32]byte, error) {
	var out [32]byte
	h, err := blake3.NewKeyed(dek.Key[:])
	if err != nil {
		return out, apierror.Wrap(apierror.CodeAead, "blake3 keyed", err)
	}
	_, _ = h.Write([]byte(plaintext))
	sum := h.Sum(nil)
	copy(out[:], sum)
	return out, nil
}

// FingerprintEqual compares two fingerprints in constant time, avoiding a
// timing oracle on the equality-lookup path.
func FingerprintEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
