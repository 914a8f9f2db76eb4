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
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/id"
)

func testDEK(t *testing.T) DEK {
	t.Helper()
	var dek DEK
	dek.Prop = id.PropUsername
	_, err := rand.Read(dek.Key[:])
	require.NoError(t, err)
	return dek
}

func TestEncryptDecryptIdentRoundTrip(t *testing.T) {
	dek := testDEK(t)

	ident, err := EncryptIdent(dek, "alice@example.com")
	require.NoError(t, err)

	got, err := DecryptIdent(dek, ident)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got)
}

func TestDecryptIdentTamperedCiphertextFails(t *testing.T) {
	dek := testDEK(t)
	ident, err := EncryptIdent(dek, "alice@example.com")
	require.NoError(t, err)

	ident.Ciphertext[0] ^= 0xFF
	_, err = DecryptIdent(dek, ident)
	require.Error(t, err)
}

func TestDecryptIdentTamperedNonceFails(t *testing.T) {
	dek := testDEK(t)
	ident, err := EncryptIdent(dek, "alice@example.com")
	require.NoError(t, err)

	ident.Nonce[0] ^= 0xFF
	_, err = DecryptIdent(dek, ident)
	require.Error(t, err)
}

func TestDecryptIdentWrongKeyFails(t *testing.T) {
	dek := testDEK(t)
	other := testDEK(t)
	ident, err := EncryptIdent(dek, "alice@example.com")
	require.NoError(t, err)

	_, err = DecryptIdent(other, ident)
	require.Error(t, err)
}

func TestFingerprintEqualForSamePlaintext(t *testing.T) {
	dek := testDEK(t)

	a, err := Fingerprint(dek, "alice@example.com")
	require.NoError(t, err)
	b, err := Fingerprint(dek, "alice@example.com")
	require.NoError(t, err)

	require.True(t, FingerprintEqual(a, b))
}

func TestFingerprintDistinctForDistinctPlaintext(t *testing.T) {
	dek := testDEK(t)

	a, err := Fingerprint(dek, "alice@example.com")
	require.NoError(t, err)
	b, err := Fingerprint(dek, "bob@example.com")
	require.NoError(t, err)

	require.False(t, FingerprintEqual(a, b))
}

func TestEncryptIdentFingerprintMatchesDirectFingerprint(t *testing.T) {
	dek := testDEK(t)
	ident, err := EncryptIdent(dek, "alice@example.com")
	require.NoError(t, err)

	fp, err := Fingerprint(dek, "alice@example.com")
	require.NoError(t, err)
	require.True(t, FingerprintEqual(ident.Fingerprint, fp))
}
