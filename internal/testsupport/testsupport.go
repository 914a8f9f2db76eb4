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

// Package testsupport holds in-memory fakes shared by package tests: an
// sqlite-backed db opener and deterministic DEKs, so individual package
// test files don't each hand-roll the same fixture. pkg/directory's own
// tests keep a private copy of the db opener, since importing this
// package from directory's internal tests would import directory right
// back (this package calls directory.Migrate).
package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// OpenDB opens a fresh in-memory sqlite store, migrates it, and registers
// its cleanup against t.
func OpenDB(t *testing.T) *db.SQLite {
	t.Helper()
	s, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, directory.Migrate(context.Background(), s))
	return s
}

// FixedDeks builds a DecryptedDeks holding one deterministic key per
// requested builtin property, so encryption-dependent tests don't need a
// real KMS or master key round trip.
func FixedDeks(props ...id.BuiltinProp) *crypto.DecryptedDeks {
	deks := crypto.NewDecryptedDeks()
	m := make(map[id.BuiltinProp]crypto.DEK, len(props))
	for _, p := range props {
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
