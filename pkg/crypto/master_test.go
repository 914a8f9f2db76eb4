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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/pkg/db"
)

func openCryptoTestDB(t *testing.T) *db.SQLite {
	t.Helper()
	s, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	_, err = s.Execute(ctx, `CREATE TABLE cr_master_version (version TEXT PRIMARY KEY, created_at INTEGER)`)
	require.NoError(t, err)
	_, err = s.Execute(ctx, `CREATE TABLE cr_prop_dek (prop_id BLOB PRIMARY KEY, nonce BLOB, ciphertext BLOB)`)
	require.NoError(t, err)
	return s
}

func TestLoadOrCreateMasterLeaderGenerates(t *testing.T) {
	ctx := context.Background()
	s := openCryptoTestDB(t)
	backend := NewLocalBackend()

	secret, err := LoadOrCreateMaster(ctx, s, backend)
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, secret.Value)

	again, err := LoadOrCreateMaster(ctx, s, backend)
	require.NoError(t, err)
	require.Equal(t, secret.Version, again.Version)
	require.Equal(t, secret.Value, again.Value)
}

func TestLoadOrCreateMasterIsIdempotentAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := openCryptoTestDB(t)
	backend := NewLocalBackend()

	first, err := LoadOrCreateMaster(ctx, s, backend)
	require.NoError(t, err)
	second, err := LoadOrCreateMaster(ctx, s, backend)
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT COUNT(*) AS n FROM cr_master_version`)
	require.NoError(t, err)
	n, err := rows[0].Int("n")
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "a second LoadOrCreateMaster call must not mint a second row")
	require.Equal(t, first.Value, second.Value)
}
