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

	"github.com/authly-sh/authly/pkg/id"
)

func TestLoadDecryptedDeksLeaderProvisionsAllEncryptedProps(t *testing.T) {
	ctx := context.Background()
	s := openCryptoTestDB(t)
	backend := NewLocalBackend()
	master, err := LoadOrCreateMaster(ctx, s, backend)
	require.NoError(t, err)

	deks, err := LoadDecryptedDeks(ctx, s, master)
	require.NoError(t, err)
	require.Equal(t, len(encryptedBuiltinProps()), deks.Len())

	for _, p := range encryptedBuiltinProps() {
		dek, ok := deks.Get(p)
		require.True(t, ok, "expected a DEK for %v", p)
		require.Equal(t, p, dek.Prop)
	}

	_, ok := deks.Get(id.PropAuthlyRole)
	require.False(t, ok, "PropAuthlyRole is not an encrypted property")
}

func TestLoadDecryptedDeksIsStableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := openCryptoTestDB(t)
	backend := NewLocalBackend()
	master, err := LoadOrCreateMaster(ctx, s, backend)
	require.NoError(t, err)

	first, err := LoadDecryptedDeks(ctx, s, master)
	require.NoError(t, err)
	second, err := LoadDecryptedDeks(ctx, s, master)
	require.NoError(t, err)

	a, _ := first.Get(id.PropUsername)
	b, _ := second.Get(id.PropUsername)
	require.Equal(t, a.Key, b.Key, "re-loading DEKs from the same master must yield the same key bytes")
}

func TestDecryptedDeksStoreReplacesSnapshotAtomically(t *testing.T) {
	d := NewDecryptedDeks()
	require.Equal(t, 0, d.Len())

	d.Store(map[id.BuiltinProp]DEK{id.PropUsername: {Prop: id.PropUsername}})
	require.Equal(t, 1, d.Len())

	_, ok := d.Get(id.PropEmail)
	require.False(t, ok)
}
