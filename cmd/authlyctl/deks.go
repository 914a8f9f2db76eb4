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

package main

import (
	"context"

	"github.com/authly-sh/authly/pkg/config"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
)

// loadDeks opens the same secret backend authlyd would (selected by the
// AUTHLY_SECRET_BACKEND family of environment variables) and unwraps this
// node's data-encryption keys, so authlyctl can read and write the same
// encrypted columns the running node does.
func loadDeks(ctx context.Context, store *db.SQLite) (*crypto.DecryptedDeks, error) {
	cfg, err := config.LoadNode()
	if err != nil {
		return nil, err
	}
	backend, err := secretBackend(cfg)
	if err != nil {
		return nil, err
	}
	master, err := crypto.LoadOrCreateMaster(ctx, store, backend)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()
	return crypto.LoadDecryptedDeks(ctx, store, master)
}

func secretBackend(cfg config.Node) (crypto.Backend, error) {
	switch crypto.BackendKind(cfg.SecretBackend) {
	case crypto.BackendVault:
		return crypto.NewVaultBackend(crypto.VaultConfig{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
			CACert:  cfg.VaultCACert,
			Timeout: cfg.VaultTimeout,
		})
	case crypto.BackendKMS:
		return crypto.NewKMSBackend(cfg.KMSURI), nil
	default:
		return crypto.NewLocalBackend(), nil
	}
}
