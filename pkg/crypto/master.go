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
	"time"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
)

const masterKeyName = "master-key"

// MasterRow is the persisted row naming which backend version wraps the
// node's master key (the key bytes themselves never touch the database;
// only the backend's version tag does).
type MasterRow struct {
	Version   string
	CreatedAt time.Time
}

// LoadOrCreateMaster implements spec.md §4.2's load order: the leader
// generates a master key on first boot and persists the version row;
// non-leaders poll until that row appears.
func LoadOrCreateMaster(ctx context.Context, store db.DB, backend Backend) (Secret, error) {
	row, err := loadMasterRow(ctx, store)
	if err != nil {
		return Secret{}, err
	}

	if row == nil {
		if !store.IsLeader() {
			return waitForMaster(ctx, store, backend)
		}
		secret, err := backend.GenVersioned(ctx, masterKeyName)
		if err != nil {
			return Secret{}, err
		}
		if err := insertMasterRow(ctx, store, secret.Version); err != nil {
			return Secret{}, err
		}
		return secret, nil
	}

	return backend.GetVersioned(ctx, masterKeyName, row.Version)
}

func waitForMaster(ctx context.Context, store db.DB, backend Backend) (Secret, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		row, err := loadMasterRow(ctx, store)
		if err != nil {
			return Secret{}, err
		}
		if row != nil {
			return backend.GetVersioned(ctx, masterKeyName, row.Version)
		}
		select {
		case <-ctx.Done():
			return Secret{}, apierror.Wrap(apierror.CodeChannel, "waiting for leader to initialize master key", ctx.Err())
		case <-ticker.C:
		}
	}
}

func loadMasterRow(ctx context.Context, store db.DB) (*MasterRow, error) {
	rows, err := store.Query(ctx, `SELECT version, created_at FROM cr_master_version LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	version, err := rows[0].Text("version")
	if err != nil {
		return nil, err
	}
	createdAtUnix, err := rows[0].Int("created_at")
	if err != nil {
		return nil, err
	}
	if createdAtUnix < 0 {
		return nil, apierror.New(apierror.CodeTimestamp, "master row has a negative created_at")
	}
	return &MasterRow{Version: version, CreatedAt: time.Unix(createdAtUnix, 0).UTC()}, nil
}

func insertMasterRow(ctx context.Context, store db.DB, version string) error {
	_, err := store.Execute(ctx,
		`INSERT INTO cr_master_version (version, created_at) VALUES (?, ?)`,
		db.TextParam(version), db.IntParam(time.Now().UTC().Unix()))
	return err
}
