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

package instance

import (
	"context"
	"time"

	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// RunRotationLoop implements spec.md §4.3's rotation stream: on the
// leader, every rotationPeriod it mints a new local CA (and the ES256 key
// pair that rides on it), persists the result, and swaps snapshot to the
// new value. Non-leaders instead poll storage at the same cadence, since
// only the leader generates new material but every node must pick up
// whatever the leader just wrote. Returns once ctx is done.
func RunRotationLoop(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, snapshot *Snapshot, rotationPeriod time.Duration) {
	ticker := time.NewTicker(rotationPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rotateOnce(ctx, store, deks, snapshot, rotationPeriod); err != nil {
				continue
			}
		}
	}
}

func rotateOnce(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, snapshot *Snapshot, rotationPeriod time.Duration) error {
	dek, ok := deks.Get(id.PropPrivateKey)
	if !ok {
		return nil
	}

	if !store.IsLeader() {
		return reloadFromStorage(ctx, store, dek, snapshot)
	}

	current := snapshot.Load()
	next, err := current.Rotate(rotationPeriod)
	if err != nil {
		return err
	}
	if err := persist(ctx, store, dek, next); err != nil {
		return err
	}
	snapshot.Store(next)
	return nil
}

// Reload re-reads the persisted instance and swaps it into snapshot,
// regardless of leadership. It is the handler pkg/cluster's bus runs on
// an InstanceChanged message: every node, leader or not, must pick up an
// instance some other node just rewrote (original_source/src/bus/
// broadcast.rs's `authly_handle_broadcast` does this unconditionally too,
// noting "IsLeaderDb is not important when not starting up").
func Reload(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, snapshot *Snapshot) error {
	dek, ok := deks.Get(id.PropPrivateKey)
	if !ok {
		return nil
	}
	return reloadFromStorage(ctx, store, dek, snapshot)
}

func reloadFromStorage(ctx context.Context, store db.DB, dek crypto.DEK, snapshot *Snapshot) error {
	blob, found, err := directory.LoadInstanceBlob(ctx, store)
	if err != nil || !found {
		return err
	}
	in, err := decrypt(dek, blob)
	if err != nil {
		return err
	}
	snapshot.Store(in)
	return nil
}
