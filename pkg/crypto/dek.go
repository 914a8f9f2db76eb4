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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"sync/atomic"
	"time"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// DEK is a per-property data-encryption key, distinct from the master key
// that wraps it at rest.
type DEK struct {
	Prop id.BuiltinProp
	Key  [32]byte
}

// Destroy zeroes the key material.
func (d *DEK) Destroy() {
	for i := range d.Key {
		d.Key[i] = 0
	}
}

// DecryptedDeks is the reader-biased atomic snapshot of every loaded DEK,
// the Go analog of spec.md §5's arc-swapped singleton: readers take one
// atomic load and never block a concurrent writer replacing the whole map.
type DecryptedDeks struct {
	snapshot atomic.Pointer[map[id.BuiltinProp]DEK]
}

// NewDecryptedDeks constructs an empty snapshot.
func NewDecryptedDeks() *DecryptedDeks {
	d := &DecryptedDeks{}
	m := map[id.BuiltinProp]DEK{}
	d.snapshot.Store(&m)
	return d
}

// Store atomically replaces the entire DEK set.
func (d *DecryptedDeks) Store(deks map[id.BuiltinProp]DEK) {
	m := make(map[id.BuiltinProp]DEK, len(deks))
	for k, v := range deks {
		m[k] = v
	}
	d.snapshot.Store(&m)
}

// Get returns the DEK for prop, or (zero, false) if it has not been
// loaded/generated yet.
func (d *DecryptedDeks) Get(prop id.BuiltinProp) (DEK, bool) {
	m := *d.snapshot.Load()
	dek, ok := m[prop]
	return dek, ok
}

// Len reports how many DEKs are currently loaded.
func (d *DecryptedDeks) Len() int {
	return len(*d.snapshot.Load())
}

// LoadDecryptedDeks implements spec.md §4.2's DEK bootstrap: the leader
// generates any missing DEK for every encrypted builtin property; non-
// leaders wait until the stored DEK count matches the number of encrypted
// builtin properties, then load them all.
func LoadDecryptedDeks(ctx context.Context, store db.DB, master Secret) (*DecryptedDeks, error) {
	encryptedProps := encryptedBuiltinProps()

	if store.IsLeader() {
		for _, prop := range encryptedProps {
			if err := ensurePropDek(ctx, store, master, prop); err != nil {
				return nil, err
			}
		}
		return loadAllDeks(ctx, store, master, encryptedProps)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		deks, err := loadAllDeks(ctx, store, master, encryptedProps)
		if err == nil && deks.Len() >= len(encryptedProps) {
			return deks, nil
		}
		select {
		case <-ctx.Done():
			return nil, apierror.Wrap(apierror.CodeChannel, "waiting for leader to provision DEKs", ctx.Err())
		case <-ticker.C:
		}
	}
}

func encryptedBuiltinProps() []id.BuiltinProp {
	var out []id.BuiltinProp
	for _, p := range id.AllBuiltinProps() {
		if p.Encrypted() {
			out = append(out, p)
		}
	}
	return out
}

func ensurePropDek(ctx context.Context, store db.DB, master Secret, prop id.BuiltinProp) error {
	rows, err := store.Query(ctx, `SELECT 1 FROM cr_prop_dek WHERE prop_id = ?`, db.IDParam(prop.ID()))
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return apierror.Wrap(apierror.CodeInternal, "generate dek", err)
	}
	ciphertext, nonce, err := aesGCMSeal(master.Value, key[:])
	if err != nil {
		return err
	}
	_, err = store.Execute(ctx,
		`INSERT INTO cr_prop_dek (prop_id, nonce, ciphertext) VALUES (?, ?, ?)`,
		db.IDParam(prop.ID()), db.BlobParam(nonce), db.BlobParam(ciphertext))
	return err
}

func loadAllDeks(ctx context.Context, store db.DB, master Secret, props []id.BuiltinProp) (*DecryptedDeks, error) {
	out := make(map[id.BuiltinProp]DEK, len(props))
	for _, prop := range props {
		rows, err := store.Query(ctx, `SELECT nonce, ciphertext FROM cr_prop_dek WHERE prop_id = ?`, db.IDParam(prop.ID()))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		nonce, err := rows[0].Blob("nonce")
		if err != nil {
			return nil, err
		}
		ciphertext, err := rows[0].Blob("ciphertext")
		if err != nil {
			return nil, err
		}
		plain, err := aesGCMOpen(master.Value, nonce, ciphertext)
		if err != nil {
			return nil, apierror.Wrap(apierror.CodeAead, "decrypt dek", err)
		}
		var dek DEK
		dek.Prop = prop
		copy(dek.Key[:], plain)
		out[prop] = dek
	}
	deks := NewDecryptedDeks()
	deks.Store(out)
	return deks, nil
}

// aesGCMSeal and aesGCMOpen are the package's stdlib AES-GCM primitives:
// they wrap each DEK under the master key, and envelope.go uses them to
// seal idents and blobs under a DEK. See DESIGN.md for why this substitutes
// for the spec's AES-256-GCM-SIV.
func aesGCMSeal(key [32]byte, plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.CodeAead, "new cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.CodeAead, "new gcm", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, apierror.Wrap(apierror.CodeInternal, "generate nonce", err)
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

func aesGCMOpen(key [32]byte, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeAead, "new cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeAead, "new gcm", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, apierror.New(apierror.CodeBadNonce, "nonce has the wrong length")
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
