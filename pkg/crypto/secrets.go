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

// Package crypto implements Authly's crypto envelope: secret-backend
// plurality, master-key loading, per-property DEKs, AEAD encryption of
// identifying columns, blake3 fingerprints, and Argon2id password hashing
// (spec.md §4.2).
package crypto

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/authly-sh/authly/pkg/apierror"
)

// BackendKind enumerates the recognized secret backends as a tagged
// variant, per spec.md §9's "Dynamic-dispatch secret backends" note: one
// per-variant struct, selected from configuration, rather than an open
// trait object.
type BackendKind string

const (
	BackendLocalUnencrypted BackendKind = "local-unencrypted"
	BackendVault            BackendKind = "vault"
	BackendKMS              BackendKind = "kms"
)

// Secret is a versioned byte secret returned by a Backend. The 32-byte
// value is the master key material itself; callers must call Destroy once
// they have derived what they need from it.
type Secret struct {
	Version string
	Value   [32]byte
}

// Destroy zeroes the secret's key material. Every exit path that holds a
// Secret must call this (spec.md §4.2, §5's resource-scoping rule).
func (s *Secret) Destroy() {
	for i := range s.Value {
		s.Value[i] = 0
	}
}

// Backend is the external secret source Authly fetches its master key
// from, keyed by a logical name ("master-key") and a version tag.
type Backend interface {
	// GenVersioned mints a brand new secret under name, returning the
	// version it was stored as. Called once, by the leader, the first
	// time a given logical name is needed.
	GenVersioned(ctx context.Context, name string) (Secret, error)

	// GetVersioned fetches a previously minted secret by name and
	// version.
	GetVersioned(ctx context.Context, name, version string) (Secret, error)
}

// LocalBackend is the Local-unencrypted variant: secrets live only in
// process memory, keyed by name+version. Suitable for development and
// single-process tests; carries no confidentiality guarantee of its own
// (the "unencrypted" in its name is deliberate).
type LocalBackend struct {
	store map[string]map[string][32]byte
}

// NewLocalBackend constructs an empty in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{store: make(map[string]map[string][32]byte)}
}

func (b *LocalBackend) GenVersioned(_ context.Context, name string) (Secret, error) {
	var v [32]byte
	if _, err := rand.Read(v[:]); err != nil {
		return Secret{}, apierror.Wrap(apierror.CodeInternal, "generate local secret", err)
	}
	version := fmt.Sprintf("v%d", len(b.store[name])+1)
	if b.store[name] == nil {
		b.store[name] = make(map[string][32]byte)
	}
	b.store[name][version] = v
	return Secret{Version: version, Value: v}, nil
}

func (b *LocalBackend) GetVersioned(_ context.Context, name, version string) (Secret, error) {
	versions, ok := b.store[name]
	if !ok {
		return Secret{}, apierror.New(apierror.CodeMissingSecret, fmt.Sprintf("no secret named %q", name))
	}
	v, ok := versions[version]
	if !ok {
		return Secret{}, apierror.New(apierror.CodeMissingSecret, fmt.Sprintf("no version %q of secret %q", version, name))
	}
	return Secret{Version: version, Value: v}, nil
}
