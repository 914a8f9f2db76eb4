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
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/sigstore/sigstore/pkg/cryptoutils"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// wireKeyPair is the JSON-serializable form of a KeyPair: DER certificate
// plus SEC1 EC private key. There is no wire-format library in the
// retrieved corpus for a purely internal, never-externally-consumed blob
// like this one (unlike the config/CRD types the teacher marshals with
// k8s's codecs), so stdlib encoding/json carries it; see DESIGN.md.
type wireKeyPair struct {
	CertDER []byte `json:"cert_der"`
	KeyDER  []byte `json:"key_der"`
}

type wireInstance struct {
	AuthlyEIDKind byte        `json:"authly_eid_kind"`
	AuthlyEIDRaw  []byte      `json:"authly_eid_raw"`
	TrustRootCA   wireKeyPair `json:"trust_root_ca"`
	LocalCA       wireKeyPair `json:"local_ca"`
	// CAChainPEM is ca_chain marshalled as a single concatenated PEM
	// bundle via cryptoutils.MarshalCertificatesToPEM, the same helper
	// the teacher uses to serialize Fulcio chains.
	CAChainPEM []byte `json:"ca_chain_pem"`
}

func toWireKeyPair(kp KeyPair) (wireKeyPair, error) {
	der, err := x509.MarshalECPrivateKey(kp.Key)
	if err != nil {
		return wireKeyPair{}, apierror.Wrap(apierror.CodeInternal, "marshal ec private key", err)
	}
	return wireKeyPair{CertDER: kp.CertDER, KeyDER: der}, nil
}

func fromWireKeyPair(w wireKeyPair) (KeyPair, error) {
	cert, err := x509.ParseCertificate(w.CertDER)
	if err != nil {
		return KeyPair{}, apierror.Wrap(apierror.CodeInternal, "parse stored certificate", err)
	}
	key, err := x509.ParseECPrivateKey(w.KeyDER)
	if err != nil {
		return KeyPair{}, apierror.Wrap(apierror.CodeInternal, "parse stored ec private key", err)
	}
	return KeyPair{Cert: cert, CertDER: w.CertDER, Key: key}, nil
}

func marshalInstance(in *Instance) ([]byte, error) {
	root, err := toWireKeyPair(in.TrustRootCA)
	if err != nil {
		return nil, err
	}
	local, err := toWireKeyPair(in.LocalCA)
	if err != nil {
		return nil, err
	}
	chainPEM, err := cryptoutils.MarshalCertificatesToPEM([]*x509.Certificate{in.LocalCA.Cert, in.TrustRootCA.Cert})
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "marshal ca chain to pem", err)
	}
	w := wireInstance{
		AuthlyEIDKind: byte(in.AuthlyEID.Kind),
		AuthlyEIDRaw:  in.AuthlyEID.Raw[:],
		TrustRootCA:   root,
		LocalCA:       local,
		CAChainPEM:    chainPEM,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "marshal instance", err)
	}
	return b, nil
}

func unmarshalInstance(b []byte) (*Instance, error) {
	var w wireInstance
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "unmarshal instance", err)
	}
	root, err := fromWireKeyPair(w.TrustRootCA)
	if err != nil {
		return nil, err
	}
	local, err := fromWireKeyPair(w.LocalCA)
	if err != nil {
		return nil, err
	}
	chainCerts, err := cryptoutils.UnmarshalCertificatesFromPEM(w.CAChainPEM)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "unmarshal ca chain pem", err)
	}
	chain := make([][]byte, len(chainCerts))
	for i, c := range chainCerts {
		chain[i] = c.Raw
	}
	var raw id.Raw
	copy(raw[:], w.AuthlyEIDRaw)
	return &Instance{
		AuthlyEID:   id.ID{Kind: id.Kind(w.AuthlyEIDKind), Raw: raw},
		TrustRootCA: root,
		LocalCA:     local,
		CAChain:     chain,
	}, nil
}

// persist seals in under dek and upserts the single instance row.
func persist(ctx context.Context, store db.DB, dek crypto.DEK, in *Instance) error {
	plain, err := marshalInstance(in)
	if err != nil {
		return err
	}
	ciphertext, nonce, err := crypto.SealBytes(dek, plain)
	if err != nil {
		return err
	}
	return directory.StoreInstanceBlob(ctx, store, directory.InstanceBlob{
		Ciphertext: ciphertext, Nonce: nonce, UpdatedAt: time.Now(),
	})
}

func decrypt(dek crypto.DEK, blob directory.InstanceBlob) (*Instance, error) {
	plain, err := crypto.OpenBytes(dek, blob.Nonce, blob.Ciphertext)
	if err != nil {
		return nil, err
	}
	return unmarshalInstance(plain)
}

// Bootstrap implements spec.md §4.3's load order: the leader generates the
// instance on first boot and persists it; non-leaders poll until a row
// appears, mirroring pkg/crypto.LoadOrCreateMaster and LoadDecryptedDeks.
func Bootstrap(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, authlyEID id.ID, rotationPeriod time.Duration) (*Snapshot, error) {
	dek, ok := deks.Get(id.PropPrivateKey)
	if !ok {
		return nil, apierror.New(apierror.CodeMissingDek, "private-key dek not loaded")
	}

	if store.IsLeader() {
		blob, found, err := directory.LoadInstanceBlob(ctx, store)
		if err != nil {
			return nil, err
		}
		if found {
			in, err := decrypt(dek, blob)
			if err != nil {
				return nil, err
			}
			return NewSnapshot(in), nil
		}
		in, err := New(authlyEID, rotationPeriod)
		if err != nil {
			return nil, err
		}
		if err := persist(ctx, store, dek, in); err != nil {
			return nil, err
		}
		return NewSnapshot(in), nil
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		blob, found, err := directory.LoadInstanceBlob(ctx, store)
		if err != nil {
			return nil, err
		}
		if found {
			in, err := decrypt(dek, blob)
			if err != nil {
				return nil, err
			}
			return NewSnapshot(in), nil
		}
		select {
		case <-ctx.Done():
			return nil, apierror.Wrap(apierror.CodeChannel, "waiting for leader to initialize instance", ctx.Err())
		case <-ticker.C:
		}
	}
}
