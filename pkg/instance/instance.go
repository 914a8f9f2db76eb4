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

// Package instance implements the node's identity and certificate
// authority (spec.md §4.3): a self-signed trust root, a rotating local
// intermediate CA signed by that root, and the EC P-256 key pair the local
// CA doubles as for ES256 access-token signing.
package instance

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// KeyPair is one issued certificate alongside the private key that signs
// for it: either the trust root, the local CA, or a leaf identity cert.
type KeyPair struct {
	Cert    *x509.Certificate
	CertDER []byte
	Key     *ecdsa.PrivateKey
}

// CSRParams is the caller-supplied shape of a certificate to sign with the
// local CA, spec.md §4.3's "csr_params".
type CSRParams struct {
	CommonName  string
	SubjectEID  id.ID
	NotAfter    time.Time
	DNSNames    []string
	IPAddresses []net.IP
}

// Instance is the node's in-memory mutable truth of its own identity and
// signing material. Rotation replaces the whole value atomically (the Go
// analog of an arc-swapped singleton, the same pattern pkg/crypto's
// DecryptedDeks uses for its DEK snapshot); readers never observe a
// half-rotated state.
type Instance struct {
	AuthlyEID   id.ID
	TrustRootCA KeyPair
	LocalCA     KeyPair
	// CAChain is ordered [local_ca, ..., trust_root_ca], DER-encoded.
	CAChain [][]byte
}

// JWTEncodingKey is the EC P-256 private key access tokens are signed
// with: the local CA's own key, per spec.md §4.3 ("EC P-256 keys derived
// from local_ca").
func (in *Instance) JWTEncodingKey() *ecdsa.PrivateKey { return in.LocalCA.Key }

// JWTDecodingKey is the public half of JWTEncodingKey.
func (in *Instance) JWTDecodingKey() *ecdsa.PublicKey { return &in.LocalCA.Key.PublicKey }

// Snapshot is the atomically-swapped holder readers and the rotation loop
// share.
type Snapshot struct {
	ptr atomic.Pointer[Instance]
}

// NewSnapshot wraps an already-built Instance.
func NewSnapshot(in *Instance) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(in)
	return s
}

// Load returns the current Instance. Callers must not mutate it; rotation
// always installs a fresh value rather than editing in place.
func (s *Snapshot) Load() *Instance { return s.ptr.Load() }

// Store atomically replaces the current Instance, used by both the
// leader's rotation loop and a non-leader's poll-driven reload.
func (s *Snapshot) Store(in *Instance) { s.ptr.Store(in) }

// GenerateTrustRootCA mints a new long-lived self-signed CA, grounded on
// the teacher's hack/gentestdata genCertChain: ECDSA P-256, CreateCertificate
// with the template as both subject and parent.
func GenerateTrustRootCA(eid id.ID, notAfter time.Time) (KeyPair, error) {
	return generateCA(eid, "authly trust root", notAfter, nil)
}

// GenerateLocalCA mints a new intermediate CA signed by root, valid until
// notAfter (spec.md §4.3: "the certificate's validity is twice the
// rotation period").
func GenerateLocalCA(eid id.ID, notAfter time.Time, root KeyPair) (KeyPair, error) {
	return generateCA(eid, "authly local ca", notAfter, &root)
}

func generateCA(eid id.ID, commonName string, notAfter time.Time, parent *KeyPair) (KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, apierror.Wrap(apierror.CodeInternal, "generate ca key", err)
	}
	serial, err := newSerial()
	if err != nil {
		return KeyPair{}, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now(),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	parentCert := template
	signer := key
	if parent != nil {
		parentCert = parent.Cert
		signer = parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parentCert, &key.PublicKey, signer)
	if err != nil {
		return KeyPair{}, apierror.Wrap(apierror.CodeInternal, "create ca certificate", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return KeyPair{}, apierror.Wrap(apierror.CodeInternal, "parse ca certificate", err)
	}
	return KeyPair{Cert: cert, CertDER: der, Key: key}, nil
}

// SignWithLocalCA signs a new leaf certificate for params, returning its
// DER encoding and the freshly generated private key it belongs to. Per
// spec.md §4.3 ("records the signer/subject IDs") it also records the
// issuance as a directory.Certificate row: SignedByEID is this instance's
// own authly_eid, CertifiesEID is params.SubjectEID.
func (in *Instance) SignWithLocalCA(ctx context.Context, store db.DB, params CSRParams) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.CodeInternal, "generate leaf key", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: params.CommonName},
		NotBefore:    time.Now(),
		NotAfter:     params.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     params.DNSNames,
		IPAddresses:  params.IPAddresses,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, in.LocalCA.Cert, &key.PublicKey, in.LocalCA.Key)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.CodeInternal, "sign leaf certificate", err)
	}

	if err := directory.StoreCertificate(ctx, store, directory.Certificate{
		ID:           id.New(id.KindCertificate),
		Kind:         directory.CertIdentity,
		CertifiesEID: params.SubjectEID,
		SignedByEID:  in.AuthlyEID,
		DER:          der,
		NotAfter:     params.NotAfter,
	}); err != nil {
		return nil, nil, err
	}

	return der, key, nil
}

// SignCSR signs a leaf certificate over a public key the caller already
// holds the private half of, rather than generating a fresh key pair the
// way SignWithLocalCA does -- the shape a certificate signing request
// actually has: the submitter keeps its private key to itself and only
// ever transfers the public half. Grounded on original_source's
// authority_fulfill_submission, which signs csr_params.public_key rather
// than minting a new key pair on the authority's side.
func (in *Instance) SignCSR(ctx context.Context, store db.DB, params CSRParams, publicKey *ecdsa.PublicKey) ([]byte, error) {
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: params.CommonName},
		NotBefore:    time.Now(),
		NotAfter:     params.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     params.DNSNames,
		IPAddresses:  params.IPAddresses,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, in.LocalCA.Cert, publicKey, in.LocalCA.Key)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "sign csr", err)
	}

	if err := directory.StoreCertificate(ctx, store, directory.Certificate{
		ID:           id.New(id.KindCertificate),
		Kind:         directory.CertIdentity,
		CertifiesEID: params.SubjectEID,
		SignedByEID:  in.AuthlyEID,
		DER:          der,
		NotAfter:     params.NotAfter,
	}); err != nil {
		return nil, err
	}
	return der, nil
}

func newSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "generate certificate serial", err)
	}
	return serial, nil
}

// New mints a brand-new Instance from scratch: a trust root, a local CA
// signed by it, and the derived chain. Used on the leader's first boot.
func New(authlyEID id.ID, rotationPeriod time.Duration) (*Instance, error) {
	root, err := GenerateTrustRootCA(authlyEID, time.Now().AddDate(10, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("instance: %w", err)
	}
	local, err := GenerateLocalCA(authlyEID, time.Now().Add(2*rotationPeriod), root)
	if err != nil {
		return nil, fmt.Errorf("instance: %w", err)
	}
	return &Instance{
		AuthlyEID:   authlyEID,
		TrustRootCA: root,
		LocalCA:     local,
		CAChain:     [][]byte{local.CertDER, root.CertDER},
	}, nil
}

// Rotate replaces the local CA with a freshly signed one while keeping the
// same trust root, per spec.md §4.3's rotation stream.
func (in *Instance) Rotate(rotationPeriod time.Duration) (*Instance, error) {
	local, err := GenerateLocalCA(in.AuthlyEID, time.Now().Add(2*rotationPeriod), in.TrustRootCA)
	if err != nil {
		return nil, fmt.Errorf("instance: rotate: %w", err)
	}
	return &Instance{
		AuthlyEID:   in.AuthlyEID,
		TrustRootCA: in.TrustRootCA,
		LocalCA:     local,
		CAChain:     [][]byte{local.CertDER, in.TrustRootCA.CertDER},
	}, nil
}
