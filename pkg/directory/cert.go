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

package directory

import (
	"context"
	"time"

	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// CertKind distinguishes a CA certificate from a leaf identity certificate.
type CertKind string

const (
	CertCA       CertKind = "ca"
	CertIdentity CertKind = "identity"
)

// Certificate is one issued x509 certificate, DER-encoded, per spec.md §3.
type Certificate struct {
	ID           id.ID
	Kind         CertKind
	CertifiesEID id.ID
	SignedByEID  id.ID
	DER          []byte
	NotAfter     time.Time
}

// StoreCertificate persists a newly issued certificate.
func StoreCertificate(ctx context.Context, store db.DB, c Certificate) error {
	_, err := store.Execute(ctx,
		`INSERT INTO certificate (id, kind, certifies_eid, signed_by_eid, der, not_after) VALUES (?, ?, ?, ?, ?, ?)`,
		db.IDParam(c.ID), db.TextParam(string(c.Kind)), db.IDParam(c.CertifiesEID), db.IDParam(c.SignedByEID),
		db.BlobParam(c.DER), db.IntParam(c.NotAfter.UTC().Unix()))
	return err
}

// ListCertificates lists every certificate of a given kind that certifies
// eid, current and expired alike; nothing is filtered by not_after.
func ListCertificates(ctx context.Context, store db.DB, eid id.ID, kind CertKind) ([]Certificate, error) {
	rows, err := store.Query(ctx,
		`SELECT id, signed_by_eid, der, not_after FROM certificate WHERE certifies_eid = ? AND kind = ?`,
		db.IDParam(eid), db.TextParam(string(kind)))
	if err != nil {
		return nil, err
	}
	out := make([]Certificate, 0, len(rows))
	for _, row := range rows {
		// A certificate's own id carries no fixed kind of its own (nothing
		// else ever looks one up by kind-checked reference); decode it,
		// and the signer id, leniently by the kind byte each was stored
		// with rather than asserting one.
		idBlob, err := row.Blob("id")
		if err != nil {
			return nil, err
		}
		certID, err := decodeAnyIDBlob(idBlob)
		if err != nil {
			return nil, err
		}
		signerBlob, err := row.Blob("signed_by_eid")
		if err != nil {
			return nil, err
		}
		signer, err := decodeAnyIDBlob(signerBlob)
		if err != nil {
			return nil, err
		}
		der, err := row.Blob("der")
		if err != nil {
			return nil, err
		}
		notAfter, err := row.Int("not_after")
		if err != nil {
			return nil, err
		}
		out = append(out, Certificate{
			ID: certID, Kind: kind, CertifiesEID: eid, SignedByEID: signer,
			DER: der, NotAfter: time.Unix(notAfter, 0).UTC(),
		})
	}
	return out, nil
}

func decodeAnyIDBlob(blob []byte) (id.ID, error) {
	if len(blob) != 17 {
		return id.ID{}, db.Errf(db.CodeBinaryEncoding, "id blob must be 17 bytes, got %d", len(blob))
	}
	var r id.Raw
	copy(r[:], blob[1:])
	return id.ID{Kind: id.Kind(blob[0]), Raw: r}, nil
}
