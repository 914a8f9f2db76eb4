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

// Package mtls resolves a caller's verified peer certificate into a Service
// entity id, and gates privileged operations on that service carrying the
// required AuthlyRole attributes. Grounded on
// original_source/crates/authly/src/mtls.rs (peer common-name extraction)
// and original_source/crates/authly/src/access_control.rs
// (svc_access_control), re-expressed with crypto/tls and
// pkg/directory.HasAttr.
package mtls

import (
	"context"
	"crypto/tls"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// PeerServiceID extracts the Service entity id from a verified mTLS peer
// certificate's CommonName. It expects the CN set by pkg/instance's
// SignWithLocalCA/SignCSR: a Service-kind id's own String() form. Mirrors
// mtls.rs's TlsConnectionMiddleware, which reads the leaf certificate's
// CommonName out of the already-verified rustls::ServerConnection.
func PeerServiceID(state *tls.ConnectionState) (id.ID, error) {
	if state == nil || len(state.PeerCertificates) == 0 {
		return id.ID{}, apierror.New(apierror.CodeCredentials, "no peer certificate presented")
	}
	cn := state.PeerCertificates[0].Subject.CommonName
	svcEID, err := id.Parse(id.KindService, cn)
	if err != nil {
		return id.ID{}, apierror.Wrap(apierror.CodeCredentials, "peer certificate common name is not a service id", err)
	}
	return svcEID, nil
}

// AuthorizePeerService requires that svcEID carry every one of required, the
// same all-or-nothing gate as svc_access_control: an empty required list
// authorizes unconditionally, since a service merely being listed in the
// directory (entitled to be issued a certificate at all) is itself the
// zero-requirement case.
func AuthorizePeerService(ctx context.Context, store db.DB, svcEID id.ID, required []id.BuiltinAttr) error {
	for _, attr := range required {
		ok, err := directory.HasAttr(ctx, store, svcEID, attr.ID())
		if err != nil {
			return err
		}
		if !ok {
			return apierror.New(apierror.CodeDenied, "peer service lacks required role: "+attr.Label())
		}
	}
	return nil
}
