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
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
	"github.com/authly-sh/authly/pkg/mandate"
	"github.com/authly-sh/authly/pkg/mtls"
)

// submissionRedeemRequest is what a mandate sends once the inner TLS
// handshake of a TunnelSecure tunnel completes: its submission token and
// the public half of the key it wants its identity certificate signed
// over. Grounded on submission.rs's authority_fulfill_submission, which
// reads the same two fields (a signed JWT plus csr_params.public_key) off
// its incoming request; there is no generated message for it in the
// retrieval pack, so it is framed here as a single streamed JSON value,
// the same pattern tunnel.go's gRPC frames use for "just bytes" payloads.
type submissionRedeemRequest struct {
	Token        string `json:"token"`
	PublicKeyDER []byte `json:"public_key_der"`
}

// submissionRedeemResponse is FulfilledMandate's wire shape.
type submissionRedeemResponse struct {
	MandateEID      string   `json:"mandate_eid"`
	IdentityDER     []byte   `json:"identity_der"`
	LocalCADER      []byte   `json:"local_ca_der"`
	LocalCAKeyDER   []byte   `json:"local_ca_key_der"`
	UpstreamCAChain [][]byte `json:"upstream_ca_chain"`
}

// tunnelHandler is the Authly Connect tunnel's session owner: once a
// mandate's byte stream is established, it hands the connection over to a
// TLS server handshake presenting the node's own local CA certificate,
// the Go shape of original_source's grpc_serverside_tunnel driving a
// further rustls accept on top of the joined duplex. A TunnelSecure
// session is a prospective mandate redeeming a submission token, handled
// by mandate.FulfillSubmission; a TunnelMutuallySecure session is an
// already-enrolled peer identifying itself by client certificate, checked
// with mtls.PeerServiceID/AuthorizePeerService.
func tunnelHandler(log *zap.SugaredLogger, store db.DB, snapshot *instance.Snapshot) mandate.TunnelHandler {
	return func(ctx context.Context, security mandate.TunnelSecurity, conn io.ReadWriteCloser) error {
		defer conn.Close()
		in := snapshot.Load()

		tlsConn := tls.Server(rwConn{conn}, localCATLSConfig(in, security))
		defer tlsConn.Close() //nolint:errcheck
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			log.Errorw("authly connect tls handshake failed", "error", err, "security", security)
			return err
		}
		state := tlsConn.ConnectionState()

		if security == mandate.TunnelMutuallySecure {
			return authorizePeerTunnel(ctx, log, store, &state)
		}
		return redeemSubmission(ctx, log, store, in, tlsConn)
	}
}

// localCATLSConfig presents the node's own local CA certificate and key as
// the tunnel's server identity; a MutuallySecure tunnel additionally
// demands a client certificate and verifies it chains to that local CA.
func localCATLSConfig(in *instance.Instance, security mandate.TunnelSecurity) *tls.Config {
	cert := tls.Certificate{
		Certificate: [][]byte{in.LocalCA.CertDER},
		PrivateKey:  in.LocalCA.Key,
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if security == mandate.TunnelMutuallySecure {
		pool := x509.NewCertPool()
		pool.AddCert(in.LocalCA.Cert)
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

// redeemSubmission drives one enrollment exchange over an already
// TLS-negotiated tunnel: read the mandate's token and public key, fulfill
// the submission, and write the signed identity plus CA chain back.
func redeemSubmission(ctx context.Context, log *zap.SugaredLogger, store db.DB, in *instance.Instance, tlsConn *tls.Conn) error {
	var req submissionRedeemRequest
	if err := json.NewDecoder(tlsConn).Decode(&req); err != nil {
		log.Errorw("authly connect read submission request failed", "error", err)
		return apierror.Wrap(apierror.CodeSubmission, "read submission request", err)
	}

	rawPublicKey, err := x509.ParsePKIXPublicKey(req.PublicKeyDER)
	if err != nil {
		return apierror.Wrap(apierror.CodeSubmission, "parse submission public key", err)
	}
	publicKey, ok := rawPublicKey.(*ecdsa.PublicKey)
	if !ok {
		return apierror.New(apierror.CodeSubmission, "submission public key is not ecdsa")
	}

	fulfilled, err := mandate.FulfillSubmission(ctx, store, in, req.Token, publicKey)
	if err != nil {
		log.Errorw("authly connect submission fulfillment failed", "error", err)
		return err
	}

	keyDER, err := x509.MarshalECPrivateKey(fulfilled.LocalCAKey)
	if err != nil {
		return apierror.Wrap(apierror.CodeInternal, "marshal mandate local ca key", err)
	}

	resp := submissionRedeemResponse{
		MandateEID:      fulfilled.MandateEID.String(),
		IdentityDER:     fulfilled.IdentityDER,
		LocalCADER:      fulfilled.LocalCADER,
		LocalCAKeyDER:   keyDER,
		UpstreamCAChain: fulfilled.UpstreamCAChain,
	}
	if err := json.NewEncoder(tlsConn).Encode(&resp); err != nil {
		log.Errorw("authly connect write submission response failed", "error", err)
		return apierror.Wrap(apierror.CodeInternal, "write submission response", err)
	}
	log.Infow("authly connect mandate enrolled", "mandate_eid", fulfilled.MandateEID)
	return nil
}

// authorizePeerTunnel identifies the already-enrolled peer a
// MutuallySecure tunnel presented a client certificate for, and requires
// it carry the authenticate role before the session proceeds.
func authorizePeerTunnel(ctx context.Context, log *zap.SugaredLogger, store db.DB, state *tls.ConnectionState) error {
	svcEID, err := mtls.PeerServiceID(state)
	if err != nil {
		log.Errorw("authly connect peer identification failed", "error", err)
		return err
	}
	if err := mtls.AuthorizePeerService(ctx, store, svcEID, []id.BuiltinAttr{id.AttrRoleAuthenticate}); err != nil {
		log.Errorw("authly connect peer unauthorized", "error", err, "peer", svcEID.String())
		return err
	}
	log.Infow("authly connect mutually secure tunnel authorized", "peer", svcEID.String())
	return nil
}

// rwConn adapts an io.ReadWriteCloser tunnel stream into a net.Conn so
// crypto/tls can run its handshake directly on top of it; the tunnel
// itself is just relayed gRPC frames with no real network address or
// deadline semantics, so those methods are no-ops returning zero values.
type rwConn struct {
	io.ReadWriteCloser
}

func (rwConn) LocalAddr() net.Addr                { return tunnelAddr{} }
func (rwConn) RemoteAddr() net.Addr               { return tunnelAddr{} }
func (rwConn) SetDeadline(_ time.Time) error      { return nil }
func (rwConn) SetReadDeadline(_ time.Time) error  { return nil }
func (rwConn) SetWriteDeadline(_ time.Time) error { return nil }

type tunnelAddr struct{}

func (tunnelAddr) Network() string { return "authly-connect" }
func (tunnelAddr) String() string  { return "authly-connect-tunnel" }
