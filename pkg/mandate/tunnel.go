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

package mandate

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TunnelSecurity selects which of the two Authly Connect RPCs a tunnel
// rides: a plain server-TLS gRPC channel, or one that also carries a
// client certificate. Grounded on lib/authly-connect/src/tunnel.rs's
// TunnelSecurity enum (Secure/MutuallySecure), used to pick between
// `connect_client.secure`/`connect_client.mutually_secure`.
type TunnelSecurity int

const (
	TunnelSecure TunnelSecurity = iota
	TunnelMutuallySecure
)

func (s TunnelSecurity) method() string {
	if s == TunnelMutuallySecure {
		return authlyConnectService + "/MutuallySecure"
	}
	return authlyConnectService + "/Secure"
}

const authlyConnectService = "/authly.connect.v1.AuthlyConnect"

// msgStream is the shape both grpc.ServerStream and grpc.ClientStream
// already satisfy; a tunnel frame is just "some bytes", so relaying one
// needs nothing beyond it.
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// tunnelConn adapts a streaming gRPC call carrying wrapperspb.BytesValue
// frames into a plain io.ReadWriteCloser, the Go shape of
// tokio::io::join's joined duplex: a caller treats it exactly like an
// established connection and runs a further protocol (typically a TLS or
// mTLS handshake for the mandate's own identity) directly on top of it.
type tunnelConn struct {
	stream  msgStream
	closer  func() error
	readBuf []byte
}

func (t *tunnelConn) Read(p []byte) (int, error) {
	for len(t.readBuf) == 0 {
		var frame wrapperspb.BytesValue
		if err := t.stream.RecvMsg(&frame); err != nil {
			return 0, err
		}
		t.readBuf = frame.Value
	}
	n := copy(p, t.readBuf)
	t.readBuf = t.readBuf[n:]
	return n, nil
}

func (t *tunnelConn) Write(p []byte) (int, error) {
	if err := t.stream.SendMsg(wrapperspb.Bytes(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *tunnelConn) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer()
}

// DialTunnel opens one Authly Connect tunnel stream of the requested
// security level over cc, the client side of
// authly_connect_client_tunnel. There is no generated client stub:
// cc.NewStream is called directly against a hand-built grpc.StreamDesc,
// which is all a generated stub would otherwise wrap, since the only
// message type involved is protobuf's own well-known BytesValue.
func DialTunnel(ctx context.Context, cc grpc.ClientConnInterface, security TunnelSecurity) (io.ReadWriteCloser, error) {
	desc := &grpc.StreamDesc{StreamName: "tunnel", ServerStreams: true, ClientStreams: true}
	stream, err := cc.NewStream(ctx, desc, security.method())
	if err != nil {
		return nil, err
	}
	return &tunnelConn{stream: stream, closer: stream.CloseSend}, nil
}

// TunnelHandler is invoked once per incoming tunnel stream with the
// TunnelSecurity the caller selected; it owns whatever the tunnel
// connects to locally (typically handing conn to a further TLS/mTLS
// accept) and returns once that session ends.
type TunnelHandler func(ctx context.Context, security TunnelSecurity, conn io.ReadWriteCloser) error

// NewServiceDesc builds the Authly Connect grpc.ServiceDesc, dispatching
// both tunnel RPCs to handler with the TunnelSecurity each implies. A
// server registers it directly with grpc.Server.RegisterService; again,
// no generated server stub is needed since both RPCs share one frame
// shape.
func NewServiceDesc(handler TunnelHandler) grpc.ServiceDesc {
	wrap := func(security TunnelSecurity) func(any, grpc.ServerStream) error {
		return func(_ any, stream grpc.ServerStream) error {
			conn := &tunnelConn{stream: stream}
			return handler(stream.Context(), security, conn)
		}
	}
	return grpc.ServiceDesc{
		ServiceName: "authly.connect.v1.AuthlyConnect",
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{StreamName: "Secure", ServerStreams: true, ClientStreams: true, Handler: wrap(TunnelSecure)},
			{StreamName: "MutuallySecure", ServerStreams: true, ClientStreams: true, Handler: wrap(TunnelMutuallySecure)},
		},
	}
}
