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

// Package config loads an authlyd node's environment configuration.
// Grounded on the teacher's cmd/localk8s and cmd/local-dev, which both load
// their setup knobs from AUTHLY_*-shaped environment variables via
// kelseyhightower/envconfig rather than hand-rolled os.Getenv parsing.
package config

import (
	"time"

	"github.com/hashicorp/go-sockaddr"
	"github.com/kelseyhightower/envconfig"

	"github.com/authly-sh/authly/pkg/apierror"
)

// Node is an authlyd process's full environment configuration, loaded once
// at boot.
type Node struct {
	// DBPath is the SQLite file this node opens (or ":memory:" for a
	// throwaway single-process run).
	DBPath string `envconfig:"DB_PATH" default:"authly.sqlite3"`

	// SecretBackend selects which crypto.Backend variant wraps the master
	// key: "local-unencrypted", "vault", or "kms".
	SecretBackend string `envconfig:"SECRET_BACKEND" default:"local-unencrypted"`

	// VaultAddress, VaultToken, VaultMount, VaultCACert, VaultTimeout
	// configure crypto.VaultBackend when SecretBackend is "vault".
	VaultAddress string `envconfig:"VAULT_ADDRESS"`
	VaultToken   string `envconfig:"VAULT_TOKEN"`
	VaultMount   string `envconfig:"VAULT_MOUNT" default:"secret"`
	VaultCACert  string `envconfig:"VAULT_CA_CERT"`
	VaultTimeout string `envconfig:"VAULT_TIMEOUT" default:"30s"`

	// KMSURI configures crypto.KMSBackend when SecretBackend is "kms", e.g.
	// "awskms://...", "hashivault://...".
	KMSURI string `envconfig:"KMS_URI"`

	// RotationPeriod is how often the leader mints a new local CA
	// (spec.md §4.3/§4.7).
	RotationPeriod time.Duration `envconfig:"ROTATION_PERIOD" default:"720h"`

	// GRPCListenAddr is where authlyd serves the Authly Connect tunnel and
	// any other gRPC surface.
	GRPCListenAddr string `envconfig:"GRPC_LISTEN_ADDR" default:":7900"`

	// HTTPListenAddr is loaded for an HTTP adapter surface; cmd/authlyd
	// opens no HTTP listener and does not read this value.
	HTTPListenAddr string `envconfig:"HTTP_LISTEN_ADDR" default:":7901"`

	// AuthorityURL is the URL this node's own submission tokens embed as
	// their issuer, handed to a prospective mandate out of band alongside
	// the submission code.
	AuthorityURL string `envconfig:"AUTHORITY_URL"`

	// KubernetesNamespace, KubernetesServiceAccount are opaque passthrough
	// config: SPEC_FULL.md §2 notes Authly has no Kubernetes admission
	// surface of its own, so AUTHLY_K8S* is modeled here only as a value a
	// deployment may want to read back, never interpreted by this package.
	KubernetesNamespace      string `envconfig:"K8S_NAMESPACE"`
	KubernetesServiceAccount string `envconfig:"K8S_SERVICE_ACCOUNT"`

	// AdvertiseAddr is the address this node announces to cluster peers
	// for dialing its gRPC listener. Left blank in most deployments: the
	// node autodetects its private interface address at boot (see
	// ResolveAdvertiseAddr) rather than requiring every node's env to name
	// itself explicitly.
	AdvertiseAddr string `envconfig:"ADVERTISE_ADDR"`
}

// ResolveAdvertiseAddr returns n.AdvertiseAddr if set, otherwise
// autodetects the node's private IP the way a clustered deployment's
// peers need to find each other without per-node configuration.
// Grounded on the teacher's use of go-sockaddr for the same
// private-interface-discovery purpose in its KMS/address plumbing.
func ResolveAdvertiseAddr(n Node) (string, error) {
	if n.AdvertiseAddr != "" {
		return n.AdvertiseAddr, nil
	}
	ip, err := sockaddr.GetPrivateIP()
	if err != nil {
		return "", apierror.Wrap(apierror.CodeInternal, "resolve advertise address", err)
	}
	if ip == "" {
		return "", apierror.New(apierror.CodeInternal, "no private interface address found")
	}
	return ip, nil
}

// LoadNode reads Node from the process environment, every field prefixed
// "AUTHLY_" (e.g. AUTHLY_DB_PATH, AUTHLY_ROTATION_PERIOD).
func LoadNode() (Node, error) {
	var n Node
	if err := envconfig.Process("authly", &n); err != nil {
		return Node{}, apierror.Wrap(apierror.CodeInternal, "load node configuration", err)
	}
	return n, nil
}
