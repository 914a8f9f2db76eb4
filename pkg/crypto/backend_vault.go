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
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/go-rootcerts"
	"github.com/hashicorp/go-secure-stdlib/parseutil"

	"github.com/authly-sh/authly/pkg/apierror"
)

// VaultConfig configures the Vault/OpenBao-compatible secret backend.
// OpenBao is API-compatible with Vault's KV v2 engine, so a single client
// implementation serves both; the logical selector in configuration is the
// Address/Mount pair.
type VaultConfig struct {
	Address   string
	Token     string
	Mount     string // KV v2 mount point, e.g. "secret"
	CACert    string
	TLSServer string
	Timeout   string // parsed with go-secure-stdlib/parseutil, e.g. "30s"
}

// VaultBackend is the Vault/OpenBao secret backend variant.
type VaultBackend struct {
	client *vaultapi.Client
	mount  string
}

// NewVaultBackend constructs a Backend talking to a Vault or OpenBao
// server. The HTTP transport is built the way the teacher's own dependency
// set (go-rootcerts, go-cleanhttp, go-retryablehttp) intends: a clean base
// transport, an overridable root CA pool, wrapped in retry-with-backoff.
func NewVaultBackend(cfg VaultConfig) (*VaultBackend, error) {
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		d, err := parseutil.ParseDurationSecond(cfg.Timeout)
		if err != nil {
			return nil, apierror.Wrap(apierror.CodeInternal, "parse vault timeout", err)
		}
		timeout = d
	}

	transport := cleanhttp.DefaultPooledTransport()
	if cfg.CACert != "" {
		if err := rootcerts.ConfigureTLS(transport.TLSClientConfig, &rootcerts.Config{
			CAFile: cfg.CACert,
		}); err != nil {
			return nil, apierror.Wrap(apierror.CodeInternal, "configure vault root certs", err)
		}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: transport, Timeout: timeout}
	retryClient.RetryMax = 3

	vcfg := vaultapi.DefaultConfig()
	vcfg.Address = cfg.Address
	vcfg.HttpClient = retryClient.StandardClient()

	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, "new vault client", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultBackend{client: client, mount: mount}, nil
}

func (b *VaultBackend) path(name, version string) string {
	return fmt.Sprintf("%s/data/authly/%s/%s", b.mount, name, version)
}

func (b *VaultBackend) GenVersioned(ctx context.Context, name string) (Secret, error) {
	secret, err := NewLocalBackend().GenVersioned(ctx, name)
	if err != nil {
		return Secret{}, err
	}
	if err := b.store(ctx, name, secret); err != nil {
		return Secret{}, err
	}
	return secret, nil
}

func (b *VaultBackend) store(ctx context.Context, name string, secret Secret) error {
	_, err := b.client.Logical().WriteWithContext(ctx, b.path(name, secret.Version), map[string]any{
		"data": map[string]any{
			"value": base64.StdEncoding.EncodeToString(secret.Value[:]),
		},
	})
	if err != nil {
		return apierror.Wrap(apierror.CodeInternal, "write vault secret", err)
	}
	return nil
}

func (b *VaultBackend) GetVersioned(ctx context.Context, name, version string) (Secret, error) {
	resp, err := b.client.Logical().ReadWithContext(ctx, b.path(name, version))
	if err != nil {
		return Secret{}, apierror.Wrap(apierror.CodeInternal, "read vault secret", err)
	}
	if resp == nil || resp.Data == nil {
		return Secret{}, apierror.New(apierror.CodeMissingSecret, fmt.Sprintf("vault: no secret %q version %q", name, version))
	}
	data, _ := resp.Data["data"].(map[string]any)
	encoded, _ := data["value"].(string)
	if encoded == "" {
		return Secret{}, apierror.New(apierror.CodeMissingSecret, "vault: secret payload missing value field")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != 32 {
		return Secret{}, apierror.New(apierror.CodeBadNonce, "vault: secret payload is not a 32-byte key")
	}
	var v [32]byte
	copy(v[:], raw)
	return Secret{Version: version, Value: v}, nil
}
