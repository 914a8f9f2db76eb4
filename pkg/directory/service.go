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

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// Service is a callable system principal: an entity that authenticates
// itself (mTLS or service-login) rather than a human logging in.
type Service struct {
	EID   id.ID
	Label string
	Hosts []string
}

// CreateService inserts a service row and its allowed hostnames.
func CreateService(ctx context.Context, store db.DB, dirKey DirKey, eid id.ID, label string, hosts []string) error {
	if _, err := store.Execute(ctx,
		`INSERT INTO svc (eid, dir_key, label) VALUES (?, ?, ?)`,
		db.IDParam(eid), db.IntParam(int64(dirKey)), db.TextParam(label)); err != nil {
		return err
	}
	for _, h := range hosts {
		if _, err := store.Execute(ctx,
			`INSERT INTO svc_host (eid, host) VALUES (?, ?)`, db.IDParam(eid), db.TextParam(h)); err != nil {
			return err
		}
	}
	return nil
}

// BindKubernetesAccount records the Kubernetes service-account a Service
// entity is allowed to authenticate as, grounded on
// original_source's bin/authly/src/k8s/k8s_platform.rs binding concept and
// SPEC_FULL.md §3's supplemented lookup.
func BindKubernetesAccount(ctx context.Context, store db.DB, eid id.ID, namespace, accountName string) error {
	_, err := store.Execute(ctx,
		`INSERT INTO svc_k8s_account (eid, namespace, account_name) VALUES (?, ?, ?)`,
		db.IDParam(eid), db.TextParam(namespace), db.TextParam(accountName))
	return err
}

// ResolveKubernetesAccount looks up the Service entity bound to a
// Kubernetes (namespace, service-account-name) pair, the lookup an
// in-cluster mTLS-less authentication path performs against a presented
// Kubernetes projected service-account token.
func ResolveKubernetesAccount(ctx context.Context, store db.DB, namespace, accountName string) (id.ID, error) {
	rows, err := store.Query(ctx,
		`SELECT eid FROM svc_k8s_account WHERE namespace = ? AND account_name = ?`,
		db.TextParam(namespace), db.TextParam(accountName))
	if err != nil {
		return id.ID{}, err
	}
	if len(rows) == 0 {
		return id.ID{}, apierror.New(apierror.CodeNotFound, "no service bound to that kubernetes account")
	}
	blob, err := rows[0].Blob("eid")
	if err != nil {
		return id.ID{}, err
	}
	return db.DecodeIDBlob(id.KindService, blob)
}

// ListHosts returns the allowed hostnames for a service entity, the
// original's get_service_hosts base list before any in-cluster suffix
// generation (that generation step belongs to the transport layer, which
// knows whether it is running in Kubernetes).
func ListHosts(ctx context.Context, store db.DB, eid id.ID) ([]string, error) {
	rows, err := store.Query(ctx, `SELECT host FROM svc_host WHERE eid = ?`, db.IDParam(eid))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		h, err := row.Text("host")
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// GetService fetches a service by its entity id.
func GetService(ctx context.Context, store db.DB, eid id.ID) (Service, error) {
	rows, err := store.Query(ctx, `SELECT label FROM svc WHERE eid = ?`, db.IDParam(eid))
	if err != nil {
		return Service{}, err
	}
	if len(rows) == 0 {
		return Service{}, apierror.New(apierror.CodeNotFound, "no such service")
	}
	label, err := rows[0].Text("label")
	if err != nil {
		return Service{}, err
	}
	hosts, err := ListHosts(ctx, store, eid)
	if err != nil {
		return Service{}, err
	}
	return Service{EID: eid, Label: label, Hosts: hosts}, nil
}
