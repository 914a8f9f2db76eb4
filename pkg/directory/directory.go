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

// Kind discriminates what a directory's contents are sourced from.
type Kind string

const (
	KindDocument Kind = "document"
	KindPersona  Kind = "persona"
)

// DirKey is the local (per-node) integer alias for a DirID, used as the
// foreign key every directory-scoped table hangs off, cheaper to index and
// join than the 128-bit id itself.
type DirKey int64

// Directory is one container of objects sharing a lifecycle and a source of
// truth: a compiled document, or a persona directory such as OAuth.
type Directory struct {
	Key   DirKey
	DirID id.ID
	Kind  Kind
	Label string
}

// Create inserts a new directory row, failing if dirID is already in use.
func Create(ctx context.Context, store db.DB, dirID id.ID, kind Kind, label string) (DirKey, error) {
	n, err := store.Execute(ctx,
		`INSERT INTO directory (dir_id, kind, label) VALUES (?, ?, ?)`,
		db.IDParam(dirID), db.TextParam(string(kind)), db.TextParam(label))
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, apierror.New(apierror.CodeInternal, "directory insert affected no rows")
	}
	return dirKeyOf(ctx, store, dirID)
}

func dirKeyOf(ctx context.Context, store db.DB, dirID id.ID) (DirKey, error) {
	rows, err := store.Query(ctx, `SELECT dir_key FROM directory WHERE dir_id = ?`, db.IDParam(dirID))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, apierror.New(apierror.CodeNotFound, "directory not found after insert")
	}
	k, err := rows[0].Int("dir_key")
	if err != nil {
		return 0, err
	}
	return DirKey(k), nil
}

// QueryKey resolves a DirID to its local DirKey.
func QueryKey(ctx context.Context, store db.DB, dirID id.ID) (DirKey, error) {
	return dirKeyOf(ctx, store, dirID)
}

// Get fetches a directory by its 128-bit id.
func Get(ctx context.Context, store db.DB, dirID id.ID) (Directory, error) {
	rows, err := store.Query(ctx,
		`SELECT dir_key, kind, label FROM directory WHERE dir_id = ?`, db.IDParam(dirID))
	if err != nil {
		return Directory{}, err
	}
	if len(rows) == 0 {
		return Directory{}, apierror.New(apierror.CodeNotFound, "no such directory")
	}
	return rowToDirectory(rows[0], dirID)
}

// ListByKind lists every directory of the given kind, e.g. every persona
// directory for bootstrapping foreign-identity links at startup.
func ListByKind(ctx context.Context, store db.DB, kind Kind) ([]Directory, error) {
	rows, err := store.Query(ctx,
		`SELECT dir_key, dir_id, label FROM directory WHERE kind = ?`, db.TextParam(string(kind)))
	if err != nil {
		return nil, err
	}
	out := make([]Directory, 0, len(rows))
	for _, row := range rows {
		blob, err := row.Blob("dir_id")
		if err != nil {
			return nil, err
		}
		dirID, err := db.DecodeIDBlob(id.KindDirectory, blob)
		if err != nil {
			return nil, err
		}
		dir, err := rowToDirectory(row, dirID)
		if err != nil {
			return nil, err
		}
		out = append(out, dir)
	}
	return out, nil
}

func rowToDirectory(row db.Row, dirID id.ID) (Directory, error) {
	key, err := row.Int("dir_key")
	if err != nil {
		return Directory{}, err
	}
	kind, err := row.Text("kind")
	if err != nil {
		return Directory{}, err
	}
	label, err := row.Text("label")
	if err != nil {
		return Directory{}, err
	}
	return Directory{Key: DirKey(key), DirID: dirID, Kind: Kind(kind), Label: label}, nil
}

// Replace atomically supersedes everything a document directory owns: the
// previous snapshot for dirID is fully replaced by the statements in stmts,
// or (on any failure) left unchanged. This is the Go expression of spec.md
// §3's "a document directory's contents are replaced atomically" invariant;
// pkg/document builds stmts (delete-then-insert, in FK order) and calls
// this to commit them as one transaction.
func Replace(ctx context.Context, store db.DB, stmts []db.Statement) error {
	results, err := store.Transact(ctx, stmts)
	if err != nil {
		return apierror.Wrap(apierror.CodeInvalidDocument, "document replace transaction failed", err)
	}
	for _, r := range results {
		if r.Err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "statement failed", r.Err)
		}
	}
	return nil
}
