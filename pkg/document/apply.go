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

package document

import (
	"context"
	"errors"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// Apply compiles source and atomically replaces dirID's previous snapshot
// with it (spec.md §3: "a document directory's contents are replaced
// atomically"). Unlike the skip-if-unchanged optimization in the system
// this was distilled from, Apply always recompiles and always replaces,
// even when ContentSum matches the previous application -- a reapplied,
// content-identical document still yields a fresh row set the caller
// should still broadcast as changed, rather than a cache hit the caller
// can't observe.
func Apply(ctx context.Context, store db.DB, deks *crypto.DecryptedDeks, dirID id.ID, source string) (*Compiled, error) {
	dirKey, err := resolveDirKey(ctx, store, dirID)
	if err != nil {
		return nil, err
	}

	compiled, err := Compile(ctx, dirID, dirKey, deks, source)
	if err != nil {
		return nil, err
	}

	stmts := append(deleteStatements(dirID, dirKey, compiled.GroupEIDs), compiled.InsertStatements...)
	if err := directory.Replace(ctx, store, stmts); err != nil {
		return nil, err
	}
	return compiled, nil
}

// resolveDirKey looks up dirID's local DirKey, creating a document
// directory row for it on first application.
func resolveDirKey(ctx context.Context, store db.DB, dirID id.ID) (directory.DirKey, error) {
	key, err := directory.QueryKey(ctx, store, dirID)
	if err == nil {
		return key, nil
	}
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierror.CodeNotFound {
		return 0, err
	}
	return directory.Create(ctx, store, dirID, directory.KindDocument, "")
}
