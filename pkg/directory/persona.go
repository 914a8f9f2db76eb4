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

// Persona is a human user, either defined directly in a document directory
// or linked from a foreign persona directory (see foreign.go).
type Persona struct {
	EID   id.ID
	Label string
}

// CreatePersona inserts a persona row directly owned by a document
// directory (as opposed to one linked in from a foreign directory).
func CreatePersona(ctx context.Context, store db.DB, dirKey DirKey, eid id.ID, label string) error {
	_, err := store.Execute(ctx,
		`INSERT INTO persona (eid, dir_key, label) VALUES (?, ?, ?)`,
		db.IDParam(eid), db.IntParam(int64(dirKey)), db.TextParam(label))
	return err
}

// GetPersona fetches a persona by its entity id.
func GetPersona(ctx context.Context, store db.DB, eid id.ID) (Persona, error) {
	rows, err := store.Query(ctx, `SELECT label FROM persona WHERE eid = ?`, db.IDParam(eid))
	if err != nil {
		return Persona{}, err
	}
	if len(rows) == 0 {
		return Persona{}, apierror.New(apierror.CodeNotFound, "no such persona")
	}
	label, err := rows[0].Text("label")
	if err != nil {
		return Persona{}, err
	}
	return Persona{EID: eid, Label: label}, nil
}
