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

	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/id"
)

// PropertyKind distinguishes a property that tags subjects (entities) from
// one that tags resources, matching original_source's ServicePropertyKind.
type PropertyKind string

const (
	PropertyEntity   PropertyKind = "entity"
	PropertyResource PropertyKind = "resource"
)

// Property names a dimension subjects or resources can carry attributes on.
type Property struct {
	ID          id.ID
	NamespaceID id.ID
	Kind        PropertyKind
	Label       string
}

// Attribute is one value in a property's domain.
type Attribute struct {
	ID     id.ID
	PropID id.ID
	Label  string
}

// CreateProperty inserts a property row.
func CreateProperty(ctx context.Context, store db.DB, propID, namespaceID id.ID, kind PropertyKind, label string) error {
	_, err := store.Execute(ctx,
		`INSERT INTO property (id, namespace_id, kind, label) VALUES (?, ?, ?, ?)`,
		db.IDParam(propID), db.IDParam(namespaceID), db.TextParam(string(kind)), db.TextParam(label))
	return err
}

// CreateAttribute inserts an attribute row under an existing property.
func CreateAttribute(ctx context.Context, store db.DB, attrID, propID id.ID, label string) error {
	_, err := store.Execute(ctx,
		`INSERT INTO attribute (id, prop_id, label) VALUES (?, ?, ?)`,
		db.IDParam(attrID), db.IDParam(propID), db.TextParam(label))
	return err
}

// ListNamespaceProperties lists every property (and its attributes) scoped
// to a namespace and kind. pkg/document and pkg/policy/lang resolve labels
// through an in-memory lang.Namespace and do not call it. Grounded
// on original_source/src/db/directory_db.rs:list_domain_properties.
func ListNamespaceProperties(ctx context.Context, store db.DB, namespaceID id.ID, kind PropertyKind) ([]Property, error) {
	rows, err := store.Query(ctx,
		`SELECT id, label FROM property WHERE namespace_id = ? AND kind = ?`,
		db.IDParam(namespaceID), db.TextParam(string(kind)))
	if err != nil {
		return nil, err
	}
	out := make([]Property, 0, len(rows))
	for _, row := range rows {
		blob, err := row.Blob("id")
		if err != nil {
			return nil, err
		}
		propID, err := db.DecodeIDBlob(id.KindProperty, blob)
		if err != nil {
			return nil, err
		}
		label, err := row.Text("label")
		if err != nil {
			return nil, err
		}
		out = append(out, Property{ID: propID, NamespaceID: namespaceID, Kind: kind, Label: label})
	}
	return out, nil
}

// ListPropertyAttributes lists every attribute belonging to a property.
func ListPropertyAttributes(ctx context.Context, store db.DB, propID id.ID) ([]Attribute, error) {
	rows, err := store.Query(ctx, `SELECT id, label FROM attribute WHERE prop_id = ?`, db.IDParam(propID))
	if err != nil {
		return nil, err
	}
	out := make([]Attribute, 0, len(rows))
	for _, row := range rows {
		blob, err := row.Blob("id")
		if err != nil {
			return nil, err
		}
		attrID, err := db.DecodeIDBlob(id.KindAttribute, blob)
		if err != nil {
			return nil, err
		}
		label, err := row.Text("label")
		if err != nil {
			return nil, err
		}
		out = append(out, Attribute{ID: attrID, PropID: propID, Label: label})
	}
	return out, nil
}

// LookupAttrLabel resolves an attribute id back to its document-facing
// label, the reverse of the compiler's label-to-id resolution; used by
// operational introspection (authlyctl whoami) to render a readable
// attribute set rather than bare ids.
func LookupAttrLabel(ctx context.Context, store db.DB, attrID id.ID) (string, error) {
	rows, err := store.Query(ctx, `SELECT label FROM attribute WHERE id = ?`, db.IDParam(attrID))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Text("label")
}

// AssignEntityAttr tags an entity with an attribute.
func AssignEntityAttr(ctx context.Context, store db.DB, eid, attrID id.ID) error {
	_, err := store.Execute(ctx,
		`INSERT INTO ent_attr (eid, attr_id) VALUES (?, ?) ON CONFLICT (eid, attr_id) DO NOTHING`,
		db.IDParam(eid), db.IDParam(attrID))
	return err
}

// ListEntityAttrs lists every attribute tagged on an entity, the query the
// access-control engine uses to load a subject's or a policy-evaluation
// resource's attribute set. Grounded on
// original_source/crates/authly/src/db/entity_db.rs:list_entity_attrs.
func ListEntityAttrs(ctx context.Context, store db.DB, eid id.ID) ([]id.ID, error) {
	rows, err := store.Query(ctx, `SELECT attr_id FROM ent_attr WHERE eid = ?`, db.IDParam(eid))
	if err != nil {
		return nil, err
	}
	out := make([]id.ID, 0, len(rows))
	for _, row := range rows {
		blob, err := row.Blob("attr_id")
		if err != nil {
			return nil, err
		}
		attrID, err := db.DecodeIDBlob(id.KindAttribute, blob)
		if err != nil {
			return nil, err
		}
		out = append(out, attrID)
	}
	return out, nil
}

// HasAttr reports whether eid carries attrID, a convenience wrapper around
// ListEntityAttrs used by the mTLS authorization guard.
func HasAttr(ctx context.Context, store db.DB, eid, attrID id.ID) (bool, error) {
	attrs, err := ListEntityAttrs(ctx, store, eid)
	if err != nil {
		return false, err
	}
	for _, a := range attrs {
		if a.Equal(attrID) {
			return true, nil
		}
	}
	return false, nil
}
