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

package lang

import "github.com/authly-sh/authly/pkg/id"

// EntryKind discriminates what a Namespace label resolves to.
type EntryKind int

const (
	// EntryProperty: the label names a property (used as a bare `Subject.`
	// or `Resource.` field, or as the left half of a `prop/attr` term).
	EntryProperty EntryKind = iota
	// EntryAttribute: the label names an attribute value of some property.
	EntryAttribute
	// EntryEntity: the label names a concrete persona, service or group.
	EntryEntity
)

// NamespaceEntry is what one label resolves to: spec.md §4.4's
// `{PropertyLabel(prop_id), Attribute(prop_id, attr_id), Entity(kind, id),
// Service(id)}`, with Service folded into EntryEntity since both are just
// an EntityId of a particular Kind.
type NamespaceEntry struct {
	Kind     EntryKind
	PropID   id.ID // set for EntryProperty and EntryAttribute
	AttrID   id.ID // set for EntryAttribute
	EntityID id.ID // set for EntryEntity
}

// Namespace maps a document's labels to what they mean, built by the
// document compiler (pkg/document) from a directory's properties,
// attributes, personas, services and groups before policies in that
// directory are resolved.
type Namespace struct {
	entries map[string]NamespaceEntry
}

// NewNamespace returns an empty Namespace.
func NewNamespace() *Namespace {
	return &Namespace{entries: make(map[string]NamespaceEntry)}
}

// Define registers label, rejecting a second registration of the same
// label with NameDefinedMultipleTimesError.
func (n *Namespace) Define(label string, entry NamespaceEntry) error {
	if _, exists := n.entries[label]; exists {
		return &NameDefinedMultipleTimesError{Label: label}
	}
	n.entries[label] = entry
	return nil
}

// Lookup resolves label, reporting whether it is defined.
func (n *Namespace) Lookup(label string) (NamespaceEntry, bool) {
	e, ok := n.entries[label]
	return e, ok
}
