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
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/lang"
)

// seedBuiltins registers every builtin property and attribute under its
// document-facing label, so a policy or attribute list may reference
// "authly:role/apply_document" without the document having to declare that
// property itself. Grounded on
// original_source/src/document/compiled_document.rs's
// find_attribute_by_label BuiltinProp::AuthlyRole fallback.
func seedBuiltins(ns *lang.Namespace) error {
	for _, p := range id.AllBuiltinProps() {
		if p.Label() == "" {
			continue
		}
		if err := ns.Define(p.Label(), lang.NamespaceEntry{Kind: lang.EntryProperty, PropID: p.ID()}); err != nil {
			return err
		}
	}
	for _, a := range id.AllBuiltinAttrs() {
		if err := ns.Define(a.Label(), lang.NamespaceEntry{Kind: lang.EntryAttribute, PropID: a.Prop().ID(), AttrID: a.ID()}); err != nil {
			return err
		}
	}
	return nil
}

// resolveAttrLabel resolves a "propLabel/attrLabel" reference (from a
// persona/service/group attrs list or a policy binding) to its attribute
// id, whether document-defined or builtin.
func resolveAttrLabel(ns *lang.Namespace, label string) (id.ID, error) {
	entry, ok := ns.Lookup(label)
	if !ok || entry.Kind != lang.EntryAttribute {
		return id.ID{}, &unknownAttrLabelError{label: label}
	}
	return entry.AttrID, nil
}
