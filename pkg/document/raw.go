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

// Package document compiles a TOML document (spec.md §4.6) into the SQL
// statements that replace a directory's previous snapshot, grounded on
// original_source/crates/authly-domain/src/document.rs's nested
// [[service.entityprop]]/[[service.resourceprop]] shape, extended with the
// top-level property/policy/policy_binding sections SPEC_FULL.md's
// "properties, attributes, policies, policy-bindings" input list adds.
package document

import (
	"github.com/BurntSushi/toml"

	"github.com/authly-sh/authly/pkg/apierror"
)

// rawDocument is the TOML tree a document file decodes to, before any
// label is resolved to an id.
type rawDocument struct {
	Document      rawMeta            `toml:"authly-document"`
	Property      []rawProperty      `toml:"property"`
	Persona       []rawPersona       `toml:"persona"`
	Group         []rawGroup         `toml:"group"`
	Domain        []rawDomain        `toml:"domain"`
	Service       []rawService       `toml:"service"`
	Policy        []rawPolicy        `toml:"policy"`
	PolicyBinding []rawPolicyBinding `toml:"policy_binding"`
}

type rawMeta struct {
	ID string `toml:"id"`
}

// rawProperty is one property-and-its-attribute-values declaration, used
// both at document top level (a domain-wide property) and nested under a
// service (an entity or resource property scoped to that service).
type rawProperty struct {
	Label string   `toml:"label"`
	Kind  string   `toml:"kind"` // "entity" or "resource"; ignored for nested entityprop/resourceprop
	Tags  []string `toml:"tags"`
}

type rawPersona struct {
	Ref      string   `toml:"ref"`
	Name     string   `toml:"name"`
	Username string   `toml:"username"`
	Email    string   `toml:"email"`
	Password string   `toml:"password"`
	Attrs    []string `toml:"attrs"`
}

type rawGroup struct {
	Ref   string   `toml:"ref"`
	Name  string   `toml:"name"`
	Attrs []string `toml:"attrs"`
}

type rawDomain struct {
	Ref  string `toml:"ref"`
	Name string `toml:"name"`
}

type rawK8sAccount struct {
	Namespace   string `toml:"namespace"`
	AccountName string `toml:"account_name"`
}

type rawService struct {
	Ref          string           `toml:"ref"`
	Name         string           `toml:"name"`
	Hosts        []string         `toml:"hosts"`
	Kubernetes   []rawK8sAccount  `toml:"kubernetes_account"`
	EntityProp   []rawProperty    `toml:"entityprop"`
	ResourceProp []rawProperty    `toml:"resourceprop"`
	Attrs        []string         `toml:"attrs"`
}

type rawPolicy struct {
	Ref   string `toml:"ref"`
	Label string `toml:"label"`
	Allow string `toml:"allow"`
}

type rawPolicyBinding struct {
	Attrs    []string `toml:"attrs"`
	Policies []string `toml:"policies"`
}

// parse decodes source as a TOML document, rejecting unknown keys so a
// typo in a document file surfaces immediately rather than being silently
// ignored.
func parse(source string) (*rawDocument, error) {
	var doc rawDocument
	meta, err := toml.Decode(source, &doc)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInvalidDocument, "parse document toml", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, apierror.New(apierror.CodeInvalidDocument, "document has unrecognized keys: "+undecoded[0].String())
	}
	return &doc, nil
}
