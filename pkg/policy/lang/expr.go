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

// Package lang implements the policy language described by spec.md §4.4:
// a hand-written parser, a namespace-resolution pass that turns labels
// into concrete ids, and a compiler from the resolved expression tree to
// pkg/policy/code bytecode. Only the bytecode is persisted (as a policy
// row's expression); the resolved Expr is not serialized or stored.
package lang

import "github.com/authly-sh/authly/pkg/id"

// Expr is a policy expression after label resolution. The concrete types
// are EqualsExpr, ContainsExpr, AndExpr, OrExpr and NotExpr.
type Expr interface{ isExpr() }

// EqualsExpr is `term == term`: entity-to-entity or field-to-entity.
type EqualsExpr struct{ LHS, RHS Term }

func (EqualsExpr) isExpr() {}

// ContainsExpr is `term contains term`: Set must be a Subject/Resource
// field term and Value an attribute term of the same property.
type ContainsExpr struct{ Set, Value Term }

func (ContainsExpr) isExpr() {}

// AndExpr is the conjunction of two expressions.
type AndExpr struct{ LHS, RHS Expr }

func (AndExpr) isExpr() {}

// OrExpr is the disjunction of two expressions.
type OrExpr struct{ LHS, RHS Expr }

func (OrExpr) isExpr() {}

// NotExpr negates an expression.
type NotExpr struct{ Inner Expr }

func (NotExpr) isExpr() {}

// Term is a resolved policy term. The concrete types are EntityTerm,
// SubjectFieldTerm, ResourceFieldTerm and AttrTerm.
type Term interface{ isTerm() }

// EntityTerm is a direct reference to a persona, service or group.
type EntityTerm struct{ ID id.ID }

func (EntityTerm) isTerm() {}

// SubjectFieldTerm is `Subject.<label>`, a property on the subject.
type SubjectFieldTerm struct{ PropID id.ID }

func (SubjectFieldTerm) isTerm() {}

// ResourceFieldTerm is `Resource.<label>`, a property on the resource.
type ResourceFieldTerm struct{ PropID id.ID }

func (ResourceFieldTerm) isTerm() {}

// AttrTerm is `<property-label>/<attribute-label>`, a specific attribute
// value belonging to PropID.
type AttrTerm struct{ PropID, AttrID id.ID }

func (AttrTerm) isTerm() {}

// Resolve parses src and resolves every label in it against ns, producing
// the typed expression tree pkg/policy/lang.Compile turns into the
// bytecode the document compiler stores.
func Resolve(src string, ns *Namespace) (Expr, error) {
	raw, err := parsePolicy(src)
	if err != nil {
		return nil, err
	}
	return resolveExpr(raw, ns)
}

func resolveExpr(raw rawExpr, ns *Namespace) (Expr, error) {
	switch e := raw.(type) {
	case *rawRelation:
		lhs, err := resolveTerm(e.lhs, ns)
		if err != nil {
			return nil, err
		}
		rhs, err := resolveTerm(e.rhs, ns)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case RelEquals:
			if !equalityAdmits(lhs, rhs) {
				return nil, &TypeMismatchError{Msg: "== admits only entity-to-entity or field-to-entity comparisons", span: e.sp}
			}
			return EqualsExpr{LHS: lhs, RHS: rhs}, nil
		default: // RelContains
			field, attr, ok := containsAdmits(lhs, rhs)
			if !ok {
				return nil, &TypeMismatchError{Msg: "contains requires a property field on the left and an attribute value of the same property on the right", span: e.sp}
			}
			return ContainsExpr{Set: field, Value: attr}, nil
		}
	case *rawAnd:
		lhs, err := resolveExpr(e.lhs, ns)
		if err != nil {
			return nil, err
		}
		rhs, err := resolveExpr(e.rhs, ns)
		if err != nil {
			return nil, err
		}
		return AndExpr{LHS: lhs, RHS: rhs}, nil
	case *rawOr:
		lhs, err := resolveExpr(e.lhs, ns)
		if err != nil {
			return nil, err
		}
		rhs, err := resolveExpr(e.rhs, ns)
		if err != nil {
			return nil, err
		}
		return OrExpr{LHS: lhs, RHS: rhs}, nil
	case *rawNot:
		inner, err := resolveExpr(e.inner, ns)
		if err != nil {
			return nil, err
		}
		return NotExpr{Inner: inner}, nil
	default:
		return nil, &ParseError{Msg: "unrecognized expression node"}
	}
}

func resolveTerm(raw rawTerm, ns *Namespace) (Term, error) {
	switch raw.kind {
	case termField:
		entry, ok := ns.Lookup(raw.label)
		if !ok {
			return nil, &UnknownLabelError{Label: raw.label, span: raw.span}
		}
		if entry.Kind != EntryProperty {
			return nil, &TypeMismatchError{Msg: raw.label + " is not a property", span: raw.span}
		}
		if raw.global == GlobalSubject {
			return SubjectFieldTerm{PropID: entry.PropID}, nil
		}
		return ResourceFieldTerm{PropID: entry.PropID}, nil

	case termAttr:
		propEntry, ok := ns.Lookup(raw.label)
		if !ok {
			return nil, &UnknownLabelError{Label: raw.label, span: raw.span}
		}
		if propEntry.Kind != EntryProperty {
			return nil, &TypeMismatchError{Msg: raw.label + " is not a property", span: raw.span}
		}
		attrKey := raw.label + "/" + raw.subLabel
		attrEntry, ok := ns.Lookup(attrKey)
		if !ok {
			return nil, &UnknownAttributeError{Prop: raw.label, Attr: raw.subLabel, span: raw.span}
		}
		if attrEntry.Kind != EntryAttribute || !attrEntry.PropID.Equal(propEntry.PropID) {
			return nil, &TypeMismatchError{Msg: raw.subLabel + " does not belong to property " + raw.label, span: raw.span}
		}
		return AttrTerm{PropID: propEntry.PropID, AttrID: attrEntry.AttrID}, nil

	default: // termEntity
		entry, ok := ns.Lookup(raw.label)
		if !ok {
			return nil, &UnknownLabelError{Label: raw.label, span: raw.span}
		}
		if entry.Kind != EntryEntity {
			return nil, &TypeMismatchError{Msg: raw.label + " is not an entity", span: raw.span}
		}
		return EntityTerm{ID: entry.EntityID}, nil
	}
}

// equalityAdmits reports whether lhs == rhs is a legal comparison:
// entity-to-entity or field-to-entity (in either order).
func equalityAdmits(lhs, rhs Term) bool {
	isEntity := func(t Term) bool { _, ok := t.(EntityTerm); return ok }
	isField := func(t Term) bool {
		switch t.(type) {
		case SubjectFieldTerm, ResourceFieldTerm:
			return true
		default:
			return false
		}
	}
	return (isEntity(lhs) && isEntity(rhs)) ||
		(isEntity(lhs) && isField(rhs)) ||
		(isField(lhs) && isEntity(rhs))
}

// containsAdmits reports whether lhs contains rhs is legal: lhs a
// Subject/Resource field and rhs an attribute of the same property,
// returning the two terms in (field, attr) order.
func containsAdmits(lhs, rhs Term) (field, attr Term, ok bool) {
	var fieldProp id.ID
	switch t := lhs.(type) {
	case SubjectFieldTerm:
		fieldProp = t.PropID
	case ResourceFieldTerm:
		fieldProp = t.PropID
	default:
		return nil, nil, false
	}
	a, isAttr := rhs.(AttrTerm)
	if !isAttr || !a.PropID.Equal(fieldProp) {
		return nil, nil, false
	}
	return lhs, rhs, true
}
