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

// Global names one of the two fixed objects a field term may project from.
type Global int

const (
	GlobalSubject Global = iota
	GlobalResource
)

func (g Global) String() string {
	if g == GlobalResource {
		return "Resource"
	}
	return "Subject"
}

// RelOp is a relational operator between two terms.
type RelOp int

const (
	RelEquals RelOp = iota
	RelContains
)

// termKind discriminates the three surface forms spec.md §4.4's grammar
// allows for `term`.
type termKind int

const (
	termEntity termKind = iota // bare label: a direct entity/service reference
	termField                  // global "." label
	termAttr                   // label "/" label: a property/attribute reference
)

// rawTerm is a term as the parser produced it, before namespace resolution.
type rawTerm struct {
	kind     termKind
	global   Global
	label    string
	subLabel string
	span     Span
}

// rawExpr is the unresolved expression tree the parser produces; Resolve
// turns it into an Expr against a Namespace.
type rawExpr interface {
	span() Span
}

type rawRelation struct {
	op       RelOp
	lhs, rhs rawTerm
	sp       Span
}

func (r *rawRelation) span() Span { return r.sp }

type rawAnd struct {
	lhs, rhs rawExpr
	sp       Span
}

func (r *rawAnd) span() Span { return r.sp }

type rawOr struct {
	lhs, rhs rawExpr
	sp       Span
}

func (r *rawOr) span() Span { return r.sp }

type rawNot struct {
	inner rawExpr
	sp    Span
}

func (r *rawNot) span() Span { return r.sp }
