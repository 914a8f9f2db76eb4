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

import (
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"
)

// Compile lowers a resolved Expr to the stack bytecode pkg/policy/engine
// evaluates (spec.md §4.4's codegen target), terminated by an explicit
// Return.
func Compile(expr Expr) []code.Instr {
	var ops []code.Instr
	emitExpr(&ops, expr)
	ops = append(ops, code.Instr{Op: code.OpReturn})
	return ops
}

func emitExpr(ops *[]code.Instr, expr Expr) {
	switch e := expr.(type) {
	case EqualsExpr:
		emitTerm(ops, e.LHS)
		emitTerm(ops, e.RHS)
		*ops = append(*ops, code.Instr{Op: code.OpIsEq})
	case ContainsExpr:
		emitTerm(ops, e.Set)
		emitTerm(ops, e.Value)
		*ops = append(*ops, code.Instr{Op: code.OpIdSetContains})
	case AndExpr:
		emitExpr(ops, e.LHS)
		emitExpr(ops, e.RHS)
		*ops = append(*ops, code.Instr{Op: code.OpAnd})
	case OrExpr:
		emitExpr(ops, e.LHS)
		emitExpr(ops, e.RHS)
		*ops = append(*ops, code.Instr{Op: code.OpOr})
	case NotExpr:
		emitExpr(ops, e.Inner)
		*ops = append(*ops, code.Instr{Op: code.OpNot})
	}
}

func emitTerm(ops *[]code.Instr, term Term) {
	switch t := term.(type) {
	case EntityTerm:
		*ops = append(*ops, code.Instr{Op: code.OpLoadConstEntityID, Operand: t.ID})
	case SubjectFieldTerm:
		if t.PropID.Equal(id.PropEntity.ID()) {
			*ops = append(*ops, code.Instr{Op: code.OpLoadSubjectID, Operand: t.PropID})
		} else {
			*ops = append(*ops, code.Instr{Op: code.OpLoadSubjectAttrs})
		}
	case ResourceFieldTerm:
		if t.PropID.Equal(id.PropEntity.ID()) {
			*ops = append(*ops, code.Instr{Op: code.OpLoadResourceID, Operand: t.PropID})
		} else {
			*ops = append(*ops, code.Instr{Op: code.OpLoadResourceAttrs})
		}
	case AttrTerm:
		*ops = append(*ops, code.Instr{Op: code.OpLoadConstAttrID, Operand: t.AttrID})
	}
}
