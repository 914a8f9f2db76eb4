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

package engine

import (
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"
)

// stackValue is the stack machine's one runtime type: either a single id or
// a set of ids, or a boolean. The three never mix; an operator that gets
// the wrong shape is a type fault.
type stackValue struct {
	isBool bool
	isSet  bool
	b      bool
	single id.ID
	set    []id.ID
}

func boolValue(b bool) stackValue   { return stackValue{isBool: true, b: b} }
func idValue(v id.ID) stackValue    { return stackValue{single: v} }
func setValue(v []id.ID) stackValue { return stackValue{isSet: true, set: v} }

// evalProgram runs prog as a stack machine, returning the final boolean
// popped by Return. Any stack underflow or operand-type mismatch aborts
// evaluation with errBytecode (mapped to Outcome::Error by the caller).
func evalProgram(prog []code.Instr, params AccessControlParams) (bool, error) {
	var stack []stackValue

	push := func(v stackValue) { stack = append(stack, v) }
	pop := func() (stackValue, error) {
		if len(stack) == 0 {
			return stackValue{}, errBytecode
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}
	popID := func() (id.ID, error) {
		v, err := pop()
		if err != nil || v.isBool || v.isSet {
			return id.ID{}, errBytecode
		}
		return v.single, nil
	}
	popSet := func() ([]id.ID, error) {
		v, err := pop()
		if err != nil || v.isBool || !v.isSet {
			return nil, errBytecode
		}
		return v.set, nil
	}
	popBool := func() (bool, error) {
		v, err := pop()
		if err != nil || !v.isBool {
			return false, errBytecode
		}
		return v.b, nil
	}

	for _, in := range prog {
		switch in.Op {
		case code.OpLoadSubjectID:
			if params.SubjectEID == nil {
				return false, errBytecode
			}
			push(idValue(*params.SubjectEID))
		case code.OpLoadResourceID:
			if params.ResourceEID == nil {
				return false, errBytecode
			}
			push(idValue(*params.ResourceEID))
		case code.OpLoadSubjectAttrs:
			push(setValue(params.SubjectAttrs))
		case code.OpLoadResourceAttrs:
			push(setValue(params.ResourceAttrs))
		case code.OpLoadConstEntityID, code.OpLoadConstAttrID:
			push(idValue(in.Operand))
		case code.OpIsEq:
			rhs, err := popID()
			if err != nil {
				return false, err
			}
			lhs, err := popID()
			if err != nil {
				return false, err
			}
			push(boolValue(lhs.Equal(rhs)))
		case code.OpIdSetContains:
			needle, err := popID()
			if err != nil {
				return false, err
			}
			haystack, err := popSet()
			if err != nil {
				return false, err
			}
			push(boolValue(containsAll(haystack, []id.ID{needle})))
		case code.OpAnd:
			rhs, err := popBool()
			if err != nil {
				return false, err
			}
			lhs, err := popBool()
			if err != nil {
				return false, err
			}
			push(boolValue(lhs && rhs))
		case code.OpOr:
			rhs, err := popBool()
			if err != nil {
				return false, err
			}
			lhs, err := popBool()
			if err != nil {
				return false, err
			}
			push(boolValue(lhs || rhs))
		case code.OpNot:
			v, err := popBool()
			if err != nil {
				return false, err
			}
			push(boolValue(!v))
		case code.OpReturn:
			result, err := popBool()
			if err != nil {
				return false, err
			}
			if len(stack) != 0 {
				return false, errBytecode
			}
			return result, nil
		default:
			// TrueThenAllow/Deny, FalseThenAllow/Deny: reserved, no current
			// compiler emits them.
			return false, errBytecode
		}
	}
	return false, errBytecode
}
