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

// Package engine implements the policy engine described by spec.md §4.5:
// an in-memory index of policy-trigger bindings and a stack-machine
// evaluator for pkg/policy/code bytecode, producing an access-control
// Outcome for a given (subject, resource) pair.
package engine

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"
)

// Outcome is the result of evaluating a policy, or the engine as a whole.
type Outcome int

const (
	Deny Outcome = iota
	Allow
	Error
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "Allow"
	case Error:
		return "Error"
	default:
		return "Deny"
	}
}

func (o Outcome) opposite() Outcome {
	if o == Allow {
		return Deny
	}
	return Allow
}

// Policy is one compiled, loaded policy: its bytecode plus the outcome a
// true result maps to.
type Policy struct {
	ID      id.ID
	Program []code.Instr
	Outcome Outcome // Allow or Deny only; a false evaluation maps to opposite(Outcome)
}

// Trigger is spec.md §3's "(attribute_set, policy_set)": when
// AttrMatchSet is a subset of the evaluated resource attributes, every
// policy in PolicyIDs is triggered.
type Trigger struct {
	AttrMatchSet []id.ID
	PolicyIDs    []id.ID
}

// Engine holds the policies and triggers scoped to one directory, rebuilt
// by Build whenever the cluster bus delivers a DirectoryChanged message
// for that directory.
type Engine struct {
	policies map[id.ID]Policy
	triggers []Trigger
}

// New builds an Engine from loaded policies and triggers.
func New(policies []Policy, triggers []Trigger) *Engine {
	e := &Engine{policies: make(map[id.ID]Policy, len(policies)), triggers: triggers}
	for _, p := range policies {
		e.policies[p.ID] = p
	}
	return e
}

// AccessControlParams is the evaluator's input (spec.md §4.5).
type AccessControlParams struct {
	SubjectEID    *id.ID
	ResourceEID   *id.ID
	SubjectAttrs  []id.ID
	ResourceAttrs []id.ID
}

// containsAll reports whether every id in needles is present in haystack,
// via k8s.io/apimachinery's generic set type rather than a hand-rolled
// nested loop -- used both for the trigger subset test and for the
// bytecode's IdSetContains opcode.
func containsAll(haystack, needles []id.ID) bool {
	return sets.New(needles...).Difference(sets.New(haystack...)).Len() == 0
}

// Evaluate runs the algorithm in spec.md §4.5:
//  1. compute triggered policies: union over triggers whose attribute
//     match set is a subset of the resource attributes;
//  2. if none triggered, Deny;
//  3. evaluate each triggered policy's bytecode and interpret it through
//     the policy's outcome;
//  4. combine verdicts: Deny wins over Allow, and the absence of an
//     explicit Allow is Deny;
//  5. a bytecode type fault at any point yields Error for the whole
//     evaluation.
//
// Ordering of triggered policies never affects the result.
func (e *Engine) Evaluate(params AccessControlParams) Outcome {
	triggered := e.triggeredPolicyIDs(params.ResourceAttrs)
	if len(triggered) == 0 {
		return Deny
	}

	sawAllow := false
	for _, pid := range triggered {
		pol, ok := e.policies[pid]
		if !ok {
			return Error
		}
		result, err := evalProgram(pol.Program, params)
		if err != nil {
			return Error
		}
		verdict := pol.Outcome
		if !result {
			verdict = pol.Outcome.opposite()
		}
		switch verdict {
		case Deny:
			return Deny
		case Allow:
			sawAllow = true
		}
	}
	if sawAllow {
		return Allow
	}
	return Deny
}

func (e *Engine) triggeredPolicyIDs(resourceAttrs []id.ID) []id.ID {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	for _, trig := range e.triggers {
		if !containsAll(resourceAttrs, trig.AttrMatchSet) {
			continue
		}
		for _, pid := range trig.PolicyIDs {
			if _, ok := seen[pid]; ok {
				continue
			}
			seen[pid] = struct{}{}
			out = append(out, pid)
		}
	}
	return out
}

// errBytecode is returned by evalProgram on stack underflow or a type
// mismatch; the caller maps it to Outcome::Error without exposing detail.
var errBytecode = apierror.New(apierror.CodeInternal, "policy bytecode fault")
