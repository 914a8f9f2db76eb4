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

// Package code defines the policy engine's stack bytecode (spec.md §4.4):
// the opcode set, its on-disk encoding, and the decoder the evaluator in
// pkg/policy/engine consumes. The policy compiler in pkg/policy/lang is the
// only producer; this package has no knowledge of the source language.
package code

import (
	"encoding/binary"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/id"
)

// Op is one bytecode opcode.
type Op uint8

const (
	// OpLoadSubjectID pushes the subject entity id for the given property
	// (in practice always the built-in "entity" property: subject_eid).
	OpLoadSubjectID Op = iota
	// OpLoadResourceID pushes the resource entity id for the given property.
	OpLoadResourceID
	// OpLoadSubjectAttrs pushes the set of the subject's attribute ids.
	OpLoadSubjectAttrs
	// OpLoadResourceAttrs pushes the set of the evaluated resource's
	// attribute ids.
	OpLoadResourceAttrs
	// OpLoadConstEntityID pushes a literal entity id baked in at compile
	// time.
	OpLoadConstEntityID
	// OpLoadConstAttrID pushes a literal attribute id baked in at compile
	// time.
	OpLoadConstAttrID
	// OpIsEq pops two id values and pushes their equality.
	OpIsEq
	// OpIdSetContains pops an id then a set and pushes whether the set
	// contains the id.
	OpIdSetContains
	// OpAnd pops two booleans and pushes their conjunction.
	OpAnd
	// OpOr pops two booleans and pushes their disjunction.
	OpOr
	// OpNot pops one boolean and pushes its negation.
	OpNot
	// OpReturn pops the final boolean: the policy's result.
	OpReturn
	// OpTrueThenAllow, OpTrueThenDeny, OpFalseThenAllow, OpFalseThenDeny are
	// reserved for a future lazy-evaluation codegen form; no current
	// compiler emits them and the evaluator treats them as a type fault.
	OpTrueThenAllow
	OpTrueThenDeny
	OpFalseThenAllow
	OpFalseThenDeny
)

// String names an opcode for diagnostics.
func (op Op) String() string {
	switch op {
	case OpLoadSubjectID:
		return "LoadSubjectId"
	case OpLoadResourceID:
		return "LoadResourceId"
	case OpLoadSubjectAttrs:
		return "LoadSubjectAttrs"
	case OpLoadResourceAttrs:
		return "LoadResourceAttrs"
	case OpLoadConstEntityID:
		return "LoadConstEntityId"
	case OpLoadConstAttrID:
		return "LoadConstAttrId"
	case OpIsEq:
		return "IsEq"
	case OpIdSetContains:
		return "IdSetContains"
	case OpAnd:
		return "And"
	case OpOr:
		return "Or"
	case OpNot:
		return "Not"
	case OpReturn:
		return "Return"
	case OpTrueThenAllow:
		return "TrueThenAllow"
	case OpTrueThenDeny:
		return "TrueThenDeny"
	case OpFalseThenAllow:
		return "FalseThenAllow"
	case OpFalseThenDeny:
		return "FalseThenDeny"
	default:
		return "Unknown"
	}
}

// hasOperand reports whether op carries a 128-bit id operand.
func (op Op) hasOperand() bool {
	switch op {
	case OpLoadSubjectID, OpLoadResourceID, OpLoadConstEntityID, OpLoadConstAttrID:
		return true
	default:
		return false
	}
}

// Instr is one decoded instruction: an opcode plus its operand, when it has
// one. Operand is the zero ID for opcodes that carry none.
type Instr struct {
	Op      Op
	Operand id.ID
}

// Encode serializes a program to its on-disk form: each instruction is one
// opcode byte, followed by a kind byte and two little-endian uvarints (the
// operand's raw value split into high and low 64-bit halves) for opcodes
// that carry an id operand.
func Encode(instrs []Instr) []byte {
	out := make([]byte, 0, len(instrs)*2)
	var scratch [binary.MaxVarintLen64]byte
	for _, in := range instrs {
		out = append(out, byte(in.Op))
		if !in.Op.hasOperand() {
			continue
		}
		out = append(out, byte(in.Operand.Kind))
		hi := binary.BigEndian.Uint64(in.Operand.Raw[:8])
		lo := binary.BigEndian.Uint64(in.Operand.Raw[8:])
		n := binary.PutUvarint(scratch[:], hi)
		out = append(out, scratch[:n]...)
		n = binary.PutUvarint(scratch[:], lo)
		out = append(out, scratch[:n]...)
	}
	return out
}

// Decode parses a program encoded by Encode, rejecting truncated or
// unrecognized bytecode with apierror.CodePolicyCompile.
func Decode(b []byte) ([]Instr, error) {
	var out []Instr
	pos := 0
	for pos < len(b) {
		op := Op(b[pos])
		pos++
		if op > OpFalseThenDeny {
			return nil, apierror.New(apierror.CodePolicyCompile, "unrecognized opcode in stored bytecode")
		}
		instr := Instr{Op: op}
		if op.hasOperand() {
			if pos >= len(b) {
				return nil, apierror.New(apierror.CodePolicyCompile, "truncated bytecode: missing operand kind")
			}
			kind := id.Kind(b[pos])
			pos++
			hi, n := binary.Uvarint(b[pos:])
			if n <= 0 {
				return nil, apierror.New(apierror.CodePolicyCompile, "truncated bytecode: bad operand high word")
			}
			pos += n
			lo, n := binary.Uvarint(b[pos:])
			if n <= 0 {
				return nil, apierror.New(apierror.CodePolicyCompile, "truncated bytecode: bad operand low word")
			}
			pos += n
			var raw id.Raw
			binary.BigEndian.PutUint64(raw[:8], hi)
			binary.BigEndian.PutUint64(raw[8:], lo)
			instr.Operand = id.ID{Kind: kind, Raw: raw}
		}
		out = append(out, instr)
	}
	return out, nil
}
