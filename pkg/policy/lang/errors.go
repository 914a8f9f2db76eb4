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

import "fmt"

// Span is a byte-range into the policy source, carried by every compile
// error so a caller can underline the offending text.
type Span struct {
	Start, End int
}

// CompileError is the common interface of every error this package
// produces: a message plus the source span it refers to.
type CompileError interface {
	error
	Span() Span
}

// ParseError reports malformed policy source.
type ParseError struct {
	Msg  string
	span Span
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %s", e.Msg) }
func (e *ParseError) Span() Span    { return e.span }

// UnknownLabelError reports a label with no entry in the namespace.
type UnknownLabelError struct {
	Label string
	span  Span
}

func (e *UnknownLabelError) Error() string { return fmt.Sprintf("unknown label %q", e.Label) }
func (e *UnknownLabelError) Span() Span    { return e.span }

// UnknownAttributeError reports a property/attribute reference whose
// attribute half does not exist under that property.
type UnknownAttributeError struct {
	Prop, Attr string
	span       Span
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute %q under property %q", e.Attr, e.Prop)
}
func (e *UnknownAttributeError) Span() Span { return e.span }

// TypeMismatchError reports a relation whose operand kinds the language
// does not admit (e.g. attribute == attribute, or a contains whose
// right-hand side is not an attribute value).
type TypeMismatchError struct {
	Msg  string
	span Span
}

func (e *TypeMismatchError) Error() string { return fmt.Sprintf("type mismatch: %s", e.Msg) }
func (e *TypeMismatchError) Span() Span    { return e.span }

// NameDefinedMultipleTimesError reports a namespace label registered twice
// by the document compiler while building the Namespace this package
// resolves labels against.
type NameDefinedMultipleTimesError struct {
	Label string
	span  Span
}

func (e *NameDefinedMultipleTimesError) Error() string {
	return fmt.Sprintf("name %q defined multiple times", e.Label)
}
func (e *NameDefinedMultipleTimesError) Span() Span { return e.span }
