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

// Package apierror defines Authly's shared error taxonomy (spec.md §7) and
// the HTTP/gRPC status codes each kind maps to at the transport boundary.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one of the taxonomy's leaf error kinds.
type Code string

const (
	CodeChannel         Code = "channel"
	CodeTimestamp       Code = "timestamp"
	CodeBinaryEncoding  Code = "binary_encoding"
	CodeMissingDek      Code = "missing_dek"
	CodeBadNonce        Code = "bad_nonce"
	CodeAead            Code = "aead"
	CodeMissingSecret   Code = "missing_secret"
	CodePolicyCompile   Code = "policy_compile"
	CodeUnprivileged    Code = "unprivileged_service"
	CodeCredentials     Code = "credentials"
	CodeAccessTokenEnc  Code = "access_token_encode"
	CodeAccessTokenVfy  Code = "access_token_unverified"
	CodeBusNotify       Code = "bus_notify"
	CodeBusReceive      Code = "bus_receive"
	CodeDenied          Code = "denied"
	CodeNotFound        Code = "not_found"
	CodeInvalidDocument Code = "invalid_document"
	CodeSubmission      Code = "submission"
	CodeInternal        Code = "internal"
)

// Error is the concrete error type carried across every layer boundary.
// Each component constructs one with its own Code; transport adapters map
// Code to a status, never the underlying message (which may be sensitive).
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with no wrapped cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap constructs an Error wrapping a lower-level cause.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// Is supports errors.Is comparisons against a bare Code-tagged sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus maps a Code to the status code an HTTP adapter should return.
// User-visible authentication failures deliberately collapse every
// credential-related internal reason into CodeCredentials/401 to avoid an
// oracle that would let a caller distinguish "no such user" from "bad
// password" from "hash verify failed".
func HTTPStatus(code Code) int {
	switch code {
	case CodeCredentials, CodeSubmission:
		return http.StatusUnauthorized
	case CodeUnprivileged, CodeDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidDocument, CodePolicyCompile:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCodeName maps a Code to the canonical gRPC status code name; the
// actual google.golang.org/grpc/codes.Code value is attached at the
// transport boundary (kept out of this package to avoid pulling the grpc
// dependency into every caller of apierror).
func GRPCCodeName(code Code) string {
	switch code {
	case CodeCredentials, CodeSubmission:
		return "UNAUTHENTICATED"
	case CodeUnprivileged, CodeDenied:
		return "PERMISSION_DENIED"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeInvalidDocument, CodePolicyCompile:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
