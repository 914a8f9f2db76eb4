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

package db

import (
	"fmt"

	"github.com/authly-sh/authly/pkg/apierror"
)

// Re-exported codes relevant to this package, per spec.md §4.1's failure
// modes: Channel (pool/message-passing fault), Timestamp (illegal
// time-encoded integer), BinaryEncoding (deserialization fault), plus a
// passthrough for the underlying engine's own errors (CodeInternal).
const (
	CodeChannel        = apierror.CodeChannel
	CodeTimestamp      = apierror.CodeTimestamp
	CodeBinaryEncoding = apierror.CodeBinaryEncoding
)

func Errf(code apierror.Code, format string, args ...any) *apierror.Error {
	return apierror.New(code, fmt.Sprintf(format, args...))
}

func wrap(code apierror.Code, msg string, err error) *apierror.Error {
	return apierror.Wrap(code, msg, err)
}
