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

package document

import "fmt"

// unknownAttrLabelError reports a "propLabel/attrLabel" reference (in an
// attrs list or a policy binding) that no property/attribute declaration
// in the document, and no builtin, defines.
type unknownAttrLabelError struct{ label string }

func (e *unknownAttrLabelError) Error() string {
	return fmt.Sprintf("document: unresolved attribute %q", e.label)
}

// unknownPolicyLabelError reports a policy_binding referencing a policy
// label no [[policy]] block in the document declares.
type unknownPolicyLabelError struct{ label string }

func (e *unknownPolicyLabelError) Error() string {
	return fmt.Sprintf("document: unresolved policy %q", e.label)
}
