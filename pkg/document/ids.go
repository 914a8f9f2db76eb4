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

import (
	"github.com/zeebo/blake3"

	"github.com/authly-sh/authly/pkg/id"
)

// deriveID assigns a stable id to a document entry that carries no explicit
// eid of its own, hashed from the directory, the entry's kind and its
// label/ref so that applying the same document twice yields the same ids --
// and therefore the same row set (spec.md §8's document idempotence
// property) -- without a document author needing to hand-assign one.
func deriveID(dirID id.ID, kind id.Kind, label string) id.ID {
	sum := blake3.Sum256(append(append(dirID.Raw[:], byte(kind)), []byte(label)...))
	var raw id.Raw
	copy(raw[:], sum[:16])
	return id.ID{Kind: kind, Raw: raw}
}

// entryID resolves a document entry's id: ref, if the document gave one, is
// taken as a literal kind-prefixed id (so an operator can pin a service's
// identity across documents); otherwise one is derived deterministically
// from label.
func entryID(dirID id.ID, kind id.Kind, ref, label string) (id.ID, error) {
	if ref != "" {
		return id.Parse(kind, ref)
	}
	return deriveID(dirID, kind, label), nil
}
