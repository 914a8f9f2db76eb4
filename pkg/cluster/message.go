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

// Package cluster is the message bus every node's db.DB.Notify/Listen
// pair rides on: one broadcast reaches every node, and each node decides
// locally what to do about it (spec.md §4.8, grounded on
// original_source/src/bus/broadcast.rs's BroadcastMsgKind enum).
package cluster

import "github.com/authly-sh/authly/pkg/id"

// Kind names the broadcastable message variants. Unlike the Rust source's
// closed enum, new kinds are plain string constants so a future message
// type doesn't force every existing switch to be touched.
type Kind string

const (
	// InstanceChanged announces that the local CA/signing instance was
	// rewritten (typically by the leader's rotation loop) and must be
	// reloaded, redistributed to connected peers, and used for any
	// subsequent signing.
	InstanceChanged Kind = "InstanceChanged"

	// DirectoryChanged announces that a directory's document was applied
	// and its compiled policies must be rebuilt.
	DirectoryChanged Kind = "DirectoryChanged"

	// ServiceBroadcast is an opaque, directory-scoped notification a
	// connected service can subscribe to without the bus itself knowing
	// what the payload means (spec.md's "service event fan-out").
	ServiceBroadcast Kind = "ServiceBroadcast"

	// ClusterPing carries no state change; it exists so a node can probe
	// that the bus is alive end to end (publish, then observe its own
	// subscription fire).
	ClusterPing Kind = "ClusterPing"
)

// Message is one broadcast. DirID is the zero id.ID for kinds that carry
// no directory, Payload is non-nil only for ServiceBroadcast.
type Message struct {
	Kind         Kind   `json:"kind"`
	DirID        id.ID  `json:"dir_id,omitzero"`
	Payload      []byte `json:"payload,omitempty"`
	LastLogIndex uint64 `json:"last_log_index"`
}
