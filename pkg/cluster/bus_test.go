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

package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authly-sh/authly/internal/testsupport"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"
	"github.com/authly-sh/authly/pkg/policy/lang"
)

func waitFor(t *testing.T, ch <-chan Message, kind Kind) Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Kind == kind {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s message", kind)
		}
	}
}

// waitUntilListening publishes ClusterPing until sub observes one: Run
// registers its store listener on its own goroutine, and a message
// published before that registration is not delivered to it.
func waitUntilListening(t *testing.T, ctx context.Context, bus *Bus, sub <-chan Message) {
	t.Helper()
	require.Eventually(t, func() bool {
		if err := bus.Publish(ctx, ClusterPing, id.ID{}); err != nil {
			return false
		}
		select {
		case msg := <-sub:
			return msg.Kind == ClusterPing
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBusSubscribeReceivesPublishedMessages(t *testing.T) {
	s := testsupport.OpenDB(t)
	bus := NewBus(s, nil, nil, nil, nil)

	sub, cancel := bus.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = bus.Run(ctx) }()
	waitUntilListening(t, ctx, bus, sub)

	dirID := id.New(id.KindDirectory)
	require.NoError(t, bus.Publish(ctx, DirectoryChanged, dirID))

	msg := waitFor(t, sub, DirectoryChanged)
	require.True(t, msg.DirID.Equal(dirID))
}

func TestBusRebuildsEngineOnDirectoryChanged(t *testing.T) {
	s := testsupport.OpenDB(t)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	dirID := id.New(id.KindDirectory)
	ns := lang.NewNamespace()
	propID := id.New(id.KindProperty)
	attrID := id.New(id.KindAttribute)
	require.NoError(t, directory.CreateProperty(ctx, s, propID, dirID, directory.PropertyEntity, "trait"))
	require.NoError(t, directory.CreateAttribute(ctx, s, attrID, propID, "has_legs"))
	require.NoError(t, ns.Define("trait", lang.NamespaceEntry{Kind: lang.EntryProperty, PropID: propID}))
	require.NoError(t, ns.Define("trait/has_legs", lang.NamespaceEntry{Kind: lang.EntryAttribute, PropID: propID, AttrID: attrID}))

	expr, err := lang.Resolve("Subject.trait contains trait/has_legs", ns)
	require.NoError(t, err)
	bytecode := code.Encode(lang.Compile(expr))
	policyID := id.New(id.KindPolicy)
	require.NoError(t, directory.CreatePolicy(ctx, s, directory.Policy{ID: policyID, DirID: dirID, Label: "has-legs", Expression: bytecode}))

	engines := NewEngineCache()
	bus := NewBus(s, nil, nil, engines, nil)

	sub, cancel := bus.Subscribe()
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	waitUntilListening(t, ctx, bus, sub)

	require.NoError(t, bus.Publish(ctx, DirectoryChanged, dirID))
	waitFor(t, sub, DirectoryChanged)

	require.Eventually(t, func() bool {
		_, ok := engines.Get(dirID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	eng, _ := engines.Get(dirID)
	require.NotNil(t, eng)
}
