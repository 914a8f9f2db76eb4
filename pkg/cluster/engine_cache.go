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
	"sync"

	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/engine"
)

// EngineCache holds one compiled policy Engine per directory, rebuilt in
// place whenever a DirectoryChanged message for that directory arrives.
// Readers (the request path evaluating an access decision) never rebuild
// it themselves; a directory with no cached entry yet simply has no
// policies to evaluate against.
type EngineCache struct {
	mu    sync.RWMutex
	byDir map[id.ID]*engine.Engine
}

// NewEngineCache returns an empty cache.
func NewEngineCache() *EngineCache {
	return &EngineCache{byDir: make(map[id.ID]*engine.Engine)}
}

// Get returns the cached Engine for dirID, if one has been built.
func (c *EngineCache) Get(dirID id.ID) (*engine.Engine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	eng, ok := c.byDir[dirID]
	return eng, ok
}

// Store replaces the cached Engine for dirID.
func (c *EngineCache) Store(dirID id.ID, eng *engine.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byDir[dirID] = eng
}

// Evict removes dirID's cached Engine, if any.
func (c *EngineCache) Evict(dirID id.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byDir, dirID)
}
