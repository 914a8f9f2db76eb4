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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadNodeDefaults(t *testing.T) {
	n, err := LoadNode()
	require.NoError(t, err)
	require.Equal(t, "authly.sqlite3", n.DBPath)
	require.Equal(t, "local-unencrypted", n.SecretBackend)
	require.Equal(t, 720*time.Hour, n.RotationPeriod)
	require.Equal(t, ":7900", n.GRPCListenAddr)
}

func TestLoadNodeReadsEnv(t *testing.T) {
	t.Setenv("AUTHLY_DB_PATH", "/var/lib/authly/node.sqlite3")
	t.Setenv("AUTHLY_SECRET_BACKEND", "vault")
	t.Setenv("AUTHLY_ROTATION_PERIOD", "1h")

	n, err := LoadNode()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/authly/node.sqlite3", n.DBPath)
	require.Equal(t, "vault", n.SecretBackend)
	require.Equal(t, time.Hour, n.RotationPeriod)
}
