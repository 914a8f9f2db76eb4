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
	"context"
	"testing"

	"github.com/authly-sh/authly/pkg/id"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Execute(context.Background(), `CREATE TABLE widgets (id BLOB PRIMARY KEY, label TEXT, qty INTEGER)`)
	require.NoError(t, err)
	return s
}

func TestExecuteAndQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	wid := id.New(id.KindService)
	_, err := s.Execute(ctx, `INSERT INTO widgets (id, label, qty) VALUES (?, ?, ?)`,
		IDParam(wid), TextParam("sprocket"), IntParam(7))
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT id, label, qty FROM widgets WHERE label = ?`, TextParam("sprocket"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	label, err := rows[0].Text("label")
	require.NoError(t, err)
	require.Equal(t, "sprocket", label)

	qty, err := rows[0].Int("qty")
	require.NoError(t, err)
	require.Equal(t, int64(7), qty)

	blob, err := rows[0].Blob("id")
	require.NoError(t, err)
	gotID, err := DecodeIDBlob(id.KindService, blob)
	require.NoError(t, err)
	require.True(t, gotID.Equal(wid))

	_, err = DecodeIDBlob(id.KindPersona, blob)
	require.Error(t, err, "decoding a Service blob as Persona must fail")
}

func TestTransactAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	ok := id.New(id.KindService)
	results, err := s.Transact(ctx, []Statement{
		{SQL: `INSERT INTO widgets (id, label, qty) VALUES (?, ?, ?)`, Params: []Param{IDParam(ok), TextParam("a"), IntParam(1)}},
		{SQL: `INSERT INTO nonexistent_table (x) VALUES (1)`},
	})
	require.Error(t, err)
	require.Len(t, results, 2)
	require.Error(t, results[1].Err)

	rows, err := s.Query(ctx, `SELECT COUNT(*) as n FROM widgets`)
	require.NoError(t, err)
	n, err := rows[0].Int("n")
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "failed transaction must not leave partial rows")
}

func TestLogIndexAdvancesOnWrite(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	before := s.LastLogIndex()
	_, err := s.Execute(ctx, `INSERT INTO widgets (id, label, qty) VALUES (?, ?, ?)`,
		IDParam(id.New(id.KindService)), TextParam("a"), IntParam(1))
	require.NoError(t, err)
	require.Greater(t, s.LastLogIndex(), before)
}

func TestNotifyListen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := openTest(t)

	msgs, unsub, err := s.Listen(ctx)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.Notify(ctx, []byte("hello")))
	select {
	case got := <-msgs:
		require.Equal(t, "hello", string(got))
	default:
		t.Fatal("expected a buffered message from Notify")
	}
}
