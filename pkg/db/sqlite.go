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
	"database/sql"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// job is one unit of work handed to the single owning goroutine. SQLite
// (even the pure-Go modernc.org driver) does not benefit from concurrent
// writers, and spec.md §9 calls out exactly this shape: "send commands to a
// dedicated thread that owns the non-Send connection" generalizes to any
// embedded engine behind a bounded queue with a single consumer.
type job struct {
	run  func(*sql.DB) (any, error)
	resp chan jobResult
}

type jobResult struct {
	val any
	err error
}

// SQLite is the in-process embedded-engine implementation of DB. A
// production cluster deployment replaces this with a replicated engine
// satisfying the same interface; spec.md §1 places that engine itself out
// of scope and specifies only the operations this type also implements.
type SQLite struct {
	sqlDB *sql.DB

	jobs   chan job
	cancel context.CancelFunc
	wg     sync.WaitGroup

	leader   atomic.Bool
	logIndex atomic.Uint64

	subMu sync.Mutex
	subs  map[int]chan []byte
	nextS int
}

// Open opens (creating if necessary) a SQLite database at path and starts
// its single-writer command loop. A single-node SQLite is always its own
// leader.
func Open(path string) (*SQLite, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(CodeChannel, "open sqlite", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithCancel(context.Background())
	s := &SQLite{
		sqlDB:  sqlDB,
		jobs:   make(chan job, 64),
		cancel: cancel,
		subs:   make(map[int]chan []byte),
	}
	s.leader.Store(true)

	s.wg.Add(1)
	go s.loop(ctx)

	return s, nil
}

// Close stops the command loop and closes the underlying connection. In
// flight callers waiting on a response receive a Channel error.
func (s *SQLite) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.sqlDB.Close()
}

func (s *SQLite) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			val, err := j.run(s.sqlDB)
			j.resp <- jobResult{val: val, err: err}
		}
	}
}

func (s *SQLite) submit(ctx context.Context, run func(*sql.DB) (any, error)) (any, error) {
	resp := make(chan jobResult, 1)
	select {
	case s.jobs <- job{run: run, resp: resp}:
	case <-ctx.Done():
		return nil, wrap(CodeChannel, "submit", ctx.Err())
	}
	select {
	case r := <-resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, wrap(CodeChannel, "await result", ctx.Err())
	}
}

func bindArgs(params []Param) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case IntParam:
			args[i] = int64(v)
		case TextParam:
			args[i] = string(v)
		case BlobParam:
			args[i] = []byte(v)
		default:
			return nil, Errf(CodeBinaryEncoding, "unsupported param type %T", p)
		}
	}
	return args, nil
}

type sqlRow struct {
	cols map[string]any
}

func (r *sqlRow) Int(col string) (int64, error) {
	v, ok := r.cols[col]
	if !ok {
		return 0, Errf(CodeBinaryEncoding, "no such column %q", col)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, Errf(CodeBinaryEncoding, "column %q is not an integer", col)
	}
}

func (r *sqlRow) Text(col string) (string, error) {
	v, ok := r.cols[col]
	if !ok {
		return "", Errf(CodeBinaryEncoding, "no such column %q", col)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case nil:
		return "", nil
	default:
		return "", Errf(CodeBinaryEncoding, "column %q is not text", col)
	}
}

func (r *sqlRow) Blob(col string) ([]byte, error) {
	v, ok := r.cols[col]
	if !ok {
		return nil, Errf(CodeBinaryEncoding, "no such column %q", col)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case nil:
		return nil, nil
	default:
		return nil, Errf(CodeBinaryEncoding, "column %q is not a blob", col)
	}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, wrap(CodeBinaryEncoding, "columns", err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrap(CodeBinaryEncoding, "scan", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, &sqlRow{cols: m})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(CodeChannel, "rows", err)
	}
	return out, nil
}

func (s *SQLite) Query(ctx context.Context, query string, params ...Param) ([]Row, error) {
	args, err := bindArgs(params)
	if err != nil {
		return nil, err
	}
	val, err := s.submit(ctx, func(sqlDB *sql.DB) (any, error) {
		rows, err := sqlDB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, wrap(CodeChannel, "query", err)
		}
		return scanRows(rows)
	})
	if err != nil {
		return nil, err
	}
	return val.([]Row), nil
}

func (s *SQLite) Execute(ctx context.Context, query string, params ...Param) (int64, error) {
	args, err := bindArgs(params)
	if err != nil {
		return 0, err
	}
	val, err := s.submit(ctx, func(sqlDB *sql.DB) (any, error) {
		res, err := sqlDB.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, wrap(CodeChannel, "execute", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, wrap(CodeChannel, "rows affected", err)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	s.logIndex.Add(1)
	return val.(int64), nil
}

// Transact runs every statement inside one SQL transaction. On the first
// failing statement the transaction is rolled back and the returned slice
// stops at (and includes) the offender, so the caller can identify exactly
// which statement failed without guessing from a combined error.
func (s *SQLite) Transact(ctx context.Context, stmts []Statement) ([]TxResult, error) {
	val, err := s.submit(ctx, func(sqlDB *sql.DB) (any, error) {
		tx, err := sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return nil, wrap(CodeChannel, "begin tx", err)
		}

		results := make([]TxResult, 0, len(stmts))
		for i, stmt := range stmts {
			args, err := bindArgs(stmt.Params)
			if err != nil {
				_ = tx.Rollback()
				results = append(results, TxResult{Err: err})
				return results, Errf(CodeBinaryEncoding, "statement %d: %v", i, err)
			}
			res, err := tx.ExecContext(ctx, stmt.SQL, args...)
			if err != nil {
				_ = tx.Rollback()
				results = append(results, TxResult{Err: wrap(CodeChannel, "exec", err)})
				return results, Errf(CodeChannel, "statement %d failed, transaction rolled back: %v", i, err)
			}
			n, _ := res.RowsAffected()
			results = append(results, TxResult{RowsAffected: n})
		}
		if err := tx.Commit(); err != nil {
			return results, wrap(CodeChannel, "commit", err)
		}
		return results, nil
	})

	if val == nil {
		return nil, err
	}
	return val.([]TxResult), err
}

func (s *SQLite) IsLeader() bool       { return s.leader.Load() }
func (s *SQLite) LastLogIndex() uint64 { return s.logIndex.Load() }

// Notify fans payload out to every active Listen subscriber. This in-
// process implementation is the single-node stand-in for the cluster
// engine's replicated notify/listen primitive (spec.md §4.1, §1's
// out-of-scope note on the replicated engine itself).
func (s *SQLite) Notify(ctx context.Context, payload []byte) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- payload:
		case <-ctx.Done():
			return wrap(CodeChannel, "notify", ctx.Err())
		default:
			// A slow subscriber must not block the broadcaster; spec.md §5
			// treats cluster-bus handlers as idempotent reloaders that can
			// tolerate a dropped-and-recovered message.
		}
	}
	return nil
}

func (s *SQLite) Listen(ctx context.Context) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	s.subMu.Lock()
	id := s.nextS
	s.nextS++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}
