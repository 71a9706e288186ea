/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package search

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slskd/slskd/internal/slskderrors"
)

// Store persists Search records across restarts (§6.4 "searches database").
// Responses is stored as a single JSON blob written exactly once, at the
// terminal transition, matching the in-memory write-once invariant.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS searches (
	id            TEXT PRIMARY KEY,
	text          TEXT NOT NULL,
	scope         TEXT NOT NULL,
	token         INTEGER NOT NULL,
	state         INTEGER NOT NULL,
	responses     INTEGER NOT NULL DEFAULT 0,
	files         INTEGER NOT NULL DEFAULT 0,
	locked_files  INTEGER NOT NULL DEFAULT 0,
	started_at    TEXT NOT NULL,
	ended_at      TEXT,
	response_blob BLOB
);
`

// OpenStore opens (or creates) the sqlite-backed searches database at
// path. Pass ":memory:" for an ephemeral, test-only store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, slskderrors.Wrap("search.OpenStore", slskderrors.KindUnknown, err)
	}
	if path == ":memory:" {
		// Each pooled connection to ":memory:" is its own independent
		// database; a single connection keeps the schema and data visible
		// across calls.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, slskderrors.Wrap("search.OpenStore", slskderrors.KindUnknown, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (st *Store) Close() error {
	return st.db.Close()
}

// Insert records a newly created search in the Requested state.
func (st *Store) Insert(s *Search) error {
	_, err := st.db.Exec(
		`INSERT INTO searches (id, text, scope, token, state, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Text, s.Scope, s.Token, int(s.State), s.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return slskderrors.Wrap("search.Store.Insert", slskderrors.KindUnknown, err)
	}
	return nil
}

// UpdateCounters persists the running response/file counters as they
// accumulate, without touching state or the write-once response blob.
func (st *Store) UpdateCounters(id string, responses, files, lockedFiles int) error {
	res, err := st.db.Exec(
		`UPDATE searches SET responses = ?, files = ?, locked_files = ? WHERE id = ?`,
		responses, files, lockedFiles, id,
	)
	if err != nil {
		return slskderrors.Wrap("search.Store.UpdateCounters", slskderrors.KindUnknown, err)
	}
	return checkAffected(res, id, "search.Store.UpdateCounters")
}

// Finalize transitions id to a terminal state and writes its response
// list exactly once. Calling Finalize twice on the same id is a no-op
// error, matching the in-memory lifecycle's sticky-terminal-state rule.
func (st *Store) Finalize(id string, state State, responses []PeerResponse, endedAt time.Time) error {
	if !state.IsTerminal() {
		return slskderrors.Wrap("search.Store.Finalize", slskderrors.KindValidationFailed,
			fmt.Errorf("state %s is not terminal", state))
	}

	blob, err := json.Marshal(responses)
	if err != nil {
		return slskderrors.Wrap("search.Store.Finalize", slskderrors.KindUnknown, err)
	}

	res, err := st.db.Exec(
		`UPDATE searches SET state = ?, ended_at = ?, response_blob = ? WHERE id = ? AND state < ?`,
		int(state), endedAt.UTC().Format(time.RFC3339Nano), blob, id, int(CompletedTimedOut),
	)
	if err != nil {
		return slskderrors.Wrap("search.Store.Finalize", slskderrors.KindUnknown, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return slskderrors.Wrap("search.Store.Finalize", slskderrors.KindUnknown, err)
	}
	if n == 0 {
		return slskderrors.Wrap("search.Store.Finalize", slskderrors.KindConflict,
			fmt.Errorf("search %s already terminal or missing", id))
	}
	return nil
}

// Find loads one search by id, including its response list if terminal.
func (st *Store) Find(id string) (*Search, error) {
	row := st.db.QueryRow(
		`SELECT id, text, scope, token, state, responses, files, locked_files, started_at, ended_at, response_blob FROM searches WHERE id = ?`,
		id,
	)
	s, err := scanSearch(row)
	if err == sql.ErrNoRows {
		return nil, slskderrors.Wrap("search.Store.Find", slskderrors.KindNotFound, err)
	}
	if err != nil {
		return nil, slskderrors.Wrap("search.Store.Find", slskderrors.KindUnknown, err)
	}
	return s, nil
}

// List returns every persisted search, most recently started first.
func (st *Store) List() ([]*Search, error) {
	rows, err := st.db.Query(
		`SELECT id, text, scope, token, state, responses, files, locked_files, started_at, ended_at, response_blob FROM searches ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, slskderrors.Wrap("search.Store.List", slskderrors.KindUnknown, err)
	}
	defer rows.Close()

	var out []*Search
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, slskderrors.Wrap("search.Store.List", slskderrors.KindUnknown, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanner is the common subset of *sql.Row and *sql.Rows that Scan needs.
type scanner interface {
	Scan(dest ...any) error
}

func scanSearch(sc scanner) (*Search, error) {
	var (
		s         Search
		stateInt  int
		startedAt string
		endedAt   sql.NullString
		blob      []byte
	)
	if err := sc.Scan(&s.ID, &s.Text, &s.Scope, &s.Token, &stateInt, &s.Responses, &s.Files, &s.LockedFiles, &startedAt, &endedAt, &blob); err != nil {
		return nil, err
	}
	s.State = State(stateInt)
	s.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt.Valid {
		s.EndedAt, _ = time.Parse(time.RFC3339Nano, endedAt.String)
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &s.ResponseList); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func checkAffected(res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return slskderrors.Wrap(op, slskderrors.KindUnknown, err)
	}
	if n == 0 {
		return slskderrors.Wrap(op, slskderrors.KindNotFound, fmt.Errorf("search %s not found", id))
	}
	return nil
}
