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

// Package sqlite is a second session.Service backend, storing the event
// log and state map in a pure-Go sqlite database rather than in process
// memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fluxgraph/agentcore/session"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	app TEXT NOT NULL,
	user TEXT NOT NULL,
	id TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT '{}',
	ended INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (app, user, id)
);
CREATE TABLE IF NOT EXISTS events (
	app TEXT NOT NULL,
	user TEXT NOT NULL,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (app, user, session_id, seq)
);
`

// Service is a session.Service backed by a *sql.DB, typically opened
// against the "sqlite" driver registered by modernc.org/sqlite.
type Service struct {
	db *sql.DB
}

// Open creates the schema (if absent) on db and returns a Service.
func Open(ctx context.Context, db *sql.DB) (*Service, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Service{db: db}, nil
}

func (s *Service) CreateSession(ctx context.Context, app, user string, initialState map[string]any, id string) (*session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	stateJSON, err := json.Marshal(initialState)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal initial state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (app, user, id, state) VALUES (?, ?, ?, ?)`,
		app, user, id, string(stateJSON))
	if err != nil {
		return nil, fmt.Errorf("sqlite: create session: %w", err)
	}
	return &session.Session{
		App:   app,
		User:  user,
		ID:    id,
		State: session.NewState(initialState),
	}, nil
}

func (s *Service) GetSession(ctx context.Context, app, user, id string, opts session.GetOptions) (*session.Session, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE app = ? AND user = ? AND id = ?`,
		app, user, id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal state: %w", err)
	}

	query := `SELECT payload FROM events WHERE app = ? AND user = ? AND session_id = ? ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query, app, user, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	var events []*session.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		var ev session.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.NumRecentEvents > 0 && len(events) > opts.NumRecentEvents {
		events = events[len(events)-opts.NumRecentEvents:]
	}

	return &session.Session{
		App:    app,
		User:   user,
		ID:     id,
		Events: events,
		State:  session.NewState(state),
	}, nil
}

func (s *Service) ListSessions(ctx context.Context, app, user string) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE app = ? AND user = ?`, app, user)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, app, user, id, session.GetOptions{})
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Service) DeleteSession(ctx context.Context, app, user, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE app = ? AND user = ? AND id = ?`, app, user, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM events WHERE app = ? AND user = ? AND session_id = ?`, app, user, id)
	return err
}

func (s *Service) EndSession(ctx context.Context, app, user, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended = 1 WHERE app = ? AND user = ? AND id = ?`, app, user, id)
	if err != nil {
		return fmt.Errorf("sqlite: end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Service) AppendEvent(ctx context.Context, sess *session.Session, event *session.Event) (*session.Event, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var stateJSON string
	err = tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE app = ? AND user = ? AND id = ?`,
		sess.App, sess.User, sess.ID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read state: %w", err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal state: %w", err)
	}
	if state == nil {
		state = map[string]any{}
	}
	if event.Actions != nil {
		for k, v := range event.Actions.StateDelta {
			state[k] = v
		}
	}
	newStateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET state = ? WHERE app = ? AND user = ? AND id = ?`,
		string(newStateJSON), sess.App, sess.User, sess.ID); err != nil {
		return nil, fmt.Errorf("sqlite: write state: %w", err)
	}

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE app = ? AND user = ? AND session_id = ?`,
		sess.App, sess.User, sess.ID).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("sqlite: next seq: %w", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (app, user, session_id, seq, payload) VALUES (?, ?, ?, ?, ?)`,
		sess.App, sess.User, sess.ID, seq, string(payload)); err != nil {
		return nil, fmt.Errorf("sqlite: insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}

	if event.Actions != nil {
		sess.State.Apply(event.Actions.StateDelta)
	}
	sess.Events = append(sess.Events, event)
	return event, nil
}
