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

package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session lookup fails.
var ErrNotFound = errors.New("session: not found")

// ErrStateKeyNotExist is returned by strict state lookups.
var ErrStateKeyNotExist = errors.New("session: state key does not exist")

// ErrAlreadyExists is returned when creating a session with an id that
// is already in use for the given app/user.
var ErrAlreadyExists = errors.New("session: already exists")

// Session is a conversation identified by (app, user, id): an append-only
// event log plus a mutable state map.
type Session struct {
	App    string
	User   string
	ID     string
	Events []*Event
	State  *State
}

// GetOptions narrows a Get call, e.g. to the last N events.
type GetOptions struct {
	// NumRecentEvents, if > 0, limits the returned event slice to the
	// last N events instead of the full log.
	NumRecentEvents int
}

// Service is the narrow session-store contract the runtime consumes. It
// is satisfied by an in-memory implementation and by a sqlite-backed one;
// any persistence concern beyond this interface is out of scope.
type Service interface {
	CreateSession(ctx context.Context, app, user string, initialState map[string]any, id string) (*Session, error)
	GetSession(ctx context.Context, app, user, id string, opts GetOptions) (*Session, error)
	ListSessions(ctx context.Context, app, user string) ([]*Session, error)
	DeleteSession(ctx context.Context, app, user, id string) error
	// AppendEvent assigns the event an id and timestamp if unset, applies
	// its StateDelta to the session's state, appends it to the log, and
	// returns the materialized event.
	AppendEvent(ctx context.Context, sess *Session, event *Event) (*Event, error)
	EndSession(ctx context.Context, app, user, id string) error
}
