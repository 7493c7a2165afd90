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
	"sync"
	"time"

	"github.com/google/uuid"
)

// inMemoryService keeps sessions nested appID -> userID -> sessionID, the
// same shape a single-process runtime needs and nothing more.
type inMemoryService struct {
	mu       sync.Mutex
	sessions map[string]map[string]map[string]*Session
	clock    func() time.Time
}

// NewInMemoryService returns a Service backed by process memory. The
// runner has no default session service; the demo command and the
// in-process tests pass this one explicitly.
func NewInMemoryService() Service {
	return &inMemoryService{
		sessions: map[string]map[string]map[string]*Session{},
		clock:    time.Now,
	}
}

func (s *inMemoryService) bucket(app, user string, create bool) map[string]*Session {
	users, ok := s.sessions[app]
	if !ok {
		if !create {
			return nil
		}
		users = map[string]map[string]*Session{}
		s.sessions[app] = users
	}
	sessions, ok := users[user]
	if !ok {
		if !create {
			return nil
		}
		sessions = map[string]*Session{}
		users[user] = sessions
	}
	return sessions
}

func (s *inMemoryService) CreateSession(ctx context.Context, app, user string, initialState map[string]any, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	sessions := s.bucket(app, user, true)
	if _, exists := sessions[id]; exists {
		return nil, ErrAlreadyExists
	}
	sess := &Session{
		App:   app,
		User:  user,
		ID:    id,
		State: NewState(initialState),
	}
	sessions[id] = sess
	return cloneSession(sess), nil
}

func (s *inMemoryService) GetSession(ctx context.Context, app, user, id string, opts GetOptions) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.bucket(app, user, false)
	if sessions == nil {
		return nil, ErrNotFound
	}
	sess, ok := sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneSession(sess)
	if opts.NumRecentEvents > 0 && len(out.Events) > opts.NumRecentEvents {
		out.Events = out.Events[len(out.Events)-opts.NumRecentEvents:]
	}
	return out, nil
}

func (s *inMemoryService) ListSessions(ctx context.Context, app, user string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.bucket(app, user, false)
	out := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, cloneSession(sess))
	}
	return out, nil
}

func (s *inMemoryService) DeleteSession(ctx context.Context, app, user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.bucket(app, user, false)
	if sessions == nil {
		return ErrNotFound
	}
	if _, ok := sessions[id]; !ok {
		return ErrNotFound
	}
	delete(sessions, id)
	return nil
}

func (s *inMemoryService) EndSession(ctx context.Context, app, user, id string) error {
	_, err := s.GetSession(ctx, app, user, id, GetOptions{})
	return err
}

func (s *inMemoryService) AppendEvent(ctx context.Context, sess *Session, event *Event) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.bucket(sess.App, sess.User, false)
	if sessions == nil {
		return nil, ErrNotFound
	}
	stored, ok := sessions[sess.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	if event.Actions != nil {
		stored.State.Apply(event.Actions.StateDelta)
	}
	stored.Events = append(stored.Events, event)
	sess.Events = append(sess.Events, event)
	return event, nil
}

func cloneSession(s *Session) *Session {
	events := make([]*Event, len(s.Events))
	copy(events, s.Events)
	return &Session{
		App:    s.App,
		User:   s.User,
		ID:     s.ID,
		Events: events,
		State:  s.State,
	}
}
