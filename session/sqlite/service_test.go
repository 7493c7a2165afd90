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

package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/fluxgraph/agentcore/session"
	sqlitesession "github.com/fluxgraph/agentcore/session/sqlite"
)

func openTestService(t *testing.T) *sqlitesession.Service {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc, err := sqlitesession.Open(context.Background(), db)
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	return svc
}

func TestService_CreateAppendGet(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t)

	sess, err := svc.CreateSession(ctx, "app", "u1", map[string]any{"k": "v"}, "s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := svc.AppendEvent(ctx, sess, &session.Event{
		Author:  "agent",
		Actions: &session.Actions{StateDelta: map[string]any{"count": float64(1)}},
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	got, err := svc.GetSession(ctx, "app", "u1", "s1", session.GetOptions{})
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got.Events))
	}
	if v, _ := got.State.Get("count"); v != float64(1) {
		t.Fatalf("state delta not applied, got %v", v)
	}
}

func TestService_DeleteSession(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t)
	svc.CreateSession(ctx, "app", "u1", nil, "s1")

	if err := svc.DeleteSession(ctx, "app", "u1", "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := svc.GetSession(ctx, "app", "u1", "s1", session.GetOptions{}); err != session.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
