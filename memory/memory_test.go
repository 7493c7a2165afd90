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

package memory_test

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/memory"
	"github.com/fluxgraph/agentcore/session"
)

func storedSession(texts ...string) *session.Session {
	sess := &session.Session{App: "app", User: "u1", ID: "s1"}
	for _, text := range texts {
		sess.Events = append(sess.Events, &session.Event{
			Author:  session.UserAuthor,
			Content: genai.NewContentFromText(text, genai.RoleUser),
		})
	}
	return sess
}

func TestInMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewInMemoryService()

	if err := svc.AddSession(ctx, storedSession("the quick brown fox")); err != nil {
		t.Fatalf("AddSession: %v", err)
	}

	// Searching with the text of a stored user event returns it.
	resp, err := svc.Search(ctx, &memory.SearchRequest{App: "app", User: "u1", Query: "the quick brown fox"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(resp.Memories))
	}
	if resp.Memories[0].Author != session.UserAuthor {
		t.Fatalf("author = %q", resp.Memories[0].Author)
	}
}

func TestInMemory_KeywordMatch(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewInMemoryService()
	svc.AddSession(ctx, storedSession("reset my password please"))

	resp, err := svc.Search(ctx, &memory.SearchRequest{App: "app", User: "u1", Query: "PASSWORD"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Memories) != 1 {
		t.Fatalf("case-insensitive keyword should match, got %d", len(resp.Memories))
	}
}

func TestInMemory_ScopedByAppAndUser(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewInMemoryService()
	svc.AddSession(ctx, storedSession("secret phrase"))

	resp, err := svc.Search(ctx, &memory.SearchRequest{App: "app", User: "someone_else", Query: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Memories) != 0 {
		t.Fatalf("memories leaked across users: %d", len(resp.Memories))
	}
}

func TestInMemory_NoMatch(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewInMemoryService()
	svc.AddSession(ctx, storedSession("alpha beta"))

	resp, err := svc.Search(ctx, &memory.SearchRequest{App: "app", User: "u1", Query: "gamma"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Memories) != 0 {
		t.Fatalf("expected no match, got %d", len(resp.Memories))
	}
}
