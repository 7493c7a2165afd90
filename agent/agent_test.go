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

package agent_test

import (
	"context"
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/agent"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// newTestContext builds a root invocation context over an in-memory
// session for the given root agent.
func newTestContext(t *testing.T, root agent.Agent) *invocation.Context {
	t.Helper()
	svc := session.NewInMemoryService()
	sess, err := svc.CreateSession(context.Background(), "test", "u1", nil, "s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ictx, err := invocation.New(context.Background(), invocation.Params{
		Agent:      root,
		RunConfig:  invocation.DefaultRunConfig(),
		Session:    sess,
		SessionSvc: svc,
	})
	if err != nil {
		t.Fatalf("invocation.New: %v", err)
	}
	return ictx
}

// newTestContextWithConfig is newTestContext with a caller-chosen run
// config.
func newTestContextWithConfig(t *testing.T, root agent.Agent, cfg invocation.RunConfig) *invocation.Context {
	t.Helper()
	svc := session.NewInMemoryService()
	sess, err := svc.CreateSession(context.Background(), "test", "u1", nil, "s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ictx, err := invocation.New(context.Background(), invocation.Params{
		Agent:      root,
		RunConfig:  cfg,
		Session:    sess,
		SessionSvc: svc,
	})
	if err != nil {
		t.Fatalf("invocation.New: %v", err)
	}
	return ictx
}

// scripted builds a custom agent that emits one final text event per
// entry in texts.
func scripted(t *testing.T, name string, texts ...string) agent.Agent {
	t.Helper()
	a, err := agent.NewCustom(name, func(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			for _, text := range texts {
				ev := &session.Event{Content: genai.NewContentFromText(text, genai.RoleModel)}
				if !yield(ev, nil) {
					return
				}
			}
		}
	})
	if err != nil {
		t.Fatalf("NewCustom(%s): %v", name, err)
	}
	return a
}

// collect drains an event stream, failing the test on stream errors.
func collect(t *testing.T, seq iter.Seq2[*session.Event, error]) []*session.Event {
	t.Helper()
	var events []*session.Event
	for ev, err := range seq {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"math", false},
		{"_private", false},
		{"Agent2", false},
		{"user", true},
		{"2fast", true},
		{"has-dash", true},
		{"", true},
	}
	for _, tt := range tests {
		err := agent.ValidateName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestFindByName_ClimbsToRoot(t *testing.T) {
	leaf := scripted(t, "leaf", "x")
	mid, err := agent.NewCustom("mid", nil, agent.WithSubAgents(leaf))
	if err != nil {
		t.Fatal(err)
	}
	root, err := agent.NewCustom("root", nil, agent.WithSubAgents(mid))
	if err != nil {
		t.Fatal(err)
	}

	// Searching from the leaf must find a sibling-of-ancestor via the
	// real root.
	if got := agent.FindByName(leaf, "root"); got == nil || got.Name() != "root" {
		t.Fatalf("FindByName(leaf, root) = %v", got)
	}
	if got := agent.FindByName(root, "leaf"); got == nil || got.Name() != "leaf" {
		t.Fatalf("FindByName(root, leaf) = %v", got)
	}
	if got := agent.FindByName(root, "missing"); got != nil {
		t.Fatalf("FindByName(root, missing) = %v, want nil", got)
	}
}

func TestWithSubAgents_PanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for duplicate sub-agent name")
		}
	}()
	a := scripted(t, "dup", "x")
	b := scripted(t, "dup", "y")
	agent.NewCustom("parent", nil, agent.WithSubAgents(a, b))
}

func TestWithSubAgents_PanicsOnSecondParent(t *testing.T) {
	child := scripted(t, "child", "x")
	if _, err := agent.NewCustom("p1", nil, agent.WithSubAgents(child)); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when grafting into a second tree")
		}
	}()
	agent.NewCustom("p2", nil, agent.WithSubAgents(child))
}

func TestBaseLifecycle_BeforeCallbackShortCircuits(t *testing.T) {
	called := false
	a, err := agent.NewCustom("a",
		func(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
			called = true
			return func(yield func(*session.Event, error) bool) {}
		},
		agent.WithBeforeAgent(func(cctx agent.CallbackContext) (*genai.Content, error) {
			return genai.NewContentFromText("short-circuit", genai.RoleModel), nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	ictx := newTestContext(t, a)

	events := collect(t, a.Run(ictx))
	if called {
		t.Fatal("runAsyncImpl ran despite before-callback content")
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := events[0].Content.Parts[0].Text; got != "short-circuit" {
		t.Fatalf("content = %q", got)
	}
	if !ictx.Ended() {
		t.Fatal("expected invocation to end after callback content")
	}
}

func TestBaseLifecycle_FirstNonEmptyCallbackWins(t *testing.T) {
	secondRan := false
	a, err := agent.NewCustom("a", nil,
		agent.WithBeforeAgent(func(cctx agent.CallbackContext) (*genai.Content, error) {
			return genai.NewContentFromText("first", genai.RoleModel), nil
		}),
		agent.WithBeforeAgent(func(cctx agent.CallbackContext) (*genai.Content, error) {
			secondRan = true
			return genai.NewContentFromText("second", genai.RoleModel), nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, a.Run(newTestContext(t, a)))
	if secondRan {
		t.Fatal("second callback ran after the first returned content")
	}
	if events[0].Content.Parts[0].Text != "first" {
		t.Fatalf("content = %q", events[0].Content.Parts[0].Text)
	}
}

func TestBaseLifecycle_StateDeltaOnlyEvent(t *testing.T) {
	a, err := agent.NewCustom("a", nil,
		agent.WithAfterAgent(func(cctx agent.CallbackContext) (*genai.Content, error) {
			cctx.SetState("visited", true)
			return nil, nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, a.Run(newTestContext(t, a)))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Content != nil {
		t.Fatal("expected no content on state-delta-only event")
	}
	if ev.Actions == nil || ev.Actions.StateDelta["visited"] != true {
		t.Fatalf("state delta missing: %+v", ev.Actions)
	}
}

func TestBaseLifecycle_StampsIdentity(t *testing.T) {
	a := scripted(t, "a", "hello")
	ictx := newTestContext(t, a)
	events := collect(t, a.Run(ictx))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Author != "a" {
		t.Fatalf("author = %q", events[0].Author)
	}
	if events[0].InvocationID != ictx.InvocationID() {
		t.Fatalf("invocation id = %q, want %q", events[0].InvocationID, ictx.InvocationID())
	}
}
