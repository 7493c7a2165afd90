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
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/agent"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

func TestLoop_RunsMaxIterations(t *testing.T) {
	worker := scripted(t, "worker", "pass")
	loop, err := agent.NewLoop("loop", 3, agent.WithSubAgents(worker))
	if err != nil {
		t.Fatal(err)
	}

	events := collect(t, loop.Run(newTestContext(t, loop)))
	if len(events) != 3 {
		t.Fatalf("expected 3 events (one per iteration), got %d", len(events))
	}
}

func TestLoop_RejectsNonPositiveIterations(t *testing.T) {
	if _, err := agent.NewLoop("loop", 0); err == nil {
		t.Fatal("expected error for maxIterations == 0")
	}
}

func TestLoop_EscalateExitsEarly(t *testing.T) {
	iterations := 0
	worker, err := agent.NewCustom("worker", func(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			iterations++
			ev := &session.Event{Content: genai.NewContentFromText("attempt", genai.RoleModel)}
			if iterations == 2 {
				ev.Actions = &session.Actions{Escalate: true}
			}
			yield(ev, nil)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	loop, err := agent.NewLoop("loop", 10, agent.WithSubAgents(worker))
	if err != nil {
		t.Fatal(err)
	}

	events := collect(t, loop.Run(newTestContext(t, loop)))
	if iterations != 2 {
		t.Fatalf("expected exit on 2nd iteration, ran %d", iterations)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestLoop_EndInvocationStops(t *testing.T) {
	worker, err := agent.NewCustom("worker", func(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			yield(&session.Event{
				Content: genai.NewContentFromText("done", genai.RoleModel),
				Actions: &session.Actions{EndInvocation: true},
			}, nil)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	loop, err := agent.NewLoop("loop", 5, agent.WithSubAgents(worker))
	if err != nil {
		t.Fatal(err)
	}

	ictx := newTestContext(t, loop)
	events := collect(t, loop.Run(ictx))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !ictx.Ended() {
		t.Fatal("expected invocation to be ended")
	}
}
