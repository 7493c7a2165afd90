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

package flow_test

import (
	"context"
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/flow"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/tool"
)

type namedAgent string

func (n namedAgent) Name() string { return string(n) }

func newFlowContext(t *testing.T, agentName string, cfg invocation.RunConfig) *invocation.Context {
	t.Helper()
	svc := session.NewInMemoryService()
	sess, err := svc.CreateSession(context.Background(), "test", "u1", nil, "s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ictx, err := invocation.New(context.Background(), invocation.Params{
		Agent:       namedAgent(agentName),
		UserContent: genai.NewContentFromText("ping", genai.RoleUser),
		RunConfig:   cfg,
		Session:     sess,
		SessionSvc:  svc,
	})
	if err != nil {
		t.Fatalf("invocation.New: %v", err)
	}
	return ictx
}

func collectFlow(t *testing.T, f *flow.Flow, ictx *invocation.Context) []*session.Event {
	t.Helper()
	var events []*session.Event
	for ev, err := range f.Run(ictx) {
		if err != nil {
			t.Fatalf("flow error: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

type calcArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type calcResult struct {
	Sum float64 `json:"sum"`
}

func newCalcTool() tool.Tool {
	return tool.NewFunctionTool("add", "adds two numbers",
		func(ctx context.Context, tctx tool.Context, args calcArgs) (calcResult, error) {
			return calcResult{Sum: args.A + args.B}, nil
		})
}

func functionCallResponse(id, name string, args map[string]any) *llm.Response {
	return &llm.Response{Content: &genai.Content{
		Role:  string(genai.RoleModel),
		Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: id, Name: name, Args: args}}},
	}}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: genai.NewContentFromText(text, genai.RoleModel)}
}

func TestFlow_SingleFinalResponse(t *testing.T) {
	model := llm.NewFake("fake", textResponse("pong"))
	f := flow.New(flow.Config{AgentName: "echo", Model: model})
	ictx := newFlowContext(t, "echo", invocation.DefaultRunConfig())

	events := collectFlow(t, f, ictx)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].IsFinalResponse() {
		t.Fatal("expected final response")
	}
	if got := events[0].Content.Parts[0].Text; got != "pong" {
		t.Fatalf("content = %q", got)
	}
	if ictx.Cost().LLMCalls() != 1 {
		t.Fatalf("llmCalls = %d, want 1", ictx.Cost().LLMCalls())
	}
}

func TestFlow_ToolLoop(t *testing.T) {
	model := llm.NewFake("fake",
		functionCallResponse("c1", "add", map[string]any{"a": float64(2), "b": float64(3)}),
		textResponse("5"),
	)
	f := flow.New(flow.Config{AgentName: "calc", Model: model, Tools: []tool.Tool{newCalcTool()}})
	ictx := newFlowContext(t, "calc", invocation.DefaultRunConfig())

	events := collectFlow(t, f, ictx)
	if len(events) != 3 {
		t.Fatalf("expected model, tool-response, final events; got %d", len(events))
	}

	if calls := events[0].FunctionCalls(); len(calls) != 1 || calls[0].Name != "add" {
		t.Fatalf("first event should carry the add call: %+v", events[0])
	}

	toolResp := events[1].Content.Parts[0].FunctionResponse
	if toolResp == nil || toolResp.ID != "c1" {
		t.Fatalf("second event should be the c1 function response: %+v", events[1])
	}
	if toolResp.Response["sum"] != float64(5) {
		t.Fatalf("sum = %v, want 5", toolResp.Response["sum"])
	}

	if !events[2].IsFinalResponse() || events[2].Content.Parts[0].Text != "5" {
		t.Fatalf("third event should be the final text: %+v", events[2])
	}
	if ictx.Cost().LLMCalls() != 2 {
		t.Fatalf("llmCalls = %d, want 2", ictx.Cost().LLMCalls())
	}
}

func TestFlow_BudgetExceeded(t *testing.T) {
	model := llm.NewFake("fake",
		functionCallResponse("c1", "add", map[string]any{"a": float64(1), "b": float64(1)}),
		textResponse("never reached"),
	)
	f := flow.New(flow.Config{AgentName: "calc", Model: model, Tools: []tool.Tool{newCalcTool()}})
	cfg := invocation.DefaultRunConfig()
	cfg.MaxLLMCalls = 1
	ictx := newFlowContext(t, "calc", cfg)

	events := collectFlow(t, f, ictx)
	if len(events) != 3 {
		t.Fatalf("expected model, tool-response, budget-error events; got %d", len(events))
	}
	last := events[len(events)-1]
	if last.ErrorCode != "LlmCallsLimitExceeded" {
		t.Fatalf("errorCode = %q, want LlmCallsLimitExceeded", last.ErrorCode)
	}
	if model.Calls() != 1 {
		t.Fatalf("model was called %d times, want 1: the over-budget call must never be issued", model.Calls())
	}
}

func TestFlow_EndInvocationStopsBeforeModelCall(t *testing.T) {
	model := llm.NewFake("fake", textResponse("unused"))
	f := flow.New(flow.Config{AgentName: "echo", Model: model})
	ictx := newFlowContext(t, "echo", invocation.DefaultRunConfig())
	ictx.EndInvocation()

	events := collectFlow(t, f, ictx)
	if len(events) != 0 {
		t.Fatalf("expected no events after EndInvocation, got %d", len(events))
	}
	if model.Calls() != 0 {
		t.Fatalf("model called %d times after EndInvocation", model.Calls())
	}
}

// chunkedModel streams a fixed chunk script for GenerateStream calls.
type chunkedModel struct {
	chunks []*llm.Response
}

func (m *chunkedModel) Name() string { return "chunked" }

func (m *chunkedModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return m.chunks[len(m.chunks)-1], nil
}

func (m *chunkedModel) GenerateStream(ctx context.Context, req *llm.Request) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		for _, c := range m.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestFlow_SSEStreamsPartialsThenFinal(t *testing.T) {
	model := &chunkedModel{chunks: []*llm.Response{
		{Content: genai.NewContentFromText("po", genai.RoleModel), Partial: true},
		{Content: genai.NewContentFromText("pong", genai.RoleModel)},
	}}
	f := flow.New(flow.Config{AgentName: "echo", Model: model})
	cfg := invocation.DefaultRunConfig()
	cfg.StreamingMode = invocation.StreamingModeSSE
	ictx := newFlowContext(t, "echo", cfg)

	events := collectFlow(t, f, ictx)
	if len(events) != 2 {
		t.Fatalf("expected partial + final, got %d", len(events))
	}
	if !events[0].Partial || events[0].Content.Parts[0].Text != "po" {
		t.Fatalf("first event should be the partial chunk: %+v", events[0])
	}
	if events[1].Partial || !events[1].IsFinalResponse() {
		t.Fatalf("second event should be the final response: %+v", events[1])
	}
}

func TestFlow_TransferStopsFlow(t *testing.T) {
	model := llm.NewFake("fake",
		functionCallResponse("t1", tool.TransferToAgentName, map[string]any{"agent_name": "math"}),
		textResponse("never reached"),
	)
	transferTool := tool.NewTransferToAgentTool("transfer")
	f := flow.New(flow.Config{
		AgentName:       "router",
		Model:           model,
		Tools:           []tool.Tool{transferTool},
		TransferTargets: []flow.TransferTarget{{Name: "math", Description: "does math"}},
	})
	ictx := newFlowContext(t, "router", invocation.DefaultRunConfig())

	events := collectFlow(t, f, ictx)
	if len(events) != 2 {
		t.Fatalf("expected model + transfer-response events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Actions == nil || last.Actions.TransferToAgent != "math" {
		t.Fatalf("expected transfer action on the response event: %+v", last.Actions)
	}
	if model.Calls() != 1 {
		t.Fatalf("flow continued past transfer: %d model calls", model.Calls())
	}
}
