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

// Package tool defines the tool contract the dispatcher calls through,
// a generic function-backed implementation, and the runtime's builtin
// tools (transfer_to_agent, exit_loop, task_completed).
package tool

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// Context is handed to a running tool: the invocation context plus the
// function-call id and the event actions the tool may mutate to record
// state deltas, a transfer, or an escalation.
type Context interface {
	Invocation() *invocation.Context
	FunctionCallID() string
	Actions() *session.Actions
	State(key string) (any, bool)
	SetState(key string, value any)
}

type toolContext struct {
	ictx    *invocation.Context
	callID  string
	actions *session.Actions
}

// NewContext builds a tool.Context for one function call. If callID is
// empty a new one is generated.
func NewContext(ictx *invocation.Context, callID string, actions *session.Actions) Context {
	if callID == "" {
		callID = uuid.NewString()
	}
	if actions == nil {
		actions = &session.Actions{}
	}
	return &toolContext{ictx: ictx, callID: callID, actions: actions}
}

func (t *toolContext) Invocation() *invocation.Context { return t.ictx }
func (t *toolContext) FunctionCallID() string           { return t.callID }
func (t *toolContext) Actions() *session.Actions        { return t.actions }

func (t *toolContext) State(key string) (any, bool) {
	if s := t.ictx.Session(); s != nil && s.State != nil {
		return s.State.Get(key)
	}
	return nil, false
}

func (t *toolContext) SetState(key string, value any) {
	if t.actions.StateDelta == nil {
		t.actions.StateDelta = map[string]any{}
	}
	t.actions.StateDelta[key] = value
}

// Tool is the contract the dispatcher calls through.
type Tool interface {
	Name() string
	Description() string
	IsLongRunning() bool
	// ProcessRequest declares this tool's function signature onto the
	// outgoing model request.
	ProcessRequest(ctx context.Context, req *genai.GenerateContentConfig) error
	// Run executes the tool against the given already-decoded arguments
	// and returns the value to wrap into a function-response part.
	Run(ctx context.Context, tctx Context, args map[string]any) (any, error)
}

// Set is a toolset: a tool-like thing that expands into zero or more
// concrete tools for a given invocation, e.g. one backed by a remote
// registry.
type Set interface {
	Tool
	Tools(ctx context.Context, tctx Context) ([]Tool, error)
}
