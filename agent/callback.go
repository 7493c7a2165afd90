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

package agent

import (
	"sync"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
)

// ReadonlyContext is the read-only view handed to places that must not
// mutate session state directly: user content, invocation id, agent
// name, read-only state, and identity fields.
type ReadonlyContext interface {
	InvocationID() string
	AgentName() string
	Branch() string
	UserContent() *genai.Content
	AppName() string
	UserID() string
	SessionID() string
	State() map[string]any
}

type readonlyContext struct {
	ictx *invocation.Context
}

// NewReadonlyContext wraps an invocation context for read-only use.
func NewReadonlyContext(ictx *invocation.Context) ReadonlyContext {
	return &readonlyContext{ictx: ictx}
}

func (r *readonlyContext) InvocationID() string        { return r.ictx.InvocationID() }
func (r *readonlyContext) AgentName() string            { return r.ictx.Agent().Name() }
func (r *readonlyContext) Branch() string               { return r.ictx.Branch() }
func (r *readonlyContext) UserContent() *genai.Content  { return r.ictx.UserContent() }
func (r *readonlyContext) AppName() string {
	if s := r.ictx.Session(); s != nil {
		return s.App
	}
	return ""
}
func (r *readonlyContext) UserID() string {
	if s := r.ictx.Session(); s != nil {
		return s.User
	}
	return ""
}
func (r *readonlyContext) SessionID() string {
	if s := r.ictx.Session(); s != nil {
		return s.ID
	}
	return ""
}
func (r *readonlyContext) State() map[string]any {
	if s := r.ictx.Session(); s != nil && s.State != nil {
		return s.State.All()
	}
	return map[string]any{}
}

// CallbackContext is the mutable view handed to before/after callbacks.
// State writes are buffered into a StateDelta rather than applied
// directly; the caller reads the accumulated delta back out with
// StateDelta once the callback phase finishes.
type CallbackContext interface {
	ReadonlyContext
	SetState(key string, value any)
	StateDelta() map[string]any
}

type callbackContext struct {
	ReadonlyContext
	ictx  *invocation.Context
	mu    sync.Mutex
	delta map[string]any
}

// NewCallbackContext wraps an invocation context for a callback phase.
func NewCallbackContext(ictx *invocation.Context) CallbackContext {
	return &callbackContext{
		ReadonlyContext: NewReadonlyContext(ictx),
		ictx:            ictx,
		delta:           map[string]any{},
	}
}

func (c *callbackContext) SetState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delta[key] = value
}

func (c *callbackContext) StateDelta() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.delta))
	for k, v := range c.delta {
		out[k] = v
	}
	return out
}

// Callback is the uniform signature every lifecycle callback collapses
// to: heterogeneous-arity callback arrays in the source map to this one
// shape.
type Callback func(CallbackContext) (*genai.Content, error)

// BeforeAgentCallback runs before an agent's runAsyncImpl. Returning
// non-nil content short-circuits the run: the lifecycle emits one event
// carrying that content and ends the invocation.
type BeforeAgentCallback = Callback

// AfterAgentCallback runs after an agent's runAsyncImpl, unless
// EndInvocation was already set.
type AfterAgentCallback = Callback

// runCallbackChain applies the first-non-empty-wins rule: plugin
// callbacks run before user callbacks, and the first one to return
// non-nil content stops the chain.
func runCallbackChain(cctx CallbackContext, chains ...[]Callback) (*genai.Content, error) {
	for _, chain := range chains {
		for _, cb := range chain {
			if cb == nil {
				continue
			}
			content, err := cb(cctx)
			if err != nil {
				return nil, err
			}
			if content != nil {
				return content, nil
			}
		}
	}
	return nil, nil
}
