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
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/plugin"
	"github.com/fluxgraph/agentcore/session"
	"github.com/rs/zerolog/log"
)

// pluginManager type-asserts the invocation's opaque plugin handle back
// to a *plugin.Manager, returning nil (a valid, no-op receiver) if none
// was configured.
func pluginManager(ictx *invocation.Context) *plugin.Manager {
	pm, _ := ictx.Plugins().(*plugin.Manager)
	return pm
}

// RunImpl is the agent-kind-specific behavior: LLMAgent, Sequential,
// Parallel, Loop and Graph each supply one. Dynamic dispatch on agent
// kind collapses to this single function value rather than a class
// hierarchy.
type RunImpl func(ictx *invocation.Context) iter.Seq2[*session.Event, error]

// base implements the shared lifecycle of every agent: name/description,
// tree links, before/after callbacks, and the wrapping described in the
// base agent lifecycle contract. Concrete agents embed *base and supply
// a RunImpl.
type base struct {
	name        string
	description string
	parent      Agent
	subAgents   []Agent

	beforeAgent []Callback
	afterAgent  []Callback

	impl RunImpl
}

// Option configures a base agent at construction time.
type Option func(*base)

// WithDescription sets the agent's description.
func WithDescription(d string) Option {
	return func(b *base) { b.description = d }
}

// WithSubAgents attaches children to the tree. It panics if a name is
// duplicated among siblings or if a child already has a parent,
// mirroring the construction-time invariant checks the tree requires.
func WithSubAgents(children ...Agent) Option {
	return func(b *base) {
		seen := make(map[string]bool, len(b.subAgents))
		for _, existing := range b.subAgents {
			seen[existing.Name()] = true
		}
		for _, child := range children {
			if seen[child.Name()] {
				panic(fmt.Errorf("%w: %s", ErrDuplicateSubAgentName, child.Name()))
			}
			if child.Parent() != nil {
				panic(fmt.Errorf("%w: %s", ErrAgentAlreadyHasParent, child.Name()))
			}
			seen[child.Name()] = true
			b.subAgents = append(b.subAgents, child)
			if setter, ok := child.(interface{ setParent(Agent) }); ok {
				setter.setParent(b)
			}
		}
	}
}

// WithBeforeAgent appends a before-agent callback.
func WithBeforeAgent(cb Callback) Option {
	return func(b *base) { b.beforeAgent = append(b.beforeAgent, cb) }
}

// WithAfterAgent appends an after-agent callback.
func WithAfterAgent(cb Callback) Option {
	return func(b *base) { b.afterAgent = append(b.afterAgent, cb) }
}

// newBase validates the name invariant and applies options. impl may be
// nil for composites that fill it in after construction (they need a
// pointer to the already-built base to close over).
func newBase(name string, impl RunImpl, opts ...Option) (*base, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	b := &base{name: name, impl: impl}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }
func (b *base) SubAgents() []Agent  { return b.subAgents }
func (b *base) Parent() Agent {
	if b.parent == nil {
		return nil
	}
	return b.parent
}

func (b *base) setParent(p Agent) {
	if b.parent != nil {
		panic(fmt.Errorf("%w: %s", ErrAgentAlreadyHasParent, b.name))
	}
	b.parent = p
}

// stamp fills an event's identity fields from the invocation context.
// Author is left alone when an impl already set it (composites author
// their own synthesized events).
func (b *base) stamp(ictx *invocation.Context, ev *session.Event) *session.Event {
	if ev == nil {
		return nil
	}
	if ev.Author == "" {
		ev.Author = b.name
	}
	if ev.InvocationID == "" {
		ev.InvocationID = ictx.InvocationID()
	}
	if ev.Branch == "" {
		ev.Branch = ictx.Branch()
	}
	return ev
}

// Run implements the base agent lifecycle: before-agent callbacks, the
// agent-specific implementation unless a callback short-circuited it,
// after-agent callbacks, and a trailing state-delta-only event if
// callbacks mutated state without producing content.
func (b *base) Run(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		if ictx.Ended() {
			return
		}

		cctx := NewCallbackContext(ictx)
		pluginContent, err := pluginManager(ictx).BeforeAgent(cctx)
		if err != nil {
			yield(nil, New(KindCallback, "BeforeAgentCallbackError", "before-agent plugin callback failed", err))
			return
		}
		var content *genai.Content
		if pluginContent != nil {
			content = pluginContent
		} else {
			content, err = runCallbackChain(cctx, b.beforeAgent)
			if err != nil {
				yield(nil, New(KindCallback, "BeforeAgentCallbackError", "before-agent callback failed", err))
				return
			}
		}
		if delta := cctx.StateDelta(); len(delta) > 0 && content == nil {
			if !yield(b.stamp(ictx, &session.Event{Author: b.name, Actions: &session.Actions{StateDelta: delta}}), nil) {
				return
			}
		}
		if content != nil {
			ictx.EndInvocation()
			yield(b.stamp(ictx, &session.Event{Author: b.name, Content: content}), nil)
			return
		}

		if b.impl != nil {
			for ev, err := range b.impl(ictx) {
				if !yield(b.stamp(ictx, ev), err) {
					return
				}
				if err != nil {
					return
				}
			}
		}

		if ictx.Ended() {
			return
		}

		actx := NewCallbackContext(ictx)
		pluginAfterContent, err := pluginManager(ictx).AfterAgent(actx)
		if err != nil {
			yield(nil, New(KindCallback, "AfterAgentCallbackError", "after-agent plugin callback failed", err))
			return
		}
		afterContent := pluginAfterContent
		if afterContent == nil {
			afterContent, err = runCallbackChain(actx, b.afterAgent)
			if err != nil {
				yield(nil, New(KindCallback, "AfterAgentCallbackError", "after-agent callback failed", err))
				return
			}
		}
		afterDelta := actx.StateDelta()
		switch {
		case afterContent != nil:
			yield(b.stamp(ictx, &session.Event{Author: b.name, Content: afterContent}), nil)
		case len(afterDelta) > 0:
			yield(b.stamp(ictx, &session.Event{Author: b.name, Actions: &session.Actions{StateDelta: afterDelta}}), nil)
		}

		log.Debug().Str("agent", b.name).Str("invocation_id", ictx.InvocationID()).Msg("agent run complete")
	}
}
