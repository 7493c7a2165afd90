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

// Package invocation implements the per-invocation mutable bundle every
// agent runs against: the current agent, branch path, run configuration,
// cost and span counters, the transfer chain, and the session handle.
package invocation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/session"
)

// StreamingMode selects how the model call within a step is driven.
type StreamingMode string

const (
	StreamingModeNone StreamingMode = "none"
	StreamingModeSSE  StreamingMode = "sse"
	StreamingModeBidi StreamingMode = "bidi"
)

// RunConfig carries the options recognized at the top of an invocation.
type RunConfig struct {
	// MaxLLMCalls bounds the number of model calls in this invocation.
	// It must be positive; 0 is rejected, not treated as "unbounded".
	MaxLLMCalls        int
	StreamingMode      StreamingMode
	ResponseModalities []string
	// OutputAudioTranscription asks live-mode model adapters to
	// transcribe generated audio; the runtime only carries the flag.
	OutputAudioTranscription bool
	SupportCFC               bool
	// TransferMaxDepth bounds how many transfer_to_agent hops one
	// invocation may take.
	TransferMaxDepth int
	CustomMetadata   map[string]any
}

// DefaultRunConfig returns sane positive defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxLLMCalls:      20,
		StreamingMode:    StreamingModeNone,
		TransferMaxDepth: 5,
	}
}

// Validate enforces RunConfig invariants, most notably that
// MaxLLMCalls is positive: this module's resolution of the spec's
// open question on a zero budget is to reject it outright.
func (c RunConfig) Validate() error {
	if c.MaxLLMCalls <= 0 {
		return fmt.Errorf("%w: MaxLLMCalls must be positive, got %d", ErrInvalidRunConfig, c.MaxLLMCalls)
	}
	if c.TransferMaxDepth <= 0 {
		return fmt.Errorf("%w: TransferMaxDepth must be positive, got %d", ErrInvalidRunConfig, c.TransferMaxDepth)
	}
	return nil
}

// ErrInvalidRunConfig is returned by Validate and by New when RunConfig
// fields are out of bounds.
var ErrInvalidRunConfig = errors.New("invocation: invalid run config")

// TransferContext tracks the agents an invocation has moved through via
// transfer_to_agent.
type TransferContext struct {
	Chain        []string
	Depth        int
	RootAgentName string
}

// CostCounter enforces the model-call budget. It is shared by every
// context derived from the same invocation.
type CostCounter struct {
	llmCalls int64
}

// LLMCalls returns the number of model calls issued so far.
func (c *CostCounter) LLMCalls() int {
	return int(atomic.LoadInt64(&c.llmCalls))
}

// IncrementLLMCalls increments the counter if doing so would not exceed
// max, returning ErrLLMCallsLimitExceeded otherwise. The call that would
// have exceeded the budget is never issued.
func (c *CostCounter) IncrementLLMCalls(max int) error {
	for {
		cur := atomic.LoadInt64(&c.llmCalls)
		if int(cur) >= max {
			return ErrLLMCallsLimitExceeded
		}
		if atomic.CompareAndSwapInt64(&c.llmCalls, cur, cur+1) {
			return nil
		}
	}
}

// ErrLLMCallsLimitExceeded is returned by IncrementLLMCalls once the
// configured budget would be exceeded.
var ErrLLMCallsLimitExceeded = errors.New("invocation: LlmCallsLimitExceeded")

// SpanCounters tracks how many event streams and events one invocation
// has produced, for telemetry attribution. Shared by every context
// derived from the same invocation.
type SpanCounters struct {
	streams int64
	events  int64
}

func (s *SpanCounters) IncrementStreams() { atomic.AddInt64(&s.streams, 1) }
func (s *SpanCounters) IncrementEvents()  { atomic.AddInt64(&s.events, 1) }
func (s *SpanCounters) Streams() int      { return int(atomic.LoadInt64(&s.streams)) }
func (s *SpanCounters) Events() int       { return int(atomic.LoadInt64(&s.events)) }

// Agent is the minimal identity surface invocation needs from an agent;
// the agent package's full Agent interface satisfies it.
type Agent interface {
	Name() string
}

// Services bundles the opaque external collaborators a tool may reach
// through a context, without the runtime itself touching them.
type Services struct {
	Artifacts any
	Memory    any
	// Telemetry is the *telemetry.Service for this invocation, typed as
	// any for the same layering reason as Context.plugins: consumers
	// type-assert at the edge.
	Telemetry any
}

// Context is the per-invocation mutable bundle described in the data
// model: session handle, current agent, branch path, user content,
// run-config, cost counter, span counters, transfer chain, and shared
// services. Child contexts are created for sub-agents and inherit
// everything except CurrentAgent and Branch.
type Context struct {
	ctx context.Context

	invocationID string
	branch       string
	agent        Agent
	userContent  *genai.Content
	runConfig    RunConfig
	sess         *session.Session
	sessSvc      session.Service

	cost     *CostCounter
	spans    *SpanCounters
	transfer *TransferContext
	services Services

	// plugins holds the *plugin.Manager for this invocation, typed as
	// any so this package never imports plugin (plugin imports tool,
	// which imports invocation; a typed field here would be a cycle).
	// Callers that need it type-assert at the edge, e.g.
	// pm, _ := ictx.Plugins().(*plugin.Manager).
	plugins any

	// ended is shared by every context derived from the same invocation,
	// so EndInvocation anywhere is visible at every yield boundary.
	ended *atomic.Bool
}

// Params seeds a root invocation Context.
type Params struct {
	InvocationID string
	Agent        Agent
	UserContent  *genai.Content
	RunConfig    RunConfig
	Session      *session.Session
	SessionSvc   session.Service
	Services     Services
	// Plugins is the *plugin.Manager for this invocation, stored as any
	// to keep this package dependency-free of the plugin package.
	Plugins any
}

// New constructs the root InvocationContext for one top-level call.
func New(ctx context.Context, p Params) (*Context, error) {
	if err := p.RunConfig.Validate(); err != nil {
		return nil, err
	}
	if p.InvocationID == "" {
		p.InvocationID = uuid.NewString()
	}
	return &Context{
		ctx:          ctx,
		invocationID: p.InvocationID,
		agent:        p.Agent,
		userContent:  p.UserContent,
		runConfig:    p.RunConfig,
		sess:         p.Session,
		sessSvc:      p.SessionSvc,
		cost:         &CostCounter{},
		spans:        &SpanCounters{},
		transfer: &TransferContext{
			Chain:         []string{p.Agent.Name()},
			RootAgentName: p.Agent.Name(),
		},
		services: p.Services,
		plugins:  p.Plugins,
		ended:    &atomic.Bool{},
	}, nil
}

// Child derives a context for a sub-agent: everything is inherited
// except CurrentAgent and Branch, which is extended by ".childName".
func (c *Context) Child(childAgent Agent, childName string) *Context {
	branch := childName
	if c.branch != "" {
		branch = c.branch + "." + childName
	}
	child := *c
	child.agent = childAgent
	child.branch = branch
	return &child
}

// WithContext returns a copy of c carrying the given standard context,
// used to thread cancellation without disturbing invocation state.
func (c *Context) WithContext(ctx context.Context) *Context {
	clone := *c
	clone.ctx = ctx
	return &clone
}

// Retarget returns a copy of c with CurrentAgent swapped to newAgent,
// Branch left unchanged. This is the transfer controller's view of "the
// same invocation continues under a different agent": unlike Child, it
// does not descend the branch, since transfer_to_agent is a lateral
// hand-off rather than a parent-to-child delegation.
func (c *Context) Retarget(newAgent Agent) *Context {
	clone := *c
	clone.agent = newAgent
	return &clone
}

// WithUserContent returns a copy of c carrying content as the pending
// user message, used when an on-user-message hook rewrites it after the
// context was built.
func (c *Context) WithUserContent(content *genai.Content) *Context {
	clone := *c
	clone.userContent = content
	return &clone
}

// Plugins returns the plugin manager stored on this context, typed as
// any; callers type-assert to *plugin.Manager.
func (c *Context) Plugins() any { return c.plugins }

func (c *Context) Context() context.Context       { return c.ctx }
func (c *Context) InvocationID() string           { return c.invocationID }
func (c *Context) Branch() string                 { return c.branch }
func (c *Context) Agent() Agent                   { return c.agent }
func (c *Context) UserContent() *genai.Content    { return c.userContent }
func (c *Context) RunConfig() RunConfig           { return c.runConfig }
func (c *Context) Session() *session.Session      { return c.sess }
func (c *Context) SessionService() session.Service { return c.sessSvc }
func (c *Context) Cost() *CostCounter             { return c.cost }
func (c *Context) Spans() *SpanCounters           { return c.spans }
func (c *Context) Transfer() *TransferContext      { return c.transfer }
func (c *Context) Services() Services             { return c.services }

// EndInvocation marks the invocation for termination at the next yield
// boundary. Every composite and the step machine must check Ended.
func (c *Context) EndInvocation() {
	c.ended.Store(true)
}

// Ended reports whether EndInvocation has been called.
func (c *Context) Ended() bool {
	return c.ended.Load()
}

// AppendEvent persists an event to the invocation's session and returns
// the materialized copy. It is the only path by which session state
// changes.
func (c *Context) AppendEvent(ev *session.Event) (*session.Event, error) {
	if ev.InvocationID == "" {
		ev.InvocationID = c.invocationID
	}
	if ev.Branch == "" {
		ev.Branch = c.branch
	}
	return c.sessSvc.AppendEvent(c.ctx, c.sess, ev)
}
