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
	"iter"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/flow"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/tool"
)

// LLMAgentConfig is everything specific to one LLM-backed agent: the
// base lifecycle (name, description, sub-agents, callbacks) is
// configured separately via the shared Option values.
type LLMAgentConfig struct {
	Model             llm.Model
	Instruction       string
	GlobalInstruction string
	GenerateConfig    *genai.GenerateContentConfig
	Tools             []tool.Tool
	OutputSchema      *jsonschema.Schema
	Cache             *flow.CacheConfig

	// OutputKey, when set, names the session-state key a Parallel parent
	// maps this agent's last final response text to in its consolidation
	// event.
	OutputKey string

	// DisallowTransferToParent and DisallowTransferToPeers narrow the
	// automatic transfer targets computed from the agent tree; by
	// default a non-root agent may transfer to its parent and its
	// parent's other children.
	DisallowTransferToParent bool
	DisallowTransferToPeers  bool
}

// LLMAgent drives one LLM through the single-flow step machine and
// follows transfer_to_agent hand-offs within the same invocation.
type LLMAgent struct {
	*base
	cfg LLMAgentConfig
}

// NewLLMAgent builds an LLM-backed agent. opts configures the shared
// base lifecycle (description, sub-agents, before/after callbacks).
func NewLLMAgent(name string, cfg LLMAgentConfig, opts ...Option) (*LLMAgent, error) {
	b, err := newBase(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	a := &LLMAgent{base: b, cfg: cfg}
	b.impl = a.runImpl
	return a, nil
}

// OutputKey returns the state key a Parallel parent consolidates this
// agent's final response under, or "" when none was configured.
func (a *LLMAgent) OutputKey() string { return a.cfg.OutputKey }

// transferTargets computes the agents this agent may hand off to: its
// own sub-agents, plus (unless disallowed) its parent and its parent's
// other children. Computed at run time rather than cached, since the
// tree can still grow via WithSubAgents after construction.
func (a *LLMAgent) transferTargets() []flow.TransferTarget {
	var targets []flow.TransferTarget
	for _, child := range a.SubAgents() {
		targets = append(targets, flow.TransferTarget{Name: child.Name(), Description: child.Description()})
	}
	parent := a.Parent()
	if parent == nil {
		return targets
	}
	if !a.cfg.DisallowTransferToParent {
		targets = append(targets, flow.TransferTarget{Name: parent.Name(), Description: parent.Description()})
	}
	if !a.cfg.DisallowTransferToPeers {
		for _, peer := range parent.SubAgents() {
			if peer.Name() == a.Name() {
				continue
			}
			targets = append(targets, flow.TransferTarget{Name: peer.Name(), Description: peer.Description()})
		}
	}
	return targets
}

// buildFlow assembles this call's Flow: the configured tools, plus the
// transfer_to_agent tool when transfer targets exist, plus a
// per-invocation task_completed overlay in live/bidi streaming mode
// (never mutating cfg.Tools itself, so the agent stays reusable across
// concurrent invocations per the live-sequential open question).
func (a *LLMAgent) buildFlow(ictx *invocation.Context) *flow.Flow {
	targets := a.transferTargets()
	tools := append([]tool.Tool(nil), a.cfg.Tools...)
	if len(targets) > 0 {
		tools = append(tools, tool.NewTransferToAgentTool("Transfer the conversation to another agent better suited to handle the user's request."))
	}
	instruction := a.cfg.Instruction
	if ictx.RunConfig().StreamingMode == invocation.StreamingModeBidi {
		tools = append(tools, tool.NewTaskCompletedTool())
		instruction += "\n\nCall task_completed once you have finished your part of the conversation."
	}

	return flow.New(flow.Config{
		AgentName:                a.Name(),
		Instruction:              instruction,
		GlobalInstruction:        a.cfg.GlobalInstruction,
		Model:                    a.cfg.Model,
		GenerateConfig:           a.cfg.GenerateConfig,
		Tools:                    tools,
		OutputSchema:             a.cfg.OutputSchema,
		DisallowTransferToParent: a.cfg.DisallowTransferToParent,
		DisallowTransferToPeers:  a.cfg.DisallowTransferToPeers,
		TransferTargets:          targets,
		Cache:                    a.cfg.Cache,
	})
}

// runImpl drives the single-flow step machine and, if the model
// transferred control, continues the same invocation under the target
// agent. The originating agent emits no further events once transfer
// has been followed.
func (a *LLMAgent) runImpl(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		f := a.buildFlow(ictx)

		transferred := ""
		for ev, err := range f.Run(ictx) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if ev != nil && ev.Actions != nil && ev.Actions.TransferToAgent != "" {
				transferred = ev.Actions.TransferToAgent
			}
			if !yield(ev, nil) {
				return
			}
		}

		if transferred == "" {
			return
		}
		a.followTransfer(ictx, transferred, yield)
	}
}

// followTransfer resolves the transfer target within the same tree and,
// depth permitting, continues the invocation under it. On failure it
// emits an error event rather than a Go error, matching the rest of the
// step machine's error-event taxonomy.
func (a *LLMAgent) followTransfer(ictx *invocation.Context, targetName string, yield func(*session.Event, error) bool) {
	tc := ictx.Transfer()
	if tc.Depth+1 > ictx.RunConfig().TransferMaxDepth {
		yield(session.NewErrorEvent(ictx.InvocationID(), a.Name(), ictx.Branch(),
			ErrTransferLimit.Code, ErrTransferLimit.Message), nil)
		return
	}

	target := FindByName(a, targetName)
	if target == nil || target.Name() == session.UserAuthor {
		yield(session.NewErrorEvent(ictx.InvocationID(), a.Name(), ictx.Branch(),
			ErrInvalidTransferTarget.Code, ErrInvalidTransferTarget.Message), nil)
		return
	}

	tc.Depth++
	tc.Chain = append(tc.Chain, targetName)

	targetCtx := ictx.Retarget(target)
	for ev, err := range target.Run(targetCtx) {
		if !yield(ev, err) {
			return
		}
		if err != nil {
			return
		}
	}
}
