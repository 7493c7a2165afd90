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

// Package runner wires the runtime together: it locates the agent to
// run, builds the invocation context, persists every emitted event to
// the session, and forwards the stream to the caller.
package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/agent"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/memory"
	"github.com/fluxgraph/agentcore/plugin"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/telemetry"
)

// Config is used to create a Runner.
type Config struct {
	AppName string
	// Agent is the root of the tree execution starts at.
	Agent          agent.Agent
	SessionService session.Service

	// optional
	MemoryService memory.Service
	// optional, opaque: handed to tools through the invocation context.
	ArtifactService any
	// optional
	Plugins *plugin.Manager
	// optional
	Telemetry *telemetry.Service
}

// Runner manages the execution of an agent tree within a session:
// message intake, event persistence, and the invocation lifecycle.
type Runner struct {
	appName        string
	rootAgent      agent.Agent
	sessionService session.Service
	memoryService  memory.Service
	artifacts      any
	plugins        *plugin.Manager
	telemetry      *telemetry.Service
}

// New creates a Runner. The agent tree is validated once here: names
// must be unique across the whole tree, not just among siblings.
func New(cfg Config) (*Runner, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("runner: root agent is required")
	}
	if cfg.SessionService == nil {
		return nil, fmt.Errorf("runner: session service is required")
	}
	if err := validateTree(cfg.Agent, map[string]bool{}); err != nil {
		return nil, err
	}
	return &Runner{
		appName:        cfg.AppName,
		rootAgent:      cfg.Agent,
		sessionService: cfg.SessionService,
		memoryService:  cfg.MemoryService,
		artifacts:      cfg.ArtifactService,
		plugins:        cfg.Plugins,
		telemetry:      cfg.Telemetry,
	}, nil
}

func validateTree(a agent.Agent, seen map[string]bool) error {
	if err := agent.ValidateName(a.Name()); err != nil {
		return fmt.Errorf("runner: agent %q: %w", a.Name(), err)
	}
	if seen[a.Name()] {
		return fmt.Errorf("runner: duplicate agent name %q in tree", a.Name())
	}
	seen[a.Name()] = true
	for _, sub := range a.SubAgents() {
		if err := validateTree(sub, seen); err != nil {
			return err
		}
	}
	return nil
}

// userMessageContext satisfies plugin.AgentContext for the hooks that
// run before an invocation context exists.
type userMessageContext struct {
	invocationID string
	agentName    string
}

func (u userMessageContext) InvocationID() string { return u.invocationID }
func (u userMessageContext) AgentName() string    { return u.agentName }

// Run runs the agent tree for one user message, yielding events as the
// invocation produces them. The user message is appended to the session
// before the invocation starts; every non-partial agent event is
// appended as it is emitted, so the session log order equals the
// caller-observed order.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, msg *genai.Content, cfg invocation.RunConfig) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		sess, err := r.sessionService.GetSession(ctx, r.appName, userID, sessionID, session.GetOptions{})
		if err != nil {
			yield(nil, fmt.Errorf("runner: getting session: %w", err))
			return
		}

		agentToRun := r.findAgentToRun(sess)

		ictx, err := invocation.New(ctx, invocation.Params{
			Agent:       agentToRun,
			UserContent: msg,
			RunConfig:   cfg,
			Session:     sess,
			SessionSvc:  r.sessionService,
			Services: invocation.Services{
				Artifacts: r.artifacts,
				Memory:    r.memoryService,
				Telemetry: r.telemetry,
			},
			Plugins: r.plugins,
		})
		if err != nil {
			yield(nil, err)
			return
		}

		hookCtx := userMessageContext{invocationID: ictx.InvocationID(), agentName: agentToRun.Name()}
		if msg != nil {
			msg, err = r.plugins.OnUserMessage(hookCtx, msg)
			if err != nil {
				yield(nil, fmt.Errorf("runner: on-user-message hook: %w", err))
				return
			}
			ictx = ictx.WithUserContent(msg)
			userEvent := &session.Event{
				InvocationID: ictx.InvocationID(),
				Author:       session.UserAuthor,
				Content:      msg,
			}
			if _, err := r.sessionService.AppendEvent(ctx, sess, userEvent); err != nil {
				yield(nil, fmt.Errorf("runner: appending user event: %w", err))
				return
			}
		}

		stream := agentToRun.Run(ictx)
		stream = r.telemetry.WrapStream(ctx, "invoke_agent", agentToRun.Name(), ictx.InvocationID(), sessionID, stream)
		ictx.Spans().IncrementStreams()

		for ev, err := range stream {
			if err != nil {
				// The stream terminates cleanly: a Go error becomes one
				// trailing error event rather than crossing the API
				// boundary as an exception.
				yield(errorEvent(ictx, agentToRun.Name(), err), nil)
				return
			}
			if ev == nil {
				continue
			}
			if ev.InvocationID == "" {
				ev.InvocationID = ictx.InvocationID()
			}

			ev, err = r.plugins.OnEvent(hookCtx, ev)
			if err != nil {
				yield(errorEvent(ictx, agentToRun.Name(), err), nil)
				return
			}

			ictx.Spans().IncrementEvents()
			if !ev.Partial {
				if _, err := r.sessionService.AppendEvent(ctx, sess, ev); err != nil {
					yield(nil, fmt.Errorf("runner: appending event: %w", err))
					return
				}
			}
			if !yield(ev, nil) {
				return
			}
		}
		log.Debug().
			Str("app", r.appName).
			Str("invocation_id", ictx.InvocationID()).
			Str("agent", agentToRun.Name()).
			Msg("invocation complete")
	}
}

// errorEvent maps a propagated Go error onto the error-event taxonomy,
// preserving the classified code when the error carries one.
func errorEvent(ictx *invocation.Context, author string, err error) *session.Event {
	code := "InternalError"
	var classified *agent.Error
	if errors.As(err, &classified) {
		code = classified.Code
	}
	return session.NewErrorEvent(ictx.InvocationID(), author, ictx.Branch(), code, err.Error())
}

// findAgentToRun continues the conversation with the agent that authored
// the session's most recent agent event, provided it is still reachable
// in the tree; otherwise the root agent runs.
func (r *Runner) findAgentToRun(sess *session.Session) agent.Agent {
	for i := len(sess.Events) - 1; i >= 0; i-- {
		author := sess.Events[i].Author
		if author == "" || author == session.UserAuthor {
			continue
		}
		if found := agent.FindByName(r.rootAgent, author); found != nil {
			return found
		}
	}
	return r.rootAgent
}

// AddSessionToMemory ingests a session into the configured memory
// service so later invocations can recall it.
func (r *Runner) AddSessionToMemory(ctx context.Context, userID, sessionID string) error {
	if r.memoryService == nil {
		return fmt.Errorf("runner: no memory service configured")
	}
	sess, err := r.sessionService.GetSession(ctx, r.appName, userID, sessionID, session.GetOptions{})
	if err != nil {
		return fmt.Errorf("runner: getting session: %w", err)
	}
	return r.memoryService.AddSession(ctx, sess)
}
