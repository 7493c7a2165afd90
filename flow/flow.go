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

// Package flow implements the single-flow step machine for one LLM
// agent: ordered request pre-processors, a model call, ordered response
// post-processors, tool dispatch, and the loop that continues until no
// function-calls remain, endInvocation is set, or the call budget is
// exhausted.
package flow

import (
	"fmt"
	"iter"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/plugin"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/telemetry"
	"github.com/fluxgraph/agentcore/tool"
)

// pluginManager type-asserts the invocation's opaque plugin handle back
// to a *plugin.Manager, returning nil (a valid, no-op receiver) if none
// was configured. Duplicated from agent's helper of the same name since
// flow must not import agent (agent will import flow for LLMAgent).
func pluginManager(ictx *invocation.Context) *plugin.Manager {
	pm, _ := ictx.Plugins().(*plugin.Manager)
	return pm
}

// telemetryService unwraps the telemetry handle the same way; a nil
// result is a valid no-op receiver.
func telemetryService(ictx *invocation.Context) *telemetry.Service {
	ts, _ := ictx.Services().Telemetry.(*telemetry.Service)
	return ts
}

// modelPluginContext adapts an invocation and agent name to
// plugin.AgentContext for the model-level hooks.
type modelPluginContext struct {
	ictx      *invocation.Context
	agentName string
}

func (m modelPluginContext) InvocationID() string { return m.ictx.InvocationID() }
func (m modelPluginContext) AgentName() string    { return m.agentName }

// RequestProcessor mutates the outgoing LlmRequest and may emit events
// of its own (e.g. the instructions processor never does, the
// context-cache processor may record bookkeeping events in richer
// deployments).
type RequestProcessor func(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error)

// ResponseProcessor mutates the incoming model response and may emit
// events, most notably the output-schema processor's error event on
// validation failure.
type ResponseProcessor func(ictx *invocation.Context, req *llm.Request, resp *llm.Response) ([]*session.Event, error)

// Config is everything one LLM agent's single flow needs: identity used
// to build instructions, the model, its tools, and the processor
// pipeline (defaulted by New if left nil).
type Config struct {
	AgentName         string
	Instruction       string
	GlobalInstruction string
	Model             llm.Model
	GenerateConfig    *genai.GenerateContentConfig
	Tools             []tool.Tool
	OutputSchema      *jsonschema.Schema

	DisallowTransferToParent bool
	DisallowTransferToPeers  bool
	TransferTargets          []TransferTarget

	Cache *CacheConfig

	RequestProcessors  []RequestProcessor
	ResponseProcessors []ResponseProcessor
}

// Flow runs the single-flow step machine for one LLM agent.
type Flow struct {
	cfg Config
}

// New builds a Flow. If cfg.RequestProcessors/ResponseProcessors are
// nil, the canonical default pipeline is used.
func New(cfg Config) *Flow {
	if cfg.RequestProcessors == nil {
		cfg.RequestProcessors = DefaultRequestProcessors(cfg)
	}
	if cfg.ResponseProcessors == nil {
		cfg.ResponseProcessors = DefaultResponseProcessors(cfg)
	}
	return &Flow{cfg: cfg}
}

// Run is the step machine: construct a request, preprocess, call the
// model, postprocess, classify, dispatch tools if needed, loop.
func (f *Flow) Run(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		for {
			if ictx.Ended() {
				return
			}

			req := &llm.Request{
				Model:    f.cfg.Model.Name(),
				Contents: buildContents(ictx),
				Config:   cloneGenerateConfig(f.cfg.GenerateConfig),
			}
			if req.Config == nil {
				req.Config = &genai.GenerateContentConfig{}
			}

			for _, proc := range f.cfg.RequestProcessors {
				events, err := proc(ictx, req)
				for _, ev := range events {
					if !yield(ev, nil) {
						return
					}
				}
				if err != nil {
					yield(nil, fmt.Errorf("request processor: %w", err))
					return
				}
			}

			pctx := modelPluginContext{ictx: ictx, agentName: f.cfg.AgentName}

			resp, err := pluginManager(ictx).BeforeModel(pctx, req)
			if err != nil {
				yield(session.NewErrorEvent(ictx.InvocationID(), f.cfg.AgentName, ictx.Branch(),
					"BeforeModelCallbackError", err.Error()), nil)
				return
			}
			if resp == nil {
				if err := ictx.Cost().IncrementLLMCalls(ictx.RunConfig().MaxLLMCalls); err != nil {
					yield(session.NewErrorEvent(ictx.InvocationID(), f.cfg.AgentName, ictx.Branch(),
						"LlmCallsLimitExceeded", err.Error()), nil)
					return
				}

				start := time.Now()
				if ictx.RunConfig().StreamingMode == invocation.StreamingModeSSE {
					// Partial chunks are forwarded as they arrive (marked
					// Partial so the runner does not persist them); the
					// trailing non-partial response drives classification.
					stopped := false
					for sresp, serr := range f.cfg.Model.GenerateStream(ictx.Context(), req) {
						if serr != nil {
							err = serr
							break
						}
						if sresp.Partial {
							if !yield(&session.Event{Author: f.cfg.AgentName, Content: sresp.Content, Partial: true}, nil) {
								stopped = true
								break
							}
							continue
						}
						resp = sresp
					}
					if stopped {
						return
					}
				} else {
					resp, err = f.cfg.Model.Generate(ictx.Context(), req)
				}
				if resp == nil && err == nil {
					err = fmt.Errorf("model %s produced no final response", f.cfg.Model.Name())
				}
				finish := ""
				if resp != nil {
					finish = string(resp.FinishReason)
				}
				telemetryService(ictx).TraceModelCall(ictx.Context(), f.cfg.Model.Name(), finish, time.Since(start))
				if err != nil {
					recovered, rerr := pluginManager(ictx).OnModelError(pctx, req, err)
					if rerr != nil {
						yield(session.NewErrorEvent(ictx.InvocationID(), f.cfg.AgentName, ictx.Branch(),
							"OnModelErrorCallbackError", rerr.Error()), nil)
						return
					}
					if recovered == nil {
						yield(session.NewErrorEvent(ictx.InvocationID(), f.cfg.AgentName, ictx.Branch(),
							"ModelCallFailed", err.Error()), nil)
						return
					}
					resp = recovered
				}
			}

			if afterResp, aerr := pluginManager(ictx).AfterModel(pctx, resp, nil); aerr != nil {
				yield(session.NewErrorEvent(ictx.InvocationID(), f.cfg.AgentName, ictx.Branch(),
					"AfterModelCallbackError", aerr.Error()), nil)
				return
			} else if afterResp != nil {
				resp = afterResp
			}

			// Response-processor events (most notably the output-schema
			// error) are buffered and emitted after the model event, so
			// the caller sees the original response first and the
			// verdict on it second.
			var procEvents []*session.Event
			for _, proc := range f.cfg.ResponseProcessors {
				events, perr := proc(ictx, req, resp)
				procEvents = append(procEvents, events...)
				if perr != nil {
					yield(nil, fmt.Errorf("response processor: %w", perr))
					return
				}
			}

			modelEvent := &session.Event{
				Author:  f.cfg.AgentName,
				Content: resp.Content,
			}
			if resp.UsageMetadata != nil {
				modelEvent.UsageMetadata = &session.UsageMetadata{
					PromptTokenCount:     resp.UsageMetadata.PromptTokenCount,
					CandidatesTokenCount: resp.UsageMetadata.CandidatesTokenCount,
					TotalTokenCount:      resp.UsageMetadata.TotalTokenCount,
				}
			}
			if !yield(modelEvent, nil) {
				return
			}
			for _, ev := range procEvents {
				if !yield(ev, nil) {
					return
				}
			}

			calls := modelEvent.FunctionCalls()
			if len(calls) == 0 {
				return
			}

			respEvent, transferred, err := Dispatch(ictx, f.cfg.AgentName, f.cfg.Tools, calls)
			if err != nil {
				yield(nil, fmt.Errorf("tool dispatch: %w", err))
				return
			}
			if !yield(respEvent, nil) {
				return
			}
			if transferred != "" {
				log.Debug().Str("agent", f.cfg.AgentName).Str("target", transferred).Msg("transfer requested")
				return
			}
			if respEvent.Actions != nil && respEvent.Actions.Escalate {
				return
			}
			if ictx.Ended() {
				return
			}
		}
	}
}

// buildContents assembles the conversation from the session log. The
// pending user content is appended only when the runner has not already
// persisted it as a session event, so it never appears twice.
func buildContents(ictx *invocation.Context) []*genai.Content {
	var contents []*genai.Content
	uc := ictx.UserContent()
	userLogged := false
	if sess := ictx.Session(); sess != nil {
		for _, ev := range sess.Events {
			if ev.Content == nil {
				continue
			}
			contents = append(contents, ev.Content)
			if ev.Content == uc {
				userLogged = true
			}
		}
	}
	if uc != nil && !userLogged {
		contents = append(contents, uc)
	}
	return contents
}

func cloneGenerateConfig(cfg *genai.GenerateContentConfig) *genai.GenerateContentConfig {
	if cfg == nil {
		return &genai.GenerateContentConfig{}
	}
	clone := *cfg
	clone.Tools = append([]*genai.Tool(nil), cfg.Tools...)
	return &clone
}
