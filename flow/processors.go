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

package flow

import (
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
)

// DefaultRequestProcessors returns the canonical pre-processor order:
// basic -> auth -> instructions -> identity -> contents -> shared-memory
// -> context-cache -> NL-planning -> code-execution. auth, shared-memory,
// NL-planning and code-execution are named no-op stages: the runtime
// consumes them through external collaborators outside this module's
// scope, but the pipeline's shape is kept so a custom flow can still be
// described as "the default list plus/minus named entries".
func DefaultRequestProcessors(cfg Config) []RequestProcessor {
	procs := []RequestProcessor{
		basicRequestProcessor(cfg),
		authRequestProcessor,
	}
	procs = append(procs, instructionsRequestProcessor(cfg))
	procs = append(procs, identityRequestProcessor(cfg))
	procs = append(procs, contentsRequestProcessor)
	procs = append(procs, sharedMemoryRequestProcessor)
	if cfg.Cache != nil {
		procs = append(procs, ContextCacheRequestProcessor(cfg.Cache))
	}
	procs = append(procs, nlPlanningRequestProcessor)
	if len(cfg.TransferTargets) > 0 {
		procs = append(procs, TransferRequestProcessor(cfg))
	}
	procs = append(procs, codeExecutionRequestProcessor)
	return procs
}

// DefaultResponseProcessors returns the canonical post-processor order:
// NL-planning -> output-schema -> code-execution.
func DefaultResponseProcessors(cfg Config) []ResponseProcessor {
	procs := []ResponseProcessor{nlPlanningResponseProcessor}
	if cfg.OutputSchema != nil {
		procs = append(procs, OutputSchemaResponseProcessor(cfg.OutputSchema))
	}
	procs = append(procs, codeExecutionResponseProcessor)
	return procs
}

// basicRequestProcessor populates the request's generation config from
// the agent's static configuration and declares every tool onto it.
func basicRequestProcessor(cfg Config) RequestProcessor {
	return func(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
		if req.Config == nil {
			return nil, nil
		}
		for _, t := range cfg.Tools {
			if err := t.ProcessRequest(ictx.Context(), req.Config); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
}

// authRequestProcessor is a named no-op: authenticating outbound tool
// calls against an external credential store is an explicit external
// collaborator, not something this runtime implements.
func authRequestProcessor(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
	return nil, nil
}

// instructionsRequestProcessor prepends the agent's global and local
// instruction text as a system instruction.
func instructionsRequestProcessor(cfg Config) RequestProcessor {
	return func(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
		instruction := cfg.GlobalInstruction
		if cfg.Instruction != "" {
			if instruction != "" {
				instruction += "\n\n"
			}
			instruction += cfg.Instruction
		}
		if instruction == "" {
			return nil, nil
		}
		if current := req.Config.SystemInstruction; current != nil && len(current.Parts) > 0 && current.Parts[0].Text != "" {
			req.Config.SystemInstruction = genai.NewContentFromText(current.Parts[0].Text+"\n\n"+instruction, "")
		} else {
			req.Config.SystemInstruction = genai.NewContentFromText(instruction, "")
		}
		return nil, nil
	}
}

// identityRequestProcessor is a named no-op placeholder for agent-
// identity declarations (e.g. a persona block); nothing in scope
// populates it beyond the instruction text above.
func identityRequestProcessor(cfg Config) RequestProcessor {
	return func(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
		return nil, nil
	}
}

// contentsRequestProcessor is a no-op here: Flow.Run already builds
// req.Contents from the session log before running the pipeline. It
// exists as a named stage so the pipeline shape matches the canonical
// order even though the work happens earlier.
func contentsRequestProcessor(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
	return nil, nil
}

// sharedMemoryRequestProcessor is a named no-op: long-term memory
// retrieval is an external collaborator reached through
// invocation.Context.Services, not a component this module implements.
func sharedMemoryRequestProcessor(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
	return nil, nil
}

// nlPlanningRequestProcessor and its response-side counterpart are named
// no-ops: planning prompts are a model-specific concern out of scope
// here.
func nlPlanningRequestProcessor(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
	return nil, nil
}

func nlPlanningResponseProcessor(ictx *invocation.Context, req *llm.Request, resp *llm.Response) ([]*session.Event, error) {
	return nil, nil
}

// codeExecutionRequestProcessor and its response-side counterpart are
// named no-ops: the container-based code executor is an explicit
// external collaborator.
func codeExecutionRequestProcessor(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
	return nil, nil
}

func codeExecutionResponseProcessor(ictx *invocation.Context, req *llm.Request, resp *llm.Response) ([]*session.Event, error) {
	return nil, nil
}
