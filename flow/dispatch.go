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
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/tool"
)

// Dispatch runs every function-call concurrently, reassembles the
// function-response parts in call-id order, and wraps them into one
// event authored by agentName. If a call resolves to transfer_to_agent,
// the returned transferred name is non-empty and the event's actions
// carry the transfer instead of a normal function-response part for
// that call.
func Dispatch(ictx *invocation.Context, agentName string, tools []tool.Tool, calls []*genai.FunctionCall) (*session.Event, string, error) {
	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	results := make([]*genai.FunctionResponse, len(calls))
	actionsPerCall := make([]*session.Actions, len(calls))

	g, gctx := errgroup.WithContext(ictx.Context())
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			actions := &session.Actions{}
			actionsPerCall[i] = actions
			t, ok := byName[call.Name]
			if !ok {
				results[i] = &genai.FunctionResponse{
					ID:   call.ID,
					Name: call.Name,
					Response: map[string]any{
						"error": fmt.Sprintf("tool %q is not available to this agent", call.Name),
					},
				}
				return nil
			}

			tctx := tool.NewContext(ictx, call.ID, actions)

			respMap, err := pluginManager(ictx).BeforeTool(tctx, t, call.Args)
			if err != nil {
				return fmt.Errorf("before-tool plugin callback: %w", err)
			}
			var toolErr error
			if respMap == nil {
				var value any
				start := time.Now()
				value, toolErr = runTool(gctx, t, tctx, call.Args)
				telemetryService(ictx).TraceToolCall(gctx, call.Name, call.ID, time.Since(start), toolErr)
				if toolErr == nil {
					respMap, _ = value.(map[string]any)
				} else {
					recovered, rerr := pluginManager(ictx).OnToolError(tctx, t, call.Args, toolErr)
					if rerr != nil {
						return fmt.Errorf("on-tool-error plugin callback: %w", rerr)
					}
					if recovered != nil {
						respMap = recovered
						toolErr = nil
					}
				}
			}

			overridden, aerr := pluginManager(ictx).AfterTool(tctx, t, call.Args, respMap, toolErr)
			if aerr != nil {
				return fmt.Errorf("after-tool plugin callback: %w", aerr)
			}
			if overridden != nil {
				respMap = overridden
				toolErr = nil
			}

			if toolErr != nil {
				results[i] = &genai.FunctionResponse{
					ID:   call.ID,
					Name: call.Name,
					Response: map[string]any{
						"error": toolErr.Error(),
					},
				}
				return nil
			}
			results[i] = &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: respMap,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	merged := &session.Actions{}
	transferred := ""
	parts := make([]*genai.Part, 0, len(results))
	for i, resp := range results {
		parts = append(parts, &genai.Part{FunctionResponse: resp})
		merged.Merge(actionsPerCall[i])
		if actionsPerCall[i] != nil && actionsPerCall[i].TransferToAgent != "" {
			transferred = actionsPerCall[i].TransferToAgent
		}
	}

	event := &session.Event{
		Author:  agentName,
		Content: &genai.Content{Role: "user", Parts: parts},
		Actions: merged,
	}
	return event, transferred, nil
}

// runTool invokes a (possibly long-running) tool. Long-running tools run
// synchronously like any other: the dispatcher waits for Run to return
// and does not mark their results differently.
func runTool(ctx context.Context, t tool.Tool, tctx tool.Context, args map[string]any) (any, error) {
	return t.Run(ctx, tctx, args)
}
