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

// Package retryandreflect provides a plugin that turns tool failures
// into reflection guidance for the model instead of hard errors,
// bounded by a per-scope retry budget.
package retryandreflect

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fluxgraph/agentcore/plugin"
	"github.com/fluxgraph/agentcore/tool"
)

const (
	reflectResponseType = "ERROR_HANDLED_BY_REFLECT_AND_RETRY_PLUGIN"
	globalScopeKey      = "__global_reflect_and_retry_scope__"
)

// TrackingScope defines the lifecycle scope for tracking tool failure
// counts.
type TrackingScope string

const (
	// Invocation tracks failures per-invocation.
	Invocation TrackingScope = "invocation"
	// Global tracks failures globally across all invocations and users.
	Global TrackingScope = "global"
)

type retryAndReflect struct {
	mu                    sync.Mutex
	maxRetries            int
	errorIfRetryExceeded  bool
	scope                 TrackingScope
	scopedFailureCounters map[string]map[string]int
}

// New creates a reflect-and-retry plugin. maxRetries bounds how many
// reflection responses one tool gets per scope before the failure is
// surfaced; errorIfRetryExceeded picks between propagating the original
// error and returning a final structured failure message.
func New(maxRetries int, errorIfRetryExceeded bool, scope TrackingScope) (*plugin.Plugin, error) {
	if maxRetries < 0 {
		return nil, fmt.Errorf("maxRetries must be a non-negative integer")
	}
	r := &retryAndReflect{
		maxRetries:            maxRetries,
		errorIfRetryExceeded:  errorIfRetryExceeded,
		scope:                 scope,
		scopedFailureCounters: make(map[string]map[string]int),
	}
	return plugin.New(plugin.Config{
		Name:                "ReflectAndRetryToolPlugin",
		AfterToolCallback:   r.afterTool,
		OnToolErrorCallback: r.onToolError,
	})
}

func (r *retryAndReflect) afterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error) {
	if err == nil {
		// On success, reset the failure count for this tool within its
		// scope -- unless OnToolErrorCallback just produced the success
		// in the form of a reflection response.
		if rt, ok := result["response_type"].(string); !ok || rt != reflectResponseType {
			r.resetFailuresForTool(ctx, t.Name())
		}
	}
	return nil, nil
}

func (r *retryAndReflect) onToolError(ctx tool.Context, t tool.Tool, args map[string]any, err error) (map[string]any, error) {
	if r.maxRetries == 0 {
		if r.errorIfRetryExceeded {
			return nil, err
		}
		return r.retryExceededMsg(t, args, err), nil
	}

	scopeKey := r.scopeKey(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, ok := r.scopedFailureCounters[scopeKey]
	if !ok {
		counter = make(map[string]int)
		r.scopedFailureCounters[scopeKey] = counter
	}
	currentRetries := counter[t.Name()] + 1
	counter[t.Name()] = currentRetries

	if currentRetries <= r.maxRetries {
		return r.reflectionResponse(t, args, err, currentRetries), nil
	}

	if r.errorIfRetryExceeded {
		return nil, err
	}
	return r.retryExceededMsg(t, args, err), nil
}

func (r *retryAndReflect) scopeKey(ctx tool.Context) string {
	if r.scope == Global {
		return globalScopeKey
	}
	return ctx.Invocation().InvocationID()
}

func (r *retryAndReflect) resetFailuresForTool(ctx tool.Context, toolName string) {
	scopeKey := r.scopeKey(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if scope, ok := r.scopedFailureCounters[scopeKey]; ok {
		delete(scope, toolName)
	}
}

func formatArgs(args map[string]any) string {
	b, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", args)
	}
	return string(b)
}

func (r *retryAndReflect) reflectionResponse(t tool.Tool, args map[string]any, toolErr error, retryCount int) map[string]any {
	var msg strings.Builder
	fmt.Fprintf(&msg, "The call to tool `%s` failed.\n\n", t.Name())
	fmt.Fprintf(&msg, "**Error Details:**\n```\n%v\n```\n\n", toolErr)
	fmt.Fprintf(&msg, "**Tool Arguments Used:**\n```json\n%s\n```\n\n", formatArgs(args))
	fmt.Fprintf(&msg, "**Reflection Guidance:**\n")
	fmt.Fprintf(&msg, "This is retry attempt **%d of %d**. Analyze the error and the arguments you provided. Do not repeat the exact same call. Consider the following before your next attempt:\n\n", retryCount, r.maxRetries)
	fmt.Fprintf(&msg, "1.  **Invalid Parameters**: Does the error suggest that one or more arguments are incorrect, badly formatted, or missing? Review the tool's schema and your arguments.\n")
	fmt.Fprintf(&msg, "2.  **State or Preconditions**: Did a previous step fail or not produce the necessary state/resource for this tool to succeed?\n")
	fmt.Fprintf(&msg, "3.  **Alternative Approach**: Is this the right tool for the job? Could another tool or a different sequence of steps achieve the goal?\n")
	fmt.Fprintf(&msg, "4.  **Simplify the Task**: Can you break the problem down into smaller, simpler steps?\n")
	fmt.Fprintf(&msg, "5.  **Wrong Function Name**: Does the error indicate the tool is not found? Please check again and only use available tools.\n\n")
	fmt.Fprintf(&msg, "Formulate a new plan based on your analysis and try a corrected or different approach.\n")

	return map[string]any{
		"response_type":       reflectResponseType,
		"error_type":          fmt.Sprintf("%T", toolErr),
		"error_details":       toolErr.Error(),
		"retry_count":         retryCount,
		"reflection_guidance": strings.TrimSpace(msg.String()),
	}
}

func (r *retryAndReflect) retryExceededMsg(t tool.Tool, args map[string]any, toolErr error) map[string]any {
	return map[string]any{
		"response_type": reflectResponseType,
		"error_type":    fmt.Sprintf("%T", toolErr),
		"error_details": toolErr.Error(),
		"retry_count":   r.maxRetries,
		"final_message": fmt.Sprintf("The call to tool `%s` failed %d times and the retry budget is exhausted. Stop calling this tool with these arguments:\n```json\n%s\n```\nExplain the failure to the user and suggest a different approach.", t.Name(), r.maxRetries, formatArgs(args)),
	}
}
