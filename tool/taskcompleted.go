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

package tool

import "context"

// TaskCompletedName is the reserved function-call name that an LLM agent
// gains in bidi streaming mode so the model can signal it is done with
// its step of a multi-agent sequence.
const TaskCompletedName = "task_completed"

// NewTaskCompletedTool builds the task_completed tool. It is constructed
// fresh per invocation overlay rather than attached to a shared agent,
// so that agents stay reusable across concurrent invocations (see
// LLMAgent.buildFlow, which adds it when the run is in bidi mode).
func NewTaskCompletedTool() *FunctionTool[struct{}, struct{}] {
	return NewFunctionTool(TaskCompletedName,
		"Call this once you have completed your assigned part of the conversation.",
		func(ctx context.Context, tctx Context, _ struct{}) (struct{}, error) {
			tctx.Actions().Escalate = true
			return struct{}{}, nil
		})
}
