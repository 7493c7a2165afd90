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

// ExitLoopName is the reserved function-call name a Loop composite
// watches for to exit early.
const ExitLoopName = "exit_loop"

// NewExitLoopTool builds a tool that sets Escalate on its call's
// actions. A Loop composite treats Escalate on any event as its early
// exit signal.
func NewExitLoopTool() *FunctionTool[struct{}, struct{}] {
	return NewFunctionTool(ExitLoopName,
		"Call this to exit the current loop once your task is complete.",
		func(ctx context.Context, tctx Context, _ struct{}) (struct{}, error) {
			tctx.Actions().Escalate = true
			return struct{}{}, nil
		})
}
