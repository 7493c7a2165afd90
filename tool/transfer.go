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

// TransferToAgentName is the reserved function-call name the transfer
// controller looks for on a model response.
const TransferToAgentName = "transfer_to_agent"

// TransferToAgentInput is the argument shape for transfer_to_agent.
type TransferToAgentInput struct {
	AgentName string `json:"agent_name"`
}

// NewTransferToAgentTool builds the transfer_to_agent tool. Instead of
// a normal result, running it records a transfer action on the calling
// step's event; the flow stops and the agent hands control to the named
// target.
func NewTransferToAgentTool(description string) *FunctionTool[TransferToAgentInput, struct{}] {
	return NewFunctionTool(TransferToAgentName, description,
		func(ctx context.Context, tctx Context, args TransferToAgentInput) (struct{}, error) {
			tctx.Actions().TransferToAgent = args.AgentName
			return struct{}{}, nil
		})
}
