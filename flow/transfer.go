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
	"fmt"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
)

// TransferTarget describes one agent transfer_to_agent may name: its
// name and description, used to build the prompt-injection instruction
// text that lists available targets.
type TransferTarget struct {
	Name        string
	Description string
}

const transferInstructionTemplate = `You have access to transfer control to another agent using the transfer_to_agent tool when that agent is better suited to handle the user's request. Available agents:
%s
Call transfer_to_agent with the target agent's name when you decide to hand off. Do not transfer to yourself.`

// TransferRequestProcessor appends an instruction fragment listing the
// agents reachable from the current one (sub-agents, and the
// parent/peers unless disallowed). The transfer_to_agent tool itself is
// part of the agent's tool list, so the basic processor has already
// declared it onto the request.
func TransferRequestProcessor(cfg Config) RequestProcessor {
	return func(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
		list := ""
		for _, target := range cfg.TransferTargets {
			list += fmt.Sprintf("- %s: %s\n", target.Name, target.Description)
		}
		instruction := fmt.Sprintf(transferInstructionTemplate, list)
		appendSystemInstruction(req, instruction)
		return nil, nil
	}
}

func appendSystemInstruction(req *llm.Request, instruction string) {
	if req.Config.SystemInstruction != nil && len(req.Config.SystemInstruction.Parts) > 0 {
		req.Config.SystemInstruction.Parts[0].Text += "\n\n" + instruction
		return
	}
	req.Config.SystemInstruction = genai.NewContentFromText(instruction, "")
}
