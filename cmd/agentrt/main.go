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

// Command agentrt drives a small demo agent tree from the terminal and
// streams the resulting events to stdout. The demo runs against the
// deterministic in-memory model so it works without provider
// credentials; embedders plug a real model adapter into the same runner
// surface.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/agent"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/runner"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/tool"
)

var rootCmd = &cobra.Command{
	Use:   "agentrt",
	Short: "Drive an agent tree and stream its events",
}

var runFlags struct {
	message string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo agent tree against one user message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context(), runFlags.message)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the demo workflow graph as Graphviz DOT",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := demoGraph()
		if err != nil {
			return err
		}
		dot, err := g.DOT()
		if err != nil {
			return err
		}
		fmt.Println(dot)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.message, "message", "m", "what is 2+3?", "user message to send")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(graphCmd)
}

type addArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type addResult struct {
	Sum float64 `json:"sum"`
}

// demoTree builds a router agent that hands arithmetic off to a math
// agent with an add tool, both backed by a scripted fake model.
func demoTree() (agent.Agent, error) {
	addTool := tool.NewFunctionTool("add", "Add two numbers.",
		func(ctx context.Context, tctx tool.Context, args addArgs) (addResult, error) {
			return addResult{Sum: args.A + args.B}, nil
		})

	mathModel := llm.NewFake("fake-math",
		&llm.Response{Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "add", Args: map[string]any{"a": 2.0, "b": 3.0}}},
		}}},
		&llm.Response{Content: genai.NewContentFromText("2 + 3 = 5", genai.RoleModel)},
	)
	math, err := agent.NewLLMAgent("math", agent.LLMAgentConfig{
		Model:       mathModel,
		Instruction: "You are a calculator. Use the add tool for addition.",
		Tools:       []tool.Tool{addTool},
	}, agent.WithDescription("Handles arithmetic questions."))
	if err != nil {
		return nil, err
	}

	routerModel := llm.NewFake("fake-router",
		&llm.Response{Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{ID: "r1", Name: tool.TransferToAgentName, Args: map[string]any{"agent_name": "math"}}},
		}}},
	)
	return agent.NewLLMAgent("router", agent.LLMAgentConfig{
		Model:       routerModel,
		Instruction: "Route the user's request to the agent best suited for it.",
	},
		agent.WithDescription("Routes requests to specialist agents."),
		agent.WithSubAgents(math),
	)
}

// demoGraph builds a small draft-then-review graph for the graph subcommand.
func demoGraph() (*agent.Graph, error) {
	draft, err := agent.NewLLMAgent("draft", agent.LLMAgentConfig{
		Model: llm.NewFake("fake-draft", &llm.Response{Content: genai.NewContentFromText("draft text", genai.RoleModel)}),
	})
	if err != nil {
		return nil, err
	}
	review, err := agent.NewLLMAgent("review", agent.LLMAgentConfig{
		Model: llm.NewFake("fake-review", &llm.Response{Content: genai.NewContentFromText("looks good", genai.RoleModel)}),
	})
	if err != nil {
		return nil, err
	}
	return agent.NewGraph("workflow", agent.GraphConfig{Root: "draft", MaxSteps: 4}, []agent.GraphNode{
		{Name: "draft", Agent: draft, Targets: []string{"review"}},
		{Name: "review", Agent: review},
	})
}

func runDemo(ctx context.Context, message string) error {
	root, err := demoTree()
	if err != nil {
		return err
	}

	sessions := session.NewInMemoryService()
	sess, err := sessions.CreateSession(ctx, "agentrt", "local", nil, "demo")
	if err != nil {
		return err
	}

	r, err := runner.New(runner.Config{
		AppName:        "agentrt",
		Agent:          root,
		SessionService: sessions,
	})
	if err != nil {
		return err
	}

	msg := genai.NewContentFromText(message, genai.RoleUser)
	for ev, err := range r.Run(ctx, "local", sess.ID, msg, invocation.DefaultRunConfig()) {
		if err != nil {
			return err
		}
		printEvent(ev)
	}
	return nil
}

func printEvent(ev *session.Event) {
	if ev.HasError() {
		fmt.Printf("[%s] error %s: %s\n", ev.Author, ev.ErrorCode, ev.ErrorMessage)
		return
	}
	var parts []string
	if ev.Content != nil {
		for _, p := range ev.Content.Parts {
			switch {
			case p.Text != "":
				parts = append(parts, p.Text)
			case p.FunctionCall != nil:
				parts = append(parts, fmt.Sprintf("call %s(%v)", p.FunctionCall.Name, p.FunctionCall.Args))
			case p.FunctionResponse != nil:
				parts = append(parts, fmt.Sprintf("result %s=%v", p.FunctionResponse.Name, p.FunctionResponse.Response))
			}
		}
	}
	if ev.Actions != nil && ev.Actions.TransferToAgent != "" {
		parts = append(parts, "transfer -> "+ev.Actions.TransferToAgent)
	}
	if len(parts) == 0 {
		return
	}
	fmt.Printf("[%s] %s\n", ev.Author, strings.Join(parts, " | "))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
