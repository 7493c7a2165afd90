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

package tool_test

import (
	"context"
	"testing"

	"github.com/fluxgraph/agentcore/tool"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type addResult struct {
	Sum int `json:"sum"`
}

func newAddTool() *tool.FunctionTool[addArgs, addResult] {
	return tool.NewFunctionTool("add", "adds two integers",
		func(ctx context.Context, tctx tool.Context, args addArgs) (addResult, error) {
			return addResult{Sum: args.A + args.B}, nil
		})
}

func TestFunctionTool_RunDecodesAndValidates(t *testing.T) {
	add := newAddTool()
	tctx := tool.NewContext(nil, "call1", nil)

	got, err := add.Run(context.Background(), tctx, map[string]any{"a": float64(2), "b": float64(3)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", got)
	}
	if m["sum"] != float64(5) {
		t.Fatalf("expected sum=5, got %v", m["sum"])
	}
}

func TestFunctionTool_RunRejectsUnknownFields(t *testing.T) {
	add := newAddTool()
	tctx := tool.NewContext(nil, "call1", nil)

	_, err := add.Run(context.Background(), tctx, map[string]any{"a": float64(2), "b": float64(3), "c": float64(9)})
	if err == nil {
		t.Fatal("expected error for unknown field c")
	}
}

func TestFunctionTool_Name(t *testing.T) {
	add := newAddTool()
	if add.Name() != "add" {
		t.Fatalf("expected name add, got %s", add.Name())
	}
	if add.IsLongRunning() {
		t.Fatal("expected not long-running by default")
	}
}
