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

package invocation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fluxgraph/agentcore/invocation"
)

type fakeAgent string

func (f fakeAgent) Name() string { return string(f) }

func newContext(t *testing.T, cfg invocation.RunConfig) *invocation.Context {
	t.Helper()
	ictx, err := invocation.New(context.Background(), invocation.Params{
		Agent:     fakeAgent("root"),
		RunConfig: cfg,
	})
	if err != nil {
		t.Fatalf("invocation.New: %v", err)
	}
	return ictx
}

func TestNew_RejectsNonPositiveMaxLLMCalls(t *testing.T) {
	for _, calls := range []int{0, -1} {
		cfg := invocation.DefaultRunConfig()
		cfg.MaxLLMCalls = calls
		_, err := invocation.New(context.Background(), invocation.Params{
			Agent:     fakeAgent("root"),
			RunConfig: cfg,
		})
		if !errors.Is(err, invocation.ErrInvalidRunConfig) {
			t.Errorf("MaxLLMCalls=%d: err = %v, want ErrInvalidRunConfig", calls, err)
		}
	}
}

func TestChild_ExtendsBranchAndSwapsAgent(t *testing.T) {
	root := newContext(t, invocation.DefaultRunConfig())
	child := root.Child(fakeAgent("sub"), "sub")
	grandchild := child.Child(fakeAgent("leaf"), "leaf")

	if child.Branch() != "sub" {
		t.Fatalf("child branch = %q, want sub", child.Branch())
	}
	if grandchild.Branch() != "sub.leaf" {
		t.Fatalf("grandchild branch = %q, want sub.leaf", grandchild.Branch())
	}
	if grandchild.Agent().Name() != "leaf" {
		t.Fatalf("grandchild agent = %q", grandchild.Agent().Name())
	}
	if grandchild.InvocationID() != root.InvocationID() {
		t.Fatal("child must share the invocation id")
	}
}

func TestChild_SharesCostCounter(t *testing.T) {
	root := newContext(t, invocation.DefaultRunConfig())
	child := root.Child(fakeAgent("sub"), "sub")

	if err := child.Cost().IncrementLLMCalls(10); err != nil {
		t.Fatal(err)
	}
	if root.Cost().LLMCalls() != 1 {
		t.Fatalf("cost counter not shared: root sees %d", root.Cost().LLMCalls())
	}
}

func TestCostCounter_EnforcesBudget(t *testing.T) {
	var c invocation.CostCounter
	for i := 0; i < 3; i++ {
		if err := c.IncrementLLMCalls(3); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := c.IncrementLLMCalls(3); !errors.Is(err, invocation.ErrLLMCallsLimitExceeded) {
		t.Fatalf("err = %v, want ErrLLMCallsLimitExceeded", err)
	}
	if c.LLMCalls() != 3 {
		t.Fatalf("counter advanced past the budget: %d", c.LLMCalls())
	}
}

func TestEndInvocation_VisibleAcrossChildren(t *testing.T) {
	root := newContext(t, invocation.DefaultRunConfig())
	child := root.Child(fakeAgent("sub"), "sub")

	child.EndInvocation()
	if !root.Ended() {
		t.Fatal("EndInvocation on a child must be visible at the root")
	}
}

func TestRetarget_KeepsBranch(t *testing.T) {
	root := newContext(t, invocation.DefaultRunConfig())
	child := root.Child(fakeAgent("sub"), "sub")

	retargeted := child.Retarget(fakeAgent("peer"))
	if retargeted.Agent().Name() != "peer" {
		t.Fatalf("agent = %q", retargeted.Agent().Name())
	}
	if retargeted.Branch() != child.Branch() {
		t.Fatalf("branch changed on retarget: %q", retargeted.Branch())
	}
}
