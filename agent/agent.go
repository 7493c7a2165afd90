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

// Package agent implements the base agent lifecycle (before/after
// callbacks wrapping a run), the LLM single-flow agent, and the
// composite agents (Sequential, Parallel, Loop, Graph) built on top of
// it.
package agent

import (
	"iter"
	"regexp"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// nameRE matches the agent-name invariant: [A-Za-z_][A-Za-z0-9_]*.
var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName enforces the agent-name invariant and rejects the
// reserved name "user".
func ValidateName(name string) error {
	if name == session.UserAuthor || !nameRE.MatchString(name) {
		return ErrInvalidAgentName
	}
	return nil
}

// Agent is a named capability with a run contract; it produces a lazy
// sequence of events given an invocation context that already has
// CurrentAgent set to it.
type Agent interface {
	Name() string
	Description() string
	// SubAgents returns this agent's children in the tree, or nil for a
	// leaf agent.
	SubAgents() []Agent
	// Parent returns this agent's parent, or nil at the tree root.
	Parent() Agent
	// Run executes the base lifecycle (before/after callbacks) around
	// runAsyncImpl and yields the resulting event sequence.
	Run(ictx *invocation.Context) iter.Seq2[*session.Event, error]
}

// FindByName searches the tree rooted at root (following both ancestors
// and descendants, since a transfer may move control to a peer or the
// parent) for an agent named name.
func FindByName(root Agent, name string) Agent {
	if root == nil {
		return nil
	}
	// climb to the actual root first
	top := root
	for top.Parent() != nil {
		top = top.Parent()
	}
	return findDescendant(top, name)
}

func findDescendant(a Agent, name string) Agent {
	if a.Name() == name {
		return a
	}
	for _, child := range a.SubAgents() {
		if found := findDescendant(child, name); found != nil {
			return found
		}
	}
	return nil
}
