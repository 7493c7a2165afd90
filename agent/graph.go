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

package agent

import (
	"fmt"
	"iter"

	"github.com/awalterschulze/gographviz"
	"github.com/rs/zerolog/log"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// GraphNode is one node of a directed agent graph: the sub-agent it
// wraps and the names of the nodes control flows to once it finishes.
type GraphNode struct {
	Name    string
	Agent   Agent
	Targets []string
}

// GraphConfig configures a Graph composite.
type GraphConfig struct {
	// Root names the node execution starts at.
	Root string
	// MaxSteps bounds total node executions; cycles are permitted, so the
	// bound is what guarantees termination. Must be positive.
	MaxSteps int
}

// Graph runs nodes of a directed graph starting at a named root. Each
// node wraps one sub-agent; after it finishes, control follows the
// node's declared targets in order. A per-session thread records each
// node's final response so downstream nodes (which read the session log)
// see the messages of the nodes that ran before them.
type Graph struct {
	*base
	cfg   GraphConfig
	nodes map[string]*GraphNode
	order []string
}

// NewGraph builds a Graph composite. Every node's agent becomes a
// sub-agent of the graph; every target must name a declared node.
func NewGraph(name string, cfg GraphConfig, nodes []GraphNode, opts ...Option) (*Graph, error) {
	if cfg.MaxSteps <= 0 {
		return nil, New(KindValidation, "InvalidGraphConfig", "graph MaxSteps must be positive", nil)
	}
	if len(nodes) == 0 {
		return nil, New(KindValidation, "InvalidGraphConfig", "graph requires at least one node", nil)
	}

	byName := make(map[string]*GraphNode, len(nodes))
	order := make([]string, 0, len(nodes))
	agents := make([]Agent, 0, len(nodes))
	for i := range nodes {
		n := nodes[i]
		if n.Agent == nil {
			return nil, New(KindValidation, "InvalidGraphConfig", fmt.Sprintf("node %q has no agent", n.Name), nil)
		}
		if n.Name == "" {
			n.Name = n.Agent.Name()
		}
		if _, dup := byName[n.Name]; dup {
			return nil, New(KindValidation, "InvalidGraphConfig", fmt.Sprintf("duplicate node %q", n.Name), nil)
		}
		byName[n.Name] = &n
		order = append(order, n.Name)
		agents = append(agents, n.Agent)
	}
	if _, ok := byName[cfg.Root]; !ok {
		return nil, New(KindValidation, "InvalidGraphConfig", fmt.Sprintf("root node %q not declared", cfg.Root), nil)
	}
	for _, n := range byName {
		for _, target := range n.Targets {
			if _, ok := byName[target]; !ok {
				return nil, New(KindValidation, "InvalidGraphConfig", fmt.Sprintf("node %q targets undeclared node %q", n.Name, target), nil)
			}
		}
	}

	opts = append(opts, WithSubAgents(agents...))
	b, err := newBase(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	a := &Graph{base: b, cfg: cfg, nodes: byName, order: order}
	b.impl = a.runImpl
	return a, nil
}

// threadStateKey is where the graph records the node-to-node message
// thread in session state.
func (a *Graph) threadStateKey() string {
	return "graph." + a.Name() + ".thread"
}

func (a *Graph) runImpl(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		queue := []string{a.cfg.Root}
		var thread []map[string]any

		for steps := 0; len(queue) > 0 && steps < a.cfg.MaxSteps; steps++ {
			if ictx.Ended() {
				return
			}
			name := queue[0]
			queue = queue[1:]
			node := a.nodes[name]

			var lastFinal *session.Event
			child := ictx.Child(node.Agent, node.Agent.Name())
			for ev, err := range node.Agent.Run(child) {
				if !yield(ev, err) {
					return
				}
				if err != nil {
					return
				}
				if ev == nil {
					continue
				}
				if ev.IsFinalResponse() {
					lastFinal = ev
				}
				if ev.Actions != nil && ev.Actions.EndInvocation {
					ictx.EndInvocation()
					return
				}
			}

			thread = append(thread, map[string]any{
				"node":    name,
				"message": finalText(lastFinal),
			})
			snapshot := append([]map[string]any(nil), thread...)
			if !yield(&session.Event{
				Author:  a.Name(),
				Actions: &session.Actions{StateDelta: map[string]any{a.threadStateKey(): snapshot}},
			}, nil) {
				return
			}

			queue = append(queue, node.Targets...)
		}
		if len(queue) > 0 {
			log.Debug().Str("agent", a.Name()).Int("max_steps", a.cfg.MaxSteps).Msg("graph stopped at step bound")
		}
	}
}

// DOT renders the graph topology as Graphviz DOT text, node per agent and
// edge per declared target, for debugging a workflow's shape.
func (a *Graph) DOT() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(a.Name()); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	for _, name := range a.order {
		attrs := map[string]string{"shape": "ellipse"}
		if name == a.cfg.Root {
			attrs["style"] = "bold"
		}
		if err := g.AddNode(a.Name(), name, attrs); err != nil {
			return "", err
		}
	}
	for _, name := range a.order {
		for _, target := range a.nodes[name].Targets {
			if err := g.AddEdge(name, target, true, nil); err != nil {
				return "", err
			}
		}
	}
	return g.String(), nil
}
