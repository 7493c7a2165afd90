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
	"iter"

	"github.com/rs/zerolog/log"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// Loop repeatedly runs its sub-agents in order, up to MaxIterations
// passes over the whole sequence. It exits early when any event sets
// Escalate (the exit_loop tool, or an after-agent callback end-action)
// or when the invocation is ended.
//
// Use a Loop when the workflow is iterative refinement, like revising a
// draft until a reviewer agent approves it.
type Loop struct {
	*base
	maxIterations int
}

// NewLoop builds a Loop composite. maxIterations must be positive: an
// unbounded loop has no termination guarantee, so a zero value is
// rejected rather than treated as "run forever".
func NewLoop(name string, maxIterations int, opts ...Option) (*Loop, error) {
	if maxIterations <= 0 {
		return nil, New(KindValidation, "InvalidLoopConfig", "loop maxIterations must be positive", nil)
	}
	b, err := newBase(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	a := &Loop{base: b, maxIterations: maxIterations}
	b.impl = a.runImpl
	return a, nil
}

// MaxIterations returns the configured iteration bound.
func (a *Loop) MaxIterations() int { return a.maxIterations }

func (a *Loop) runImpl(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		for i := 0; i < a.maxIterations; i++ {
			for _, sub := range a.SubAgents() {
				if ictx.Ended() {
					return
				}
				child := ictx.Child(sub, sub.Name())
				for ev, err := range sub.Run(child) {
					if !yield(ev, err) {
						return
					}
					if err != nil {
						return
					}
					if ev != nil && ev.Actions != nil {
						if ev.Actions.Escalate {
							log.Debug().Str("agent", a.Name()).Int("iteration", i).Msg("loop escalated")
							return
						}
						if ev.Actions.EndInvocation {
							ictx.EndInvocation()
							return
						}
					}
				}
			}
		}
	}
}
