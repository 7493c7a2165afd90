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
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/flow"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// ParallelConfig configures the Parallel composite beyond the shared
// base options.
type ParallelConfig struct {
	// OutputSchema, when set, is validated against the last final
	// response text seen across branches (or the concatenation of every
	// branch's final text when no single one stands out). Success emits a
	// synthesized final event; failure emits the raw text with a warning.
	OutputSchema *jsonschema.Schema
}

// outputKeyer is satisfied by any sub-agent that declares a session-state
// key for its final response; LLMAgent implements it when configured.
type outputKeyer interface {
	OutputKey() string
}

// Parallel runs each sub-agent on an isolated branch (parent.self.child)
// and merges their event streams. The merge is bounded-fair: exactly one
// event is handed to the caller at a time, pulled from the first branch
// with one ready, and no branch buffers more than the single event it is
// currently offering. Per-branch ordering is preserved; backpressure from
// the caller reaches every branch.
type Parallel struct {
	*base
	cfg ParallelConfig
}

// NewParallel builds a Parallel composite.
func NewParallel(name string, cfg ParallelConfig, opts ...Option) (*Parallel, error) {
	b, err := newBase(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	a := &Parallel{base: b, cfg: cfg}
	b.impl = a.runImpl
	return a, nil
}

// branchResult is one handoff from a branch pump to the merge loop.
type branchResult struct {
	idx   int
	event *session.Event
	err   error
}

func (a *Parallel) runImpl(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		subs := a.SubAgents()
		if len(subs) == 0 {
			return
		}

		// The shared channel is unbuffered: a pump goroutine blocks with
		// its next event in hand until the merge loop pulls it, so at most
		// one event is in flight overall and a slow consumer stalls every
		// branch at its next yield boundary.
		results := make(chan branchResult)
		runCtx, cancel := context.WithCancel(ictx.Context())
		defer cancel()

		var wg sync.WaitGroup
		for i, sub := range subs {
			branch := a.Name() + "." + sub.Name()
			child := ictx.WithContext(runCtx).Child(sub, branch)

			wg.Add(1)
			go func(idx int, sub Agent, child *invocation.Context) {
				defer wg.Done()
				for ev, err := range sub.Run(child) {
					select {
					case <-runCtx.Done():
						return
					case results <- branchResult{idx: idx, event: ev, err: err}:
					}
					if err != nil {
						return
					}
				}
			}(i, sub, child)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		lastFinalText := make([]string, len(subs))
		var lastFinalOverall string

		for res := range results {
			if !yield(res.event, res.err) {
				return
			}
			if res.err != nil {
				return
			}
			if res.event != nil && res.event.IsFinalResponse() {
				text := finalText(res.event)
				lastFinalText[res.idx] = text
				lastFinalOverall = text
			}
		}

		if ictx.Ended() {
			return
		}

		delta := map[string]any{}
		for i, sub := range subs {
			keyer, ok := sub.(outputKeyer)
			if !ok || keyer.OutputKey() == "" {
				continue
			}
			delta[keyer.OutputKey()] = lastFinalText[i]
		}
		if len(delta) > 0 {
			if !yield(&session.Event{
				Author:  a.Name(),
				Actions: &session.Actions{StateDelta: delta},
			}, nil) {
				return
			}
		}

		if a.cfg.OutputSchema == nil {
			return
		}
		text := lastFinalOverall
		if text == "" {
			text = strings.Join(lastFinalText, "")
		}
		validated, err := flow.ValidateText(a.cfg.OutputSchema, text)
		if err != nil {
			log.Warn().Str("agent", a.Name()).Err(err).Msg("parallel output failed schema validation, emitting raw text")
			yield(&session.Event{
				Author:  a.Name(),
				Content: genai.NewContentFromText(text, genai.RoleModel),
			}, nil)
			return
		}
		yield(&session.Event{
			Author:  a.Name(),
			Content: genai.NewContentFromText(validated, genai.RoleModel),
		}, nil)
	}
}
