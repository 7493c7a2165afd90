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
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/flow"
	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

// SequentialConfig configures the Sequential composite beyond the shared
// base options.
type SequentialConfig struct {
	// OutputSchema, when set, is validated against the last sub-agent's
	// final response text. On success the sequence emits a synthesized
	// final event with the validated content; on failure it emits the raw
	// text and logs a warning instead of failing the invocation.
	OutputSchema *jsonschema.Schema
}

// Sequential runs its sub-agents one after another in listed order,
// forwarding every event. Use it when execution must occur in a fixed,
// strict order.
type Sequential struct {
	*base
	cfg SequentialConfig
}

// NewSequential builds a Sequential composite.
func NewSequential(name string, cfg SequentialConfig, opts ...Option) (*Sequential, error) {
	b, err := newBase(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	a := &Sequential{base: b, cfg: cfg}
	b.impl = a.runImpl
	return a, nil
}

func (a *Sequential) runImpl(ictx *invocation.Context) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		var lastFinal *session.Event

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
		}

		if a.cfg.OutputSchema == nil || lastFinal == nil {
			return
		}
		text := finalText(lastFinal)
		validated, err := flow.ValidateText(a.cfg.OutputSchema, text)
		if err != nil {
			log.Warn().Str("agent", a.Name()).Err(err).Msg("sequential output failed schema validation, emitting raw text")
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

// finalText concatenates the text parts of a final-response event.
func finalText(ev *session.Event) string {
	if ev == nil || ev.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range ev.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
