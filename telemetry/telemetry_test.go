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

package telemetry_test

import (
	"context"
	"iter"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/telemetry"
)

func eventStream(events ...*session.Event) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func TestWrapStream_PassesEventsThrough(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	svc, err := telemetry.New(telemetry.WithTracerProvider(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))))
	if err != nil {
		t.Fatal(err)
	}

	in := []*session.Event{
		{Author: "a", Content: genai.NewContentFromText("one", genai.RoleModel)},
		{Author: "a", Content: genai.NewContentFromText("two", genai.RoleModel),
			UsageMetadata: &session.UsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 5}},
	}
	var out []*session.Event
	wrapped := svc.WrapStream(context.Background(), "invoke_agent", "a", "inv1", "s1", eventStream(in...))
	for ev, err := range wrapped {
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, ev)
	}
	if len(out) != len(in) {
		t.Fatalf("stream mutated: %d events out, %d in", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("event %d not passed through unchanged", i)
		}
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "invoke_agent" {
		t.Fatalf("span name = %q", spans[0].Name())
	}
}

func TestNilServiceIsTransparent(t *testing.T) {
	var svc *telemetry.Service
	in := eventStream(&session.Event{Author: "a"})
	wrapped := svc.WrapStream(context.Background(), "invoke_agent", "a", "inv1", "s1", in)

	count := 0
	for _, err := range wrapped {
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 1 {
		t.Fatalf("nil service changed the stream: %d events", count)
	}
	// Metric/trace methods must be no-ops, not panics.
	svc.TraceToolCall(context.Background(), "add", "c1", 0, nil)
	svc.TraceModelCall(context.Background(), "fake", "STOP", 0)
}
