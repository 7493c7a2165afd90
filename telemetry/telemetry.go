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

// Package telemetry wraps event streams in spans and records per-agent,
// per-tool, and per-model counters and duration histograms. It carries
// no semantic behavior: the runtime behaves identically with a nil
// service.
package telemetry

import (
	"context"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxgraph/agentcore/session"
)

// Standardized span attribute names.
const (
	AttrSystem           = "gen_ai.system"
	AttrOperation        = "gen_ai.operation.name"
	AttrAgentName        = "gen_ai.agent.name"
	AttrAgentDescription = "gen_ai.agent.description"
	AttrToolName         = "gen_ai.tool.name"
	AttrToolType         = "gen_ai.tool.type"
	AttrToolCallID       = "gen_ai.tool.call.id"
	AttrRequestModel     = "gen_ai.request.model"
	AttrFinishReason     = "gen_ai.response.finish_reasons"
	AttrInputTokens      = "gen_ai.usage.input_tokens"
	AttrOutputTokens     = "gen_ai.usage.output_tokens"
	AttrInvocationID     = "agentcore.invocation_id"
	AttrSessionID        = "agentcore.session_id"
	AttrEventContent     = "agentcore.event.content"
)

const systemName = "agentcore"

// Service records spans and metrics for the runtime. All methods are
// nil-receiver safe so embedders that do not configure telemetry pay
// nothing.
type Service struct {
	tracer         trace.Tracer
	captureContent bool

	agentRuns   metric.Int64Counter
	toolCalls   metric.Int64Counter
	modelCalls  metric.Int64Counter
	runDuration metric.Float64Histogram

	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// New builds a telemetry Service. Initialization is done once by the
// embedder; the service is then passed on the runner config and shared
// across concurrent invocations.
func New(opts ...Option) (*Service, error) {
	cfg := &config{}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	tp := cfg.tracerProvider
	if tp == nil {
		var tpOpts []sdktrace.TracerProviderOption
		for _, p := range cfg.spanProcessors {
			tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
		}
		tp = sdktrace.NewTracerProvider(tpOpts...)
	}

	mp := cfg.meterProvider
	if mp == nil {
		var mpOpts []sdkmetric.Option
		for _, r := range cfg.metricReaders {
			mpOpts = append(mpOpts, sdkmetric.WithReader(r))
		}
		mp = sdkmetric.NewMeterProvider(mpOpts...)
	}
	meter := mp.Meter(systemName)

	s := &Service{
		tracer:         tp.Tracer(systemName),
		captureContent: cfg.captureContent,
	}

	var err error
	if s.agentRuns, err = meter.Int64Counter("agentcore.agent.runs"); err != nil {
		return nil, err
	}
	if s.toolCalls, err = meter.Int64Counter("agentcore.tool.calls"); err != nil {
		return nil, err
	}
	if s.modelCalls, err = meter.Int64Counter("agentcore.model.calls"); err != nil {
		return nil, err
	}
	if s.runDuration, err = meter.Float64Histogram("agentcore.run.duration",
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if s.inputTokens, err = meter.Int64Counter("agentcore.model.input_tokens"); err != nil {
		return nil, err
	}
	if s.outputTokens, err = meter.Int64Counter("agentcore.model.output_tokens"); err != nil {
		return nil, err
	}
	return s, nil
}

// WrapStream wraps an event stream in one span named operation and
// records per-agent run metrics and token usage seen on the stream. The
// stream's semantics are untouched: every event and error passes through
// unchanged.
func (s *Service) WrapStream(ctx context.Context, operation, agentName, invocationID, sessionID string, seq iter.Seq2[*session.Event, error]) iter.Seq2[*session.Event, error] {
	if s == nil {
		return seq
	}
	return func(yield func(*session.Event, error) bool) {
		start := time.Now()
		_, span := s.tracer.Start(ctx, operation, trace.WithAttributes(
			attribute.String(AttrSystem, systemName),
			attribute.String(AttrOperation, operation),
			attribute.String(AttrAgentName, agentName),
			attribute.String(AttrInvocationID, invocationID),
			attribute.String(AttrSessionID, sessionID),
		))
		defer func() {
			s.runDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
				attribute.String(AttrAgentName, agentName)))
			span.End()
		}()

		attrs := metric.WithAttributes(attribute.String(AttrAgentName, agentName))
		s.agentRuns.Add(ctx, 1, attrs)

		for ev, err := range seq {
			if err != nil {
				span.RecordError(err)
			}
			if ev != nil {
				if ev.UsageMetadata != nil {
					s.inputTokens.Add(ctx, int64(ev.UsageMetadata.PromptTokenCount), attrs)
					s.outputTokens.Add(ctx, int64(ev.UsageMetadata.CandidatesTokenCount), attrs)
					span.SetAttributes(
						attribute.Int64(AttrInputTokens, int64(ev.UsageMetadata.PromptTokenCount)),
						attribute.Int64(AttrOutputTokens, int64(ev.UsageMetadata.CandidatesTokenCount)),
					)
				}
				if s.captureContent && ev.Content != nil {
					span.AddEvent("event", trace.WithAttributes(
						attribute.String(AttrEventContent, contentText(ev))))
				}
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

// TraceToolCall records one dispatched tool call.
func (s *Service) TraceToolCall(ctx context.Context, toolName, callID string, dur time.Duration, callErr error) {
	if s == nil {
		return
	}
	_, span := s.tracer.Start(ctx, "execute_tool "+toolName, trace.WithAttributes(
		attribute.String(AttrSystem, systemName),
		attribute.String(AttrOperation, "execute_tool"),
		attribute.String(AttrToolName, toolName),
		attribute.String(AttrToolType, "function"),
		attribute.String(AttrToolCallID, callID),
	), trace.WithTimestamp(time.Now().Add(-dur)))
	if callErr != nil {
		span.RecordError(callErr)
	}
	span.End()
	s.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrToolName, toolName)))
}

// TraceModelCall records one model call and its finish reason.
func (s *Service) TraceModelCall(ctx context.Context, model, finishReason string, dur time.Duration) {
	if s == nil {
		return
	}
	_, span := s.tracer.Start(ctx, "generate_content "+model, trace.WithAttributes(
		attribute.String(AttrSystem, systemName),
		attribute.String(AttrOperation, "generate_content"),
		attribute.String(AttrRequestModel, model),
		attribute.String(AttrFinishReason, finishReason),
	), trace.WithTimestamp(time.Now().Add(-dur)))
	span.End()
	s.modelCalls.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRequestModel, model)))
}

func contentText(ev *session.Event) string {
	text := ""
	for _, p := range ev.Content.Parts {
		text += p.Text
	}
	return text
}
