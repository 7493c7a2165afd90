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

package telemetry

import (
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type config struct {
	// captureContent opts in to recording message/response text on spans.
	// Off by default: content may carry user data.
	captureContent bool

	// spanProcessors allow registering span exporters without this
	// package knowing where the spans go.
	spanProcessors []sdktrace.SpanProcessor

	// metricReaders likewise for metric export.
	metricReaders []sdkmetric.Reader

	// tracerProvider overrides the default TracerProvider.
	tracerProvider *sdktrace.TracerProvider

	// meterProvider overrides the default MeterProvider.
	meterProvider *sdkmetric.MeterProvider
}

// Option configures the telemetry service.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (fn optionFunc) apply(cfg *config) error {
	return fn(cfg)
}

// WithContentCapture enables/disables recording message content on
// spans.
func WithContentCapture(value bool) Option {
	return optionFunc(func(cfg *config) error {
		cfg.captureContent = value
		return nil
	})
}

// WithSpanProcessors registers additional span processors.
func WithSpanProcessors(p ...sdktrace.SpanProcessor) Option {
	return optionFunc(func(cfg *config) error {
		cfg.spanProcessors = append(cfg.spanProcessors, p...)
		return nil
	})
}

// WithMetricReaders registers metric readers, e.g. a periodic exporter
// or a manual reader in tests.
func WithMetricReaders(r ...sdkmetric.Reader) Option {
	return optionFunc(func(cfg *config) error {
		cfg.metricReaders = append(cfg.metricReaders, r...)
		return nil
	})
}

// WithTracerProvider overrides the default TracerProvider with a
// preconfigured instance.
func WithTracerProvider(tp *sdktrace.TracerProvider) Option {
	return optionFunc(func(cfg *config) error {
		cfg.tracerProvider = tp
		return nil
	})
}

// WithMeterProvider overrides the default MeterProvider with a
// preconfigured instance.
func WithMeterProvider(mp *sdkmetric.MeterProvider) Option {
	return optionFunc(func(cfg *config) error {
		cfg.meterProvider = mp
		return nil
	})
}
