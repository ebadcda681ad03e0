// Package observe provides gateway-wide observability primitives:
// OpenTelemetry metric instruments with a Prometheus exporter bridge so the
// relay keeps its standard /metrics scrape endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all gateway metrics.
const meterName = "github.com/pommai/toygate"

// Metrics holds all OpenTelemetry metric instruments for the relay. All
// fields are safe for concurrent use.
type Metrics struct {
	// Sessions counts sessions ever opened.
	Sessions metric.Int64Counter

	// ActiveSessions tracks currently connected device sessions.
	ActiveSessions metric.Int64UpDownCounter

	// Messages counts received wire messages. Use with attribute:
	//   attribute.String("type", ...)
	Messages metric.Int64Counter

	// AudioBytesIn counts audio bytes received from devices.
	AudioBytesIn metric.Int64Counter

	// AudioBytesOut counts audio bytes streamed to devices.
	AudioBytesOut metric.Int64Counter

	// ConvexDuration tracks AI pipeline action latency.
	ConvexDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency from request to final chunk.
	// Use with attribute: attribute.String("provider", ...)
	TTSDuration metric.Float64Histogram

	// TTSErrors counts synthesis failures by provider.
	TTSErrors metric.Int64Counter
}

// convexBuckets covers the AI pipeline latency range: sub-second cache hits
// up to the 30s action timeout and beyond.
var convexBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// ttsBuckets covers streaming synthesis latencies.
var ttsBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Sessions, err = m.Int64Counter("toygate.sessions",
		metric.WithDescription("Total device sessions opened."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("toygate.active_sessions",
		metric.WithDescription("Currently connected device sessions."),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("toygate.messages",
		metric.WithDescription("Wire messages received by type."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesIn, err = m.Int64Counter("toygate.audio.bytes_in",
		metric.WithDescription("Audio bytes received from devices."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesOut, err = m.Int64Counter("toygate.audio.bytes_out",
		metric.WithDescription("Audio bytes streamed to devices."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ConvexDuration, err = m.Float64Histogram("toygate.convex.duration",
		metric.WithDescription("AI pipeline action latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(convexBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("toygate.tts.duration",
		metric.WithDescription("Synthesis latency by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ttsBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSErrors, err = m.Int64Counter("toygate.tts.errors",
		metric.WithDescription("Synthesis failures by provider."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordMessage increments the message counter for one wire message type.
func (m *Metrics) RecordMessage(ctx context.Context, msgType string) {
	m.Messages.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}

// RecordTTS records one synthesis attempt.
func (m *Metrics) RecordTTS(ctx context.Context, provider string, seconds float64, err error) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.TTSDuration.Record(ctx, seconds, attrs)
	if err != nil {
		m.TTSErrors.Add(ctx, 1, attrs)
	}
}
