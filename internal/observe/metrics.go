// Package observe provides application-wide observability primitives for
// signbridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all signbridge metrics.
const meterName = "github.com/MrWong99/signbridge"

// Metrics holds the OpenTelemetry instruments used across signbridge. All
// fields are safe for concurrent use.
type Metrics struct {
	// Stage latencies, one sample per provider call.
	PredictDuration    metric.Float64Histogram
	STTDuration        metric.Float64Histogram
	TTSDuration        metric.Float64Histogram
	CorrectionDuration metric.Float64Histogram

	// MessagesRelayed counts envelopes forwarded to a partner. Use with:
	//   attribute.String("type", ...)
	MessagesRelayed metric.Int64Counter

	// MessagesDropped counts envelopes that were not delivered. Use with:
	//   attribute.String("type", ...), attribute.String("reason", ...)
	MessagesDropped metric.Int64Counter

	// Interpretations counts interpretation messages sent. Use with:
	//   attribute.String("direction", "sign_to_speech"|"speech_to_text")
	Interpretations metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// JoinRejections counts refused join requests. Use with:
	//   attribute.String("reason", ...)
	JoinRejections metric.Int64Counter

	ActiveRooms       metric.Int64UpDownCounter
	ActiveConnections metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by [Middleware] with method, route and
	// status attributes.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// remote inference calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.PredictDuration, "signbridge.predict.duration", "Latency of sign prediction per video frame."},
		{&met.STTDuration, "signbridge.stt.duration", "Latency of speech-to-text transcription."},
		{&met.TTSDuration, "signbridge.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.CorrectionDuration, "signbridge.correction.duration", "Latency of spelling correction."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.MessagesRelayed, "signbridge.messages.relayed", "Envelopes forwarded to a partner by type."},
		{&met.MessagesDropped, "signbridge.messages.dropped", "Envelopes not delivered by type and reason."},
		{&met.Interpretations, "signbridge.interpretations", "Interpretation messages sent by direction."},
		{&met.ProviderRequests, "signbridge.provider.requests", "Provider requests by provider, kind and status."},
		{&met.ProviderErrors, "signbridge.provider.errors", "Provider errors by provider and kind."},
		{&met.JoinRejections, "signbridge.join.rejections", "Refused join requests by reason."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveRooms, err = m.Int64UpDownCounter("signbridge.rooms.active",
		metric.WithDescription("Rooms with at least one member."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("signbridge.connections.active",
		metric.WithDescription("Open participant connections."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("signbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRelayed records one envelope forwarded to a partner.
func (m *Metrics) RecordRelayed(ctx context.Context, msgType string) {
	m.MessagesRelayed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}

// RecordDropped records one envelope that was not delivered.
func (m *Metrics) RecordDropped(ctx context.Context, msgType, reason string) {
	m.MessagesDropped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", msgType),
			attribute.String("reason", reason),
		),
	)
}

// RecordInterpretation records one interpretation message sent to a partner.
func (m *Metrics) RecordInterpretation(ctx context.Context, direction string) {
	m.Interpretations.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordJoinRejection records a refused join request.
func (m *Metrics) RecordJoinRejection(ctx context.Context, reason string) {
	m.JoinRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ObserveDuration records the time elapsed since start on h.
func ObserveDuration(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}
