// Package observe provides device-wide observability primitives for
// sightwear: OpenTelemetry metrics, tracing helpers, and HTTP middleware for
// the operations endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sightwear metrics.
const meterName = "github.com/sightwear/sightwear"

// Metrics holds all OpenTelemetry metric instruments for the device runtime.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// SpeechDuration tracks synthesis + playback time of one utterance.
	SpeechDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text latency.
	TranscribeDuration metric.Float64Histogram

	// IntentDuration tracks intent classification latency, embedding included.
	IntentDuration metric.Float64Histogram

	// VisionDuration tracks one vision pipeline invocation. Use with attribute:
	//   attribute.String("path", "active"|"passive")
	VisionDuration metric.Float64Histogram

	// --- Counters ---

	// SpeechPlayed counts completed utterances. Use with attribute:
	//   attribute.String("priority", ...)
	SpeechPlayed metric.Int64Counter

	// SpeechDropped counts rejected utterances. Use with attribute:
	//   attribute.String("reason", "busy"|"rate_limited"|"closed")
	SpeechDropped metric.Int64Counter

	// ModeTransitions counts committed mode changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	ModeTransitions metric.Int64Counter

	// WakeTriggers counts wake signals by source. Use with attribute:
	//   attribute.String("source", "detector"|"peripheral"|"keyboard")
	WakeTriggers metric.Int64Counter

	// PeripheralCommands counts control lines received from peripherals.
	// Use with attribute: attribute.String("command", ...)
	PeripheralCommands metric.Int64Counter

	// CameraReopens counts camera re-open attempts after read failures.
	CameraReopens metric.Int64Counter

	// ProviderErrors counts external collaborator failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// PeripheralClients tracks the number of connected peripheral units.
	PeripheralClients metric.Int64UpDownCounter

	// VisionTasks tracks live background vision tasks (0 or 1).
	VisionTasks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks operations endpoint latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// on-device inference and speech playback.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
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
		{&met.SpeechDuration, "sightwear.speech.duration", "Synthesis and playback time of one utterance."},
		{&met.TranscribeDuration, "sightwear.stt.duration", "Latency of speech-to-text transcription."},
		{&met.IntentDuration, "sightwear.intent.duration", "Latency of intent classification."},
		{&met.VisionDuration, "sightwear.vision.duration", "Latency of one vision pipeline invocation."},
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
		{&met.SpeechPlayed, "sightwear.speech.played", "Total utterances played by priority."},
		{&met.SpeechDropped, "sightwear.speech.dropped", "Total utterances dropped by reason."},
		{&met.ModeTransitions, "sightwear.mode.transitions", "Total committed mode changes."},
		{&met.WakeTriggers, "sightwear.wake.triggers", "Total wake signals by source."},
		{&met.PeripheralCommands, "sightwear.peripheral.commands", "Total peripheral control lines by command."},
		{&met.CameraReopens, "sightwear.camera.reopens", "Total camera re-open attempts."},
		{&met.ProviderErrors, "sightwear.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.PeripheralClients, err = m.Int64UpDownCounter("sightwear.peripheral.clients",
		metric.WithDescription("Number of connected peripheral units."),
	); err != nil {
		return nil, err
	}
	if met.VisionTasks, err = m.Int64UpDownCounter("sightwear.vision.tasks",
		metric.WithDescription("Number of live background vision tasks."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("sightwear.http.request.duration",
		metric.WithDescription("Operations endpoint latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSpeechDropped records a dropped utterance with its reason.
func (m *Metrics) RecordSpeechDropped(ctx context.Context, reason string) {
	m.SpeechDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordModeTransition records a committed mode change.
func (m *Metrics) RecordModeTransition(ctx context.Context, from, to string) {
	m.ModeTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordWake records a wake signal raised by source.
func (m *Metrics) RecordWake(ctx context.Context, source string) {
	m.WakeTriggers.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
