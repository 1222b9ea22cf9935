// Package observe provides the daemon's observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge so the standard
// /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/christopherlouet/stt-clipboard"

// Metrics holds all OpenTelemetry metric instruments for the daemon.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecordDuration tracks microphone capture plus segmentation latency.
	RecordDuration metric.Float64Histogram

	// TranscribeDuration tracks whisper inference latency.
	TranscribeDuration metric.Float64Histogram

	// CopyDuration tracks clipboard copy latency including retries.
	CopyDuration metric.Float64Histogram

	// PasteDuration tracks paste keystroke injection latency.
	PasteDuration metric.Float64Histogram

	// --- Counters ---

	// Requests counts handled trigger events. Use with attributes:
	//   attribute.String("trigger", ...), attribute.String("status", ...)
	Requests metric.Int64Counter

	// BusyRejections counts triggers rejected because a request was in flight.
	BusyRejections metric.Int64Counter

	// NoSpeech counts invocations that ended without usable speech.
	NoSpeech metric.Int64Counter

	// AudioSeconds accumulates the total duration of transcribed audio.
	AudioSeconds metric.Float64Counter

	// --- Gauges ---

	// ActiveRequests tracks requests currently in flight (0 or 1 by design,
	// plus the continuous session when running).
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both sub-second clipboard calls and multi-second recordings.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordDuration, err = m.Float64Histogram("sttclip.record.duration",
		metric.WithDescription("Latency of capture and segmentation per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("sttclip.transcribe.duration",
		metric.WithDescription("Latency of whisper transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CopyDuration, err = m.Float64Histogram("sttclip.copy.duration",
		metric.WithDescription("Latency of clipboard copy including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PasteDuration, err = m.Float64Histogram("sttclip.paste.duration",
		metric.WithDescription("Latency of paste keystroke injection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Requests, err = m.Int64Counter("sttclip.requests",
		metric.WithDescription("Total trigger events handled, by trigger and status."),
	); err != nil {
		return nil, err
	}
	if met.BusyRejections, err = m.Int64Counter("sttclip.busy_rejections",
		metric.WithDescription("Total triggers rejected while a request was in flight."),
	); err != nil {
		return nil, err
	}
	if met.NoSpeech, err = m.Int64Counter("sttclip.no_speech",
		metric.WithDescription("Total invocations that detected no usable speech."),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("sttclip.audio_seconds",
		metric.WithDescription("Total duration of audio handed to transcription."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("sttclip.active_requests",
		metric.WithDescription("Requests currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sttclip.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordRequest records one handled trigger event with the standard
// attribute set.
func (m *Metrics) RecordRequest(ctx context.Context, trigger, status string) {
	m.Requests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("status", status),
		),
	)
}

// RecordStage records one pipeline stage latency into the given histogram.
func (m *Metrics) RecordStage(ctx context.Context, hist metric.Float64Histogram, elapsed time.Duration) {
	hist.Record(ctx, elapsed.Seconds())
}
