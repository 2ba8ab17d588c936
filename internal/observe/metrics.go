// Package observe wires speakez into OpenTelemetry: metric instruments for
// the practice loop, request tracing, trace-aware logging and the HTTP
// middleware that ties them together.
//
// Metrics leave the process through the Prometheus exporter installed by
// [InitProvider]. Production code shares [DefaultMetrics]; tests build their
// own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/speakez"

// Check outcomes used as the "outcome" attribute of speakez.checks.
const (
	OutcomeMatch   = "match"
	OutcomePartial = "partial"
	OutcomeNoMatch = "no_match"
)

// Metrics bundles the instruments recorded by the practice service, the
// providers and the HTTP layer.
type Metrics struct {
	// Stage latencies in seconds.
	STTDuration     metric.Float64Histogram
	TTSDuration     metric.Float64Histogram
	ConvertDuration metric.Float64Histogram

	// CheckScore is the distribution of match percentages, by language.
	CheckScore metric.Float64Histogram

	// Checks counts checks by language and outcome.
	Checks metric.Int64Counter

	// ProviderRequests counts STT/TTS calls by provider, kind and status;
	// ProviderErrors counts the failed ones by provider and kind.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// ActiveSessions is the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// Batch transcription of a few seconds of speech usually lands between a
// tenth of a second and a few seconds; cold model loads can take a minute.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60}

var scoreBuckets = []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// instruments collects the first error of a batch of instrument creations.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) histogram(name, desc, unit string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit(unit)}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:      b.histogram("speakez.stt.duration", "Latency of speech-to-text transcription.", "s", latencyBuckets),
		TTSDuration:      b.histogram("speakez.tts.duration", "Latency of text-to-speech synthesis.", "s", latencyBuckets),
		ConvertDuration:  b.histogram("speakez.convert.duration", "Latency of audio format conversion.", "s", latencyBuckets),
		CheckScore:       b.histogram("speakez.check.score", "Match percentage of pronunciation checks.", "%", scoreBuckets),
		Checks:           b.counter("speakez.checks", "Pronunciation checks by language and outcome."),
		ProviderRequests: b.counter("speakez.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:   b.counter("speakez.provider.errors", "Failed provider calls by provider and kind."),
		ActiveSessions:   b.upDown("speakez.active_sessions", "Live practice sessions."),
		HTTPRequestDuration: b.histogram("speakez.http.request.duration",
			"HTTP request latency by method, route and status.", "s", nil),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instruments, created on first use
// from the global meter provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// CheckOutcome classifies a match percentage.
func CheckOutcome(percentage float64) string {
	switch {
	case percentage <= 0:
		return OutcomeNoMatch
	case percentage >= 100:
		return OutcomeMatch
	}
	return OutcomePartial
}

// RecordCheck records the score histogram and the checks counter for one
// pronunciation check.
func (m *Metrics) RecordCheck(ctx context.Context, language string, percentage float64) {
	lang := attribute.String("language", language)
	m.CheckScore.Record(ctx, percentage, metric.WithAttributes(lang))
	m.Checks.Add(ctx, 1, metric.WithAttributes(lang, attribute.String("outcome", CheckOutcome(percentage))))
}
