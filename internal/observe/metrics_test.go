package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr folds the data points of an int64 sum into a map keyed by the
// value of one attribute.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("%s not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is %T, want Sum[int64]", name, met.Data)
	}
	out := make(map[string]int64, len(sum.DataPoints))
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.AsString()] += dp.Value
	}
	return out
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) (uint64, float64) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("%s not recorded", name)
	}
	h, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("%s is %T, want Histogram[float64]", name, met.Data)
	}
	var (
		count uint64
		total float64
	)
	for _, dp := range h.DataPoints {
		count += dp.Count
		total += dp.Sum
	}
	return count, total
}

func TestMetrics_LatencyHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	want := map[string]metric.Float64Histogram{
		"speakez.stt.duration":          m.STTDuration,
		"speakez.tts.duration":          m.TTSDuration,
		"speakez.convert.duration":      m.ConvertDuration,
		"speakez.http.request.duration": m.HTTPRequestDuration,
	}
	for _, h := range want {
		h.Record(ctx, 0.25)
		h.Record(ctx, 1.5)
	}

	rm := collect(t, reader)
	for name := range want {
		if n, total := histogramCount(t, rm, name); n != 2 || total != 1.75 {
			t.Errorf("%s: count=%d sum=%v, want 2 and 1.75", name, n, total)
		}
	}
}

func TestMetrics_RecordCheck(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	for _, pct := range []float64{100, 50, 0, 100, 12.5} {
		m.RecordCheck(ctx, "de", pct)
	}

	rm := collect(t, reader)
	if n, total := histogramCount(t, rm, "speakez.check.score"); n != 5 || total != 262.5 {
		t.Errorf("score histogram: count=%d sum=%v, want 5 and 262.5", n, total)
	}

	got := sumByAttr(t, rm, "speakez.checks", "outcome")
	want := map[string]int64{OutcomeMatch: 2, OutcomePartial: 2, OutcomeNoMatch: 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("checks[%s] = %d, want %d", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("outcomes = %v, want %v", got, want)
	}
}

func TestCheckOutcome(t *testing.T) {
	tests := map[float64]string{
		-1:    OutcomeNoMatch,
		0:     OutcomeNoMatch,
		0.5:   OutcomePartial,
		99.99: OutcomePartial,
		100:   OutcomeMatch,
	}
	for pct, want := range tests {
		if got := CheckOutcome(pct); got != want {
			t.Errorf("CheckOutcome(%v) = %q, want %q", pct, got, want)
		}
	}
}

func TestMetrics_ProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
	m.RecordProviderRequest(ctx, "gtts", "tts", "error")
	m.RecordProviderError(ctx, "gtts", "tts")

	rm := collect(t, reader)

	byStatus := sumByAttr(t, rm, "speakez.provider.requests", "status")
	if byStatus["ok"] != 2 || byStatus["error"] != 1 {
		t.Errorf("requests by status = %v, want ok=2 error=1", byStatus)
	}
	errs := sumByAttr(t, rm, "speakez.provider.errors", "provider")
	if len(errs) != 1 || errs["gtts"] != 1 {
		t.Errorf("errors by provider = %v, want gtts=1", errs)
	}
}

func TestMetrics_ActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	got := sumByAttr(t, collect(t, reader), "speakez.active_sessions", "unused")
	if got[""] != 1 {
		t.Errorf("active sessions = %d, want 1", got[""])
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
