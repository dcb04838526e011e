package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestProviderDurationBuckets(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderCall(ctx, "vision", "analyze", 300*time.Millisecond, nil)
	m.RecordProviderCall(ctx, "directions", "route", 3*time.Second, nil)

	met := findMetric(collect(t, reader), "urbansense.provider.duration")
	if met == nil {
		t.Fatal("provider duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want histogram", met.Data)
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("got %d series, want one per provider/op", len(hist.DataPoints))
	}
	for _, dp := range hist.DataPoints {
		if len(dp.Bounds) != len(latencyBuckets) {
			t.Errorf("bounds = %v, want %v", dp.Bounds, latencyBuckets)
		}
		if dp.Count != 1 {
			t.Errorf("count = %d, want 1", dp.Count)
		}
	}
}

// sumFor returns the value of the data point carrying key=value, or -1.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestRecordProviderCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderCall(ctx, "gemini", "analyze", 200*time.Millisecond, nil)
	m.RecordProviderCall(ctx, "gemini", "analyze", 300*time.Millisecond, nil)
	m.RecordProviderCall(ctx, "gemini", "analyze", time.Second, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumFor(t, rm, "urbansense.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "urbansense.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := sumFor(t, rm, "urbansense.provider.errors", "provider", "gemini"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "completed")
	m.RecordUtterance(ctx, "completed")
	m.RecordUtterance(ctx, "deduplicated")
	m.RecordRecognitionError(ctx, "no-speech")
	m.RecordCommand(ctx, "explore")
	m.RecordTransition(ctx, "Idle", "Capturing")
	m.RecordBreakerTransition(ctx, "vision/gemini", "open")
	m.RecordStepAdvance(ctx, "position")
	m.RecordStepAdvance(ctx, "position")
	m.RecordSOS(ctx, "dialed")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"urbansense.speech.utterances", "outcome", "completed", 2},
		{"urbansense.speech.utterances", "outcome", "deduplicated", 1},
		{"urbansense.recognition.errors", "code", "no-speech", 1},
		{"urbansense.commands", "command", "explore", 1},
		{"urbansense.session.transitions", "to", "Capturing", 1},
		{"urbansense.provider.breaker_transitions", "state", "open", 1},
		{"urbansense.navigation.steps_advanced", "source", "position", 2},
		{"urbansense.sos.calls", "outcome", "dialed", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			if got := sumFor(t, rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Errorf("counter value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveNavigations.Add(ctx, 1)
	m.ActiveNavigations.Add(ctx, -1)
	m.ActiveNavigations.Add(ctx, 1)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"urbansense.active_sessions", 2},
		{"urbansense.active_navigations", 1},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
