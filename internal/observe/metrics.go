// Package observe provides application-wide observability primitives for
// UrbanSense: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all UrbanSense metrics.
const meterName = "github.com/urbansense/urbansense"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ProviderDuration tracks oracle latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...)
	ProviderDuration metric.Float64Histogram

	// UtteranceDuration tracks how long each synthesized utterance played.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts oracle calls by provider, op and status.
	ProviderRequests metric.Int64Counter

	// Utterances counts synthesis requests by outcome
	// (completed, error, timeout, interrupted, deduplicated, skipped).
	Utterances metric.Int64Counter

	// RecognitionErrors counts recognizer errors by code.
	RecognitionErrors metric.Int64Counter

	// Commands counts recognized voice commands by command name.
	Commands metric.Int64Counter

	// Transitions counts view-state transitions by from/to state.
	Transitions metric.Int64Counter

	// StepsAdvanced counts navigation step advances by source (position, guidance).
	StepsAdvanced metric.Int64Counter

	// SOSCalls counts SOS triggers by outcome (dialed, no_contact).
	SOSCalls metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts oracle errors by provider and op.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by provider and
	// target state.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected devices.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveNavigations tracks the number of sessions in NavigationActive.
	ActiveNavigations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// chi route pattern and status. Upgraded device sockets are excluded.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// vision and routing round-trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProviderDuration, err = m.Float64Histogram("urbansense.provider.duration",
		metric.WithDescription("Latency of vision, directions and transit oracle calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("urbansense.speech.utterance.duration",
		metric.WithDescription("Playback time of synthesized utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("urbansense.provider.requests",
		metric.WithDescription("Total oracle requests by provider, op, and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("urbansense.speech.utterances",
		metric.WithDescription("Total synthesis requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("urbansense.recognition.errors",
		metric.WithDescription("Total speech recognition errors by code."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("urbansense.commands",
		metric.WithDescription("Total recognized voice commands by command."),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("urbansense.session.transitions",
		metric.WithDescription("Total view-state transitions by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.StepsAdvanced, err = m.Int64Counter("urbansense.navigation.steps_advanced",
		metric.WithDescription("Total navigation step advances by source."),
	); err != nil {
		return nil, err
	}
	if met.SOSCalls, err = m.Int64Counter("urbansense.sos.calls",
		metric.WithDescription("Total SOS triggers by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("urbansense.provider.errors",
		metric.WithDescription("Total oracle errors by provider and op."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("urbansense.provider.breaker_transitions",
		metric.WithDescription("Total circuit breaker state changes by provider and state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("urbansense.active_sessions",
		metric.WithDescription("Number of connected devices."),
	); err != nil {
		return nil, err
	}
	if met.ActiveNavigations, err = m.Int64UpDownCounter("urbansense.active_navigations",
		metric.WithDescription("Number of sessions with turn-by-turn navigation running."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("urbansense.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// RecordProviderCall records one oracle call: its latency, a request counter
// increment, and an error counter increment when err is non-nil.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, op string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
		))
	}
	m.ProviderDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
	))
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// RecordUtterance counts one synthesis request with the given outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecognitionError counts one recognizer error.
func (m *Metrics) RecordRecognitionError(ctx context.Context, code string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordCommand counts one recognized voice command.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordTransition counts one view-state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordStepAdvance counts one navigation step advance.
func (m *Metrics) RecordStepAdvance(ctx context.Context, source string) {
	m.StepsAdvanced.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordSOS counts one SOS trigger.
func (m *Metrics) RecordSOS(ctx context.Context, outcome string) {
	m.SOSCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", state),
	))
}
