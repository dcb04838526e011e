package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/urbansense/urbansense"

// Span attribute keys for oracle calls.
const (
	AttrOracle = attribute.Key("urbansense.oracle")
	AttrOp     = attribute.Key("urbansense.op")
)

// Tracer returns the UrbanSense tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartOracleSpan starts a client span named "<oracle>.<op>" for one call to
// an external oracle (vision model, routing service, transit model).
func StartOracleSpan(ctx context.Context, oracle, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, oracle+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrOracle.String(oracle), AttrOp.String(op)),
	)
}

// EndSpan records err on span, sets its status and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TrackCall opens an oracle span and returns the derived context together
// with a finish func. Calling finish ends the span and records the call in m.
//
//	ctx, done := metrics.TrackCall(ctx, "vision", "analyze")
//	text, err := provider.AnalyzeImage(ctx, img)
//	done(err)
func (m *Metrics) TrackCall(ctx context.Context, oracle, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := StartOracleSpan(ctx, oracle, op)
	return ctx, func(err error) {
		m.RecordProviderCall(ctx, oracle, op, time.Since(start), err)
		EndSpan(span, err)
	}
}

// TraceID returns the hex trace ID of the span in ctx, or "" when there is
// none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns base with trace_id and span_id attached when ctx carries a
// valid span. A nil base means [slog.Default].
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
