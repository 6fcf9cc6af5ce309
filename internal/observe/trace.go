package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the vozcards tracer.
const tracerName = "github.com/MrWong99/vozcards"

// Span attribute keys for practice operations.
const (
	SessionIDKey = attribute.Key("vozcards.session.id")
	StudentIDKey = attribute.Key("vozcards.student.id")
	CardSetIDKey = attribute.Key("vozcards.card_set.id")
	CardIDKey    = attribute.Key("vozcards.card.id")
)

// StartSpan starts a span on the global tracer provider. The caller must
// call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
// The HTTP layer returns it as X-Correlation-ID so a parent's bug report can
// be matched to the logs of a practice session.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type practiceKey struct{}

// practice identifies the learner a request is about.
type practice struct {
	sessionID string
	studentID string
}

// WithPractice tags ctx with the practice session it serves. [Logger] adds
// the IDs to every record and the current span receives them as attributes.
func WithPractice(ctx context.Context, sessionID, studentID string) context.Context {
	trace.SpanFromContext(ctx).SetAttributes(
		SessionIDKey.String(sessionID),
		StudentIDKey.String(studentID),
	)
	return context.WithValue(ctx, practiceKey{}, practice{sessionID: sessionID, studentID: studentID})
}

// Logger returns the default [slog.Logger] enriched with the trace and span
// IDs and the practice session of ctx, when present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if p, ok := ctx.Value(practiceKey{}).(practice); ok {
		l = l.With(slog.String("session_id", p.sessionID), slog.String("student_id", p.studentID))
	}
	return l
}
