package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on harness spans.
const (
	AttrOperation = attribute.Key("frolicsim.operation")
	AttrGameID    = attribute.Key("frolicsim.game_id")
	AttrUserID    = attribute.Key("frolicsim.user_id")
	AttrPlayID    = attribute.Key("frolicsim.play_id")
	AttrOutcome   = attribute.Key("frolicsim.outcome")
	AttrRunID     = attribute.Key("frolicsim.run_id")
	AttrPolicy    = attribute.Key("frolicsim.policy")
)

// StartClientSpan starts a client span for one platform call, e.g. "POST /play".
func StartClientSpan(ctx context.Context, tracer trace.Tracer, method, route string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
	)
	return ctx, span
}

// StartAttemptSpan starts the parent span covering one attempt's submit, delay, and poll.
func StartAttemptSpan(ctx context.Context, tracer trace.Tracer, userID, gameID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "attempt",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(AttrUserID.String(userID), AttrGameID.String(gameID))
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
