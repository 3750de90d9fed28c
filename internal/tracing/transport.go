package tracing

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const transportTracerName = "sessiond-transport"

func transportTracer() trace.Tracer {
	return Tracer(transportTracerName)
}

// TraceSessionStart creates a long-lived span covering a session's actor
// lifetime from spawn to close. The caller must call span.End() when the
// session closes. All per-session operations should be children of this
// span's context.
func TraceSessionStart(ctx context.Context, sessionID, clientID string) (context.Context, trace.Span) {
	ctx, span := transportTracer().Start(ctx, "session",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("client_id", clientID),
	)
	return ctx, span
}

// TraceSessionObserved creates a session span for a terminal-run session
// discovered via the log-directory poll rather than spawned by this daemon.
func TraceSessionObserved(ctx context.Context, sessionID, project string) (context.Context, trace.Span) {
	ctx, span := transportTracer().Start(ctx, "session.observed",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("project", project),
		attribute.Bool("observed", true),
	)
	return ctx, span
}

// TraceHTTPRequest starts a span for an inbound HTTP call to the daemon's API.
// Caller must call span.End() when the response is written.
func TraceHTTPRequest(ctx context.Context, method, path, sessionID string) (context.Context, trace.Span) {
	ctx, span := transportTracer().Start(ctx, "http."+method+" "+path,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("session_id", sessionID),
	)
	return ctx, span
}

// TraceHTTPResponse records response attributes on the span.
func TraceHTTPResponse(span trace.Span, statusCode int, err error) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceSSEEvent creates a single span for an event pushed to an SSE
// subscriber. The raw JSON payload is attached as a span event.
func TraceSSEEvent(ctx context.Context, eventType, sessionID, clientID string, rawPayload json.RawMessage) {
	_, span := transportTracer().Start(ctx, "sse.event."+eventType,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("event_type", eventType),
		attribute.String("session_id", sessionID),
		attribute.String("client_id", clientID),
	)

	if len(rawPayload) > 0 {
		data := string(rawPayload)
		if len(data) > maxEventDataLen {
			data = data[:maxEventDataLen] + "...(truncated)"
		}
		span.AddEvent("event_data", trace.WithAttributes(
			attribute.String("data", data),
		))
	}
}

const maxEventDataLen = 8192

// TracePermissionPrompt creates a span covering a permission prompt from
// the moment it is raised to the moment it is resolved or times out.
func TracePermissionPrompt(ctx context.Context, sessionID, requestID, toolName, source string) (context.Context, trace.Span) {
	ctx, span := transportTracer().Start(ctx, "permission_prompt",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("request_id", requestID),
		attribute.String("tool_name", toolName),
		attribute.String("source", source),
	)
	return ctx, span
}

// TracePermissionResolved records the resolution of a permission prompt on its span.
func TracePermissionResolved(span trace.Span, behavior string, err error) {
	span.SetAttributes(attribute.String("behavior", behavior))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceTurnEnd creates a span marking the end of an agent turn.
// The caller should set additional attributes (stop_reason, is_error) before ending the span.
func TraceTurnEnd(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	ctx, span := transportTracer().Start(ctx, "turn_end",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
	)
	return ctx, span
}
