package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spawnerTracerName = "sessiond-spawner"

func spawnerTracer() trace.Tracer {
	return Tracer(spawnerTracerName)
}

// TraceSpawnPrepare creates a span for preparing a child's launch
// environment (working directory, env vars, resume arguments).
func TraceSpawnPrepare(ctx context.Context, sessionID, workDir string) (context.Context, trace.Span) {
	ctx, span := spawnerTracer().Start(ctx, "spawner.prepare",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("work_dir", workDir),
	)
	return ctx, span
}

// TraceSpawnStart creates a span for launching a child process and waiting
// for its handshake.
func TraceSpawnStart(ctx context.Context, sessionID string, resume bool) (context.Context, trace.Span) {
	ctx, span := spawnerTracer().Start(ctx, "spawner.start",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("resume", resume),
	)
	return ctx, span
}

// TraceSpawnResult records the outcome of a spawn attempt on its span.
func TraceSpawnResult(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceRetryCompanion creates a span for a --resume companion spawned to
// re-raise a hook-sourced permission prompt.
func TraceRetryCompanion(ctx context.Context, sessionID, requestID string) (context.Context, trace.Span) {
	ctx, span := spawnerTracer().Start(ctx, "spawner.retry_companion",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("request_id", requestID),
	)
	return ctx, span
}

// TraceOrphanSweep creates a span for the startup orphan-sweep pass.
func TraceOrphanSweep(ctx context.Context, candidateCount int) (context.Context, trace.Span) {
	ctx, span := spawnerTracer().Start(ctx, "spawner.orphan_sweep",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.Int("candidate_count", candidateCount),
	)
	return ctx, span
}

// TraceSpawnStop creates a span for stopping a running child.
func TraceSpawnStop(ctx context.Context, sessionID string, force bool) (context.Context, trace.Span) {
	ctx, span := spawnerTracer().Start(ctx, "spawner.stop",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("force", force),
	)
	return ctx, span
}
