package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrSessionID   = "session.id"
	AttrCommandVerb = "command.verb"
	AttrHost        = "session.host"
	AttrProtocol    = "session.protocol"
	AttrLocalPath   = "path.local"
	AttrRemotePath  = "path.remote"
	AttrFolderPair  = "fsync.pair"
	AttrAction      = "fsync.action"
	AttrFileCount   = "result.files"
	AttrFailures    = "result.failures"
)

// Span names.
const (
	SpanPrefixCommand = "engine.command."
	SpanPrefixAction  = "fsync.action."
)

// Event names.
const (
	EventRemoteFailure = "engine.failure"
	EventCancelled     = "transfer.cancelled"
)

// StartCommand opens the span for one engine command.
func StartCommand(ctx context.Context, tracer trace.Tracer, verb string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(AttrCommandVerb, verb))
	return tracer.Start(ctx, SpanPrefixCommand+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// StartAction opens the span for one folder-pair action. Engine commands the
// action issues through the returned context become its children.
func StartAction(ctx context.Context, tracer trace.Tracer, pair, action string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanPrefixAction+action,
		trace.WithAttributes(
			attribute.String(AttrFolderPair, pair),
			attribute.String(AttrAction, action),
		),
	)
}

// End records err as the span status and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the trace ID of the span in ctx, or "" when there is
// none. Used to correlate log lines with exported spans.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
