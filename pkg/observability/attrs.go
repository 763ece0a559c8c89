// Domain semantic-convention attributes for spans and metrics.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline attribute keys.
var (
	AttrFileID        = attribute.Key("oficios.file.id")
	AttrFileFormat    = attribute.Key("oficios.file.format")
	AttrStage         = attribute.Key("oficios.stage")
	AttrCorrelationID = attribute.Key("oficios.correlation_id")
	AttrActionType    = attribute.Key("oficios.action")
	AttrArtifactKind  = attribute.Key("oficios.artifact.kind")
	AttrOutcome       = attribute.Key("oficios.outcome")
	AttrConfidence    = attribute.Key("oficios.confidence")
)

// StageOperation builds the attribute set for one stage run.
func StageOperation(stage, fileID, correlationID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStage.String(stage),
		AttrFileID.String(fileID),
		AttrCorrelationID.String(correlationID),
	}
}

// FileOperation builds the attribute set for one file action.
func FileOperation(fileID, format, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFileID.String(fileID),
		AttrFileFormat.String(format),
		AttrActionType.String(action),
	}
}

// ExportOperation builds the attribute set for one export.
func ExportOperation(fileID, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFileID.String(fileID),
		AttrArtifactKind.String(kind),
	}
}

// SpanFromContext extracts the current span; a no-op span when absent.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
