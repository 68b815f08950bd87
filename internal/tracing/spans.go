package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the store and the services
const (
	AttrBlobOp        = attribute.Key("whatsdata.blob.op")
	AttrBlobDirectory = attribute.Key("whatsdata.blob.directory")
	AttrBlobFile      = attribute.Key("whatsdata.blob.file")
	AttrBlobRecords   = attribute.Key("whatsdata.blob.records")
	AttrStatsType     = attribute.Key("whatsdata.stats.type")
	AttrStatsCached   = attribute.Key("whatsdata.stats.cached")
)

// StartBlobSpan opens a "store.<op>" span describing one blob. An empty dir
// or name is left off the span.
func StartBlobSpan(ctx context.Context, op, dir, name string) (context.Context, oteltrace.Span) {
	attrs := []attribute.KeyValue{AttrBlobOp.String(op)}
	if dir != "" {
		attrs = append(attrs, AttrBlobDirectory.String(dir))
	}
	if name != "" {
		attrs = append(attrs, AttrBlobFile.String(name))
	}
	return StartSpan(ctx, "store."+op, attrs...)
}

// EndSpan records err (if any) on span and ends it
func EndSpan(span oteltrace.Span, err error) {
	if err != nil && span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
