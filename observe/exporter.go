package observe

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/moviegraph/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ServiceName is the service.name resource attribute of exported spans.
const ServiceName = "moviegraph"

// LogExporter is a span exporter writing one debug line per finished span.
type LogExporter struct {
	logger log.Logger
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter creates an exporter writing to logger, or the default logger when nil.
func NewLogExporter(logger log.Logger) *LogExporter {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &LogExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter. It never fails.
func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		e.logger.Debug("%s", FormatSpan(span))
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(context.Context) error {
	return nil
}

// FormatSpan renders a span as a single log line.
func FormatSpan(span sdktrace.ReadOnlySpan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "span %s trace=%s id=%s", span.Name(), span.SpanContext().TraceID(), span.SpanContext().SpanID())
	if span.Parent().IsValid() {
		fmt.Fprintf(&sb, " parent=%s", span.Parent().SpanID())
	}
	fmt.Fprintf(&sb, " duration=%s", span.EndTime().Sub(span.StartTime()))
	if span.Status().Code == codes.Error {
		fmt.Fprintf(&sb, " error=%q", span.Status().Description)
	}
	for _, attr := range span.Attributes() {
		fmt.Fprintf(&sb, " %s=%s", attr.Key, attr.Value.Emit())
	}
	return sb.String()
}

// NewTracerProvider returns a provider exporting finished spans through exporter as soon as
// they end.
func NewTracerProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)),
	)
	if err != nil {
		log.Warn("failed to create trace resource, using default: %v", err)
		res = resource.Default()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
}
