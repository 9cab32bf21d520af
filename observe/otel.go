package observe

import (
	"context"
	"sync"

	"github.com/smallnest/moviegraph/graph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the spans created by OTelBridge.
const TracerName = "github.com/smallnest/moviegraph"

// OTelBridge is a graph.TraceHook mirroring pipeline spans as OpenTelemetry spans. Node
// spans become children of their request span.
type OTelBridge struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

var _ graph.TraceHook = (*OTelBridge)(nil)

// NewOTelBridge creates a bridge using provider, or the global provider when nil.
func NewOTelBridge(provider trace.TracerProvider) *OTelBridge {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelBridge{
		tracer: provider.Tracer(TracerName),
		spans:  make(map[string]trace.Span),
	}
}

// OnEvent implements graph.TraceHook.
func (b *OTelBridge) OnEvent(ctx context.Context, span *graph.TraceSpan) {
	switch span.Event {
	case graph.TraceEventGraphStart, graph.TraceEventNodeStart:
		b.start(ctx, span)
	case graph.TraceEventGraphEnd, graph.TraceEventNodeEnd, graph.TraceEventNodeError:
		b.end(span)
	case graph.TraceEventEdgeTraversal:
		b.mu.Lock()
		parent := b.spans[span.ParentID]
		b.mu.Unlock()
		if parent != nil {
			parent.AddEvent("edge", trace.WithAttributes(
				attribute.String("from", span.FromNode),
				attribute.String("to", span.ToNode),
			))
		}
	}
}

func (b *OTelBridge) start(ctx context.Context, span *graph.TraceSpan) {
	b.mu.Lock()
	parent := b.spans[span.ParentID]
	b.mu.Unlock()
	if parent != nil {
		ctx = trace.ContextWithSpan(ctx, parent)
	}

	name := "moviegraph.request"
	if span.Event == graph.TraceEventNodeStart {
		name = "moviegraph." + span.NodeName
	}

	attrs := make([]attribute.KeyValue, 0, len(span.Metadata))
	for k, v := range span.Metadata {
		if s, ok := v.(string); ok {
			attrs = append(attrs, attribute.String("moviegraph."+k, s))
		}
	}

	_, otelSpan := b.tracer.Start(ctx, name,
		trace.WithTimestamp(span.StartTime),
		trace.WithAttributes(attrs...),
	)

	b.mu.Lock()
	b.spans[span.ID] = otelSpan
	b.mu.Unlock()
}

func (b *OTelBridge) end(span *graph.TraceSpan) {
	b.mu.Lock()
	otelSpan, ok := b.spans[span.ID]
	delete(b.spans, span.ID)
	b.mu.Unlock()
	if !ok {
		return
	}

	if span.Error != nil {
		otelSpan.RecordError(span.Error)
		otelSpan.SetStatus(codes.Error, span.Error.Error())
	} else {
		otelSpan.SetStatus(codes.Ok, "")
	}
	otelSpan.End(trace.WithTimestamp(span.EndTime))
}
