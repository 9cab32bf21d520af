package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallnest/moviegraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type pipelineState struct {
	steps []string
}

func step(name string, err error) func(ctx context.Context, s *pipelineState) (*pipelineState, error) {
	return func(ctx context.Context, s *pipelineState) (*pipelineState, error) {
		s.steps = append(s.steps, name)
		return s, err
	}
}

// run drives a two-stage pipeline through hooks. The second stage fails when failWith is set.
func run(t *testing.T, mode string, failWith error, hooks ...graph.TraceHook) {
	t.Helper()
	g := graph.NewStateGraph[*pipelineState]()
	g.AddNode("retrieving", "retrieve", step("retrieving", nil))
	g.AddNode("summarizing", "summarize", step("summarizing", failWith))
	g.SetEntryPoint("retrieving")
	g.AddEdge("retrieving", "summarizing")
	g.AddEdge("summarizing", graph.END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	tracer := graph.NewTracer(hooks...)
	tracer.SetMetadata("mode", mode)
	tracer.SetMetadata("request_id", "req-"+mode)
	_, _ = runnable.WithTracer(tracer).Invoke(context.Background(), &pipelineState{})
}

func TestMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	run(t, "answer", nil, m)
	run(t, "answer", errors.New("llm down"), m)
	run(t, "recommend", nil, m)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("answer", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("answer", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("recommend", "true")))

	// Series: (retrieving,true), (summarizing,true), (summarizing,false).
	assert.Equal(t, 3, testutil.CollectAndCount(m.stageSeconds))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestSeconds))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestHandler(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	run(t, "answer", nil, m)

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `moviegraph_requests_total{mode="answer",success="true"} 1`)

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServe_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, "127.0.0.1:0", prom.NewRegistry()))
}

func TestOTelBridge(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	bridge := NewOTelBridge(provider)

	run(t, "answer", errors.New("llm down"), bridge)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range spans {
		byName[span.Name()] = span
	}
	request := byName["moviegraph.request"]
	retrieving := byName["moviegraph.retrieving"]
	summarizing := byName["moviegraph.summarizing"]
	require.NotNil(t, request)
	require.NotNil(t, retrieving)
	require.NotNil(t, summarizing)

	assert.Equal(t, request.SpanContext().SpanID(), retrieving.Parent().SpanID())
	assert.Equal(t, request.SpanContext().TraceID(), summarizing.SpanContext().TraceID())
	assert.Equal(t, codes.Ok, retrieving.Status().Code)
	assert.Equal(t, codes.Error, summarizing.Status().Code)
	assert.Equal(t, "llm down", summarizing.Status().Description)

	var edges int
	for _, event := range request.Events() {
		if event.Name == "edge" {
			edges++
		}
	}
	// The failed summarizing stage never reaches END.
	assert.Equal(t, 1, edges)

	var mode string
	for _, attr := range request.Attributes() {
		if attr.Key == "moviegraph.mode" {
			mode = attr.Value.AsString()
		}
	}
	assert.Equal(t, "answer", mode)
	assert.True(t, strings.HasPrefix(request.Name(), "moviegraph."))
	assert.Empty(t, bridge.spans)
}

type lineLogger struct {
	lines []string
}

func (l *lineLogger) Debug(format string, v ...any) { l.lines = append(l.lines, fmt.Sprintf(format, v...)) }

func (l *lineLogger) Info(string, ...any)  {}
func (l *lineLogger) Warn(string, ...any)  {}
func (l *lineLogger) Error(string, ...any) {}

func TestLogExporter(t *testing.T) {
	logger := &lineLogger{}
	provider := NewTracerProvider(NewLogExporter(logger))
	defer func() { require.NoError(t, provider.Shutdown(context.Background())) }()

	run(t, "recommend", errors.New("llm down"), NewOTelBridge(provider))

	require.Len(t, logger.lines, 3)
	assert.True(t, strings.HasPrefix(logger.lines[0], "span moviegraph.retrieving "))
	assert.Contains(t, logger.lines[0], "parent=")
	assert.Contains(t, logger.lines[1], `error="llm down"`)
	assert.True(t, strings.HasPrefix(logger.lines[2], "span moviegraph.request "))
	assert.Contains(t, logger.lines[2], "moviegraph.mode=recommend")
}
