// Package observe turns pipeline trace spans into Prometheus metrics and OpenTelemetry spans.
package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallnest/moviegraph/graph"
)

// Metrics is a graph.TraceHook recording stage durations and request outcomes.
type Metrics struct {
	stageSeconds   *prom.HistogramVec
	requestSeconds *prom.HistogramVec
	requestsTotal  *prom.CounterVec
}

var _ graph.TraceHook = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prom.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "moviegraph",
			Name:      "stage_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"stage", "success"}),
		requestSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "moviegraph",
			Name:      "request_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"}),
		requestsTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "moviegraph",
			Name:      "requests_total",
			Help:      "Total number of pipeline requests",
		}, []string{"mode", "success"}),
	}

	for _, c := range []prom.Collector{m.stageSeconds, m.requestSeconds, m.requestsTotal} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

// OnEvent implements graph.TraceHook. Only completed spans are recorded.
func (m *Metrics) OnEvent(_ context.Context, span *graph.TraceSpan) {
	if !span.Ended() {
		return
	}
	success := fmt.Sprintf("%t", span.Error == nil)

	switch span.Event {
	case graph.TraceEventNodeEnd, graph.TraceEventNodeError:
		m.stageSeconds.WithLabelValues(span.NodeName, success).Observe(span.Duration.Seconds())
	case graph.TraceEventGraphEnd:
		mode := metadataString(span, "mode")
		m.requestSeconds.WithLabelValues(mode).Observe(span.Duration.Seconds())
		m.requestsTotal.WithLabelValues(mode, success).Inc()
	}
}

// Handler serves the metrics in gatherer plus a /healthz liveness check.
func Handler(gatherer prom.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prom.Gatherer) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func metadataString(span *graph.TraceSpan, key string) string {
	if v, ok := span.Metadata[key].(string); ok {
		return v
	}
	return ""
}
