// Package metrics exposes the agent's own health as Prometheus metrics.
// This is read-only self-observability, not a command or control
// surface: it repurposes prometheus/client_golang as a registry and
// HTTP exporter rather than a query client.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the agent's self-metrics.
type Registry struct {
	registry *prometheus.Registry

	SamplesProcessed     prometheus.Counter
	BaselineReadyEvents  prometheus.Counter
	AnomaliesFlagged     prometheus.Counter
	AlertsEmitted        prometheus.Counter
	LoopIterationLatency prometheus.Histogram
}

// NewRegistry constructs a Registry with all collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis_agent",
			Name:      "samples_processed_total",
			Help:      "Total telemetry samples collected and processed.",
		}),
		BaselineReadyEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis_agent",
			Name:      "baseline_ready_transitions_total",
			Help:      "Number of times the baseline transitioned from not-ready to ready.",
		}),
		AnomaliesFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis_agent",
			Name:      "anomalies_flagged_total",
			Help:      "Total samples classified as anomalous.",
		}),
		AlertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis_agent",
			Name:      "alerts_emitted_total",
			Help:      "Total RANSOMWARE-verdict alert records emitted.",
		}),
		LoopIterationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aegis_agent",
			Name:      "loop_iteration_seconds",
			Help:      "Wall-clock duration of one control-loop iteration, excluding sleep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.SamplesProcessed, r.BaselineReadyEvents, r.AnomaliesFlagged, r.AlertsEmitted, r.LoopIterationLatency)

	return r
}

// Serve starts an HTTP server exposing the registry at /metrics on
// addr. It blocks until ctx is canceled, then shuts the server down.
// If addr is empty, Serve returns immediately without starting a
// server (self-metrics are optional).
func (r *Registry) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
