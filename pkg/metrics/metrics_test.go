package metrics_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jihwankim/aegis-agent/pkg/metrics"
)

func TestNewRegistryCountersStartAtZero(t *testing.T) {
	r := metrics.NewRegistry()

	if got := testutil.ToFloat64(r.SamplesProcessed); got != 0 {
		t.Fatalf("expected SamplesProcessed to start at 0, got %v", got)
	}

	r.SamplesProcessed.Inc()
	r.AnomaliesFlagged.Inc()
	r.AlertsEmitted.Inc()
	r.BaselineReadyEvents.Inc()
	r.LoopIterationLatency.Observe(0.25)

	if got := testutil.ToFloat64(r.SamplesProcessed); got != 1 {
		t.Fatalf("expected SamplesProcessed to be 1 after Inc, got %v", got)
	}
	if got := testutil.ToFloat64(r.AnomaliesFlagged); got != 1 {
		t.Fatalf("expected AnomaliesFlagged to be 1 after Inc, got %v", got)
	}
}

func TestServeWithEmptyAddrReturnsImmediately(t *testing.T) {
	r := metrics.NewRegistry()

	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background(), "") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error for empty addr, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve with an empty addr did not return promptly")
	}
}

func TestServeExposesMetricsEndpoint(t *testing.T) {
	r := metrics.NewRegistry()
	r.SamplesProcessed.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const addr = "127.0.0.1:19091"
	serveErr := make(chan error, 1)
	go func() { serveErr <- r.Serve(ctx, addr) }()

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !contains(body, "aegis_agent_samples_processed_total") {
		t.Fatalf("expected exported metric name in body, got: %s", body)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve returned an error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not shut down after context cancellation")
	}
}

func contains(haystack []byte, needle string) bool {
	return len(haystack) > 0 && indexOf(string(haystack), needle) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
