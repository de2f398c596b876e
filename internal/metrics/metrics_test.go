package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"completions-gateway/internal/metrics"
)

func TestCollectorCounts(t *testing.T) {
	c := metrics.NewCollector(nil)
	c.RecordRequest("gpt-4", "success")
	c.RecordRequest("gpt-4", "success")
	c.RecordConformance("fallback")
	c.RecordBackendError("messages", "timeout")
	c.RecordBackendCall("messages", 300*time.Millisecond)

	got, err := testutil.GatherAndCount(c.Registry(), "completions_gateway_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 1 {
		t.Fatalf("requests series = %d, want 1", got)
	}

	want := `
# HELP completions_gateway_conformance_total Structured output payloads by the strategy that produced them.
# TYPE completions_gateway_conformance_total counter
completions_gateway_conformance_total{strategy="fallback"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(want), "completions_gateway_conformance_total"); err != nil {
		t.Fatalf("conformance metric: %v", err)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := metrics.NewCollector(nil)
	c.RecordRequest("gpt-4", "client_error")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `completions_gateway_requests_total{model="gpt-4",status="client_error"} 1`) {
		t.Fatalf("metrics body missing request counter:\n%s", body)
	}
}
