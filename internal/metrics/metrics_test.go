package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RunStarted()
	c.ChunkCredited(decimal.RequireFromString("0.25"))
	c.ChunkCredited(decimal.RequireFromString("0.15"))
	c.RunEnded("expired")
	c.RunEnded("expired")
	c.RunEnded("stopped")

	if got := testutil.ToFloat64(c.chunksCredited); got != 2 {
		t.Errorf("chunks credited = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.earningsCredited); got < 0.3999 || got > 0.4001 {
		t.Errorf("earnings credited = %v, want 0.4", got)
	}
	if got := testutil.ToFloat64(c.runsEnded.WithLabelValues("expired")); got != 2 {
		t.Errorf("expired runs = %v, want 2", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RefundProcessed(decimal.NewFromInt(1989))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "contractrun_refunds_processed_total") {
		t.Error("response should contain contractrun_refunds_processed_total metric")
	}
}

func TestNoopSatisfiesRecorder(t *testing.T) {
	var r Recorder = Noop{}
	r.RunStarted()
	r.HeartbeatThrottled()
}
