package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はHandlerがPrometheus形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDecision("admin", "command", "allowed")
	PendingFunc(reg, "roomguard_pending_evictions", "退室予約中のユーザー数", func() int { return 3 })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "roomguard_decisions_total") {
		t.Error("response should contain roomguard_decisions_total metric")
	}
	if !strings.Contains(string(body), "roomguard_pending_evictions 3") {
		t.Errorf("response should contain pending gauge, got:\n%s", body)
	}
}
