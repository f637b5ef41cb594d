package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("GET", "/api/views", 200, 100*time.Millisecond)
	m.RecordRequest("GET", "/api/views", 200, 150*time.Millisecond)
	m.RecordRequest("GET", "/api/views", 500, 50*time.Millisecond)

	// Request the metrics handler
	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "tubedash_http_requests_total") {
		t.Error("expected tubedash_http_requests_total metric")
	}
	if !strings.Contains(body, "tubedash_http_request_duration_seconds") {
		t.Error("expected tubedash_http_request_duration_seconds metric")
	}
}

func TestMetrics_WSConnections(t *testing.T) {
	m := New()

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "tubedash_websocket_connections_active 1") {
		t.Errorf("expected tubedash_websocket_connections_active 1, got:\n%s", body)
	}
}

func TestMetrics_ViewGauges(t *testing.T) {
	m := New()

	m.SetActiveViews(2)
	m.AddTrackedJobs(5)
	m.AddTrackedJobs(-2)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "tubedash_views_active 2") {
		t.Errorf("expected tubedash_views_active 2, got:\n%s", body)
	}
	if !strings.Contains(body, "tubedash_jobs_tracked 3") {
		t.Errorf("expected tubedash_jobs_tracked 3, got:\n%s", body)
	}
}

func TestMetrics_ObserveDuration(t *testing.T) {
	m := New()

	m.ObserveDuration("poll_tick", 20*time.Millisecond)
	m.ObserveDuration("poll_tick", 2*time.Second)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, `tubedash_duration_seconds_count{name="poll_tick"} 2`) {
		t.Errorf("expected poll_tick count 2, got:\n%s", body)
	}
	if !strings.Contains(body, `tubedash_duration_seconds_bucket{name="poll_tick",le="0.025"} 1`) {
		t.Errorf("expected one observation under 25ms, got:\n%s", body)
	}
}

func TestMetrics_Uptime(t *testing.T) {
	m := New()

	// Wait a bit to ensure uptime is > 0
	time.Sleep(10 * time.Millisecond)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "tubedash_uptime_seconds") {
		t.Error("expected tubedash_uptime_seconds metric")
	}
}

func TestMetrics_EndpointNormalization(t *testing.T) {
	m := New()

	// These should be normalized to the same endpoint
	m.RecordRequest("GET", "/api/views/123e4567-e89b-12d3-a456-426614174000", 200, 10*time.Millisecond)
	m.RecordRequest("GET", "/api/views/550e8400-e29b-41d4-a716-446655440000", 200, 10*time.Millisecond)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	// Should have normalized the UUID to {id}
	if !strings.Contains(body, "/api/views/{id}") {
		t.Errorf("expected normalized endpoint /api/views/{id}, got:\n%s", body)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrappedHandler := MetricsMiddleware(m)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/views", nil)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	// Check that metrics were recorded
	metricsHandler := m.Handler()
	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsW := httptest.NewRecorder()

	metricsHandler(metricsW, metricsReq)

	body := metricsW.Body.String()

	if !strings.Contains(body, "/api/views") {
		t.Errorf("expected endpoint /api/views in metrics, got:\n%s", body)
	}
}

func TestMetrics_CustomCounter(t *testing.T) {
	m := New()

	m.IncCounter("poll_requests")
	m.IncCounter("poll_requests")
	m.IncCounter("poll_errors")

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, `tubedash_counter{name="poll_requests"} 2`) {
		t.Errorf("expected poll_requests counter = 2, got:\n%s", body)
	}
}

func TestMetrics_CustomGauge(t *testing.T) {
	m := New()

	m.SetGauge("notice_ttl_seconds", 3.0)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, `tubedash_gauge{name="notice_ttl_seconds"}`) {
		t.Errorf("expected notice_ttl_seconds gauge, got:\n%s", body)
	}
}

func TestMetrics_Counter(t *testing.T) {
	m := New()

	if got := m.Counter("submissions"); got != 0 {
		t.Errorf("expected 0 for unknown counter, got %d", got)
	}
	m.IncCounter("submissions")
	if got := m.Counter("submissions"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestMetrics_ErrorsByStatusClass(t *testing.T) {
	m := New()

	m.RecordRequest("POST", "/api/views/42/batches", 502, time.Millisecond)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()
	want := `tubedash_http_errors_total{endpoint="/api/views/{id}/batches",method="POST",status_class="5xx"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("expected %s, got:\n%s", want, body)
	}
}
