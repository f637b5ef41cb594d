package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tubedash/tubedash/internal/api"
	"github.com/tubedash/tubedash/internal/auth"
	"github.com/tubedash/tubedash/internal/download"
	"github.com/tubedash/tubedash/internal/logger"
	"github.com/tubedash/tubedash/internal/metrics"
	"github.com/tubedash/tubedash/internal/tracker"
	"github.com/tubedash/tubedash/internal/websocket"
)

type e2eEnv struct {
	dashboard *httptest.Server
	token     string
	metrics   *metrics.Metrics
}

// newE2EEnv runs the dashboard against the simulated download service.
func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test")

	svc := download.NewService(download.NewMemoryStore(), &download.ServiceConfig{
		WorkerCount: 2,
		StepDelay:   time.Millisecond,
		Simulator:   download.NewSimulator(2),
		Logger:      log,
	})
	svc.Start()
	issuer := auth.NewIssuer("e2e-secret")
	devservice := httptest.NewServer(api.NewRouter(svc, issuer, nil))

	token, err := issuer.IssueToken(1, "alice", false, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	m := metrics.New()
	manager := NewManager(Config{
		ServiceURL:     devservice.URL + "/api",
		PollInterval:   10 * time.Millisecond,
		NoticeTTL:      time.Second,
		RequestTimeout: 2 * time.Second,
		Metrics:        m,
		Logger:         log,
	})
	hub := websocket.NewHub(manager, m)
	manager.SetPublisher(hub)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	dashboard := httptest.NewServer(NewServer(ServerConfig{
		Manager:        manager,
		WS:             websocket.NewHandler(hub, []string{"*"}),
		Metrics:        m,
		AllowedOrigins: []string{"*"},
		Logger:         log,
	}))

	t.Cleanup(func() {
		dashboard.Close()
		manager.Shutdown(context.Background())
		cancel()
		devservice.Close()
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		svc.Stop(stopCtx)
	})
	return &e2eEnv{dashboard: dashboard, token: token, metrics: m}
}

func (e *e2eEnv) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, e.dashboard.URL+path, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func (e *e2eEnv) openView(t *testing.T) string {
	t.Helper()
	var info ViewInfo
	resp := e.do(t, http.MethodPost, "/api/views", nil, &info)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if info.Username != "alice" || info.ViewID == "" {
		t.Fatalf("Unexpected view info %+v", info)
	}
	return info.ViewID
}

func TestServer_EndToEnd(t *testing.T) {
	env := newE2EEnv(t)
	viewID := env.openView(t)

	var submitted SubmitBatchResponse
	resp := env.do(t, http.MethodPost, "/api/views/"+viewID+"/batches", SubmitBatchRequest{Rows: []tracker.Entry{
		{URL: "https://youtu.be/dQw4w9WgXcQ", TargetPath: "videos", FileName: "rick"},
		{URL: "https://www.tiktok.com/@someone/video/7212345678901234567", TargetPath: "clips/"},
	}}, &submitted)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if len(submitted.Jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %+v", submitted.Jobs)
	}

	deadline := time.Now().Add(5 * time.Second)
	var view tracker.View
	for time.Now().Before(deadline) {
		view = tracker.View{}
		env.do(t, http.MethodGet, "/api/views/"+viewID, nil, &view)
		if tracker.AllTerminal(view.Jobs) && !view.Downloading {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(view.Jobs) != 2 {
		t.Fatalf("Expected 2 jobs in view, got %+v", view)
	}
	for _, job := range view.Jobs {
		if job.Status != tracker.StatusCompleted {
			t.Errorf("Job %s: expected completed, got %s", job.ID, job.Status)
		}
	}
	if view.Notice == nil || view.Notice.Message != tracker.CompletedMessage {
		t.Errorf("Expected completion notice, got %+v", view.Notice)
	}

	ratios := map[string]string{}
	for _, job := range view.Jobs {
		ratios[job.URL] = job.AspectRatio
	}
	if ratios["https://youtu.be/dQw4w9WgXcQ"] != "16:9" {
		t.Errorf("Expected 16:9 for the YouTube job, got %q", ratios["https://youtu.be/dQw4w9WgXcQ"])
	}
	if ratios["https://www.tiktok.com/@someone/video/7212345678901234567"] != "9:16" {
		t.Errorf("Expected 9:16 for the TikTok job, got %q", ratios["https://www.tiktok.com/@someone/video/7212345678901234567"])
	}
}

func TestServer_SubmissionErrors(t *testing.T) {
	env := newE2EEnv(t)
	viewID := env.openView(t)

	tests := []struct {
		name       string
		rows       []tracker.Entry
		wantStatus int
	}{
		{"unsupported source", []tracker.Entry{{URL: "https://vimeo.com/1", TargetPath: "x"}}, http.StatusBadRequest},
		{"empty form", []tracker.Entry{{URL: "", TargetPath: ""}}, http.StatusBadRequest},
		// The service caps batches at five URLs
		{"service rejects batch", repeatRows(6), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/views/"+viewID+"/batches", SubmitBatchRequest{Rows: tt.rows}, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}

	var view tracker.View
	env.do(t, http.MethodGet, "/api/views/"+viewID, nil, &view)
	if view.Error != "Invalid number of URLs or target paths" {
		t.Errorf("Expected service error on the view, got %q", view.Error)
	}
	if len(view.Jobs) != 0 {
		t.Errorf("Expected no tracked jobs, got %d", len(view.Jobs))
	}
}

func repeatRows(n int) []tracker.Entry {
	rows := make([]tracker.Entry, n)
	for i := range rows {
		rows[i] = tracker.Entry{URL: "https://youtu.be/dQw4w9WgXcQ", TargetPath: "videos"}
	}
	return rows
}

func TestServer_ViewLifecycle(t *testing.T) {
	env := newE2EEnv(t)
	viewID := env.openView(t)

	resp := env.do(t, http.MethodGet, "/api/views/"+viewID, nil, nil)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("Expected ETag on view snapshot")
	}

	req, _ := http.NewRequest(http.MethodGet, env.dashboard.URL+"/api/views/"+viewID, nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("If-None-Match", etag)
	notModified, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET failed: %v", err)
	}
	notModified.Body.Close()
	if notModified.StatusCode != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", notModified.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/views/"+viewID+"/downloads/unknown/cancel", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 cancelling an untracked job, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/api/views/"+viewID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/views/"+viewID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestServer_OpenViewWithoutToken(t *testing.T) {
	env := newE2EEnv(t)

	resp, err := http.Post(env.dashboard.URL+"/api/views", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestServer_LiveFeed(t *testing.T) {
	env := newE2EEnv(t)
	viewID := env.openView(t)

	url := "ws" + strings.TrimPrefix(env.dashboard.URL, "http") + "/api/views/" + viewID + "/ws?token=" + env.token
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	read := func() websocket.Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg websocket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		return msg
	}

	if first := read(); first.Type != websocket.MessageView || first.ViewID != viewID {
		t.Fatalf("Unexpected first frame %+v", first)
	}

	env.do(t, http.MethodPost, "/api/views/"+viewID+"/batches", SubmitBatchRequest{Rows: []tracker.Entry{
		{URL: "https://youtu.be/dQw4w9WgXcQ", TargetPath: "videos"},
	}}, nil)

	for {
		msg := read()
		if msg.View != nil && msg.View.Notice != nil && msg.View.Notice.Message == tracker.CompletedMessage {
			break
		}
	}

	env.do(t, http.MethodDelete, "/api/views/"+viewID, nil, nil)
	for {
		msg := read()
		if msg.Type == websocket.MessageViewClosed {
			break
		}
	}
}

func TestServer_ValidateAndMetrics(t *testing.T) {
	env := newE2EEnv(t)

	resp, err := http.Get(env.dashboard.URL + "/api/validate?url=" + "https://fb.watch/abc123XYZ/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from validate, got %d", resp.StatusCode)
	}

	env.openView(t)

	resp, err = http.Get(env.dashboard.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tubedash_views_active 1") {
		t.Errorf("Expected one active view in metrics, got:\n%s", body)
	}
}
