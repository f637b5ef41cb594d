package dlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tubedash/tubedash/internal/auth"
	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/tracker"
)

func testSession(t *testing.T) *auth.Session {
	t.Helper()
	token, err := auth.NewIssuer("secret").IssueToken(1, "alice", false, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	s, err := auth.NewSession(token)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func fastRetry() *apperrors.RetryConfig {
	return &apperrors.RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestClient_Submit(t *testing.T) {
	session := testSession(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/downloads" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+session.Token {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get(apperrors.RequestIDHeader) != "req-1" {
			t.Errorf("request id not forwarded: %q", r.Header.Get(apperrors.RequestIDHeader))
		}

		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.URLs) != 2 || body.TargetPaths[1] != "videos/b" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"download_ids":[1,"two"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", session)
	ctx := apperrors.WithRequestID(context.Background(), "req-1")

	ids, err := c.Submit(ctx, []string{"https://youtu.be/a", "https://youtu.be/b"}, []string{"videos/a", "videos/b"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "two" {
		t.Errorf("ids = %v", ids)
	}
}

func TestClient_SubmitLengthMismatch(t *testing.T) {
	c := New("http://unused.invalid/api", nil)
	_, err := c.Submit(context.Background(), []string{"a", "b"}, []string{"x"})
	if !apperrors.HasCode(err, apperrors.CodeInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/downloads/abc-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"abc-1","url":"https://x","status":"downloading","progress":-1,"aspect_ratio":"Unknown","user_id":1}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/api", nil).Status(context.Background(), "abc-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if p.Status == nil || *p.Status != tracker.StatusDownloading {
		t.Errorf("status = %v", p.Status)
	}
	if p.Progress == nil || *p.Progress != -1 {
		t.Errorf("progress = %v", p.Progress)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"unauthorized", 401, `{"message":"Token is invalid!"}`, apperrors.CodeUnauthorized, "Token is invalid!"},
		{"not found", 404, `{"message":"Download not found"}`, apperrors.CodeJobNotFound, "Download not found"},
		{"bad request", 400, `{"message":"Download already finished or cancelled"}`, apperrors.CodeInvalidRequest, "Download already finished or cancelled"},
		{"server error", 500, `oops`, apperrors.CodeDownloadServiceError, "Internal Server Error"},
		{"envelope", 503, `{"error":{"code":"X","message":"busy"}}`, apperrors.CodeDownloadServiceError, "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(srv.URL, nil).Cancel(context.Background(), "1")
			appErr, ok := apperrors.As(err)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode || appErr.Message != tt.wantMsg {
				t.Errorf("got %s %q, want %s %q", appErr.Code, appErr.Message, tt.wantCode, tt.wantMsg)
			}
			if appErr.Details["upstream_status"] != tt.status {
				t.Errorf("upstream_status = %v", appErr.Details["upstream_status"])
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, WithTimeout(20*time.Millisecond)).Status(context.Background(), "1")
	if !apperrors.HasCode(err, apperrors.CodeExternalTimeout) {
		t.Errorf("expected EXTERNAL_TIMEOUT, got %v", err)
	}
}

func TestClient_PingRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api", nil, WithRetryConfig(fastRetry()))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestClient_PingDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL, nil, WithRetryConfig(fastRetry())).Ping(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeUnauthorized) {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", n)
	}
}

var _ tracker.Service = (*Client)(nil)
