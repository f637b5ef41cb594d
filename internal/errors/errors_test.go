package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "req-1", ViewNotFound().WithDetails(map[string]any{"view_id": "v1"}))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-1" {
		t.Errorf("Expected request id header, got %q", got)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != CodeViewNotFound || resp.Error.RequestID != "req-1" {
		t.Errorf("Unexpected body %+v", resp.Error)
	}
	if resp.Error.Details["view_id"] != "v1" {
		t.Errorf("Expected details to be written, got %v", resp.Error.Details)
	}
}

func TestWriteError_UnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "", errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("Internal error details must not leak")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("x"), false},
		{"client error", BadRequest("bad"), false},
		{"internal error", InternalError("oops"), true},
		{"store error", StoreError("redis"), false},
		{"service 5xx", DownloadServiceError("down"), true},
		{"timeout", ExternalTimeout("download service"), true},
		{"service 4xx", New(CodeDownloadServiceError, "nope", CategoryExternal, http.StatusConflict), false},
		{"wrapped", errors.Join(errors.New("ctx"), DownloadServiceError("down")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	if !HasCode(JobNotFound(), CodeJobNotFound) {
		t.Error("JobNotFound should carry JOB_NOT_FOUND")
	}
	if HasCode(StoreError("x"), CodeJobNotFound) {
		t.Error("StoreError should not carry JOB_NOT_FOUND")
	}
	if HasCode(errors.New("plain"), CodeInternalError) {
		t.Error("plain errors carry no code")
	}
	wrapped := fmt.Errorf("cancel: %w", JobFinished())
	if !HasCode(wrapped, CodeJobFinished) {
		t.Error("HasCode should see through wrapping")
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return DownloadServiceError("unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return BadRequest("no")
	})
	if !HasCode(err, CodeInvalidRequest) {
		t.Errorf("Expected the permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if calls != 4 {
		t.Errorf("Expected 1 attempt plus 3 retries, got %d", calls)
	}
}

func TestHTTPRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !HTTPRetryableStatus(code) {
			t.Errorf("Expected %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 501} {
		if HTTPRetryableStatus(code) {
			t.Errorf("Expected %d not to be retryable", code)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "caller-id" || rec.Header().Get(RequestIDHeader) != "caller-id" {
		t.Errorf("Expected caller id to be reused, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) > maxRequestIDLength || seen == "" {
		t.Errorf("Expected a generated id, got %q", seen)
	}
}

func TestHandleFunc(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return Forbidden("nope")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", rec.Code)
	}
}
