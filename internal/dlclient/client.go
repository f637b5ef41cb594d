// Package dlclient is the HTTP client for the remote download service.
package dlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubedash/tubedash/internal/auth"
	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/tracker"
)

const (
	userAgent      = "tubedash/1.0"
	requestTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
	serviceName    = "download service"
)

// Client talks to the download service on behalf of one session.
type Client struct {
	baseURL    string
	session    *auth.Session
	httpClient *http.Client
	retry      *apperrors.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetryConfig sets the retry policy used by Ping.
func WithRetryConfig(cfg *apperrors.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a client for the service rooted at baseURL, e.g. http://host:8000/api.
func New(baseURL string, session *auth.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		retry: apperrors.DownloadServiceRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	URLs        []string `json:"urls"`
	TargetPaths []string `json:"targetPaths"`
}

type submitResponse struct {
	DownloadIDs []tracker.ID `json:"download_ids"`
}

// Submit starts one download per URL and returns the ids in input order.
func (c *Client) Submit(ctx context.Context, urls, targetPaths []string) ([]tracker.ID, error) {
	if len(urls) != len(targetPaths) {
		return nil, apperrors.BadRequest("urls and target paths must have the same length")
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/downloads", submitRequest{URLs: urls, TargetPaths: targetPaths}, &resp); err != nil {
		return nil, err
	}
	return resp.DownloadIDs, nil
}

// Status fetches the current state of one download.
func (c *Client) Status(ctx context.Context, id tracker.ID) (tracker.Payload, error) {
	var p tracker.Payload
	err := c.do(ctx, http.MethodGet, "/downloads/"+url.PathEscape(id.String()), nil, &p)
	return p, err
}

// Cancel asks the service to stop one download.
func (c *Client) Cancel(ctx context.Context, id tracker.ID) error {
	return c.do(ctx, http.MethodPost, "/downloads/"+url.PathEscape(id.String())+"/cancel", nil, nil)
}

// Ping checks that the service is reachable, retrying transient failures.
func (c *Client) Ping(ctx context.Context) error {
	return apperrors.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/health", nil, nil)
	})
}

// do performs one request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperrors.InternalError("failed to encode request").WithCause(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.InternalError("failed to create request").WithCause(err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apperrors.RequestIDHeader, apperrors.RequestIDOrGenerate(ctx))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz := c.session.Authorization(); authz != "" {
		req.Header.Set("Authorization", authz)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.DownloadServiceError("malformed response from download service").WithCause(err)
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.ExternalTimeout(serviceName).WithCause(err)
	}
	return apperrors.DownloadServiceError("download service unreachable").WithCause(err)
}

// errorBody accepts both the service's {"message": ...} body and the
// {"error": {"message": ...}} envelope.
type errorBody struct {
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func statusError(status int, data []byte) error {
	var eb errorBody
	msg := ""
	if json.Unmarshal(data, &eb) == nil {
		msg = eb.Message
		if msg == "" && eb.Error != nil {
			msg = eb.Error.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	var appErr *apperrors.AppError
	switch {
	case status == http.StatusUnauthorized:
		appErr = apperrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		appErr = apperrors.Forbidden(msg)
	case status == http.StatusNotFound:
		appErr = apperrors.New(apperrors.CodeJobNotFound, msg, apperrors.CategoryClient, http.StatusNotFound)
	case status == http.StatusBadRequest:
		appErr = apperrors.New(apperrors.CodeInvalidRequest, msg, apperrors.CategoryClient, http.StatusBadRequest)
	case apperrors.HTTPRetryableStatus(status) || status >= 500:
		appErr = apperrors.DownloadServiceError(msg)
	default:
		appErr = apperrors.New(apperrors.CodeDownloadServiceError, msg, apperrors.CategoryClient, status)
	}
	return appErr.WithDetails(map[string]any{"upstream_status": status}).WithCause(fmt.Errorf("%s returned %d", serviceName, status))
}
