package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const prefix = "tubedash_"

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	requestCount    map[string]*uint64    // endpoint:method -> count
	requestDuration map[string]*Histogram // endpoint:method -> duration histogram
	requestErrors   map[string]*uint64    // endpoint:method:status_class -> count

	// Application metrics
	activeWSConnections int64
	activeViews         int64
	trackedJobs         int64

	// Custom gauges, counters and named durations
	gauges    map[string]float64
	counters  map[string]*uint64
	durations map[string]*Histogram

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu    sync.Mutex
	count uint64
	sum   float64
	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
	buckets    []float64
	bucketVals []uint64
}

// NewHistogram creates a new histogram with default buckets
func NewHistogram() *Histogram {
	return &Histogram{
		buckets:    []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		bucketVals: make([]uint64, 11),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

// Count returns the number of observations
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]*uint64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]*uint64),
		gauges:          make(map[string]float64),
		counters:        make(map[string]*uint64),
		durations:       make(map[string]*Histogram),
		startTime:       time.Now(),
	}
}

// global metrics instance
var defaultMetrics = New()

// Default returns the default metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest records a request
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	key := fmt.Sprintf("%s:%s", normalizeEndpoint(path), method)

	m.mu.Lock()
	count := m.requestCount[key]
	if count == nil {
		count = new(uint64)
		m.requestCount[key] = count
	}
	hist := m.requestDuration[key]
	if hist == nil {
		hist = NewHistogram()
		m.requestDuration[key] = hist
	}
	var errCount *uint64
	if statusCode >= 400 {
		errorKey := fmt.Sprintf("%s:%d", key, statusCode/100*100)
		errCount = m.requestErrors[errorKey]
		if errCount == nil {
			errCount = new(uint64)
			m.requestErrors[errorKey] = errCount
		}
	}
	m.mu.Unlock()

	atomic.AddUint64(count, 1)
	hist.Observe(duration.Seconds())
	if errCount != nil {
		atomic.AddUint64(errCount, 1)
	}
}

// normalizeEndpoint normalizes an endpoint path for metrics (removes IDs)
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		// UUID pattern (simplified)
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = "{id}"
		} else if len(part) > 0 && isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, 1)
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, -1)
}

// SetActiveViews sets the number of open dashboard views
func (m *Metrics) SetActiveViews(n int64) {
	atomic.StoreInt64(&m.activeViews, n)
}

// AddTrackedJobs adjusts the number of download records held across all views
func (m *Metrics) AddTrackedJobs(delta int64) {
	atomic.AddInt64(&m.trackedJobs, delta)
}

// SetGauge sets a gauge value
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// IncCounter increments a counter
func (m *Metrics) IncCounter(name string) {
	m.mu.Lock()
	c := m.counters[name]
	if c == nil {
		c = new(uint64)
		m.counters[name] = c
	}
	m.mu.Unlock()
	atomic.AddUint64(c, 1)
}

// Counter returns the current value of a custom counter
func (m *Metrics) Counter(name string) uint64 {
	m.mu.RLock()
	c := m.counters[name]
	m.mu.RUnlock()
	if c == nil {
		return 0
	}
	return atomic.LoadUint64(c)
}

// ObserveDuration records d into the named duration histogram
func (m *Metrics) ObserveDuration(name string, d time.Duration) {
	m.mu.Lock()
	h := m.durations[name]
	if h == nil {
		h = NewHistogram()
		m.durations[name] = h
	}
	m.mu.Unlock()
	h.Observe(d.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		uptime := time.Since(m.startTime).Seconds()
		writeGauge(&sb, "uptime_seconds", "Time since the server started", fmt.Sprintf("%f", uptime))
		writeGauge(&sb, "websocket_connections_active", "Active WebSocket connections",
			fmt.Sprint(atomic.LoadInt64(&m.activeWSConnections)))
		writeGauge(&sb, "views_active", "Open dashboard views",
			fmt.Sprint(atomic.LoadInt64(&m.activeViews)))
		writeGauge(&sb, "jobs_tracked", "Download records held across all views",
			fmt.Sprint(atomic.LoadInt64(&m.trackedJobs)))

		m.mu.RLock()
		if len(m.requestCount) > 0 {
			sb.WriteString("# HELP " + prefix + "http_requests_total Total HTTP requests\n")
			sb.WriteString("# TYPE " + prefix + "http_requests_total counter\n")
			for _, key := range sortedKeys(m.requestCount) {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					count := atomic.LoadUint64(m.requestCount[key])
					fmt.Fprintf(&sb, "%shttp_requests_total{endpoint=%q,method=%q} %d\n", prefix, parts[0], parts[1], count)
				}
			}
			sb.WriteString("\n")
		}

		if len(m.requestDuration) > 0 {
			sb.WriteString("# HELP " + prefix + "http_request_duration_seconds HTTP request latency\n")
			sb.WriteString("# TYPE " + prefix + "http_request_duration_seconds histogram\n")
			for _, key := range sortedKeys(m.requestDuration) {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					labels := fmt.Sprintf("endpoint=%q,method=%q", parts[0], parts[1])
					writeHistogram(&sb, "http_request_duration_seconds", labels, m.requestDuration[key])
				}
			}
			sb.WriteString("\n")
		}

		if len(m.requestErrors) > 0 {
			sb.WriteString("# HELP " + prefix + "http_errors_total Total HTTP errors by status class\n")
			sb.WriteString("# TYPE " + prefix + "http_errors_total counter\n")
			for _, key := range sortedKeys(m.requestErrors) {
				// key format: endpoint:method:statusClass
				parts := strings.Split(key, ":")
				if len(parts) >= 3 {
					count := atomic.LoadUint64(m.requestErrors[key])
					fmt.Fprintf(&sb, "%shttp_errors_total{endpoint=%q,method=%q,status_class=\"%sxx\"} %d\n", prefix, parts[0], parts[1], parts[2][:1], count)
				}
			}
			sb.WriteString("\n")
		}

		if len(m.durations) > 0 {
			sb.WriteString("# HELP " + prefix + "duration_seconds Named operation durations\n")
			sb.WriteString("# TYPE " + prefix + "duration_seconds histogram\n")
			for _, name := range sortedKeys(m.durations) {
				writeHistogram(&sb, "duration_seconds", fmt.Sprintf("name=%q", name), m.durations[name])
			}
			sb.WriteString("\n")
		}

		if len(m.gauges) > 0 {
			sb.WriteString("# HELP " + prefix + "gauge Custom gauge metrics\n")
			sb.WriteString("# TYPE " + prefix + "gauge gauge\n")
			for _, name := range sortedKeys(m.gauges) {
				fmt.Fprintf(&sb, "%sgauge{name=%q} %f\n", prefix, name, m.gauges[name])
			}
			sb.WriteString("\n")
		}

		if len(m.counters) > 0 {
			sb.WriteString("# HELP " + prefix + "counter Custom counter metrics\n")
			sb.WriteString("# TYPE " + prefix + "counter counter\n")
			for _, name := range sortedKeys(m.counters) {
				fmt.Fprintf(&sb, "%scounter{name=%q} %d\n", prefix, name, atomic.LoadUint64(m.counters[name]))
			}
		}
		m.mu.RUnlock()

		w.Write([]byte(sb.String()))
	}
}

func writeGauge(sb *strings.Builder, name, help, value string) {
	fmt.Fprintf(sb, "# HELP %s%s %s\n", prefix, name, help)
	fmt.Fprintf(sb, "# TYPE %s%s gauge\n", prefix, name)
	fmt.Fprintf(sb, "%s%s %s\n\n", prefix, name, value)
}

func writeHistogram(sb *strings.Builder, name, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, bucket := range h.buckets {
		fmt.Fprintf(sb, "%s%s_bucket{%s,le=\"%g\"} %d\n", prefix, name, labels, bucket, h.bucketVals[i])
	}
	fmt.Fprintf(sb, "%s%s_bucket{%s,le=\"+Inf\"} %d\n", prefix, name, labels, h.count)
	fmt.Fprintf(sb, "%s%s_sum{%s} %f\n", prefix, name, labels, h.sum)
	fmt.Fprintf(sb, "%s%s_count{%s} %d\n", prefix, name, labels, h.count)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetricsMiddleware creates middleware that records request metrics
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &statusResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			m.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
