package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, authentication outcomes, session lifecycle events, and backing
// store health. It coordinates concurrent writers via a RWMutex and renders
// Prometheus text format on demand.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	authEvents       map[string]uint64
	sessionEvents    map[string]uint64
	storeHealthValue float64
	storeHealthState string
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		authEvents:       make(map[string]uint64),
		sessionEvents:    make(map[string]uint64),
		storeHealthState: "unknown",
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAuthEvent records an authentication outcome keyed by event name
// (e.g., "register", "login_success", "login_failure").
func (r *Recorder) ObserveAuthEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.authEvents[name]++
	r.mu.Unlock()
}

// ObserveSessionEvent records a session lifecycle event keyed by event name
// (e.g., "draft_saved", "published").
func (r *Recorder) ObserveSessionEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.sessionEvents[name]++
	r.mu.Unlock()
}

// SetStoreHealth updates the backing store health gauge. Status strings map
// to gauge values: ok=1, anything else=-1.
func (r *Recorder) SetStoreHealth(status string) {
	normalized := normalizeName(status)
	value := -1.0
	if normalized == "ok" {
		value = 1.0
	}
	r.mu.Lock()
	r.storeHealthValue = value
	r.storeHealthState = normalized
	r.mu.Unlock()
}

// Reset clears all recorded values. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.sessionEvents = make(map[string]uint64)
	r.storeHealthValue = 0
	r.storeHealthState = "unknown"
	r.mu.Unlock()
}

// Handler exposes the Recorder as an HTTP handler rendering Prometheus text.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authEvents := sortedKeys(r.authEvents)
	sessionEvents := sortedKeys(r.sessionEvents)

	fmt.Fprintln(w, "# HELP sessionhub_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE sessionhub_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "sessionhub_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP sessionhub_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE sessionhub_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "sessionhub_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP sessionhub_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE sessionhub_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "sessionhub_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP sessionhub_auth_events_total Authentication outcomes by event")
	fmt.Fprintln(w, "# TYPE sessionhub_auth_events_total counter")
	for _, event := range authEvents {
		fmt.Fprintf(w, "sessionhub_auth_events_total{event=\"%s\"} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP sessionhub_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE sessionhub_session_events_total counter")
	for _, event := range sessionEvents {
		fmt.Fprintf(w, "sessionhub_session_events_total{event=\"%s\"} %d\n", event, r.sessionEvents[event])
	}

	fmt.Fprintln(w, "# HELP sessionhub_store_health Health status reported by the backing store (1=ok,-1=degraded)")
	fmt.Fprintln(w, "# TYPE sessionhub_store_health gauge")
	fmt.Fprintf(w, "sessionhub_store_health{status=\"%s\"} %f\n", r.storeHealthState, r.storeHealthValue)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(values map[string]uint64) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveAuthEvent records an authentication outcome on the default recorder.
func ObserveAuthEvent(event string) {
	defaultRecorder.ObserveAuthEvent(event)
}

// ObserveSessionEvent records a session lifecycle event on the default recorder.
func ObserveSessionEvent(event string) {
	defaultRecorder.ObserveSessionEvent(event)
}

// SetStoreHealth updates store health on the default recorder.
func SetStoreHealth(status string) {
	defaultRecorder.SetStoreHealth(status)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
