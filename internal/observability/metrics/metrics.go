// Package metrics keeps in-memory counters for the HTTP surface and exposes
// them in Prometheus text format. The recorder is dependency-free on purpose:
// a scrape of /metrics is the only consumer.
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

// Recorder aggregates request, authentication, upload, and rate-limit
// counters. All methods are safe for concurrent use.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authFailures    map[string]uint64
	uploadFiles     map[string]uint64
	uploadBytes     map[string]uint64
	rateLimited     map[string]uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authFailures:    make(map[string]uint64),
		uploadFiles:     make(map[string]uint64),
		uploadBytes:     make(map[string]uint64),
		rateLimited:     make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by the package-level helpers.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates totals for request count and cumulative duration
// by HTTP method, normalized path, and status code.
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

// ObserveAuthFailure records a rejected authentication attempt by reason
// (e.g. "missing_token", "invalid_token", "bad_credentials").
func (r *Recorder) ObserveAuthFailure(reason string) {
	name := normalizeName(reason)
	r.mu.Lock()
	r.authFailures[name]++
	r.mu.Unlock()
}

// RecordUpload accumulates accepted file and byte totals per media kind.
func (r *Recorder) RecordUpload(kind string, files int, bytes int64) {
	if files <= 0 && bytes <= 0 {
		return
	}
	name := normalizeName(kind)
	r.mu.Lock()
	if files > 0 {
		r.uploadFiles[name] += uint64(files)
	}
	if bytes > 0 {
		r.uploadBytes[name] += uint64(bytes)
	}
	r.mu.Unlock()
}

// ObserveRateLimited records a request rejected by the rate limiter, keyed by
// route class ("login", "register", "upload", "global").
func (r *Recorder) ObserveRateLimited(class string) {
	name := normalizeName(class)
	r.mu.Lock()
	r.rateLimited[name]++
	r.mu.Unlock()
}

// UploadCounts returns copies of the upload counters for tests.
func (r *Recorder) UploadCounts() (files map[string]uint64, bytes map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	files = make(map[string]uint64, len(r.uploadFiles))
	for k, v := range r.uploadFiles {
		files[k] = v
	}
	bytes = make(map[string]uint64, len(r.uploadBytes))
	for k, v := range r.uploadBytes {
		bytes[k] = v
	}
	return files, bytes
}

// Reset clears all counters. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authFailures = make(map[string]uint64)
	r.uploadFiles = make(map[string]uint64)
	r.uploadBytes = make(map[string]uint64)
	r.rateLimited = make(map[string]uint64)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format, sorting label sets to
// provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authReasons := sortedKeys(r.authFailures)
	uploadKinds := sortedKeys(r.uploadFiles)
	byteKinds := sortedKeys(r.uploadBytes)
	limitedClasses := sortedKeys(r.rateLimited)

	fmt.Fprintln(w, "# HELP mobile_core_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE mobile_core_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "mobile_core_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP mobile_core_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE mobile_core_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "mobile_core_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP mobile_core_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE mobile_core_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "mobile_core_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP mobile_core_auth_failures_total Rejected authentication attempts by reason")
	fmt.Fprintln(w, "# TYPE mobile_core_auth_failures_total counter")
	for _, reason := range authReasons {
		fmt.Fprintf(w, "mobile_core_auth_failures_total{reason=\"%s\"} %d\n", reason, r.authFailures[reason])
	}

	fmt.Fprintln(w, "# HELP mobile_core_upload_files_total Accepted uploaded files by media kind")
	fmt.Fprintln(w, "# TYPE mobile_core_upload_files_total counter")
	for _, kind := range uploadKinds {
		fmt.Fprintf(w, "mobile_core_upload_files_total{kind=\"%s\"} %d\n", kind, r.uploadFiles[kind])
	}

	fmt.Fprintln(w, "# HELP mobile_core_upload_bytes_total Accepted uploaded bytes by media kind")
	fmt.Fprintln(w, "# TYPE mobile_core_upload_bytes_total counter")
	for _, kind := range byteKinds {
		fmt.Fprintf(w, "mobile_core_upload_bytes_total{kind=\"%s\"} %d\n", kind, r.uploadBytes[kind])
	}

	fmt.Fprintln(w, "# HELP mobile_core_rate_limited_total Requests rejected by the rate limiter by route class")
	fmt.Fprintln(w, "# TYPE mobile_core_rate_limited_total counter")
	for _, class := range limitedClasses {
		fmt.Fprintf(w, "mobile_core_rate_limited_total{class=\"%s\"} %d\n", class, r.rateLimited[class])
	}
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

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
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

// looksLikeIdentifier guesses whether a path segment is a generated ID so
// metric cardinality stays bounded. The fixed API routes all use short
// hyphenated words and never trip it.
func looksLikeIdentifier(segment string) bool {
	if strings.ContainsAny(segment, "-_.") && len(segment) < 16 {
		return false
	}
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

// ObserveAuthFailure is a helper on the default recorder.
func ObserveAuthFailure(reason string) {
	defaultRecorder.ObserveAuthFailure(reason)
}

// RecordUpload is a helper on the default recorder.
func RecordUpload(kind string, files int, bytes int64) {
	defaultRecorder.RecordUpload(kind, files, bytes)
}

// ObserveRateLimited is a helper on the default recorder.
func ObserveRateLimited(class string) {
	defaultRecorder.ObserveRateLimited(class)
}

// Handler exposes the default recorder.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
