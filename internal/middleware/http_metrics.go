// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to prevent
// cardinality explosion in metrics. This maps paths like /organizations/123 to
// /organizations/{id}.
func normalizePath(path string) string {
	// Exact matches for static routes (no normalization needed)
	staticRoutes := map[string]bool{
		"/":                        true,
		"/organizations":           true,
		"/merchant/applications":   true,
		"/internal/webhooks/gateway": true,
		"/admin/billing/run":       true,
		"/health":                  true,
		"/ready":                   true,
		"/metrics":                 true,
	}

	if staticRoutes[path] {
		return path
	}

	// Pattern-based normalization for dynamic routes
	// Handle specific known patterns first for accuracy

	// /organizations/{id} and /organizations/{id}/instruments
	if strings.HasPrefix(path, "/organizations/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] == "instruments" {
			return "/organizations/{id}/instruments"
		}
		if len(parts) == 3 && parts[2] != "" {
			return "/organizations/{id}"
		}
	}

	// /merchant/applications/{id} and /merchant/applications/{id}/submit
	if strings.HasPrefix(path, "/merchant/applications/") {
		parts := strings.Split(path, "/")
		if len(parts) == 5 && parts[4] == "submit" {
			return "/merchant/applications/{id}/submit"
		}
		if len(parts) == 4 && parts[3] != "" {
			return "/merchant/applications/{id}"
		}
	}

	// /admin/subscriptions/{id}/bill
	if strings.HasPrefix(path, "/admin/subscriptions/") {
		parts := strings.Split(path, "/")
		if len(parts) == 5 && parts[4] == "bill" {
			return "/admin/subscriptions/{id}/bill"
		}
		if len(parts) == 4 && parts[3] != "" {
			return "/admin/subscriptions/{id}"
		}
	}

	// Fallback: return as-is for unknown patterns
	// This ensures we don't accidentally break metrics for new routes
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics to avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exclude health check endpoints from metrics
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			// Wrap response writer to capture status and size
			mrw := newMetricsResponseWriter(w)

			// Get request size from Content-Length header
			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			// Call the next handler
			next.ServeHTTP(mrw, r)

			// Calculate duration in seconds
			duration := time.Since(start).Seconds()

			// Normalize path to prevent cardinality explosion
			normalizedPath := normalizePath(r.URL.Path)

			// Record metrics
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
