package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/codesync/pkg/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// statusRecorder remembers the status and the error code of the response
// written through it. writeError fills code for JSON error bodies.
type statusRecorder struct {
	http.ResponseWriter
	status int
	code   string
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

// setErrorCode tags w with the API error code when w was wrapped by
// MetricsMiddleware.
func setErrorCode(w http.ResponseWriter, code string) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.code = code
	}
}

// MetricsMiddleware records request counts and latency for endpoint. Failed
// requests are also counted under the error code of their body.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := float64(time.Since(start).Milliseconds())
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, elapsed)

		if rec.status < http.StatusBadRequest {
			return
		}
		code := errorCode(rec)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		metrics.RecordErrorByType(code, severity(code, rec.status))
		metrics.RecordErrorLatency("http", code, elapsed)
	}
}

// errorCode prefers the code written in the error body and falls back to a
// label derived from the status, e.g. for mux 404/405 responses.
func errorCode(rec *statusRecorder) string {
	if rec.code != "" {
		return rec.code
	}
	switch rec.status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "backpressure"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if rec.status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return "bad_request"
}

// severity ranks an error code for the errors-by-type metric.
func severity(code string, status int) string {
	switch {
	case code == "persist_failed", code == "internal_error":
		return "high"
	case code == "backpressure", code == "unavailable", status >= http.StatusInternalServerError:
		return "medium"
	default:
		return "low"
	}
}

// RequestIDMiddleware propagates the caller's request id, or assigns one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
