package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type labelsKey struct{}

// requestLabels carries labels that are only known once the handler has
// parsed the request body.
type requestLabels struct {
	mu    sync.Mutex
	model string
}

// SetModel records the model label for the request in ctx. It is a no-op
// when ctx was not prepared by MetricsMiddleware.
func SetModel(ctx context.Context, model string) {
	l, ok := ctx.Value(labelsKey{}).(*requestLabels)
	if !ok || model == "" {
		return
	}
	l.mu.Lock()
	l.model = model
	l.mu.Unlock()
}

func (l *requestLabels) modelLabel() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == "" {
		return "unknown"
	}
	return l.model
}

// MetricsMiddleware wraps an HTTP handler to record request metrics.
//
// It captures:
//   - tiefsee_requests_total (counter): incremented per request with method, status class, and model labels
//   - tiefsee_request_duration_seconds (histogram): request duration with method and model labels
//   - tiefsee_streaming_connections_active (gauge): incremented while an SSE streaming response is in flight
//
// The model label is "unknown" unless the handler calls SetModel.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		labels := &requestLabels{}
		r = r.WithContext(context.WithValue(r.Context(), labelsKey{}, labels))

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if sw.streaming {
				StreamingConnections.Dec()
			}
		}()
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		model := labels.modelLabel()

		// Build a status class label like "2xx", "4xx", "5xx".
		statusStr := strconv.Itoa(sw.status/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, statusStr, model).Inc()
		RequestDuration.WithLabelValues(r.Method, model).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code and
// to notice event-stream responses when their headers are committed.
type statusWriter struct {
	http.ResponseWriter
	status    int
	written   bool
	streaming bool
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.commit(status)
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying writer and marks the status as written.
func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.commit(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) commit(status int) {
	w.status = status
	w.written = true
	if strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		w.streaming = true
		StreamingConnections.Inc()
	}
}

// Flush delegates to the underlying writer if it implements http.Flusher.
// This is essential for SSE streaming support.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter, enabling http.ResponseController
// and similar utilities to access the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
