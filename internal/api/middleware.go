package api

import (
	"net/http"
	"strconv"
	"time"

	"ethics-review/internal/common/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogger logs every request and records the HTTP metrics under the
// matched route pattern.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     sw.status,
			"durationMs": elapsed.Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		}
		if sw.status >= http.StatusInternalServerError {
			a.logger.Warn("request completed", fields)
			return
		}
		a.logger.Debug("request completed", fields)
	})
}
