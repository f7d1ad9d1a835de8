package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/helpdesk-learning/internal/metrics"
)

// Metrics counts requests by method, matched route and status.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.Get().RecordHTTPRequest(r.Method, route, status)
	})
}
