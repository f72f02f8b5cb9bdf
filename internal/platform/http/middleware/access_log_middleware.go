package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

// AccessLogMiddleware logs one "request" line per response and records the
// request duration under the matched chi route pattern.
//
// The context logger (set by RequestLoggerMiddleware) already carries
// request_id, method, path and client_ip; only response fields are added
// here. log is the fallback when the context logger is missing. m may be nil.
func AccessLogMiddleware(log *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = log.With(
						"request_id", chimw.GetReqID(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
						"client_ip", ClientIP(r),
					)
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				elapsed := time.Since(start)

				var route string
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					route = rctx.RoutePattern()
				}

				logger.Info("request",
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", elapsed.Milliseconds(),
				)
				m.ObserveHTTP(route, r.Method, status, elapsed)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
