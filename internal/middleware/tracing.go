package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. Routing happens inside the span,
// so it is renamed to the matched chi pattern once the handler returns,
// e.g. "POST /api/notify".
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			if pattern := routePattern(r); pattern != unmatchedRoute {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)
			}
		})
		return otelhttp.NewHandler(named, service,
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/metrics"
			}),
		)
	}
}
