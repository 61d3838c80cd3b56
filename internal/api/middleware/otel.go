// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation.
// This automatically creates spans for all HTTP requests and propagates trace context.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// shouldTrace determines if a request should be traced.
// Skip health checks, metrics, and the long-lived SSE routes: a span that
// stays open for the lifetime of a stream is noise, not signal.
func shouldTrace(r *http.Request) bool {
	path := r.URL.Path

	switch path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	if len(path) >= 5 && path[:5] == "/sse/" {
		return false
	}

	return true
}

// spanNameFormatter creates meaningful span names from HTTP requests.
func spanNameFormatter(operation string, r *http.Request) string {
	return operation + " " + r.Method + " " + r.URL.Path
}

// ExtractTraceContext extracts trace_id and span_id from the request context.
// Returns empty strings if no active span exists.
func ExtractTraceContext(r *http.Request) (traceID, spanID string) {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}
