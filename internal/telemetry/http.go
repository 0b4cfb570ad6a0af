package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WrapHandler wraps the HTTP handler with OTEL server instrumentation.
// Inbound trace context is extracted so operation spans join the caller's trace.
func WrapHandler(handler http.Handler) http.Handler {
	if !IsEnabled() {
		// Tracing disabled, return original handler
		return handler
	}

	return otelhttp.NewHandler(handler, SpanNameHTTP)
}
