package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/printhub/internal/telemetry"
)

// Wrap applies request ids, panic recovery and server tracing to a mux.
func Wrap(mux http.Handler, service string) http.Handler {
	var h http.Handler = mux
	h = middleware.Recoverer(h)
	h = middleware.RequestID(h)
	return otelhttp.NewHandler(h, service, otelhttp.WithSpanNameFormatter(telemetry.SpanName))
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
