package gateway

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/httpx"
)

type Handler struct {
	ordersProxy        *ServiceProxy
	paymentsProxy      *ServiceProxy
	notificationsProxy *ServiceProxy
	rs                 *httpx.Responder
	logger             *slog.Logger
}

func NewHandler(ordersProxy, paymentsProxy, notificationsProxy *ServiceProxy, rs *httpx.Responder, logger *slog.Logger) *Handler {
	return &Handler{
		ordersProxy:        ordersProxy,
		paymentsProxy:      paymentsProxy,
		notificationsProxy: notificationsProxy,
		rs:                 rs,
		logger:             logger,
	}
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy)
}

func (h *Handler) HandlePayments(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.paymentsProxy)
}

func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.notificationsProxy)
}

// Register mounts every public route on mux.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	for _, pattern := range []string{
		"POST /orders",
		"GET /orders",
		"GET /orders/{id}",
		"PATCH /orders/{id}/status",
		"POST /orders/{id}/cancel",
		"POST /orders/{id}/assign",
		"GET /printer/orders",
	} {
		mux.HandleFunc(pattern, wrap(h.HandleOrders))
	}
	for _, pattern := range []string{
		"POST /payments/initiate",
		"POST /payments/confirm",
		"GET /payments/status/{orderId}",
	} {
		mux.HandleFunc(pattern, wrap(h.HandlePayments))
	}
	for _, pattern := range []string{
		"GET /notifications",
		"POST /notifications/whatsapp",
		"PATCH /notifications/{id}/read",
	} {
		mux.HandleFunc(pattern, wrap(h.HandleNotifications))
	}
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy) {
	path := r.URL.EscapedPath()
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to forward request", "error", err, "path", path)
		h.rs.Error(w, r, apperror.Upstream("service unavailable", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.InfoContext(r.Context(), "request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to copy response body", "error", err)
	}
}
