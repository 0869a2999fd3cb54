package payments

import (
	"net/http"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/auth"
	"github.com/joao-fontenele/printhub/internal/domain"
	"github.com/joao-fontenele/printhub/internal/httpx"
)

type Handler struct {
	service *Service
	rs      *httpx.Responder
}

func NewHandler(service *Service, rs *httpx.Responder) *Handler {
	return &Handler{
		service: service,
		rs:      rs,
	}
}

func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.rs.Error(w, r, apperror.Unauthenticated("authentication required"))
		return
	}

	var req InitiateInput
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	result, err := h.service.Initiate(r.Context(), caller, req)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Payment initiated", result)
}

// HandleConfirm serves the provider webhook. Signature checks happen in
// middleware before the body reaches it.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmInput
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	payment, err := h.service.Confirm(r.Context(), req)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	message := "Payment failed"
	if payment.Status == domain.PaymentStatusCompleted {
		message = "Payment confirmed"
	}
	h.rs.JSON(w, http.StatusOK, message, payment)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.rs.Error(w, r, apperror.Unauthenticated("authentication required"))
		return
	}

	payment, err := h.service.Status(r.Context(), caller, r.PathValue("orderId"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Payment retrieved", payment)
}
