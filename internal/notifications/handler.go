package notifications

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
	return &Handler{service: service, rs: rs}
}

type listResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    httpx.Pagination      `json:"pagination"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.rs.Error(w, r, apperror.Unauthenticated("authentication required"))
		return
	}

	page, err := httpx.ParsePage(r)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	list, total, err := h.service.List(r.Context(), caller, r.URL.Query().Get("status"), page)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Notifications retrieved", listResponse{
		Notifications: list,
		Pagination:    httpx.NewPagination(total, page),
	})
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.rs.Error(w, r, apperror.Unauthenticated("authentication required"))
		return
	}

	n, err := h.service.MarkRead(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Notification marked as read", n)
}

func (h *Handler) HandleSendWhatsApp(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.rs.Error(w, r, apperror.Unauthenticated("authentication required"))
		return
	}

	var in WhatsAppInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	n, err := h.service.SendWhatsApp(r.Context(), caller, in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusAccepted, "WhatsApp message queued", n)
}
