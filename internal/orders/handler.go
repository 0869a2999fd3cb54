package orders

import (
	"context"
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

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.rs.Error(w, r, apperror.Unauthenticated("authentication required"))
	}
	return caller, ok
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req CreateInput
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	order, err := h.service.Create(r.Context(), caller, req)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusCreated, "Order created", order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	order, err := h.service.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Order retrieved", order)
}

type listResponse struct {
	Orders     []domain.Order   `json:"orders"`
	Pagination httpx.Pagination `json:"pagination"`
}

type listFunc func(ctx context.Context, caller domain.Caller, status string, page domain.PageRequest) ([]domain.Order, int, error)

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.List)
}

// HandleListAssigned serves a printer's work queue.
func (h *Handler) HandleListAssigned(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListAssigned)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, list listFunc) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	page, err := httpx.ParsePage(r)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	orders, total, err := list(r.Context(), caller, r.URL.Query().Get("status"), page)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Orders retrieved", listResponse{
		Orders:     orders,
		Pagination: httpx.NewPagination(total, page),
	})
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), caller, r.PathValue("id"), req.Status, req.Comment)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Order status updated", order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	order, err := h.service.Cancel(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Order cancelled", order)
}

type assignRequest struct {
	PrinterID string `json:"printerId"`
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	order, err := h.service.Assign(r.Context(), caller, r.PathValue("id"), req.PrinterID)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusOK, "Order assigned", order)
}
