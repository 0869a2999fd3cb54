// Package email simulates the transactional email provider and provides the
// client the delivery worker calls it with.
package email

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Handler struct {
	logger   *slog.Logger
	minDelay time.Duration
	jitter   time.Duration
}

func NewHandler(logger *slog.Logger, minDelay, jitter time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		minDelay: minDelay,
		jitter:   jitter,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.To); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		h.writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	delay := h.minDelay
	if h.jitter > 0 {
		delay += rand.N(h.jitter)
	}
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		h.logger.WarnContext(r.Context(), "email send aborted", "to", req.To)
		return
	}

	id := "EMAIL-" + ulid.Make().String()
	h.logger.InfoContext(r.Context(), "email sent", "to", req.To, "subject", req.Subject, "message_id", id)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent", ID: id})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
