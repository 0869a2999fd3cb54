// Package httpx holds the JSON envelope and error translation shared by the
// HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/joao-fontenele/printhub/internal/apperror"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success   bool                  `json:"success"`
	Message   string                `json:"message"`
	Errors    []apperror.FieldError `json:"errors,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
	Detail    string                `json:"detail,omitempty"`
}

// Responder writes envelopes. With verbose set, error responses also carry
// the underlying error text.
type Responder struct {
	logger  *slog.Logger
	verbose bool
}

func NewResponder(logger *slog.Logger, verbose bool) *Responder {
	return &Responder{logger: logger, verbose: verbose}
}

func (rs *Responder) JSON(w http.ResponseWriter, status int, message string, data any) {
	rs.write(w, status, envelope{Success: true, Message: message, Data: data})
}

// Error translates err into a status code and error envelope. Unexpected
// errors are logged and their message replaced.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)

	body := errorEnvelope{
		Message:   "internal server error",
		RequestID: middleware.GetReqID(r.Context()),
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && kind != apperror.KindUnexpected {
		body.Message = appErr.Message
		body.Errors = appErr.Fields
	} else if kind == apperror.KindConflict {
		body.Message = "resource already exists"
	}

	if kind == apperror.KindUnexpected {
		rs.logger.ErrorContext(r.Context(), "request failed",
			"error", err, "method", r.Method, "path", r.URL.Path)
	}
	if rs.verbose {
		body.Detail = err.Error()
	}

	rs.write(w, kind.HTTPStatus(), body)
}

func (rs *Responder) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rs.logger.Error("failed to encode response", "error", err)
	}
}

// DecodeJSON reads a JSON body of at most 1 MiB into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.Validation("request body too large")
		}
		return apperror.Validation("invalid request body: " + strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
