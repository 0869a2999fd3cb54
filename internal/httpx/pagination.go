package httpx

import (
	"net/http"
	"strconv"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func NewPagination(total int, page domain.PageRequest) Pagination {
	pages := 0
	if page.Limit > 0 {
		pages = (total + page.Limit - 1) / page.Limit
	}
	return Pagination{Total: total, Page: page.Page, Limit: page.Limit, Pages: pages}
}

// ParsePage reads the page and limit query parameters. Limits above 100 are
// clamped rather than rejected.
func ParsePage(r *http.Request) (domain.PageRequest, error) {
	page := domain.PageRequest{Page: 1, Limit: defaultLimit}
	var fields []apperror.FieldError

	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, apperror.FieldError{Field: "page", Message: "must be a positive integer"})
		} else {
			page.Page = n
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, apperror.FieldError{Field: "limit", Message: "must be a positive integer"})
		} else {
			page.Limit = min(n, maxLimit)
		}
	}

	if len(fields) > 0 {
		return domain.PageRequest{}, apperror.Validation("invalid pagination", fields...)
	}
	return page, nil
}
