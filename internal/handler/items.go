package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"shopbot-api/internal/model"
	"shopbot-api/pkg/apierror"
	"shopbot-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

const (
	defaultSearchLimit = 25
	maxSearchLimit     = 100
	maxQueryLength     = 100
)

// ItemCatalog serves item lookups.
type ItemCatalog interface {
	Search(ctx context.Context, query string) ([]model.ItemView, error)
	GetItem(ctx context.Context, id, identityID string) (*model.ItemView, error)
}

// ItemHandler handles item catalog requests.
type ItemHandler struct {
	catalog ItemCatalog
	logger  *slog.Logger
}

// NewItemHandler creates a new item handler.
func NewItemHandler(catalog ItemCatalog, logger *slog.Logger) *ItemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemHandler{catalog: catalog, logger: logger.With("component", "item_handler")}
}

// Search handles GET /api/v1/items/search?q=&page=&limit=
func (h *ItemHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		response.Error(w, apierror.ValidationError("Invalid search request",
			apierror.FieldError{Field: "q", Message: "is required"}))
		return
	}
	if len(q) > maxQueryLength {
		response.Error(w, apierror.ValidationError("Invalid search request",
			apierror.FieldError{Field: "q", Message: "must be at most 100 characters"}))
		return
	}

	page, limit, err := pagination(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	results, err := h.catalog.Search(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	start := (page - 1) * limit
	end := start + limit
	if start > len(results) {
		start = len(results)
	}
	if end > len(results) {
		end = len(results)
	}
	response.JSONWithMeta(w, http.StatusOK, results[start:end], page, limit, int64(len(results)))
}

// GetItem handles GET /api/v1/items/{item_id}?identity=
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	if id == "" {
		response.Error(w, apierror.BadRequest("item_id is required"))
		return
	}

	view, err := h.catalog.GetItem(r.Context(), id, r.URL.Query().Get("identity"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, view)
}

func pagination(r *http.Request) (page, limit int, err error) {
	page, limit = 1, defaultSearchLimit
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, apierror.ValidationError("Invalid pagination",
				apierror.FieldError{Field: "page", Message: "must be a positive integer"})
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxSearchLimit {
			return 0, 0, apierror.ValidationError("Invalid pagination",
				apierror.FieldError{Field: "limit", Message: "must be between 1 and 100"})
		}
	}
	return page, limit, nil
}
