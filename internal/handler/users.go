package handler

import (
	"context"
	"log/slog"
	"net/http"

	"shopbot-api/internal/model"
	"shopbot-api/pkg/apierror"
	"shopbot-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ShopReader serves per-user store data.
type ShopReader interface {
	Shop(ctx context.Context, identityID string) (*model.ShopView, error)
	Wallet(ctx context.Context, identityID string) (*model.Wallet, error)
}

// MatchReader serves the current match of a user.
type MatchReader interface {
	Current(ctx context.Context, identityID string) (*model.MatchOverview, error)
}

// UserHandler handles per-identity requests.
type UserHandler struct {
	shop   ShopReader
	match  MatchReader
	logger *slog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(shop ShopReader, match MatchReader, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{shop: shop, match: match, logger: logger.With("component", "user_handler")}
}

// Shop handles GET /api/v1/users/{identity_id}/shop
func (h *UserHandler) Shop(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	view, err := h.shop.Shop(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, view)
}

// Wallet handles GET /api/v1/users/{identity_id}/wallet
func (h *UserHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	wallet, err := h.shop.Wallet(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, wallet)
}

// Match handles GET /api/v1/users/{identity_id}/match
func (h *UserHandler) Match(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	overview, err := h.match.Current(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, overview)
}

func identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "identity_id")
	if id == "" {
		response.Error(w, apierror.BadRequest("identity_id is required"))
		return "", false
	}
	return id, true
}
