package handler

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"shopbot-api/internal/catalog"
	"shopbot-api/pkg/response"
)

// CatalogAdmin exposes catalog maintenance operations.
type CatalogAdmin interface {
	Stats() catalog.Stats
	EnsureFresh(ctx context.Context, force bool) error
	RefreshPrices(ctx context.Context) (bool, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	catalog   CatalogAdmin
	cacheType string // memory or redis
	storeType string // file or sqlite
	logger    *slog.Logger
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(catalog CatalogAdmin, cacheType, storeType string, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		catalog:   catalog,
		cacheType: cacheType,
		storeType: storeType,
		logger:    logger.With("component", "admin_handler"),
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["cache_type"] = h.cacheType
	stats["catalog_store"] = h.storeType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	stats["catalog"] = h.catalog.Stats()

	response.OK(w, stats)
}

// RefreshResponse reports the result of a manual refresh.
type RefreshResponse struct {
	Refreshed bool          `json:"refreshed"`
	Catalog   catalog.Stats `json:"catalog"`
}

// RefreshCatalog handles POST /api/v1/admin/catalog/refresh
func (h *AdminHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.EnsureFresh(r.Context(), true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("catalog refreshed by admin", "catalog_version", h.catalog.Stats().CatalogVersion)
	response.OK(w, RefreshResponse{Refreshed: true, Catalog: h.catalog.Stats()})
}

// RefreshPrices handles POST /api/v1/admin/catalog/prices/refresh
func (h *AdminHandler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.catalog.RefreshPrices(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, RefreshResponse{Refreshed: refreshed, Catalog: h.catalog.Stats()})
}
