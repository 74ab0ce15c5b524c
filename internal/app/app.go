// Package app assembles the catalog stack shared by the API server and
// catalogctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shopbot-api/internal/cache"
	"shopbot-api/internal/catalog"
	"shopbot-api/internal/config"
	"shopbot-api/internal/repository"
	"shopbot-api/internal/upstream"
)

// Components are the long-lived dependencies built from configuration.
type Components struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         repository.CatalogStore
	Identities    *repository.SQLIdentityRepository
	CatalogClient *upstream.CatalogClient
	StoreClient   *upstream.StoreClient
	Catalog       *catalog.Cache

	closers []func() error
}

// NewLogger builds the process logger from the app settings.
func NewLogger(cfg config.AppConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", cfg.Name)
}

// Open builds the catalog store, identity repository, upstream clients and
// catalog cache. Nothing is fetched; call Catalog.Init to load.
func Open(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{Config: cfg, Logger: logger}

	store, err := openCatalogStore(cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.closers = append(c.closers, store.Close)

	identities, err := openIdentities(cfg.IdentityDB, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Identities = identities
	c.closers = append(c.closers, identities.Close)

	c.CatalogClient = upstream.NewCatalogClient(upstream.CatalogClientConfig{
		BaseURL:        cfg.Upstream.CatalogBaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		RateInterval:   cfg.Upstream.RateInterval,
	}, logger)

	c.StoreClient = upstream.NewStoreClient(upstream.StoreClientConfig{
		StoreHost:      cfg.Upstream.StoreHost,
		GameHost:       cfg.Upstream.GameHost,
		ClientPlatform: cfg.Upstream.ClientPlatform,
		ClientVersion:  cfg.Upstream.ClientVersion,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		RateInterval:   cfg.Upstream.RateInterval,
	}, identities, logger)

	c.Catalog = catalog.New(catalog.Config{
		Store:           store,
		Catalog:         c.CatalogClient,
		Prices:          c.StoreClient,
		Identities:      identities,
		PriceStaleAfter: cfg.Catalog.PriceStaleAfter,
		HidePrices:      !cfg.Catalog.ShowPrices,
		HideRarities:    !cfg.Catalog.ShowRarities,
		Logger:          logger,
	})

	return c, nil
}

// OpenResponseCache builds the response cache. A Redis cache that cannot be
// reached falls back to memory so the API keeps serving.
func OpenResponseCache(cfg config.CacheConfig, logger *slog.Logger) cache.Cache {
	if cfg.Type != "redis" {
		return cache.NewMemoryCache()
	}

	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:      cfg.RedisAddress(),
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisPrefix,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, using memory cache", "addr", cfg.RedisAddress(), "error", err)
		return cache.NewMemoryCache()
	}
	return rc
}

// Shutdown stops the catalog cache and closes every opened resource.
func (c *Components) Shutdown(ctx context.Context) error {
	var errs []error
	if c.Catalog != nil {
		if err := c.Catalog.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes the store and identity database in reverse open order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openCatalogStore(cfg config.CatalogConfig, logger *slog.Logger) (repository.CatalogStore, error) {
	switch cfg.StoreType {
	case "sqlite":
		store, err := repository.NewSQLiteCatalogStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open catalog store: %w", err)
		}
		return store, nil
	default:
		return repository.NewFileCatalogStore(cfg.Path, logger), nil
	}
}

func openIdentities(cfg config.IdentityDBConfig, logger *slog.Logger) (*repository.SQLIdentityRepository, error) {
	dialect := repository.DialectSQLite
	dsn := cfg.SQLiteDSN()
	if cfg.Type == "mysql" {
		dialect = repository.DialectMySQL
		dsn = cfg.MySQLDSN()
	} else if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}

	db, err := repository.OpenIdentityDB(dialect, dsn)
	if err != nil {
		return nil, err
	}
	repo, err := repository.NewSQLIdentityRepository(db, dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
