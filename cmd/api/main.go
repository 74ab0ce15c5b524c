package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopbot-api/internal/app"
	"shopbot-api/internal/config"
	"shopbot-api/internal/handler"
	"shopbot-api/internal/middleware"
	"shopbot-api/internal/router"
	"shopbot-api/internal/service"
	"shopbot-api/internal/telemetry"
)

// initTimeout bounds the startup catalog load.
const initTimeout = 2 * time.Minute

func main() {
	cfg := config.MustLoad()

	logger := app.NewLogger(cfg.App, os.Stdout)
	logger.Info("starting", "version", cfg.App.Version, "environment", cfg.App.Environment)

	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	components, err := app.Open(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// A failed startup load is not fatal: lookups retry lazily.
	initCtx, cancel := context.WithTimeout(context.Background(), initTimeout)
	if err := components.Catalog.Init(initCtx); err != nil {
		logger.Warn("catalog not loaded at startup", "error", err)
	}
	cancel()

	responses := app.OpenResponseCache(cfg.Cache, logger)

	// Services
	shopService := service.NewShopService(components.StoreClient, components.Catalog, responses, service.ShopConfig{
		WalletTTL:  cfg.Cache.WalletTTL,
		ShopMaxTTL: cfg.Cache.ShopTTL,
	}, logger)
	matchService := service.NewMatchService(components.StoreClient, components.CatalogClient, responses, logger)

	scheduler := service.NewVersionScheduler(components.Catalog, service.SchedulerConfig{
		Interval: cfg.Catalog.CheckInterval,
	}, logger)
	scheduler.Start()

	// Handlers
	r := router.New(router.Config{
		Handler:      handler.New(cfg.App.Name, cfg.App.Version, components.Catalog),
		ItemHandler:  handler.NewItemHandler(components.Catalog, logger),
		UserHandler:  handler.NewUserHandler(shopService, matchService, logger),
		AdminHandler: handler.NewAdminHandler(components.Catalog, cfg.Cache.Type, cfg.Catalog.StoreType, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys:     cfg.Auth.APIKeys,
			PublicPaths: router.PublicPaths,
		}),
		Logger: logger,
	})
	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("API_KEYS not set, /api/v1 is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	scheduler.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := components.Shutdown(ctx); err != nil {
		logger.Error("catalog shutdown error", "error", err)
	}
	if err := responses.Close(); err != nil {
		logger.Warn("response cache close error", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("tracing shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
