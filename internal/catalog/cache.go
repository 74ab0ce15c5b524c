package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shopbot-api/internal/model"
	"shopbot-api/internal/repository"
	"shopbot-api/internal/search"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultPriceStaleAfter is how long a price table stays fresh.
const DefaultPriceStaleAfter = 24 * time.Hour

const (
	flightEnsure = "ensure"
	flightPrices = "prices"
)

var (
	// ErrItemNotFound is returned by GetItem for unknown ids.
	ErrItemNotFound = errors.New("item not found")

	// ErrClosed is returned once Shutdown has been called.
	ErrClosed = errors.New("catalog cache is shut down")

	// ErrNotLoaded means no catalog could be loaded or built yet.
	ErrNotLoaded = errors.New("catalog not loaded")
)

// CatalogSource is the public catalog service.
type CatalogSource interface {
	ManifestVersion(ctx context.Context) (string, error)
	Items(ctx context.Context) ([]model.Item, error)
	RarityTiers(ctx context.Context) ([]model.RarityTier, error)
}

// PriceSource fetches store-wide prices using one identity's session.
// Implementations return upstream.ErrUnavailable when the identity cannot be
// used and upstream.ErrMaintenance during scheduled downtime.
type PriceSource interface {
	Prices(ctx context.Context, identityID string) (map[string]int, error)
}

// IdentityLister lists candidate identities for price refreshes, in the
// order they should be tried.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]string, error)
}

// Config wires a Cache.
type Config struct {
	Store      repository.CatalogStore
	Catalog    CatalogSource
	Prices     PriceSource
	Identities IdentityLister

	// PriceStaleAfter defaults to DefaultPriceStaleAfter.
	PriceStaleAfter time.Duration
	HidePrices      bool
	HideRarities    bool

	Logger *slog.Logger
	Tracer trace.Tracer
	Now    func() time.Time
}

// Cache is the catalog and price cache. Build one with New, call Init
// before serving and Shutdown before exit.
type Cache struct {
	store      repository.CatalogStore
	catalog    CatalogSource
	prices     PriceSource
	identities IdentityLister

	staleAfter   time.Duration
	hidePrices   bool
	hideRarities bool

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	// mu guards doc, index and stats. doc is replaced, never mutated.
	mu    sync.RWMutex
	doc   *model.CacheDocument
	index *search.Index
	stats Stats

	group  singleflight.Group
	saveMu sync.Mutex

	lifeMu   sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates an empty cache. Nothing is loaded until Init or the first
// lookup.
func New(cfg Config) *Cache {
	if cfg.PriceStaleAfter <= 0 {
		cfg.PriceStaleAfter = DefaultPriceStaleAfter
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("shopbot-api/internal/catalog")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Cache{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		prices:       cfg.Prices,
		identities:   cfg.Identities,
		staleAfter:   cfg.PriceStaleAfter,
		hidePrices:   cfg.HidePrices,
		hideRarities: cfg.HideRarities,
		logger:       cfg.Logger.With("component", "catalog"),
		tracer:       cfg.Tracer,
		now:          cfg.Now,
	}
}

// Init loads the persisted catalog and checks it against upstream.
func (c *Cache) Init(ctx context.Context) error {
	if err := c.EnsureFresh(ctx, true); err != nil {
		if c.Loaded() {
			c.logger.Warn("catalog check failed, serving persisted catalog", "error", err)
			return nil
		}
		return err
	}
	return nil
}

// Shutdown stops new refreshes and waits for in-flight ones, including their
// saves, to finish.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("catalog cache stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for catalog refresh: %w", ctx.Err())
	}
}

// begin registers an in-flight refresh. It fails after Shutdown.
func (c *Cache) begin() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.inflight.Add(1)
	return nil
}

// Loaded reports whether a catalog is available to answer lookups.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc != nil && c.doc.CatalogVersion != ""
}

func (c *Cache) snapshot() (*model.CacheDocument, *search.Index) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc, c.index
}

// EnsureFresh brings the cache up to date. Unless forced, a cache that
// already knows its catalog version returns immediately without remote
// calls. Concurrent callers share one refresh.
func (c *Cache) EnsureFresh(ctx context.Context, force bool) error {
	if !force && c.Loaded() {
		return nil
	}

	_, err, shared := c.group.Do(flightEnsure, func() (any, error) {
		if err := c.begin(); err != nil {
			return nil, err
		}
		defer c.inflight.Done()

		if !force && c.Loaded() {
			return nil, nil
		}
		// The refresh outlives a cancelled caller so a rebuild is never lost
		// half way; upstream calls carry their own timeouts.
		return nil, c.checkVersion(context.WithoutCancel(ctx), force)
	})
	if shared {
		c.logger.Debug("joined in-flight catalog refresh")
	}
	return err
}

// checkVersion runs one version check and whatever refresh it calls for.
func (c *Cache) checkVersion(ctx context.Context, force bool) (err error) {
	ctx, span := c.tracer.Start(ctx, "catalog.ensure_fresh", trace.WithAttributes(attribute.Bool("force", force)))
	defer func() {
		c.recordCheck(err)
		endSpan(span, err)
	}()

	current, _ := c.snapshot()

	// A missing or corrupt document loads as nil and forces a rebuild. A
	// store that cannot be read at all (lock contention, I/O) says nothing
	// about the format, so the in-memory document is trusted instead.
	persisted, loadErr := c.store.Load(ctx)
	storeReadable := loadErr == nil
	if !storeReadable {
		c.logger.Warn("catalog store unreadable, using in-memory catalog", "error", loadErr)
		persisted = nil
	}
	if persisted != nil && persisted.FormatVersion != model.CatalogFormatVersion {
		c.logger.Info("persisted catalog has an old format", "format", persisted.FormatVersion)
		persisted = nil
	}

	working := current
	if current == nil && persisted != nil {
		c.adopt(persisted)
		working = persisted
	}

	knownVersion := ""
	if working != nil {
		knownVersion = working.CatalogVersion
	}

	version, err := c.catalog.ManifestVersion(ctx)
	if err != nil {
		return fmt.Errorf("check manifest version: %w", err)
	}
	span.SetAttributes(attribute.String("catalog.version", version))

	// Another process may have saved the current version, or fresher prices,
	// since memory was loaded.
	if working != persisted && newerThan(persisted, working, version) {
		c.adopt(persisted)
		working = persisted
		knownVersion = working.CatalogVersion
	}

	if version != knownVersion || (storeReadable && persisted == nil) {
		c.logger.Info("catalog out of date, rebuilding",
			"known_version", knownVersion,
			"upstream_version", version,
			"store_readable", storeReadable)
		return c.rebuild(ctx, version)
	}

	if storeReadable && persisted.CatalogVersion != version {
		c.logger.Info("persisted catalog behind memory, saving", "persisted_version", persisted.CatalogVersion)
		_ = c.save(ctx)
	}

	if !c.hidePrices && working.Prices.Stale(c.now(), c.staleAfter) {
		c.logger.Info("prices stale, refreshing", "last_refreshed_at", working.Prices.LastRefreshedAt)
		if _, err := c.RefreshPrices(ctx); err != nil {
			// Stale prices are still served; maintenance is recorded in stats.
			c.logger.Warn("price refresh failed", "error", err)
		}
	}
	return nil
}

// newerThan reports whether a persisted document should replace the
// in-memory one once upstream is known to be at version: it must be at that
// version and either replace an older catalog or carry a later price refresh.
func newerThan(persisted, current *model.CacheDocument, version string) bool {
	if persisted == nil || persisted.CatalogVersion != version {
		return false
	}
	if current == nil || current.CatalogVersion != version {
		return true
	}
	return persisted.Prices.LastRefreshedAt.After(current.Prices.LastRefreshedAt)
}

// adopt installs a document read from the store.
func (c *Cache) adopt(doc *model.CacheDocument) {
	current, _ := c.snapshot()
	itemsChanged := current == nil || current.CatalogVersion != doc.CatalogVersion
	c.install(doc, itemsChanged)
	c.logger.Info("adopted persisted catalog",
		"catalog_version", doc.CatalogVersion,
		"items", len(doc.Items))
}

// rebuild replaces the whole catalog. Nothing is installed unless every
// upstream fetch succeeds.
func (c *Cache) rebuild(ctx context.Context, version string) (err error) {
	ctx, span := c.tracer.Start(ctx, "catalog.rebuild", trace.WithAttributes(attribute.String("catalog.version", version)))
	defer func() { endSpan(span, err) }()

	items, err := c.catalog.Items(ctx)
	if err != nil {
		return fmt.Errorf("rebuild catalog: %w", err)
	}

	var tiers []model.RarityTier
	if !c.hideRarities {
		if tiers, err = c.catalog.RarityTiers(ctx); err != nil {
			return fmt.Errorf("rebuild catalog: %w", err)
		}
	}

	doc := model.NewCacheDocument()
	doc.CatalogVersion = version
	for _, item := range items {
		doc.Items[item.ID] = item
	}
	for _, tier := range tiers {
		doc.Rarities[tier.ID] = tier
	}

	c.install(doc, true)
	span.SetAttributes(attribute.Int("catalog.items", len(doc.Items)))
	c.logger.Info("catalog rebuilt",
		"catalog_version", version,
		"items", len(doc.Items),
		"rarities", len(doc.Rarities))

	c.mu.Lock()
	c.stats.LastRebuildAt = c.now()
	c.mu.Unlock()

	return c.save(ctx)
}

// install makes doc current. The search index is rebuilt only when the item
// set changed.
func (c *Cache) install(doc *model.CacheDocument, itemsChanged bool) {
	var index *search.Index
	if itemsChanged {
		index = indexOf(doc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
	if index != nil {
		c.index = index
	} else if c.index == nil {
		c.index = indexOf(doc)
	}
}

func indexOf(doc *model.CacheDocument) *search.Index {
	items := make([]model.Item, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, item)
	}
	return search.New(items)
}

// save persists the current document. Saves are serialised and always write
// the latest state.
func (c *Cache) save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	doc, _ := c.snapshot()
	if doc == nil {
		return nil
	}
	if err := c.store.Save(ctx, doc); err != nil {
		c.logger.Error("failed to persist catalog", "error", err)
		return fmt.Errorf("persist catalog: %w", err)
	}
	return nil
}

func (c *Cache) recordCheck(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastCheckAt = c.now()
	c.stats.LastCheckError = ""
	if err != nil {
		c.stats.LastCheckError = err.Error()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
