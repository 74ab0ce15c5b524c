package catalog

import (
	"context"
	"time"

	"shopbot-api/internal/model"
)

// GetItem resolves an item for display. When identityID is set and prices
// are enabled, the item's price is attached; a table that was never filled
// triggers one refresh using that identity first. Refresh failures only
// surface when no catalog exists at all.
func (c *Cache) GetItem(ctx context.Context, id, identityID string) (*model.ItemView, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	doc, _ := c.snapshot()
	item, ok := doc.Items[id]
	if !ok {
		return nil, ErrItemNotFound
	}

	if identityID != "" && !c.hidePrices && !doc.Prices.Refreshed() {
		if _, err := c.refreshPrices(ctx, []string{identityID}); err != nil {
			c.logger.Warn("on-demand price refresh failed", "identity", identityID, "error", err)
		}
		doc, _ = c.snapshot()
	}

	return c.view(doc, item, identityID != ""), nil
}

// Search returns items whose names match query, best first. Prices are
// attached when the table has been refreshed.
func (c *Cache) Search(ctx context.Context, query string) ([]model.ItemView, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	doc, index := c.snapshot()
	items := index.Search(query)
	views := make([]model.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, *c.view(doc, item, true))
	}
	return views, nil
}

// ready runs the lazy freshness check and fails only if there is nothing to
// answer from.
func (c *Cache) ready(ctx context.Context) error {
	err := c.EnsureFresh(ctx, false)
	if c.Loaded() {
		if err != nil {
			c.logger.Warn("serving cached catalog after failed refresh", "error", err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	return ErrNotLoaded
}

func (c *Cache) view(doc *model.CacheDocument, item model.Item, withPrice bool) *model.ItemView {
	view := &model.ItemView{Item: item}
	if !c.hideRarities && item.RarityID != "" {
		if tier, ok := doc.Rarities[item.RarityID]; ok {
			view.Rarity = &tier
		}
	}
	if withPrice && !c.hidePrices && doc.Prices.Refreshed() {
		if price, ok := doc.Prices.Price(item.ID); ok {
			view.Price = &price
		}
	}
	return view
}

// Stats describes the cache state for status endpoints.
type Stats struct {
	Loaded             bool      `json:"loaded"`
	FormatVersion      int       `json:"format_version"`
	CatalogVersion     string    `json:"catalog_version"`
	Items              int       `json:"items"`
	Rarities           int       `json:"rarities"`
	Prices             int       `json:"prices"`
	PricesRefreshedAt  time.Time `json:"prices_refreshed_at,omitempty"`
	PricesStale        bool      `json:"prices_stale"`
	LastCheckAt        time.Time `json:"last_check_at,omitempty"`
	LastCheckError     string    `json:"last_check_error,omitempty"`
	LastRebuildAt      time.Time `json:"last_rebuild_at,omitempty"`
	LastPriceOutcome   string    `json:"last_price_outcome,omitempty"`
	LastPriceIdentity  string    `json:"last_price_identity,omitempty"`
	LastPriceAttemptAt time.Time `json:"last_price_attempt_at,omitempty"`
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	if c.doc != nil {
		s.Loaded = c.doc.CatalogVersion != ""
		s.FormatVersion = c.doc.FormatVersion
		s.CatalogVersion = c.doc.CatalogVersion
		s.Items = len(c.doc.Items)
		s.Rarities = len(c.doc.Rarities)
		s.Prices = len(c.doc.Prices.Prices)
		s.PricesRefreshedAt = c.doc.Prices.LastRefreshedAt
		s.PricesStale = c.doc.Prices.Stale(c.now(), c.staleAfter)
	}
	return s
}
