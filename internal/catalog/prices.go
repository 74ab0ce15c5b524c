package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shopbot-api/internal/model"
	"shopbot-api/internal/upstream"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Price refresh outcomes reported in Stats.
const (
	PriceOutcomeRefreshed   = "refreshed"
	PriceOutcomeExhausted   = "no identity available"
	PriceOutcomeMaintenance = "maintenance"
	PriceOutcomeDisabled    = "disabled"
)

// RefreshPrices replaces the price table using the first identity, in
// listed order, that can fetch prices. It reports whether the table was
// replaced. When every identity is unavailable the old table is kept and
// no error is returned; scheduled maintenance stops the attempt and returns
// upstream.ErrMaintenance.
func (c *Cache) RefreshPrices(ctx context.Context) (bool, error) {
	return c.refreshPrices(ctx, nil)
}

// refreshPrices runs a shared price refresh. With nil identities the
// credential provider's list is used. Only callers asking for the same
// identities share a flight, so an on-demand refresh never stands in for a
// full one.
func (c *Cache) refreshPrices(ctx context.Context, identities []string) (bool, error) {
	if c.hidePrices {
		c.recordPriceOutcome(PriceOutcomeDisabled, "")
		return false, nil
	}

	key := flightPrices
	if identities != nil {
		key = flightPrices + ":" + strings.Join(identities, ",")
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if err := c.begin(); err != nil {
			return false, err
		}
		defer c.inflight.Done()
		return c.fetchPrices(context.WithoutCancel(ctx), identities)
	})
	refreshed, _ := v.(bool)
	return refreshed, err
}

func (c *Cache) fetchPrices(ctx context.Context, identities []string) (refreshed bool, err error) {
	ctx, span := c.tracer.Start(ctx, "catalog.refresh_prices")
	defer func() { endSpan(span, err) }()

	if doc, _ := c.snapshot(); doc == nil {
		return false, ErrNotLoaded
	}

	if identities == nil {
		if identities, err = c.identities.ListIdentities(ctx); err != nil {
			return false, fmt.Errorf("list identities: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("identities", len(identities)))

	for i, id := range identities {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		prices, err := c.prices.Prices(ctx, id)
		switch {
		case err == nil:
			span.AddEvent("prices fetched", trace.WithAttributes(attribute.Int("attempt", i+1)))
			stored := c.installPrices(prices)
			c.recordPriceOutcome(PriceOutcomeRefreshed, id)
			c.logger.Info("prices refreshed", "identity", id, "prices", stored, "attempt", i+1)
			return true, c.save(ctx)

		case errors.Is(err, upstream.ErrMaintenance):
			c.recordPriceOutcome(PriceOutcomeMaintenance, id)
			c.logger.Warn("price refresh stopped, upstream in maintenance", "identity", id)
			return false, err

		case errors.Is(err, upstream.ErrUnavailable):
			c.logger.Debug("identity unavailable for prices", "identity", id, "error", err)

		default:
			c.logger.Warn("price fetch failed, trying next identity", "identity", id, "error", err)
		}
	}

	c.recordPriceOutcome(PriceOutcomeExhausted, "")
	c.logger.Warn("no identity could refresh prices, keeping previous table", "tried", len(identities))
	return false, nil
}

// installPrices replaces the price table, keeping only ids of current items.
func (c *Cache) installPrices(prices map[string]int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := model.NewPriceTable()
	for id, price := range prices {
		if _, ok := c.doc.Items[id]; ok {
			table.Prices[id] = price
		}
	}
	table.LastRefreshedAt = c.now()

	next := *c.doc
	next.Prices = table
	c.doc = &next
	return len(table.Prices)
}

func (c *Cache) recordPriceOutcome(outcome, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastPriceOutcome = outcome
	c.stats.LastPriceIdentity = identity
	c.stats.LastPriceAttemptAt = c.now()
}
