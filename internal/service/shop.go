package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shopbot-api/internal/cache"
	"shopbot-api/internal/catalog"
	"shopbot-api/internal/model"
)

// StoreAPI is the authenticated store surface used by ShopService.
type StoreAPI interface {
	Storefront(ctx context.Context, identityID string) (*model.Storefront, error)
	Wallet(ctx context.Context, identityID string) (*model.Wallet, error)
}

// ItemResolver resolves catalog items for display.
type ItemResolver interface {
	GetItem(ctx context.Context, id, identityID string) (*model.ItemView, error)
}

// ShopConfig holds response cache lifetimes.
type ShopConfig struct {
	WalletTTL  time.Duration
	ShopMaxTTL time.Duration
}

// ShopService serves storefronts and wallets, caching upstream responses.
type ShopService struct {
	store  StoreAPI
	items  ItemResolver
	cache  cache.Cache
	config ShopConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewShopService creates a shop service.
func NewShopService(store StoreAPI, items ItemResolver, c cache.Cache, config ShopConfig, logger *slog.Logger) *ShopService {
	if config.WalletTTL == 0 {
		config.WalletTTL = time.Minute
	}
	if config.ShopMaxTTL == 0 {
		config.ShopMaxTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShopService{
		store:  store,
		items:  items,
		cache:  c,
		config: config,
		now:    time.Now,
		logger: logger.With("component", "shop_service"),
	}
}

func shopKey(identityID string) string   { return "shop:" + identityID }
func walletKey(identityID string) string { return "wallet:" + identityID }

// Shop returns the identity's daily offers resolved against the catalog.
// The storefront is cached until the offers rotate.
func (s *ShopService) Shop(ctx context.Context, identityID string) (*model.ShopView, error) {
	front, err := s.storefront(ctx, identityID)
	if err != nil {
		return nil, err
	}

	view := &model.ShopView{
		IdentityID: front.IdentityID,
		Username:   front.Username,
		ExpiresAt:  front.ExpiresAt(),
		Offers:     make([]model.ItemView, 0, len(front.OfferIDs)),
	}
	for _, offerID := range front.OfferIDs {
		item, err := s.items.GetItem(ctx, offerID, identityID)
		switch {
		case err == nil:
			view.Offers = append(view.Offers, *item)
		case errors.Is(err, catalog.ErrItemNotFound):
			s.logger.Warn("offer not in catalog", "offer_id", offerID)
			view.Offers = append(view.Offers, model.ItemView{Item: model.Item{ID: offerID}})
		default:
			return nil, fmt.Errorf("resolve offer %s: %w", offerID, err)
		}
	}
	return view, nil
}

func (s *ShopService) storefront(ctx context.Context, identityID string) (*model.Storefront, error) {
	var cached model.Storefront
	hit, err := cache.GetJSON(ctx, s.cache, shopKey(identityID), &cached)
	if err != nil {
		s.logger.Warn("shop cache read failed", "identity", identityID, "error", err)
	}
	if hit && s.now().Before(cached.ExpiresAt()) {
		return &cached, nil
	}

	front, err := s.store.Storefront(ctx, identityID)
	if err != nil {
		return nil, err
	}

	ttl := min(front.Remaining, s.config.ShopMaxTTL)
	if err := cache.SetJSON(ctx, s.cache, shopKey(identityID), front, ttl); err != nil {
		s.logger.Warn("shop cache write failed", "identity", identityID, "error", err)
	}
	return front, nil
}

// Wallet returns the identity's balances, cached briefly.
func (s *ShopService) Wallet(ctx context.Context, identityID string) (*model.Wallet, error) {
	var cached model.Wallet
	hit, err := cache.GetJSON(ctx, s.cache, walletKey(identityID), &cached)
	if err != nil {
		s.logger.Warn("wallet cache read failed", "identity", identityID, "error", err)
	}
	if hit {
		return &cached, nil
	}

	wallet, err := s.store.Wallet(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, walletKey(identityID), wallet, s.config.WalletTTL); err != nil {
		s.logger.Warn("wallet cache write failed", "identity", identityID, "error", err)
	}
	return wallet, nil
}

// Forget drops cached responses for an identity.
func (s *ShopService) Forget(ctx context.Context, identityID string) error {
	return errors.Join(
		s.cache.Delete(ctx, shopKey(identityID)),
		s.cache.Delete(ctx, walletKey(identityID)),
	)
}
