package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shopbot-api/internal/model"
)

// CatalogClientConfig configures CatalogClient.
type CatalogClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateInterval   time.Duration
}

// CatalogClient reads the public, unauthenticated catalog service.
type CatalogClient struct {
	baseURL   string
	transport *transport
	logger    *slog.Logger
}

// NewCatalogClient creates a catalog client.
func NewCatalogClient(cfg CatalogClientConfig, logger *slog.Logger) *CatalogClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: newTransport(cfg.RequestTimeout, cfg.RateInterval),
		logger:    logger.With("component", "catalog_client"),
	}
}

// getData fetches path and decodes the envelope's data field into out. Any
// status other than 200, at the HTTP or envelope level, is a ContractError.
func (c *CatalogClient) getData(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	resp, err := c.transport.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &ContractError{Endpoint: path, StatusCode: resp.StatusCode, Reason: "unexpected HTTP status"}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return &ContractError{Endpoint: path, StatusCode: resp.StatusCode, Reason: "malformed envelope: " + err.Error()}
	}
	if env.Status != http.StatusOK {
		return &ContractError{Endpoint: path, StatusCode: env.Status, Reason: "unexpected envelope status"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ContractError{Endpoint: path, StatusCode: env.Status, Reason: "malformed data: " + err.Error()}
	}
	return nil
}

// ManifestVersion returns the current game manifest id.
func (c *CatalogClient) ManifestVersion(ctx context.Context) (string, error) {
	c.logger.Debug("fetching manifest version")

	var data versionData
	if err := c.getData(ctx, "/version", &data); err != nil {
		return "", fmt.Errorf("failed to get manifest version: %w", err)
	}
	if data.ManifestID == "" {
		return "", &ContractError{Endpoint: "/version", StatusCode: http.StatusOK, Reason: "empty manifestId"}
	}
	return data.ManifestID, nil
}

// Items returns every cosmetic item. The first level of each definition is
// canonical: its id and icon identify the item.
func (c *CatalogClient) Items(ctx context.Context) ([]model.Item, error) {
	c.logger.Debug("fetching item list")

	var data []skinData
	if err := c.getData(ctx, "/weapons/skins", &data); err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}

	items := make([]model.Item, 0, len(data))
	skipped := 0
	for _, skin := range data {
		if len(skin.Levels) == 0 || skin.Levels[0].UUID == "" {
			skipped++
			continue
		}
		level := skin.Levels[0]
		item := model.Item{
			ID:          level.UUID,
			DisplayName: skin.DisplayName,
			IconRef:     level.DisplayIcon,
		}
		if skin.ContentTierUUID != nil {
			item.RarityID = *skin.ContentTierUUID
		}
		items = append(items, item)
	}
	if skipped > 0 {
		c.logger.Debug("skipped items without levels", "count", skipped)
	}
	return items, nil
}

// RarityTiers returns the content tiers items can belong to.
func (c *CatalogClient) RarityTiers(ctx context.Context) ([]model.RarityTier, error) {
	c.logger.Debug("fetching rarity tiers")

	var data []contentTierData
	if err := c.getData(ctx, "/contenttiers/", &data); err != nil {
		return nil, fmt.Errorf("failed to get rarity tiers: %w", err)
	}

	tiers := make([]model.RarityTier, 0, len(data))
	for _, tier := range data {
		tiers = append(tiers, model.RarityTier{
			ID:      tier.UUID,
			Name:    tier.DevName,
			IconRef: tier.DisplayIcon,
		})
	}
	return tiers, nil
}

// CompetitiveTiers returns the ranks of the most recent tier set.
func (c *CatalogClient) CompetitiveTiers(ctx context.Context) ([]model.CompetitiveTier, error) {
	var sets []competitiveTierSet
	if err := c.getData(ctx, "/competitivetiers", &sets); err != nil {
		return nil, fmt.Errorf("failed to get competitive tiers: %w", err)
	}
	if len(sets) == 0 {
		return nil, &ContractError{Endpoint: "/competitivetiers", StatusCode: http.StatusOK, Reason: "no tier sets"}
	}

	latest := sets[len(sets)-1]
	tiers := make([]model.CompetitiveTier, 0, len(latest.Tiers))
	for _, t := range latest.Tiers {
		tiers = append(tiers, model.CompetitiveTier{Tier: t.Tier, Name: t.TierName, SmallIcon: t.SmallIcon})
	}
	return tiers, nil
}

// Agents returns the playable characters.
func (c *CatalogClient) Agents(ctx context.Context) ([]model.Agent, error) {
	var data []agentData
	if err := c.getData(ctx, "/agents?isPlayableCharacter=true", &data); err != nil {
		return nil, fmt.Errorf("failed to get agents: %w", err)
	}

	agents := make([]model.Agent, 0, len(data))
	for _, a := range data {
		agents = append(agents, model.Agent{ID: a.UUID, DisplayName: a.DisplayName})
	}
	return agents, nil
}

// CompetitiveSeasons returns ranked seasons that define rank borders.
func (c *CatalogClient) CompetitiveSeasons(ctx context.Context) ([]model.CompetitiveSeason, error) {
	var data []competitiveSeasonData
	if err := c.getData(ctx, "/seasons/competitive", &data); err != nil {
		return nil, fmt.Errorf("failed to get competitive seasons: %w", err)
	}

	seasons := make([]model.CompetitiveSeason, 0, len(data))
	for _, s := range data {
		if len(s.Borders) == 0 || string(s.Borders) == "null" {
			continue
		}
		seasons = append(seasons, model.CompetitiveSeason{ID: s.UUID, SeasonID: s.SeasonUUID})
	}
	return seasons, nil
}
