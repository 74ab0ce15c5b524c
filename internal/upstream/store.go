package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"shopbot-api/internal/model"
	"shopbot-api/internal/repository"
)

// Currency ids used by the wallet and offers endpoints.
const (
	CurrencyValorantPoints = "85ad13f7-3d1b-5128-9eb2-7cd8ee0b5741"
	CurrencyRadianite      = "e59aa87c-4cbf-517a-5983-6e81511be9b7"
)

const regionPlaceholder = "{region}"

var errResourceNotFound = errors.New("resource not found")

// StoreClientConfig configures StoreClient. StoreHost and GameHost may contain
// a {region} placeholder that is replaced with the identity's region.
type StoreClientConfig struct {
	StoreHost      string
	GameHost       string
	ClientPlatform string
	ClientVersion  string
	RequestTimeout time.Duration
	RateInterval   time.Duration
}

// StoreClient performs authenticated calls on behalf of stored identities.
// It never modifies credentials; a rejected session is reported as
// ErrUnavailable and left for the login flow to renew.
type StoreClient struct {
	identities repository.IdentityRepository
	cfg        StoreClientConfig
	transport  *transport
	logger     *slog.Logger
}

// NewStoreClient creates a store client backed by the credential provider.
func NewStoreClient(cfg StoreClientConfig, identities repository.IdentityRepository, logger *slog.Logger) *StoreClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreClient{
		identities: identities,
		cfg:        cfg,
		transport:  newTransport(cfg.RequestTimeout, cfg.RateInterval),
		logger:     logger.With("component", "store_client"),
	}
}

// session resolves an identity with a live session.
func (c *StoreClient) session(ctx context.Context, identityID string) (*model.Identity, error) {
	identity, err := c.identities.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load identity %s: %w", identityID, err)
	}
	if identity == nil {
		return nil, fmt.Errorf("identity %s not registered: %w", identityID, ErrUnavailable)
	}

	ok, err := c.identities.Authenticate(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", identityID, err)
	}
	if !ok || !identity.HasSession() {
		return nil, fmt.Errorf("identity %s has no live session: %w", identityID, ErrUnavailable)
	}
	return identity, nil
}

func hostFor(template, region string) string {
	return strings.TrimRight(strings.ReplaceAll(template, regionPlaceholder, region), "/")
}

// call performs an authenticated request and decodes a successful body into out.
func (c *StoreClient) call(ctx context.Context, identity *model.Identity, method, endpoint string, body any, withClient bool, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+identity.AccessToken)
	header.Set("X-Riot-Entitlements-JWT", identity.EntitlementToken)
	if withClient {
		header.Set("X-Riot-ClientPlatform", c.cfg.ClientPlatform)
		header.Set("X-Riot-ClientVersion", c.cfg.ClientVersion)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.transport.do(ctx, method, endpoint, header, payload)
	if err != nil {
		return err
	}
	if err := classify(endpoint, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &ContractError{Endpoint: endpoint, StatusCode: resp.StatusCode, Reason: "malformed body: " + err.Error()}
	}
	return nil
}

// classify maps game service error bodies and statuses onto this package's
// errors.
func classify(endpoint string, resp *rawResponse) error {
	var eb errorBody
	if err := json.Unmarshal(resp.Body, &eb); err == nil {
		switch {
		case eb.HTTPStatus == http.StatusBadRequest && eb.ErrorCode == "BAD_CLAIMS":
			return fmt.Errorf("session rejected: %w", ErrUnavailable)
		case eb.HTTPStatus == http.StatusForbidden && eb.ErrorCode == "SCHEDULED_DOWNTIME":
			return ErrMaintenance
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("token rejected: %w", ErrUnavailable)
	case http.StatusNotFound:
		return errResourceNotFound
	default:
		return &ContractError{Endpoint: endpoint, StatusCode: resp.StatusCode, Reason: "unexpected HTTP status"}
	}
}

// Prices returns the store-wide price of every offer, keyed by item id.
func (c *StoreClient) Prices(ctx context.Context, identityID string) (map[string]int, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetching prices", "identity", identityID, "username", identity.Username)

	endpoint := hostFor(c.cfg.StoreHost, identity.Region) + "/store/v1/offers/"
	var resp offersResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, false, &resp); err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}

	prices := make(map[string]int, len(resp.Offers))
	for _, offer := range resp.Offers {
		if price, ok := offerPrice(offer.Cost); ok {
			prices[offer.OfferID] = price
		}
	}
	return prices, nil
}

// offerPrice picks the Valorant Points cost, falling back to the lowest
// currency id so the choice is stable.
func offerPrice(cost map[string]int) (int, bool) {
	if len(cost) == 0 {
		return 0, false
	}
	if price, ok := cost[CurrencyValorantPoints]; ok {
		return price, true
	}
	keys := make([]string, 0, len(cost))
	for k := range cost {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return cost[keys[0]], true
}

// Storefront returns the identity's daily offers.
func (c *StoreClient) Storefront(ctx context.Context, identityID string) (*model.Storefront, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetching storefront", "identity", identityID, "username", identity.Username)

	endpoint := fmt.Sprintf("%s/store/v2/storefront/%s", hostFor(c.cfg.StoreHost, identity.Region), url.PathEscape(identity.PUUID))
	var resp storefrontResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, false, &resp); err != nil {
		return nil, fmt.Errorf("failed to get storefront: %w", err)
	}

	panel := resp.SkinsPanelLayout
	return &model.Storefront{
		IdentityID: identityID,
		Username:   identity.Username,
		OfferIDs:   panel.SingleItemOffers,
		Remaining:  time.Duration(panel.SingleItemOffersRemainingDurationInSeconds) * time.Second,
		FetchedAt:  time.Now(),
	}, nil
}

// Wallet returns the identity's currency balances.
func (c *StoreClient) Wallet(ctx context.Context, identityID string) (*model.Wallet, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetching wallet", "identity", identityID, "username", identity.Username)

	endpoint := fmt.Sprintf("%s/store/v1/wallet/%s", hostFor(c.cfg.StoreHost, identity.Region), url.PathEscape(identity.PUUID))
	var resp walletResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, false, &resp); err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &model.Wallet{
		IdentityID: identityID,
		Username:   identity.Username,
		Points:     resp.Balances[CurrencyValorantPoints],
		Radianite:  resp.Balances[CurrencyRadianite],
	}, nil
}

// PlayerID returns the game account id of the identity.
func (c *StoreClient) PlayerID(ctx context.Context, identityID string) (string, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return "", err
	}
	return identity.PUUID, nil
}

// CurrentMatchID returns the id of the identity's in-progress match.
func (c *StoreClient) CurrentMatchID(ctx context.Context, identityID string) (string, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/core-game/v1/players/%s", hostFor(c.cfg.GameHost, identity.Region), url.PathEscape(identity.PUUID))
	var resp currentPlayerResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, false, &resp); err != nil {
		if errors.Is(err, errResourceNotFound) {
			return "", ErrNotInMatch
		}
		return "", fmt.Errorf("failed to get current match: %w", err)
	}
	if resp.MatchID == "" {
		return "", ErrNotInMatch
	}
	return resp.MatchID, nil
}

// MatchPlayers returns the participants of a match.
func (c *StoreClient) MatchPlayers(ctx context.Context, identityID, matchID string) ([]model.MatchPlayer, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/core-game/v1/matches/%s", hostFor(c.cfg.GameHost, identity.Region), url.PathEscape(matchID))
	var resp matchResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, false, &resp); err != nil {
		if errors.Is(err, errResourceNotFound) {
			return nil, ErrNotInMatch
		}
		return nil, fmt.Errorf("failed to get match %s: %w", matchID, err)
	}

	players := make([]model.MatchPlayer, 0, len(resp.Players))
	for _, p := range resp.Players {
		players = append(players, model.MatchPlayer{
			Subject:      p.Subject,
			Team:         p.TeamID,
			AgentID:      p.CharacterID,
			AccountLevel: p.PlayerIdentity.AccountLevel,
		})
	}
	return players, nil
}

// PlayerNames resolves display names for player ids.
func (c *StoreClient) PlayerNames(ctx context.Context, identityID string, subjects []string) ([]model.PlayerName, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, nil
	}

	endpoint := hostFor(c.cfg.StoreHost, identity.Region) + "/name-service/v2/players"
	var resp []nameServiceEntry
	if err := c.call(ctx, identity, http.MethodPut, endpoint, subjects, false, &resp); err != nil {
		return nil, fmt.Errorf("failed to get player names: %w", err)
	}

	names := make([]model.PlayerName, 0, len(resp))
	for _, n := range resp {
		names = append(names, model.PlayerName{Subject: n.Subject, GameName: n.GameName, TagLine: n.TagLine})
	}
	return names, nil
}

// LatestCompetitiveUpdate returns the player's most recent ranked result, or
// nil when they have none.
func (c *StoreClient) LatestCompetitiveUpdate(ctx context.Context, identityID, subject string) (*model.CompetitiveUpdate, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/mmr/v1/players/%s/competitiveupdates?queue=competitive",
		hostFor(c.cfg.StoreHost, identity.Region), url.PathEscape(subject))
	var resp competitiveUpdatesResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("failed to get competitive updates: %w", err)
	}
	if len(resp.Matches) == 0 {
		return nil, nil
	}
	latest := resp.Matches[0]
	return &model.CompetitiveUpdate{SeasonID: latest.SeasonID, TierAfterUpdate: latest.TierAfterUpdate}, nil
}

// SeasonalTiers returns the player's final competitive tier per season id.
func (c *StoreClient) SeasonalTiers(ctx context.Context, identityID, subject string) (map[string]int, error) {
	identity, err := c.session(ctx, identityID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/mmr/v1/players/%s", hostFor(c.cfg.StoreHost, identity.Region), url.PathEscape(subject))
	var resp mmrResponse
	if err := c.call(ctx, identity, http.MethodGet, endpoint, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("failed to get player mmr: %w", err)
	}

	tiers := make(map[string]int, len(resp.QueueSkills.Competitive.SeasonalInfoBySeasonID))
	for season, info := range resp.QueueSkills.Competitive.SeasonalInfoBySeasonID {
		tiers[season] = info.CompetitiveTier
	}
	return tiers, nil
}
