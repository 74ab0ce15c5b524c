package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shopbot-api/internal/cache"
	"shopbot-api/internal/model"

	"golang.org/x/sync/errgroup"
)

const (
	// Rank lookups are made for at most this many players.
	maxRankedPlayers = 10
	rankLookupLimit  = 4
	referenceTTL     = 6 * time.Hour
	unknownAgent     = "Unknown"
	unrankedTier     = 0
)

// MatchAPI is the authenticated game surface used by MatchService.
type MatchAPI interface {
	PlayerID(ctx context.Context, identityID string) (string, error)
	CurrentMatchID(ctx context.Context, identityID string) (string, error)
	MatchPlayers(ctx context.Context, identityID, matchID string) ([]model.MatchPlayer, error)
	PlayerNames(ctx context.Context, identityID string, subjects []string) ([]model.PlayerName, error)
	LatestCompetitiveUpdate(ctx context.Context, identityID, subject string) (*model.CompetitiveUpdate, error)
	SeasonalTiers(ctx context.Context, identityID, subject string) (map[string]int, error)
}

// ReferenceData is the public game data used to label a match.
type ReferenceData interface {
	CompetitiveTiers(ctx context.Context) ([]model.CompetitiveTier, error)
	Agents(ctx context.Context) ([]model.Agent, error)
	CompetitiveSeasons(ctx context.Context) ([]model.CompetitiveSeason, error)
}

// MatchService builds an overview of a user's in-progress match.
type MatchService struct {
	api    MatchAPI
	ref    ReferenceData
	cache  cache.Cache
	logger *slog.Logger
}

// NewMatchService creates a match service.
func NewMatchService(api MatchAPI, ref ReferenceData, c cache.Cache, logger *slog.Logger) *MatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchService{
		api:    api,
		ref:    ref,
		cache:  c,
		logger: logger.With("component", "match_service"),
	}
}

type referenceSet struct {
	tiers   map[int]string
	agents  map[string]string
	seasons []model.CompetitiveSeason
}

// cachedReference loads a reference list through the response cache.
func cachedReference[T any](ctx context.Context, c cache.Cache, key string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	data, err := c.GetOrSet(ctx, "ref:"+key, referenceTTL, func() ([]byte, error) {
		list, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(list)
	})
	if err != nil {
		return nil, err
	}
	var list []T
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return list, nil
}

func (s *MatchService) reference(ctx context.Context) (*referenceSet, error) {
	tiers, err := cachedReference(ctx, s.cache, "competitive_tiers", s.ref.CompetitiveTiers)
	if err != nil {
		return nil, err
	}
	agents, err := cachedReference(ctx, s.cache, "agents", s.ref.Agents)
	if err != nil {
		return nil, err
	}
	seasons, err := cachedReference(ctx, s.cache, "competitive_seasons", s.ref.CompetitiveSeasons)
	if err != nil {
		return nil, err
	}

	set := &referenceSet{
		tiers:   make(map[int]string, len(tiers)),
		agents:  make(map[string]string, len(agents)),
		seasons: seasons,
	}
	for _, t := range tiers {
		set.tiers[t.Tier] = t.Name
	}
	for _, a := range agents {
		set.agents[strings.ToLower(a.ID)] = a.DisplayName
	}
	return set, nil
}

// previousSeason returns the season id before seasonID, or "" if unknown.
func (r *referenceSet) previousSeason(seasonID string) string {
	for i, s := range r.seasons {
		if s.SeasonID == seasonID {
			if i == 0 {
				return ""
			}
			return r.seasons[i-1].SeasonID
		}
	}
	return ""
}

func (r *referenceSet) tierName(tier int) string {
	if name, ok := r.tiers[tier]; ok {
		return name
	}
	return r.tiers[unrankedTier]
}

// Current returns the identity's current match, with the requester's team
// listed first. It returns upstream.ErrNotInMatch when there is none.
func (s *MatchService) Current(ctx context.Context, identityID string) (*model.MatchOverview, error) {
	ref, err := s.reference(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	self, err := s.api.PlayerID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	matchID, err := s.api.CurrentMatchID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	players, err := s.api.MatchPlayers(ctx, identityID, matchID)
	if err != nil {
		return nil, err
	}

	subjects := make([]string, len(players))
	for i, p := range players {
		subjects[i] = strings.ToLower(p.Subject)
	}
	names, err := s.api.PlayerNames(ctx, identityID, subjects)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]model.PlayerName, len(names))
	for _, n := range names {
		byName[strings.ToLower(n.Subject)] = n
	}

	rows := make([]model.PlayerOverview, len(players))
	for i, p := range players {
		agent, ok := ref.agents[strings.ToLower(p.AgentID)]
		if !ok {
			agent = unknownAgent
		}
		name := byName[subjects[i]]
		rows[i] = model.PlayerOverview{
			Subject:        subjects[i],
			GameName:       name.GameName,
			TagLine:        name.TagLine,
			Agent:          agent,
			AccountLevel:   p.AccountLevel,
			CurrentTier:    ref.tierName(unrankedTier),
			LastSeasonTier: ref.tierName(unrankedTier),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rankLookupLimit)
	for i := range rows {
		if i >= maxRankedPlayers {
			break
		}
		row := &rows[i]
		g.Go(func() error {
			s.fillRanks(gctx, identityID, ref, row)
			return nil
		})
	}
	_ = g.Wait()

	return buildOverview(matchID, strings.ToLower(self), players, rows), nil
}

// fillRanks sets a player's current and previous season tiers. Lookup
// failures leave the player unranked.
func (s *MatchService) fillRanks(ctx context.Context, identityID string, ref *referenceSet, row *model.PlayerOverview) {
	update, err := s.api.LatestCompetitiveUpdate(ctx, identityID, row.Subject)
	if err != nil {
		s.logger.Debug("competitive update lookup failed", "subject", row.Subject, "error", err)
		return
	}
	if update == nil {
		return
	}
	row.CurrentTier = ref.tierName(update.TierAfterUpdate)

	previous := ref.previousSeason(update.SeasonID)
	if previous == "" {
		return
	}
	tiers, err := s.api.SeasonalTiers(ctx, identityID, row.Subject)
	if err != nil {
		s.logger.Debug("seasonal tier lookup failed", "subject", row.Subject, "error", err)
		return
	}
	row.LastSeasonTier = ref.tierName(tiers[previous])
}

func buildOverview(matchID, self string, players []model.MatchPlayer, rows []model.PlayerOverview) *model.MatchOverview {
	ownTeam := "Blue"
	var order []string
	teams := make(map[string]*model.TeamOverview)
	for i, p := range players {
		if rows[i].Subject == self {
			ownTeam = p.Team
		}
		team, ok := teams[p.Team]
		if !ok {
			team = &model.TeamOverview{Team: p.Team}
			teams[p.Team] = team
			order = append(order, p.Team)
		}
		team.Players = append(team.Players, rows[i])
	}

	overview := &model.MatchOverview{MatchID: matchID}
	if own, ok := teams[ownTeam]; ok {
		own.Allied = true
		overview.Teams = append(overview.Teams, *own)
	}
	for _, name := range order {
		if name != ownTeam {
			overview.Teams = append(overview.Teams, *teams[name])
		}
	}
	return overview
}
