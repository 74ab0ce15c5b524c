package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"shopbot-api/internal/cache"
	"shopbot-api/internal/model"
	"shopbot-api/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatchAPI struct {
	matchErr error
	updates  map[string]*model.CompetitiveUpdate
	seasonal map[string]map[string]int
}

func (f *fakeMatchAPI) PlayerID(ctx context.Context, identityID string) (string, error) {
	return "P-RED-1", nil
}

func (f *fakeMatchAPI) CurrentMatchID(ctx context.Context, identityID string) (string, error) {
	if f.matchErr != nil {
		return "", f.matchErr
	}
	return "m1", nil
}

func (f *fakeMatchAPI) MatchPlayers(ctx context.Context, identityID, matchID string) ([]model.MatchPlayer, error) {
	return []model.MatchPlayer{
		{Subject: "p-blue-1", Team: "Blue", AgentID: "JETT", AccountLevel: 50},
		{Subject: "P-RED-1", Team: "Red", AgentID: "sova", AccountLevel: 120},
		{Subject: "p-blue-2", Team: "Blue", AgentID: "missing", AccountLevel: 3},
	}, nil
}

func (f *fakeMatchAPI) PlayerNames(ctx context.Context, identityID string, subjects []string) ([]model.PlayerName, error) {
	names := make([]model.PlayerName, 0, len(subjects))
	for _, s := range subjects {
		names = append(names, model.PlayerName{Subject: s, GameName: "name-" + s, TagLine: "EUW"})
	}
	return names, nil
}

func (f *fakeMatchAPI) LatestCompetitiveUpdate(ctx context.Context, identityID, subject string) (*model.CompetitiveUpdate, error) {
	if subject == "p-blue-2" {
		return nil, errors.New("rate limited")
	}
	return f.updates[subject], nil
}

func (f *fakeMatchAPI) SeasonalTiers(ctx context.Context, identityID, subject string) (map[string]int, error) {
	return f.seasonal[subject], nil
}

type fakeReference struct {
	calls atomic.Int32
}

func (f *fakeReference) CompetitiveTiers(ctx context.Context) ([]model.CompetitiveTier, error) {
	f.calls.Add(1)
	return []model.CompetitiveTier{{Tier: 0, Name: "UNRANKED"}, {Tier: 12, Name: "GOLD 1"}, {Tier: 15, Name: "PLATINUM 1"}}, nil
}

func (f *fakeReference) Agents(ctx context.Context) ([]model.Agent, error) {
	f.calls.Add(1)
	return []model.Agent{{ID: "jett", DisplayName: "Jett"}, {ID: "SOVA", DisplayName: "Sova"}}, nil
}

func (f *fakeReference) CompetitiveSeasons(ctx context.Context) ([]model.CompetitiveSeason, error) {
	f.calls.Add(1)
	return []model.CompetitiveSeason{{ID: "c1", SeasonID: "s1"}, {ID: "c2", SeasonID: "s2"}}, nil
}

func newTestMatchService(t *testing.T, api *fakeMatchAPI) (*MatchService, *fakeReference) {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	ref := &fakeReference{}
	return NewMatchService(api, ref, c, nil), ref
}

func TestMatchCurrent(t *testing.T) {
	api := &fakeMatchAPI{
		updates: map[string]*model.CompetitiveUpdate{
			"p-red-1":  {SeasonID: "s2", TierAfterUpdate: 15},
			"p-blue-1": {SeasonID: "s1", TierAfterUpdate: 12},
		},
		seasonal: map[string]map[string]int{
			"p-red-1": {"s1": 12},
		},
	}
	svc, ref := newTestMatchService(t, api)

	overview, err := svc.Current(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "m1", overview.MatchID)
	require.Len(t, overview.Teams, 2)

	own := overview.Teams[0]
	assert.Equal(t, "Red", own.Team)
	assert.True(t, own.Allied)
	require.Len(t, own.Players, 1)
	assert.Equal(t, "Sova", own.Players[0].Agent)
	assert.Equal(t, "PLATINUM 1", own.Players[0].CurrentTier)
	assert.Equal(t, "GOLD 1", own.Players[0].LastSeasonTier)
	assert.Equal(t, "name-p-red-1", own.Players[0].GameName)

	enemy := overview.Teams[1]
	assert.Equal(t, "Blue", enemy.Team)
	assert.False(t, enemy.Allied)
	require.Len(t, enemy.Players, 2)
	assert.Equal(t, "Jett", enemy.Players[0].Agent)
	assert.Equal(t, "GOLD 1", enemy.Players[0].CurrentTier)
	assert.Equal(t, "UNRANKED", enemy.Players[0].LastSeasonTier, "first season has no predecessor")
	assert.Equal(t, unknownAgent, enemy.Players[1].Agent)
	assert.Equal(t, "UNRANKED", enemy.Players[1].CurrentTier, "failed lookups leave the player unranked")

	_, err = svc.Current(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(3), ref.calls.Load(), "reference data is cached")
}

func TestMatchCurrentNotInMatch(t *testing.T) {
	svc, _ := newTestMatchService(t, &fakeMatchAPI{matchErr: upstream.ErrNotInMatch})

	_, err := svc.Current(context.Background(), "alice")
	assert.ErrorIs(t, err, upstream.ErrNotInMatch)
}
