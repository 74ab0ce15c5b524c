package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalogClient(t *testing.T, routes map[string]string) *CatalogClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return NewCatalogClient(CatalogClientConfig{
		BaseURL:        server.URL + "/",
		RequestTimeout: 5 * time.Second,
		RateInterval:   time.Millisecond,
	}, nil)
}

func TestCatalogClientManifestVersion(t *testing.T) {
	c := newTestCatalogClient(t, map[string]string{
		"/version": `{"status":200,"data":{"manifestId":"ABC123","branch":"release"}}`,
	})

	version, err := c.ManifestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ABC123", version)
}

func TestCatalogClientEnvelopeStatusIsContractError(t *testing.T) {
	c := newTestCatalogClient(t, map[string]string{
		"/version": `{"status":500,"error":"down"}`,
	})

	_, err := c.ManifestVersion(context.Background())
	require.Error(t, err)
	assert.True(t, IsContractError(err))
}

func TestCatalogClientHTTPStatusIsContractError(t *testing.T) {
	c := newTestCatalogClient(t, map[string]string{})

	_, err := c.Items(context.Background())
	require.Error(t, err)

	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusNotFound, ce.StatusCode)
	assert.Equal(t, "/weapons/skins", ce.Endpoint)
}

func TestCatalogClientItemsUsesFirstLevel(t *testing.T) {
	c := newTestCatalogClient(t, map[string]string{
		"/weapons/skins": `{"status":200,"data":[
			{"displayName":"Prime Vandal","contentTierUuid":"premium",
			 "levels":[{"uuid":"lvl1","displayIcon":"icon1.png"},{"uuid":"lvl2","displayIcon":"icon2.png"}]},
			{"displayName":"Melee","contentTierUuid":null,"levels":[{"uuid":"melee1","displayIcon":null}]},
			{"displayName":"Broken","levels":[]}
		]}`,
	})

	items, err := c.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "lvl1", items[0].ID)
	assert.Equal(t, "Prime Vandal", items[0].DisplayName)
	assert.Equal(t, "icon1.png", items[0].IconRef)
	assert.Equal(t, "premium", items[0].RarityID)

	assert.Equal(t, "melee1", items[1].ID)
	assert.Empty(t, items[1].RarityID)
}

func TestCatalogClientRarityTiers(t *testing.T) {
	c := newTestCatalogClient(t, map[string]string{
		"/contenttiers/": `{"status":200,"data":[{"uuid":"t1","devName":"Select","displayIcon":"s.png"}]}`,
	})

	tiers, err := c.RarityTiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "t1", tiers[0].ID)
	assert.Equal(t, "Select", tiers[0].Name)
	assert.Equal(t, "s.png", tiers[0].IconRef)
}

func TestCatalogClientReferenceData(t *testing.T) {
	c := newTestCatalogClient(t, map[string]string{
		"/competitivetiers": `{"status":200,"data":[
			{"uuid":"old","tiers":[{"tier":0,"tierName":"OLD","smallIcon":null}]},
			{"uuid":"new","tiers":[{"tier":0,"tierName":"UNRANKED","smallIcon":null},{"tier":3,"tierName":"IRON 1","smallIcon":"i1.png"}]}
		]}`,
		"/agents?isPlayableCharacter=true": `{"status":200,"data":[{"uuid":"a1","displayName":"Jett"}]}`,
		"/seasons/competitive": `{"status":200,"data":[
			{"uuid":"c1","seasonUuid":"s1","borders":null},
			{"uuid":"c2","seasonUuid":"s2","borders":[{"winsRequired":9}]}
		]}`,
	})
	ctx := context.Background()

	tiers, err := c.CompetitiveTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, "IRON 1", tiers[1].Name)

	agents, err := c.Agents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Jett", agents[0].DisplayName)

	seasons, err := c.CompetitiveSeasons(ctx)
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, "s2", seasons[0].SeasonID)
}

func TestTransportRetriesTooManyRequests(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"status":200,"data":{"manifestId":"v9"}}`))
	}))
	defer server.Close()

	c := NewCatalogClient(CatalogClientConfig{BaseURL: server.URL, RateInterval: time.Millisecond}, nil)
	version, err := c.ManifestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v9", version)
	assert.Equal(t, 2, calls)
}
