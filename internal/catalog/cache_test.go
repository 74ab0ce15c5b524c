package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"shopbot-api/internal/model"
	"shopbot-api/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownIdentity = fmt.Errorf("unknown identity: %w", upstream.ErrUnavailable)

type harness struct {
	cache   *Cache
	store   *memoryStore
	catalog *fakeCatalog
	prices  *fakePrices
}

func newHarness(t *testing.T, identities ...string) *harness {
	t.Helper()
	h := &harness{
		store: &memoryStore{},
		catalog: &fakeCatalog{
			version: "v2",
			items: []model.Item{
				{ID: "a", DisplayName: "Prime Vandal", IconRef: "a.png", RarityID: "premium"},
				{ID: "b", DisplayName: "Melee", IconRef: "b.png"},
				{ID: "c", DisplayName: "Reaver Vandal", IconRef: "c.png", RarityID: "retired"},
			},
			tiers: []model.RarityTier{{ID: "premium", Name: "Premium", IconRef: "p.png"}},
		},
		prices: &fakePrices{results: map[string]priceResult{}},
	}
	h.cache = New(Config{
		Store:      h.store,
		Catalog:    h.catalog,
		Prices:     h.prices,
		Identities: fakeIdentities(identities),
		Now:        func() time.Time { return testNow },
	})
	t.Cleanup(func() { _ = h.cache.Shutdown(context.Background()) })
	return h
}

func persistedDoc(version string, refreshedAt time.Time) *model.CacheDocument {
	doc := model.NewCacheDocument()
	doc.CatalogVersion = version
	doc.Items["a"] = model.Item{ID: "a", DisplayName: "Prime Vandal", IconRef: "a.png", RarityID: "premium"}
	doc.Items["old"] = model.Item{ID: "old", DisplayName: "Removed Skin"}
	doc.Rarities["premium"] = model.RarityTier{ID: "premium", Name: "Premium"}
	doc.Prices.Prices["a"] = 1775
	doc.Prices.LastRefreshedAt = refreshedAt
	return doc
}

func TestEnsureFreshRebuildsOnNewVersion(t *testing.T) {
	h := newHarness(t, "A")
	empty := model.NewCacheDocument()
	empty.CatalogVersion = "v1"
	h.store.put(empty)

	require.NoError(t, h.cache.EnsureFresh(context.Background(), true))

	_, items, tiers := h.catalog.counts()
	assert.Equal(t, 1, items)
	assert.Equal(t, 1, tiers)
	assert.Empty(t, h.prices.called(), "a rebuild does not fetch prices")

	saved := h.store.saved()
	require.NotNil(t, saved)
	assert.Equal(t, "v2", saved.CatalogVersion)
	assert.Equal(t, model.CatalogFormatVersion, saved.FormatVersion)
	assert.Len(t, saved.Items, 3)
	assert.Empty(t, saved.Prices.Prices)
	assert.False(t, saved.Prices.Refreshed())
}

func TestEnsureFreshRebuildReplacesEverything(t *testing.T) {
	h := newHarness(t, "A")
	h.store.put(persistedDoc("v1", testNow.Add(-time.Hour)))

	require.NoError(t, h.cache.EnsureFresh(context.Background(), true))

	saved := h.store.saved()
	assert.Equal(t, "v2", saved.CatalogVersion)
	assert.NotContains(t, saved.Items, "old")
	assert.Empty(t, saved.Prices.Prices)
	assert.False(t, saved.Prices.Refreshed())

	stats := h.cache.Stats()
	assert.Equal(t, "v2", stats.CatalogVersion)
	assert.Equal(t, 3, stats.Items)
	assert.Equal(t, 0, stats.Prices)
}

func TestEnsureFreshOldFormatForcesRebuild(t *testing.T) {
	h := newHarness(t, "A")
	doc := persistedDoc("v2", testNow.Add(-time.Hour))
	doc.FormatVersion = 1
	h.store.put(doc)

	require.NoError(t, h.cache.EnsureFresh(context.Background(), true))

	_, items, _ := h.catalog.counts()
	assert.Equal(t, 1, items)
	assert.Equal(t, model.CatalogFormatVersion, h.store.saved().FormatVersion)
}

func TestEnsureFreshRefreshesStalePrices(t *testing.T) {
	h := newHarness(t, "A")
	h.prices.results["A"] = priceResult{prices: map[string]int{"a": 2175}}
	h.store.put(persistedDoc("v2", testNow.Add(-25*time.Hour)))

	require.NoError(t, h.cache.EnsureFresh(context.Background(), true))

	_, items, _ := h.catalog.counts()
	assert.Zero(t, items, "matching version must not rebuild")
	assert.Equal(t, []string{"A"}, h.prices.called())

	saved := h.store.saved()
	assert.Equal(t, map[string]int{"a": 2175}, saved.Prices.Prices)
	assert.True(t, testNow.Equal(saved.Prices.LastRefreshedAt))
}

func TestEnsureFreshKeepsFreshPrices(t *testing.T) {
	h := newHarness(t, "A")
	h.prices.results["A"] = priceResult{prices: map[string]int{"a": 2175}}
	h.store.put(persistedDoc("v2", testNow.Add(-time.Hour)))

	require.NoError(t, h.cache.EnsureFresh(context.Background(), true))

	assert.Empty(t, h.prices.called())
	assert.Zero(t, h.store.saveCount())
}

func TestEnsureFreshFastPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.cache.EnsureFresh(ctx, false))
	versionCalls, _, _ := h.catalog.counts()
	require.Equal(t, 1, versionCalls)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.cache.EnsureFresh(ctx, false))
	}
	versionCalls, _, _ = h.catalog.counts()
	assert.Equal(t, 1, versionCalls)

	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	versionCalls, _, _ = h.catalog.counts()
	assert.Equal(t, 2, versionCalls)
}

func TestRefreshPricesFallbackOrder(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	h.prices.results["A"] = priceResult{err: upstream.ErrUnavailable}
	h.prices.results["B"] = priceResult{prices: map[string]int{"a": 1775, "b": 0, "gone": 99}}
	h.prices.results["C"] = priceResult{prices: map[string]int{"a": 1}}
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	refreshed, err := h.cache.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, []string{"A", "B"}, h.prices.called())

	saved := h.store.saved()
	assert.Equal(t, map[string]int{"a": 1775, "b": 0}, saved.Prices.Prices, "prices for unknown items are dropped")

	stats := h.cache.Stats()
	assert.Equal(t, PriceOutcomeRefreshed, stats.LastPriceOutcome)
	assert.Equal(t, "B", stats.LastPriceIdentity)
}

func TestRefreshPricesSkipsFailingIdentity(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.prices.results["A"] = priceResult{err: errors.New("connection reset")}
	h.prices.results["B"] = priceResult{prices: map[string]int{"a": 1775}}
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	refreshed, err := h.cache.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, []string{"A", "B"}, h.prices.called())
}

func TestRefreshPricesMaintenanceAborts(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.prices.results["A"] = priceResult{err: fmt.Errorf("offers: %w", upstream.ErrMaintenance)}
	h.prices.results["B"] = priceResult{prices: map[string]int{"a": 1775}}
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	refreshed, err := h.cache.RefreshPrices(ctx)
	assert.ErrorIs(t, err, upstream.ErrMaintenance)
	assert.False(t, refreshed)
	assert.Equal(t, []string{"A"}, h.prices.called())
	assert.Equal(t, PriceOutcomeMaintenance, h.cache.Stats().LastPriceOutcome)
}

func TestRefreshPricesAllUnavailableKeepsTable(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.prices.results["A"] = priceResult{err: upstream.ErrUnavailable}
	h.prices.results["B"] = priceResult{err: upstream.ErrUnavailable}
	old := testNow.Add(-25 * time.Hour)
	h.store.put(persistedDoc("v2", old))
	ctx := context.Background()

	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	assert.Equal(t, []string{"A", "B"}, h.prices.called())

	refreshed, err := h.cache.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed)

	stats := h.cache.Stats()
	assert.Equal(t, 1, stats.Prices)
	assert.True(t, old.Equal(stats.PricesRefreshedAt))
	assert.Equal(t, PriceOutcomeExhausted, stats.LastPriceOutcome)
	assert.Zero(t, h.store.saveCount())
}

func TestRefreshPricesNotReplacedByOnDemandRefresh(t *testing.T) {
	h := newHarness(t, "A", "B")
	gate := make(chan struct{})
	h.prices.gates = map[string]chan struct{}{"X": gate}
	h.prices.results["X"] = priceResult{err: upstream.ErrUnavailable}
	h.prices.results["A"] = priceResult{prices: map[string]int{"a": 1775}}
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.cache.GetItem(ctx, "a", "X")
	}()
	assert.Eventually(t, func() bool { return len(h.prices.called()) == 1 }, time.Second, time.Millisecond)

	refreshed, err := h.cache.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed, "the listed identities are tried")

	close(gate)
	<-done

	assert.Equal(t, []string{"X", "A"}, h.prices.called())
	view, err := h.cache.GetItem(ctx, "a", "A")
	require.NoError(t, err)
	require.NotNil(t, view.Price)
	assert.Equal(t, 1775, *view.Price)
}

func TestRefreshPricesDisabled(t *testing.T) {
	h := newHarness(t, "A")
	h.cache.hidePrices = true
	h.prices.results["A"] = priceResult{prices: map[string]int{"a": 1}}
	h.store.put(persistedDoc("v2", time.Time{}))
	ctx := context.Background()

	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	view, err := h.cache.GetItem(ctx, "a", "A")
	require.NoError(t, err)

	assert.Nil(t, view.Price)
	assert.Empty(t, h.prices.called())
}

func TestRaritiesDisabled(t *testing.T) {
	h := newHarness(t)
	h.cache.hideRarities = true
	ctx := context.Background()

	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	_, _, tiers := h.catalog.counts()
	assert.Zero(t, tiers, "rarity tiers are not fetched")

	view, err := h.cache.GetItem(ctx, "a", "")
	require.NoError(t, err)
	assert.Nil(t, view.Rarity)
}

func TestRebuildFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, "A")
	h.store.put(persistedDoc("v1", testNow.Add(-time.Hour)))
	h.catalog.itemsErr = &upstream.ContractError{Endpoint: "/weapons/skins", StatusCode: 500, Reason: "unexpected HTTP status"}
	ctx := context.Background()

	err := h.cache.EnsureFresh(ctx, true)
	require.Error(t, err)
	assert.True(t, upstream.IsContractError(err))

	stats := h.cache.Stats()
	assert.Equal(t, "v1", stats.CatalogVersion)
	assert.Equal(t, "v1", h.store.saved().CatalogVersion)
	assert.NotEmpty(t, stats.LastCheckError)

	// Lookups keep answering from the persisted catalog.
	view, err := h.cache.GetItem(ctx, "old", "")
	require.NoError(t, err)
	assert.Equal(t, "Removed Skin", view.DisplayName)
}

func TestLookupWithoutCatalogFails(t *testing.T) {
	h := newHarness(t)
	h.catalog.versionErr = errors.New("dial tcp: connection refused")

	_, err := h.cache.GetItem(context.Background(), "a", "")
	assert.ErrorContains(t, err, "connection refused")

	_, err = h.cache.Search(context.Background(), "vandal")
	assert.Error(t, err)
	assert.False(t, h.cache.Loaded())
}

func TestSaveFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.store.saveErr = errors.New("disk full")

	err := h.cache.EnsureFresh(context.Background(), true)
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, h.cache.Loaded(), "the rebuilt catalog is still served")
}

func TestGetItemRarity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.cache.GetItem(ctx, "a", "")
	require.NoError(t, err)
	require.NotNil(t, view.Rarity)
	assert.Equal(t, "Premium", view.Rarity.Name)

	view, err = h.cache.GetItem(ctx, "b", "")
	require.NoError(t, err)
	assert.Nil(t, view.Rarity, "item without rarity")

	view, err = h.cache.GetItem(ctx, "c", "")
	require.NoError(t, err)
	assert.Nil(t, view.Rarity, "rarity missing from the table")

	_, err = h.cache.GetItem(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestGetItemRefreshesNeverFetchedPricesOnce(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.prices.results["B"] = priceResult{prices: map[string]int{"a": 1775}}
	ctx := context.Background()

	view, err := h.cache.GetItem(ctx, "a", "")
	require.NoError(t, err)
	assert.Nil(t, view.Price)
	assert.Empty(t, h.prices.called(), "no identity, no price fetch")

	view, err = h.cache.GetItem(ctx, "a", "B")
	require.NoError(t, err)
	require.NotNil(t, view.Price)
	assert.Equal(t, 1775, *view.Price)
	assert.Equal(t, []string{"B"}, h.prices.called(), "only the requesting identity is used")

	_, err = h.cache.GetItem(ctx, "b", "B")
	require.NoError(t, err)
	assert.Len(t, h.prices.called(), 1)
}

func TestSearchIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.cache.Search(ctx, "vandal")
	require.NoError(t, err)
	second, err := h.cache.Search(ctx, "vandal")
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", first[0].ID)
	assert.NotNil(t, first[0].Rarity)
}

func TestSearchIndexFollowsRebuild(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	h.catalog.mu.Lock()
	h.catalog.version = "v3"
	h.catalog.items = []model.Item{{ID: "z", DisplayName: "Glitchpop Vandal"}}
	h.catalog.mu.Unlock()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	results, err := h.cache.Search(ctx, "vandal")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "z", results[0].ID)
}

func TestForcedCheckAdoptsNewerPersistedDocument(t *testing.T) {
	h := newHarness(t, "A")
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	// Another process refreshed prices and saved.
	doc := h.store.saved()
	doc.Prices.Prices["a"] = 999
	doc.Prices.LastRefreshedAt = testNow
	h.store.put(doc)

	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	_, items, _ := h.catalog.counts()
	assert.Equal(t, 1, items)

	view, err := h.cache.GetItem(ctx, "a", "A")
	require.NoError(t, err)
	require.NotNil(t, view.Price)
	assert.Equal(t, 999, *view.Price)
	assert.Empty(t, h.prices.called())
}

func TestFailedCheckKeepsNewerCatalog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	// The store still holds an older catalog, e.g. after a failed save.
	h.store.put(persistedDoc("v1", testNow))
	h.catalog.mu.Lock()
	h.catalog.versionErr = &upstream.ContractError{Endpoint: "/version", StatusCode: 500, Reason: "down"}
	h.catalog.mu.Unlock()

	err := h.cache.EnsureFresh(ctx, true)
	require.Error(t, err)
	assert.True(t, upstream.IsContractError(err))

	stats := h.cache.Stats()
	assert.Equal(t, "v2", stats.CatalogVersion)
	assert.Equal(t, 3, stats.Items)
}

func TestCheckRepairsOlderPersistedCatalog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	h.store.put(persistedDoc("v1", testNow))

	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	_, items, _ := h.catalog.counts()
	assert.Equal(t, 1, items, "memory is current, no rebuild")
	assert.Equal(t, "v2", h.store.saved().CatalogVersion)
	assert.Equal(t, "v2", h.cache.Stats().CatalogVersion)
}

func TestForcedCheckAdoptsSiblingRebuild(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	// Another process rebuilt for v3 before this one noticed.
	h.store.put(persistedDoc("v3", testNow))
	h.catalog.mu.Lock()
	h.catalog.version = "v3"
	h.catalog.mu.Unlock()

	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	_, items, _ := h.catalog.counts()
	assert.Equal(t, 1, items, "the persisted v3 catalog is adopted")
	assert.Equal(t, "v3", h.cache.Stats().CatalogVersion)

	results, err := h.cache.Search(ctx, "removed")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "old", results[0].ID)
}

func TestUnreadableStoreKeepsMemory(t *testing.T) {
	h := newHarness(t, "A")
	h.prices.results["A"] = priceResult{prices: map[string]int{"a": 1775}}
	ctx := context.Background()
	require.NoError(t, h.cache.EnsureFresh(ctx, true))
	_, err := h.cache.RefreshPrices(ctx)
	require.NoError(t, err)

	h.store.failLoads(errors.New("lock catalog file: timeout"))
	require.NoError(t, h.cache.EnsureFresh(ctx, true))

	_, items, _ := h.catalog.counts()
	assert.Equal(t, 1, items, "lock contention does not force a rebuild")
	view, err := h.cache.GetItem(ctx, "a", "A")
	require.NoError(t, err)
	require.NotNil(t, view.Price)
	assert.Equal(t, 1775, *view.Price)
}

func TestConcurrentEnsureFreshSharesOneRefresh(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.catalog.gate = gate
	ctx := context.Background()

	const callers = 5
	var started, wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			errs[i] = h.cache.EnsureFresh(ctx, true)
		}(i)
	}
	started.Wait()
	assert.Eventually(t, func() bool {
		n, _, _ := h.catalog.counts()
		return n == 1
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	versionCalls, items, _ := h.catalog.counts()
	assert.Equal(t, 1, versionCalls)
	assert.Equal(t, 1, items)
	assert.Equal(t, 1, h.store.saveCount())
}

func TestShutdownWaitsForRefresh(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.catalog.gate = gate

	done := make(chan error, 1)
	go func() { done <- h.cache.EnsureFresh(context.Background(), true) }()
	assert.Eventually(t, func() bool {
		n, _, _ := h.catalog.counts()
		return n == 1
	}, time.Second, time.Millisecond)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.cache.Shutdown(short), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, <-done)
	require.NoError(t, h.cache.Shutdown(context.Background()))
	assert.Equal(t, 1, h.store.saveCount(), "the in-flight rebuild was persisted")

	assert.ErrorIs(t, h.cache.EnsureFresh(context.Background(), true), ErrClosed)
}

func TestInitServesPersistedCatalogWhenUpstreamDown(t *testing.T) {
	h := newHarness(t)
	h.store.put(persistedDoc("v1", testNow))
	h.catalog.versionErr = errors.New("timeout")

	require.NoError(t, h.cache.Init(context.Background()))
	assert.Equal(t, "v1", h.cache.Stats().CatalogVersion)

	empty := newHarness(t)
	empty.catalog.versionErr = errors.New("timeout")
	assert.Error(t, empty.cache.Init(context.Background()))
}
