package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"shopbot-api/internal/model"
)

// memoryStore round-trips documents through JSON like the real stores.
type memoryStore struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
	loadErr error
}

func (s *memoryStore) Load(ctx context.Context) (*model.CacheDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.data == nil {
		return nil, nil
	}
	var doc model.CacheDocument
	if err := json.Unmarshal(s.data, &doc); err != nil {
		return nil, nil
	}
	return &doc, nil
}

func (s *memoryStore) Save(ctx context.Context, doc *model.CacheDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) put(doc *model.CacheDocument) {
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

func (s *memoryStore) saved() *model.CacheDocument {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()
	if data == nil {
		return nil
	}
	var doc model.CacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return &doc
}

func (s *memoryStore) failLoads(err error) {
	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeCatalog struct {
	mu           sync.Mutex
	version      string
	items        []model.Item
	tiers        []model.RarityTier
	versionErr   error
	itemsErr     error
	gate         chan struct{}
	versionCalls int
	itemsCalls   int
	tierCalls    int
}

func (f *fakeCatalog) ManifestVersion(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.versionCalls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, f.versionErr
}

func (f *fakeCatalog) Items(ctx context.Context) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemsCalls++
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	return append([]model.Item(nil), f.items...), nil
}

func (f *fakeCatalog) RarityTiers(ctx context.Context) ([]model.RarityTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tierCalls++
	return append([]model.RarityTier(nil), f.tiers...), nil
}

func (f *fakeCatalog) counts() (version, items, tiers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versionCalls, f.itemsCalls, f.tierCalls
}

type priceResult struct {
	prices map[string]int
	err    error
}

type fakePrices struct {
	mu      sync.Mutex
	results map[string]priceResult
	gates   map[string]chan struct{}
	calls   []string
}

func (f *fakePrices) Prices(ctx context.Context, identityID string) (map[string]int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identityID)
	gate := f.gates[identityID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[identityID]
	if !ok {
		return nil, errUnknownIdentity
	}
	return r.prices, r.err
}

func (f *fakePrices) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeIdentities []string

func (f fakeIdentities) ListIdentities(ctx context.Context) ([]string, error) {
	return append([]string(nil), f...), nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
