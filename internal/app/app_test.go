package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"shopbot-api/internal/cache"
	"shopbot-api/internal/config"
	"shopbot-api/internal/model"
	"shopbot-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, storeType string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.App.Name = "shopbot-api"
	cfg.Catalog.StoreType = storeType
	cfg.Catalog.Path = filepath.Join(dir, "skins.json")
	cfg.Catalog.SQLitePath = filepath.Join(dir, "catalog.db")
	cfg.Catalog.ShowPrices = true
	cfg.IdentityDB.Type = "sqlite"
	cfg.IdentityDB.Path = filepath.Join(dir, "nested", "identities.db")
	cfg.Upstream.CatalogBaseURL = "http://127.0.0.1:0"
	return cfg
}

func TestOpenFileStore(t *testing.T) {
	c, err := Open(testConfig(t, "file"), nil)
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &repository.FileCatalogStore{}, c.Store)
	assert.False(t, c.Catalog.Loaded())

	ids, err := c.Identities.ListIdentities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpenSQLiteStoreRoundtrip(t *testing.T) {
	c, err := Open(testConfig(t, "sqlite"), nil)
	require.NoError(t, err)

	assert.IsType(t, &repository.SQLiteCatalogStore{}, c.Store)

	doc := model.NewCacheDocument()
	doc.CatalogVersion = "v1"
	require.NoError(t, c.Store.Save(context.Background(), doc))

	loaded, err := c.Store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "v1", loaded.CatalogVersion)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.NoError(t, c.Close())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.AppConfig{Name: "svc", LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"svc"`)
}

func TestOpenResponseCacheFallsBackToMemory(t *testing.T) {
	cfg := config.CacheConfig{Type: "redis", RedisHost: "127.0.0.1", RedisPort: 1}
	var buf bytes.Buffer
	c := OpenResponseCache(cfg, NewLogger(config.AppConfig{}, &buf))
	defer c.Close()

	assert.IsType(t, &cache.MemoryCache{}, c)
	assert.Contains(t, buf.String(), "redis unavailable")
}
