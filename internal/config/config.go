package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig
	App        AppConfig
	Cache      CacheConfig
	Catalog    CatalogConfig
	IdentityDB IdentityDBConfig
	Upstream   UpstreamConfig
	Auth       AuthConfig
	Telemetry  TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"shopbot-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"` // text or json
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Type      string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	WalletTTL time.Duration `envconfig:"CACHE_WALLET_TTL" default:"1m"`
	ShopTTL   time.Duration `envconfig:"CACHE_SHOP_MAX_TTL" default:"24h"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_KEY_PREFIX" default:"shopbot"`
}

// CatalogConfig holds item catalog cache settings.
type CatalogConfig struct {
	StoreType       string        `envconfig:"CATALOG_STORE_TYPE" default:"file"` // file or sqlite
	Path            string        `envconfig:"CATALOG_PATH" default:"./storage/skins.json"`
	SQLitePath      string        `envconfig:"CATALOG_SQLITE_PATH" default:"./storage/catalog.db"`
	CheckInterval   time.Duration `envconfig:"CATALOG_CHECK_INTERVAL" default:"15m"`
	PriceStaleAfter time.Duration `envconfig:"CATALOG_PRICE_STALE_AFTER" default:"24h"`
	ShowPrices      bool          `envconfig:"CATALOG_SHOW_PRICES" default:"true"`
	ShowRarities    bool          `envconfig:"CATALOG_SHOW_RARITIES" default:"true"`
}

// IdentityDBConfig holds credential database settings.
type IdentityDBConfig struct {
	Type string `envconfig:"IDENTITY_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"IDENTITY_DB_PATH" default:"./storage/identities.db"`
	// MySQL settings
	Host     string `envconfig:"IDENTITY_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"IDENTITY_DB_PORT" default:"3306"`
	Name     string `envconfig:"IDENTITY_DB_NAME" default:"shopbot"`
	User     string `envconfig:"IDENTITY_DB_USER" default:"root"`
	Password string `envconfig:"IDENTITY_DB_PASS" default:""`
}

// UpstreamConfig holds game service endpoints. Store and game hosts contain a
// {region} placeholder.
type UpstreamConfig struct {
	CatalogBaseURL string        `envconfig:"UPSTREAM_CATALOG_URL" default:"https://valorant-api.com/v1"`
	StoreHost      string        `envconfig:"UPSTREAM_STORE_HOST" default:"https://pd.{region}.a.pvp.net"`
	GameHost       string        `envconfig:"UPSTREAM_GAME_HOST" default:"https://glz-{region}-1.{region}.a.pvp.net"`
	RequestTimeout time.Duration `envconfig:"UPSTREAM_REQUEST_TIMEOUT" default:"30s"`
	RateInterval   time.Duration `envconfig:"UPSTREAM_RATE_INTERVAL" default:"100ms"`
	ClientPlatform string        `envconfig:"UPSTREAM_CLIENT_PLATFORM" default:"ew0KCSJwbGF0Zm9ybVR5cGUiOiAiUEMiLA0KCSJwbGF0Zm9ybU9TIjogIldpbmRvd3MiLA0KCSJwbGF0Zm9ybU9TVmVyc2lvbiI6ICIxMC4wLjE5MDQyLjEuMjU2LjY0Yml0IiwNCgkicGxhdGZvcm1DaGlwc2V0IjogIlVua25vd24iDQp9"`
	ClientVersion  string        `envconfig:"UPSTREAM_CLIENT_VERSION" default:"release-04.01-11-659041"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// TelemetryConfig holds tracing export settings.
type TelemetryConfig struct {
	OTLPEndpoint string `envconfig:"OTEL_ENDPOINT" default:""`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"shopbot-api"`
}

// MySQLDSN returns the MySQL data source name.
func (d *IdentityDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// SQLiteDSN returns the SQLite data source name.
func (d *IdentityDBConfig) SQLiteDSN() string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", d.Path)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (a *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid CACHE_TYPE %q (want memory or redis)", c.Cache.Type)
	}
	switch c.Catalog.StoreType {
	case "file", "sqlite":
	default:
		return fmt.Errorf("invalid CATALOG_STORE_TYPE %q (want file or sqlite)", c.Catalog.StoreType)
	}
	switch c.IdentityDB.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("invalid IDENTITY_DB_TYPE %q (want sqlite or mysql)", c.IdentityDB.Type)
	}
	if c.Catalog.PriceStaleAfter <= 0 {
		return fmt.Errorf("CATALOG_PRICE_STALE_AFTER must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
