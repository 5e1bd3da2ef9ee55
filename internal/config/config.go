// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Entities EntitiesConfig `mapstructure:"entities"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
	RequestTimeoutSeconds    int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AuthConfig controls token issuance and credential hashing.
type AuthConfig struct {
	JWTSecret              string `mapstructure:"jwt_secret"`
	JWTIssuer              string `mapstructure:"jwt_issuer"`
	TokenTTLMinutes        int    `mapstructure:"token_ttl_minutes"`
	CookieName             string `mapstructure:"cookie_name"`
	CookieSecure           bool   `mapstructure:"cookie_secure"`
	BcryptCost             int    `mapstructure:"bcrypt_cost"`
	BootstrapAdminUsername string `mapstructure:"bootstrap_admin_username"`
	BootstrapAdminPassword string `mapstructure:"bootstrap_admin_password"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	MigrateOnStart         bool   `mapstructure:"migrate_on_start"`
}

// ScraperConfig governs the fetch → parse → match pipeline.
type ScraperConfig struct {
	ArchiveURL             string   `mapstructure:"archive_url"`
	UserAgent              string   `mapstructure:"user_agent"`
	RequestTimeoutSeconds  int      `mapstructure:"request_timeout_seconds"`
	RespectRobots          bool     `mapstructure:"respect_robots"`
	RequestsPerSecond      float64  `mapstructure:"requests_per_second"`
	Burst                  int      `mapstructure:"burst"`
	MaxDocuments           int      `mapstructure:"max_documents"`
	MaxPDFBytes            int64    `mapstructure:"max_pdf_bytes"`
	ContextChars           int      `mapstructure:"context_chars"`
	HeadlessIndex          bool     `mapstructure:"headless_index"`
	HeadlessFallback       bool     `mapstructure:"headless_fallback"`
	HeadlessTimeoutSeconds int      `mapstructure:"headless_timeout_seconds"`
	IntervalMinutes        int      `mapstructure:"interval_minutes"`
	RetentionDays          int      `mapstructure:"retention_days"`
	QueueDepth             int      `mapstructure:"queue_depth"`
	Keywords               []string `mapstructure:"keywords"`
}

// StorageConfig sets where PDFs and CSV exports are written.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	BaseDir      string `mapstructure:"base_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
	ProcessedDir string `mapstructure:"processed_dir"`
}

// EntitiesConfig selects the named-entity backend.
type EntitiesConfig struct {
	Backend      string   `mapstructure:"backend"`
	Labels       []string `mapstructure:"labels"`
	GeminiAPIKey string   `mapstructure:"gemini_api_key"`
	GeminiModel  string   `mapstructure:"gemini_model"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MINUTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	// Keys without a meaningful default are registered so AutomaticEnv can
	// populate them during Unmarshal.
	for _, key := range []string{
		"auth.jwt_secret",
		"auth.bootstrap_admin_username",
		"auth.bootstrap_admin_password",
		"db.dsn",
		"scraper.archive_url",
		"storage.gcs_bucket",
		"entities.gemini_api_key",
		"pubsub.project_id",
		"pubsub.topic",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("auth.jwt_issuer", "minuteswatch")
	v.SetDefault("auth.token_ttl_minutes", 60)
	v.SetDefault("auth.cookie_name", "access_token")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.migrate_on_start", false)
	v.SetDefault("scraper.user_agent", "minuteswatch-bot/0.1")
	v.SetDefault("scraper.request_timeout_seconds", 30)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.requests_per_second", 1.0)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.max_documents", 0)
	v.SetDefault("scraper.max_pdf_bytes", 50*1024*1024)
	v.SetDefault("scraper.context_chars", 150)
	v.SetDefault("scraper.headless_index", false)
	v.SetDefault("scraper.headless_fallback", false)
	v.SetDefault("scraper.headless_timeout_seconds", 30)
	v.SetDefault("scraper.interval_minutes", 0)
	v.SetDefault("scraper.retention_days", 365)
	v.SetDefault("scraper.queue_depth", 8)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/raw")
	v.SetDefault("storage.prefix", "minutes")
	v.SetDefault("storage.processed_dir", "data/processed")
	v.SetDefault("entities.backend", "prose")
	v.SetDefault("entities.labels", []string{"PERSON", "GPE", "ORG"})
	v.SetDefault("entities.gemini_model", "gemini-2.5-flash")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be > 0")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name must be set")
	}
	if c.Scraper.ArchiveURL != "" {
		u, err := url.Parse(c.Scraper.ArchiveURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("scraper.archive_url must be an absolute http(s) URL")
		}
	}
	if c.Scraper.ContextChars <= 0 {
		return fmt.Errorf("scraper.context_chars must be > 0")
	}
	if c.Scraper.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.request_timeout_seconds must be > 0")
	}
	if c.Scraper.RetentionDays <= 0 {
		return fmt.Errorf("scraper.retention_days must be > 0")
	}
	if c.Scraper.QueueDepth <= 0 {
		return fmt.Errorf("scraper.queue_depth must be > 0")
	}
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Entities.Backend {
	case "prose", "none":
	case "gemini":
		if c.Entities.GeminiAPIKey == "" {
			return fmt.Errorf("entities.gemini_api_key must be set for the gemini backend")
		}
	default:
		return fmt.Errorf("entities.backend %q is not supported", c.Entities.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// TokenTTL returns the lifetime of issued access tokens.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// RequestTimeout returns the per-request fetch budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.RequestTimeoutSeconds) * time.Second
}

// HeadlessTimeout returns the navigation budget of the headless index fetch.
func (c Config) HeadlessTimeout() time.Duration {
	return time.Duration(c.Scraper.HeadlessTimeoutSeconds) * time.Second
}

// DBConnLifetime returns the maximum lifetime of a pooled connection.
func (c Config) DBConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMinutes) * time.Minute
}

// ScrapeInterval returns the scheduled run period; zero disables the ticker.
func (c Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scraper.IntervalMinutes) * time.Minute
}
