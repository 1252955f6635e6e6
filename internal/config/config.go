// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Document store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// DocstoreDriver selects the document store: memory, postgres or redis.
	DocstoreDriver string `mapstructure:"DOCSTORE_DRIVER"`
	// DatabaseURL is the Postgres DSN; required for the postgres driver and by cmd/migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis:// URL; required for the redis driver.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Empty uses an ephemeral key.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTIDTokenTTL is the id token lifetime (e.g. "1h").
	JWTIDTokenTTL string `mapstructure:"JWT_ID_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// ProfileMaxRetries is how many missing profile snapshots end a sign-in.
	ProfileMaxRetries    int    `mapstructure:"PROFILE_MAX_RETRIES"`
	ProfileRetryInterval string `mapstructure:"PROFILE_RETRY_INTERVAL"`
	// ProfileWaitTimeout caps the whole wait for a profile regardless of retries.
	ProfileWaitTimeout string `mapstructure:"PROFILE_WAIT_TIMEOUT"`

	InviteCodeTTLRaw       string `mapstructure:"INVITE_CODE_TTL"`
	InvitePurgeIntervalRaw string `mapstructure:"INVITE_PURGE_INTERVAL"`
	PasswordResetTTLRaw    string `mapstructure:"PASSWORD_RESET_TTL"`

	// NoticeAPIURL is the transactional mail endpoint for verification and reset notices.
	NoticeAPIURL string `mapstructure:"NOTICE_API_URL"`
	NoticeAPIKey string `mapstructure:"NOTICE_API_KEY"`
	NoticeSender string `mapstructure:"NOTICE_SENDER"`
	// DevNotices when true keeps notices in an in-memory outbox instead of sending them. Must not be true when
	// Env is production.
	DevNotices bool `mapstructure:"DEV_NOTICES"`

	// OTLPEndpoint is the collector address; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("DOCSTORE_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "orderdesk-auth")
	v.SetDefault("JWT_AUDIENCE", "orderdesk-app")
	v.SetDefault("JWT_ID_TOKEN_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PROFILE_MAX_RETRIES", 10)
	v.SetDefault("PROFILE_RETRY_INTERVAL", "500ms")
	v.SetDefault("PROFILE_WAIT_TIMEOUT", "10s")
	v.SetDefault("INVITE_CODE_TTL", "720h") // 30d
	v.SetDefault("INVITE_PURGE_INTERVAL", "1h")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("NOTICE_API_URL", "")
	v.SetDefault("NOTICE_API_KEY", "")
	v.SetDefault("NOTICE_SENDER", "")
	v.SetDefault("DEV_NOTICES", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "orderdesk-session")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.DocstoreDriver = strings.ToLower(strings.TrimSpace(cfg.DocstoreDriver))
	switch cfg.DocstoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when DOCSTORE_DRIVER=postgres")
		}
	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL must be set when DOCSTORE_DRIVER=redis")
		}
	default:
		return nil, errors.New("config: DOCSTORE_DRIVER must be memory, postgres or redis")
	}

	if cfg.DevNotices && cfg.Env == "production" {
		return nil, errors.New("config: DEV_NOTICES must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.ProfileMaxRetries <= 0 {
		cfg.ProfileMaxRetries = 10
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c != nil && c.Env == "production" }

// parseDuration returns raw as a positive duration, or def.
func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// IDTokenTTL parses JWTIDTokenTTL. Returns 1h if unset or invalid.
func (c *Config) IDTokenTTL() time.Duration { return parseDuration(c.JWTIDTokenTTL, time.Hour) }

// ProfileRetryEvery parses ProfileRetryInterval. Returns 500ms if unset or invalid.
func (c *Config) ProfileRetryEvery() time.Duration {
	return parseDuration(c.ProfileRetryInterval, 500*time.Millisecond)
}

// ProfileWaitCeiling parses ProfileWaitTimeout. Returns 10s if unset or invalid.
func (c *Config) ProfileWaitCeiling() time.Duration {
	return parseDuration(c.ProfileWaitTimeout, 10*time.Second)
}

// InviteCodeTTL parses INVITE_CODE_TTL. Returns 30 days if unset or invalid.
func (c *Config) InviteCodeTTL() time.Duration { return parseDuration(c.InviteCodeTTLRaw, 30*24*time.Hour) }

// InvitePurgeInterval parses INVITE_PURGE_INTERVAL. Returns 1h if unset or invalid.
func (c *Config) InvitePurgeInterval() time.Duration {
	return parseDuration(c.InvitePurgeIntervalRaw, time.Hour)
}

// PasswordResetTTL parses PASSWORD_RESET_TTL. Returns 1h if unset or invalid.
func (c *Config) PasswordResetTTL() time.Duration { return parseDuration(c.PasswordResetTTLRaw, time.Hour) }
