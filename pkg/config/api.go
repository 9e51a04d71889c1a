package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment   string `env:"APP_ENV" envDefault:"development"`
	Addr          string `env:"API_ADDR" envDefault:":4000"`
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"postgres://teamup:teamup@db:5432/teamup?sslmode=disable"`
	MigrationsDir string `env:"DB_MIGRATIONS_DIR" envDefault:"db/migrations"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret       string        `env:"JWT_SECRET" envDefault:"supersecuresecret"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`

	RateLimitRedisAddr string `env:"RATE_LIMIT_REDIS_ADDR"`
	RateLimitRedisPass string `env:"RATE_LIMIT_REDIS_PASSWORD"`
	RateLimitRedisDB   int    `env:"RATE_LIMIT_REDIS_DB" envDefault:"0"`

	NATSURL             string        `env:"NATS_URL"`
	NATSSubjectPrefix   string        `env:"NATS_SUBJECT_PREFIX" envDefault:"teamup.notifications"`
	NotifyWebhookURL    string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string        `env:"NOTIFY_WEBHOOK_SECRET"`
	NotifyTimeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	WSSendBuffer        int           `env:"WS_SEND_BUFFER" envDefault:"32"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// LoadAPIConfig constructs an APIConfig from the environment, after loading any .env file.
func LoadAPIConfig() (APIConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return APIConfig{}, err
	}
	var cfg APIConfig
	if err := ParseEnv(&cfg); err != nil {
		return APIConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the API cannot start with.
func (c APIConfig) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttls must be positive")
	}
	if c.NotifyWebhookURL != "" && c.NotifyWebhookSecret == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_SECRET is required when NOTIFY_WEBHOOK_URL is set")
	}
	return nil
}

// Level parses LogLevel, defaulting to info.
func (c APIConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
