package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"3001" validate:"required,numeric"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`

	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaSyncTopic string   `env:"KAFKA_SYNC_TOPIC" envDefault:"pos.sync.completed"`

	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	SeedAdminPassword     string `env:"SEED_ADMIN_PASSWORD"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`

	POS POSConfig
}

// POSConfig holds the vendor credentials. Everything here is read once at
// startup; missing credentials abort the process.
type POSConfig struct {
	ClientID       string        `env:"TOAST_CLIENT_ID"`
	ClientSecret   string        `env:"TOAST_CLIENT_SECRET"`
	ClientSecret2  string        `env:"TOAST_CLIENT_SECRET2"`
	RestaurantGUID string        `env:"TOAST_RESTAURANT_GUID"`
	BaseURL        string        `env:"TOAST_BASE_URL" envDefault:"https://ws-api.toasttab.com" validate:"required,url"`
	AuthURL        string        `env:"TOAST_AUTH_URL" validate:"omitempty,url"`
	RequestTimeout time.Duration `env:"TOAST_REQUEST_TIMEOUT" envDefault:"10s"`
	Timezone       string        `env:"TOAST_TIMEZONE" envDefault:"America/Los_Angeles"`
	PageSize       int           `env:"TOAST_PAGE_SIZE" envDefault:"100"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.POS.ClientID = strings.TrimSpace(cfg.POS.ClientID)
	cfg.POS.RestaurantGUID = strings.TrimSpace(cfg.POS.RestaurantGUID)
	cfg.POS.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.POS.BaseURL), "/")
	cfg.POS.AuthURL = strings.TrimRight(strings.TrimSpace(cfg.POS.AuthURL), "/")
	if cfg.POS.AuthURL == "" {
		// The vendor login lives on the API host unless a dedicated auth host is set.
		cfg.POS.AuthURL = cfg.POS.BaseURL
	}

	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.RateLimitMax < 1 {
		cfg.RateLimitMax = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 15 * time.Minute
	}
	if cfg.POS.PageSize < 1 || cfg.POS.PageSize > 100 {
		cfg.POS.PageSize = 100
	}
	if cfg.POS.RequestTimeout <= 0 {
		cfg.POS.RequestTimeout = 10 * time.Second
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// ClientSecrets returns the configured secrets in the order they should be tried.
func (p POSConfig) ClientSecrets() []string {
	secrets := make([]string, 0, 2)
	for _, s := range []string{p.ClientSecret, p.ClientSecret2} {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			secrets = append(secrets, trimmed)
		}
	}
	return secrets
}

func (p POSConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}
