package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	APIAddr     string
	DatabaseURL string
	RedisAddr   string

	AuthSecret string
	AuthIssuer string

	MinWithdrawal      float64
	DefaultChannelRef  string
	ChannelRotateAfter int
	ChannelDailyLimit  int

	RateLimitCapacity int
	RateLimitRefill   float64
	MaxBodyBytes      int64
}

// Load reads configuration from environment variables. DATABASE_URL and
// AUTH_SECRET are always required; everything else has a development
// default. REDIS_ADDR is optional and disables rate limiting when empty.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getenv("APP_ENV", "development"),
		APIAddr:     getenv("API_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		AuthSecret: os.Getenv("AUTH_SECRET"),
		AuthIssuer: getenv("AUTH_ISSUER", "wallet-infra"),

		DefaultChannelRef: os.Getenv("DEFAULT_CHANNEL_REF"),
	}

	var err error
	if cfg.MinWithdrawal, err = getfloat("MIN_WITHDRAWAL", 300); err != nil {
		return nil, err
	}
	if cfg.ChannelRotateAfter, err = getint("CHANNEL_ROTATE_AFTER", 10); err != nil {
		return nil, err
	}
	if cfg.ChannelDailyLimit, err = getint("CHANNEL_DAILY_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitCapacity, err = getint("RATE_LIMIT_CAPACITY", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefill, err = getfloat("RATE_LIMIT_REFILL_PER_SEC", 1); err != nil {
		return nil, err
	}
	maxBody, err := getint("MAX_BODY_BYTES", 1<<16)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AuthSecret == "" {
		missing = append(missing, "AUTH_SECRET")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.MinWithdrawal <= 0 {
		return errors.New("MIN_WITHDRAWAL must be positive")
	}
	if c.ChannelRotateAfter <= 0 {
		return errors.New("CHANNEL_ROTATE_AFTER must be positive")
	}
	if c.ChannelDailyLimit < c.ChannelRotateAfter {
		return errors.New("CHANNEL_DAILY_LIMIT must be at least CHANNEL_ROTATE_AFTER")
	}

	// In production the seeded development channel must not leak through.
	if c.Environment == "production" && c.DefaultChannelRef == "" {
		return errors.New("DEFAULT_CHANNEL_REF is required in production")
	}

	return nil
}

// IsPostgres reports whether DatabaseURL points at a Postgres server rather
// than a SQLite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func getfloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New(key + " must be a number")
	}
	return f, nil
}
