// Package config loads process configuration from the environment, after an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"

	minSecretLen = 32
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port     string
	LogLevel string

	ProductStore  string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool

	MetricsToken string

	RabbitMQURL     string
	RabbitMQQueue   string
	ChannelPoolSize int

	StaticDir string

	// DotEnvLoaded reports whether a .env file was found; main logs it once
	// the logger exists.
	DotEnvLoaded bool
}

// Load reads .env (if present) and then the environment. Unset keys take
// defaults; malformed values are reported as ErrInvalid.
func Load() (Config, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv(os.Getenv)
	cfg.DotEnvLoaded = loaded
	return cfg, err
}

// FromEnv builds a Config from an arbitrary lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	cfg := Config{
		Port:     e.str("PORT", "3000"),
		LogLevel: e.str("LOG_LEVEL", "info"),

		ProductStore:  strings.ToLower(e.str("PRODUCT_STORE", StoreMemory)),
		DatabaseURL:   e.str("DATABASE_URL", ""),
		MongoURI:      e.str("MONGO_URI", ""),
		MongoDatabase: e.str("MONGO_DATABASE", "express"),

		SessionStore:  strings.ToLower(e.str("SESSION_STORE", StoreMemory)),
		RedisAddr:     e.str("REDIS_ADDR", ""),
		RedisPassword: e.str("REDIS_PASSWORD", ""),
		RedisDB:       e.int("REDIS_DB", 0),
		SessionSecret: e.str("SESSION_SECRET", ""),
		SessionTTL:    e.duration("SESSION_TTL", 24*time.Hour),
		CookieSecure:  e.bool("COOKIE_SECURE", false),

		MetricsToken: e.str("METRICS_TOKEN", ""),

		RabbitMQURL:     e.str("RABBITMQ_URL", ""),
		RabbitMQQueue:   e.str("RABBITMQ_QUEUE", "catalog_events"),
		ChannelPoolSize: e.int("CHANNEL_POOL_SIZE", 4),

		StaticDir: e.str("STATIC_DIR", "public"),
	}

	if len(e.errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(e.errs...))
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.ProductStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres product store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo product store")
		}
	default:
		return fmt.Errorf("unknown PRODUCT_STORE %q", c.ProductStore)
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis session store")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}

	if c.SessionSecret != "" && len(c.SessionSecret) < minSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d chars", minSecretLen)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.ChannelPoolSize <= 0 {
		return errors.New("CHANNEL_POOL_SIZE must be positive")
	}
	return nil
}

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(k, def string) string {
	if v := strings.TrimSpace(e.get(k)); v != "" {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func (e *env) bool(k string, def bool) bool {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}
