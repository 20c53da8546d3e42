// internal/config/config.go

// Package config reads the service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port     string
	LogLevel string
	Storage  string

	DatabaseURL string

	RedisAddr          string
	RedisDB            int
	HistorianQueue     string
	HistorianBatchSize int
	HistorianFlush     time.Duration

	RoundDuration time.Duration

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string

	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
}

// Load reads the environment. Malformed numbers and durations fall back to their
// default with a warning on logger.
func Load(logger *logrus.Logger) Config {
	l := loader{logger: logger}
	cfg := Config{
		Port:     l.str("PORT", "8080"),
		LogLevel: l.str("LOG_LEVEL", "debug"),
		Storage:  l.str("STORAGE", StoragePostgres),

		DatabaseURL: l.str("DATABASE_URL", ""),

		RedisAddr:          l.str("REDIS_ADDR", "localhost:6379"),
		RedisDB:            l.int("REDIS_DB", 0),
		HistorianQueue:     l.str("HISTORIAN_QUEUE_NAME", "blindtest_actions"),
		HistorianBatchSize: l.int("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(l.int("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,

		RoundDuration: l.duration("ROUND_DURATION", 31*time.Second),

		SpotifyClientID:     l.str("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: l.str("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyRedirectURL:  l.str("SPOTIFY_REDIRECT_URL", "http://localhost:8080/spotify/callback"),

		AccessTokenTTL:    l.duration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL:   l.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		JWTPrivateKeyPath: l.str("JWT_PRIVATE_KEY_PATH", ""),
		JWTPublicKeyPath:  l.str("JWT_PUBLIC_KEY_PATH", ""),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresURL(
			l.str("POSTGRES_USER", "postgres"),
			l.str("POSTGRES_PASSWORD", ""),
			l.str("PG_HOST", "localhost"),
			l.str("PG_PORT", "5432"),
			l.str("PG_DATABASE", "blindtest"),
		)
	}
	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		logger.Warnf("unknown STORAGE %q, using %s", cfg.Storage, StoragePostgres)
		cfg.Storage = StoragePostgres
	}
	return cfg
}

// SpotifyEnabled reports whether app credentials were configured.
func (c Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

func postgresURL(user, password, host, port, database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   host + ":" + port,
		Path:   database,
	}
	if password == "" {
		u.User = url.User(user)
	}
	return u.String()
}

type loader struct {
	logger *logrus.Logger
}

func (l loader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (l loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		l.warn(key, v, def, err)
		return def
	}
	return i
}

func (l loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		if err == nil {
			err = fmt.Errorf("must be positive")
		}
		l.warn(key, v, def, err)
		return def
	}
	return d
}

func (l loader) warn(key, value string, def any, err error) {
	l.logger.WithFields(logrus.Fields{
		"key":     key,
		"value":   value,
		"default": def,
	}).WithError(err).Warn("invalid config value, using default")
}
