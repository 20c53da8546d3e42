// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "STORAGE", "DATABASE_URL", "POSTGRES_PASSWORD", "POSTGRES_USER", "PG_HOST",
		"PG_PORT", "PG_DATABASE", "ROUND_DURATION", "HISTORIAN_BATCH_SIZE", "REDIS_DB",
		"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET",
	} {
		t.Setenv(k, "")
	}
	logger, hook := test.NewNullLogger()
	cfg := Load(logger)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 31*time.Second, cfg.RoundDuration)
	assert.Equal(t, 20, cfg.HistorianBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.HistorianFlush)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "postgres://postgres@localhost:5432/blindtest", cfg.DatabaseURL)
	assert.False(t, cfg.SpotifyEnabled())
	assert.Empty(t, hook.AllEntries())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE", "memory")
	t.Setenv("ROUND_DURATION", "5s")
	t.Setenv("POSTGRES_USER", "bt")
	t.Setenv("POSTGRES_PASSWORD", "p@ss")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_DATABASE", "quiz")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")

	logger, _ := test.NewNullLogger()
	cfg := Load(logger)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 5*time.Second, cfg.RoundDuration)
	assert.Equal(t, "postgres://bt:p%40ss@db:6543/quiz", cfg.DatabaseURL)
	assert.True(t, cfg.SpotifyEnabled())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ROUND_DURATION", "soon")
	t.Setenv("HISTORIAN_BATCH_SIZE", "many")
	t.Setenv("STORAGE", "sqlite")

	logger, hook := test.NewNullLogger()
	cfg := Load(logger)
	assert.Equal(t, 31*time.Second, cfg.RoundDuration)
	assert.Equal(t, 20, cfg.HistorianBatchSize)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Len(t, hook.AllEntries(), 3)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
