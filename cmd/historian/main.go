// cmd/historian/main.go

// Command historian moves game action records from the Redis queue into the
// game_actions table.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/blindtest/internal/cache"
	"github.com/jason-s-yu/blindtest/internal/config"
	"github.com/jason-s-yu/blindtest/internal/database"
	"github.com/jason-s-yu/blindtest/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	cfg := config.Load(logger)
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("postgres unavailable")
	}
	defer pool.Close()
	db := database.New(pool)
	if err := db.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	historian.NewService(rdb, db, logger, historian.Options{
		QueueName:     cfg.HistorianQueue,
		BatchSize:     cfg.HistorianBatchSize,
		FlushInterval: cfg.HistorianFlush,
	}).Run(ctx)
	logger.Info("historian shutdown complete")
}
