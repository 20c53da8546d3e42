// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/blindtest/internal/auth"
	"github.com/jason-s-yu/blindtest/internal/cache"
	"github.com/jason-s-yu/blindtest/internal/catalog"
	"github.com/jason-s-yu/blindtest/internal/config"
	"github.com/jason-s-yu/blindtest/internal/database"
	"github.com/jason-s-yu/blindtest/internal/game"
	"github.com/jason-s-yu/blindtest/internal/handlers"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/lobby"
	"github.com/jason-s-yu/blindtest/internal/memstore"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// store is everything the server needs from storage; both backends provide it.
type store interface {
	game.Store
	lobby.Store
	catalog.Store
	handlers.UserStore
}

func main() {
	logger := logrus.New()
	cfg := config.Load(logger)
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("invalid LOG_LEVEL %q, using debug", cfg.LogLevel)
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := auth.LoadIssuer(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, logger)
	if err != nil {
		return err
	}

	h := hub.NewHub(logger)
	engine := game.NewEngine(st, h, logger)
	engine.RoundDuration = cfg.RoundDuration

	if rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.WithError(err).Warn("redis unavailable, game action history disabled")
	} else {
		defer rdb.Close()
		engine.History = cache.NewRecorder(rdb, cfg.HistorianQueue)
	}

	var (
		cat    lobby.Catalog
		client *catalog.Client
		syncer *catalog.Syncer
	)
	if cfg.SpotifyEnabled() {
		client = catalog.NewClient(catalog.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectURL:  cfg.SpotifyRedirectURL,
		}, logger)
		syncer = catalog.NewSyncer(client, st, logger)
		cat = syncer
	} else {
		logger.Warn("SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET not set, playlist imports disabled")
	}

	lobbies := lobby.NewManager(st, h, engine, cat, logger)

	// channels first, then timers, so restored rounds can publish
	if err := lobbies.Restore(ctx); err != nil {
		return err
	}
	if err := engine.Restore(ctx); err != nil {
		return err
	}

	srv := handlers.NewServer(st, lobbies, engine, h, tokens, logger)
	if client != nil {
		srv.Spotify = client
		srv.Syncer = syncer
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, nothing survives a restart")
		return memstore.New(), func() {}, nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	db := database.New(pool)
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("connected to postgres")
	return db, pool.Close, nil
}
