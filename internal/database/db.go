// internal/database/db.go

// Package database is the PostgreSQL implementation of the storage the lobby
// manager, the game engine and the catalog sync need.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/blindtest/internal/apperror"
)

// SQLSTATEs mapped to application errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool on connStr and pings it.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// notFoundOr maps a missing row to apperror.NotFound and a unique violation to
// apperror.Conflict.
func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return conflictOr(err)
}

func conflictOr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return apperror.Conflict(fmt.Sprintf("unique constraint %s violated", pgErr.ConstraintName))
	case foreignKeyViolation:
		return apperror.NotFound("referenced row", pgErr.ConstraintName)
	}
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY,
	email          TEXT UNIQUE,
	password       TEXT NOT NULL DEFAULT '',
	username       TEXT NOT NULL,
	last_logged_in TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS spotify_auth (
	user_id       UUID PRIMARY KEY REFERENCES users(id),
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	scope         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS artists (
	id       UUID PRIMARY KEY,
	provider TEXT NOT NULL,
	url      TEXT NOT NULL,
	name     TEXT NOT NULL,
	UNIQUE (provider, url)
);

CREATE TABLE IF NOT EXISTS tracks (
	id          UUID PRIMARY KEY,
	provider    TEXT NOT NULL,
	url         TEXT NOT NULL,
	name        TEXT NOT NULL,
	preview_url TEXT NOT NULL DEFAULT '',
	picture_url TEXT NOT NULL DEFAULT '',
	UNIQUE (provider, url)
);

CREATE TABLE IF NOT EXISTS artist_owned_tracks (
	artist_id UUID NOT NULL REFERENCES artists(id),
	track_id  UUID NOT NULL REFERENCES tracks(id),
	position  INT NOT NULL DEFAULT 0,
	PRIMARY KEY (artist_id, track_id)
);

CREATE TABLE IF NOT EXISTS playlists (
	id       UUID PRIMARY KEY,
	provider TEXT NOT NULL,
	url      TEXT NOT NULL,
	name     TEXT NOT NULL,
	UNIQUE (provider, url)
);

CREATE TABLE IF NOT EXISTS user_known_tracks (
	user_id  UUID NOT NULL REFERENCES users(id),
	track_id UUID NOT NULL REFERENCES tracks(id),
	PRIMARY KEY (user_id, track_id)
);

CREATE TABLE IF NOT EXISTS user_known_playlists (
	user_id     UUID NOT NULL REFERENCES users(id),
	playlist_id UUID NOT NULL REFERENCES playlists(id),
	added_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, playlist_id)
);

CREATE TABLE IF NOT EXISTS game_settings (
	id              UUID PRIMARY KEY,
	tracks_to_guess INT NOT NULL,
	track_list      JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS lobbies (
	id                    UUID PRIMARY KEY,
	join_code             TEXT NOT NULL UNIQUE,
	next_game_settings_id UUID NOT NULL REFERENCES game_settings(id),
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lobby_users (
	lobby_id  UUID NOT NULL REFERENCES lobbies(id),
	user_id   UUID NOT NULL REFERENCES users(id),
	score     INT NOT NULL DEFAULT 0,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (lobby_id, user_id)
);

CREATE TABLE IF NOT EXISTS games (
	id                  UUID PRIMARY KEY,
	join_code           TEXT NOT NULL UNIQUE,
	lobby_id            UUID REFERENCES lobbies(id),
	tracks              JSONB NOT NULL,
	current_track_index INT NOT NULL DEFAULT -1,
	start_at            TIMESTAMPTZ,
	next_track_at       TIMESTAMPTZ,
	end_at              TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS game_users (
	game_id   UUID NOT NULL REFERENCES games(id),
	user_id   UUID NOT NULL REFERENCES users(id),
	score     INT NOT NULL DEFAULT 0,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (game_id, user_id)
);

CREATE TABLE IF NOT EXISTS game_actions (
	id             BIGSERIAL PRIMARY KEY,
	game_id        UUID NOT NULL,
	action_index   INT NOT NULL,
	actor_user_id  UUID,
	action_type    TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}',
	recorded_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS game_actions_game_idx ON game_actions (game_id, action_index);
`
