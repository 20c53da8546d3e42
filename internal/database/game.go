// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// CreateGame inserts the game and one participant per member in one transaction.
func (s *Store) CreateGame(ctx context.Context, g *models.Game, memberIDs []uuid.UUID) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	tracks, err := json.Marshal(g.Tracks)
	if err != nil {
		return err
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO games (id, join_code, lobby_id, tracks, current_track_index, start_at, next_track_at, end_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			g.ID, g.JoinCode, g.LobbyID, tracks, g.CurrentTrackIndex, g.StartAt, g.NextTrackAt, g.EndAt, g.CreatedAt)
		if err != nil {
			return err
		}
		for _, id := range memberIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO game_users (game_id, user_id) VALUES ($1, $2)`, g.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	return conflictOr(err)
}

const gameColumns = `id, join_code, lobby_id, tracks, current_track_index, start_at, next_track_at, end_at, created_at`

func scanGame(row pgx.Row) (*models.Game, error) {
	var g models.Game
	var raw []byte
	err := row.Scan(&g.ID, &g.JoinCode, &g.LobbyID, &raw, &g.CurrentTrackIndex,
		&g.StartAt, &g.NextTrackAt, &g.EndAt, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &g.Tracks); err != nil {
		return nil, fmt.Errorf("decode tracks of game %s: %w", g.ID, err)
	}
	return &g, nil
}

func (s *Store) GetGameByID(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "game", id.String())
	}
	return g, nil
}

func (s *Store) GetGameByJoinCode(ctx context.Context, code string) (*models.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE join_code = $1`, code))
	if err != nil {
		return nil, notFoundOr(err, "game", code)
	}
	return g, nil
}

// UpdateGame writes the mutable progression columns. An end_at already stored is
// never overwritten.
func (s *Store) UpdateGame(ctx context.Context, g *models.Game) error {
	tracks, err := json.Marshal(g.Tracks)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE games
		SET tracks = $2, current_track_index = $3, start_at = $4, next_track_at = $5,
		    end_at = COALESCE(end_at, $6)
		WHERE id = $1`,
		g.ID, tracks, g.CurrentTrackIndex, g.StartAt, g.NextTrackAt, g.EndAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundOr(pgx.ErrNoRows, "game", g.ID.String())
	}
	return nil
}

func (s *Store) queryGames(ctx context.Context, q string, args ...any) ([]models.Game, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// ListActiveGames returns games that have not ended, or end after now.
func (s *Store) ListActiveGames(ctx context.Context, now time.Time) ([]models.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games WHERE end_at IS NULL OR end_at >= $1`, now)
}

func (s *Store) ListGamesByLobby(ctx context.Context, lobbyID uuid.UUID) ([]models.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games WHERE lobby_id = $1 ORDER BY created_at`, lobbyID)
}

func (s *Store) AddGameUser(ctx context.Context, gameID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO game_users (game_id, user_id) VALUES ($1, $2)`, gameID, userID)
	return conflictOr(err)
}

const gameUserQuery = `
	SELECT gu.game_id, gu.user_id, u.username, gu.score, gu.joined_at
	FROM game_users gu
	JOIN users u ON u.id = gu.user_id
`

func scanGameUser(row pgx.Row) (*models.GameUser, error) {
	var gu models.GameUser
	if err := row.Scan(&gu.GameID, &gu.UserID, &gu.UserName, &gu.Score, &gu.JoinedAt); err != nil {
		return nil, err
	}
	return &gu, nil
}

func (s *Store) GetGameUser(ctx context.Context, gameID, userID uuid.UUID) (*models.GameUser, error) {
	gu, err := scanGameUser(s.pool.QueryRow(ctx, gameUserQuery+` WHERE gu.game_id = $1 AND gu.user_id = $2`, gameID, userID))
	if err != nil {
		return nil, notFoundOr(err, "game user", userID.String())
	}
	return gu, nil
}

func (s *Store) ListGameUsers(ctx context.Context, gameID uuid.UUID) ([]models.GameUser, error) {
	rows, err := s.pool.Query(ctx, gameUserQuery+` WHERE gu.game_id = $1 ORDER BY gu.joined_at, u.username`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.GameUser{}
	for rows.Next() {
		gu, err := scanGameUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *gu)
	}
	return out, rows.Err()
}

// AddGameUserScore applies delta atomically and returns the new score.
func (s *Store) AddGameUserScore(ctx context.Context, gameID, userID uuid.UUID, delta int) (int, error) {
	var score int
	err := s.pool.QueryRow(ctx,
		`UPDATE game_users SET score = score + $3 WHERE game_id = $1 AND user_id = $2 RETURNING score`,
		gameID, userID, delta).Scan(&score)
	if err != nil {
		return 0, notFoundOr(err, "game user", userID.String())
	}
	return score, nil
}
