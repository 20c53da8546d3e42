// internal/database/lobby.go
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

// CreateLobby inserts the settings, the lobby and its members in one transaction.
// A join code collision returns apperror.ErrConflict and writes nothing.
func (s *Store) CreateLobby(ctx context.Context, l *models.Lobby, gs *models.GameSettings, memberIDs []uuid.UUID) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	trackList, err := json.Marshal(gs.TrackList)
	if err != nil {
		return err
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO game_settings (id, tracks_to_guess, track_list) VALUES ($1, $2, $3)`,
			gs.ID, gs.TracksToGuess, trackList)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO lobbies (id, join_code, next_game_settings_id, created_at) VALUES ($1, $2, $3, $4)`,
			l.ID, l.JoinCode, gs.ID, l.CreatedAt)
		if err != nil {
			return err
		}
		for _, id := range memberIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO lobby_users (lobby_id, user_id) VALUES ($1, $2)`, l.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return conflictOr(err)
	}
	l.NextGameSettingsID = gs.ID
	return nil
}

const lobbyColumns = `id, join_code, next_game_settings_id, created_at`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	if err := row.Scan(&l.ID, &l.JoinCode, &l.NextGameSettingsID, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	l, err := scanLobby(s.pool.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "lobby", id.String())
	}
	return l, nil
}

func (s *Store) GetLobbyByJoinCode(ctx context.Context, code string) (*models.Lobby, error) {
	l, err := scanLobby(s.pool.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE join_code = $1`, code))
	if err != nil {
		return nil, notFoundOr(err, "lobby", code)
	}
	return l, nil
}

func (s *Store) ListLobbies(ctx context.Context) ([]models.Lobby, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+lobbyColumns+` FROM lobbies ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Lobby{}
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) AddLobbyUser(ctx context.Context, lobbyID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO lobby_users (lobby_id, user_id) VALUES ($1, $2)`, lobbyID, userID)
	return conflictOr(err)
}

const lobbyUserQuery = `
	SELECT lu.lobby_id, lu.user_id, u.username, lu.score, lu.joined_at
	FROM lobby_users lu
	JOIN users u ON u.id = lu.user_id
`

func scanLobbyUser(row pgx.Row) (*models.LobbyUser, error) {
	var lu models.LobbyUser
	if err := row.Scan(&lu.LobbyID, &lu.UserID, &lu.UserName, &lu.Score, &lu.JoinedAt); err != nil {
		return nil, err
	}
	return &lu, nil
}

func (s *Store) GetLobbyUser(ctx context.Context, lobbyID, userID uuid.UUID) (*models.LobbyUser, error) {
	lu, err := scanLobbyUser(s.pool.QueryRow(ctx, lobbyUserQuery+` WHERE lu.lobby_id = $1 AND lu.user_id = $2`, lobbyID, userID))
	if err != nil {
		return nil, notFoundOr(err, "lobby user", userID.String())
	}
	return lu, nil
}

func (s *Store) ListLobbyUsers(ctx context.Context, lobbyID uuid.UUID) ([]models.LobbyUser, error) {
	rows, err := s.pool.Query(ctx, lobbyUserQuery+` WHERE lu.lobby_id = $1 ORDER BY lu.joined_at, u.username`, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.LobbyUser{}
	for rows.Next() {
		lu, err := scanLobbyUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lu)
	}
	return out, rows.Err()
}

func (s *Store) GetGameSettings(ctx context.Context, id uuid.UUID) (*models.GameSettings, error) {
	var gs models.GameSettings
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT id, tracks_to_guess, track_list FROM game_settings WHERE id = $1`, id).
		Scan(&gs.ID, &gs.TracksToGuess, &raw)
	if err != nil {
		return nil, notFoundOr(err, "game settings", id.String())
	}
	if err := json.Unmarshal(raw, &gs.TrackList); err != nil {
		return nil, fmt.Errorf("decode track list of settings %s: %w", id, err)
	}
	if gs.TrackList == nil {
		gs.TrackList = []models.Track{}
	}
	return &gs, nil
}

func (s *Store) UpdateGameSettings(ctx context.Context, gs *models.GameSettings) error {
	trackList, err := json.Marshal(gs.TrackList)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE game_settings SET tracks_to_guess = $2, track_list = $3 WHERE id = $1`,
		gs.ID, gs.TracksToGuess, trackList)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundOr(pgx.ErrNoRows, "game settings", gs.ID.String())
	}
	return nil
}

// ReplaceLobbySettings stores gs and points the lobby at it.
func (s *Store) ReplaceLobbySettings(ctx context.Context, lobbyID uuid.UUID, gs *models.GameSettings) error {
	trackList, err := json.Marshal(gs.TrackList)
	if err != nil {
		return err
	}
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO game_settings (id, tracks_to_guess, track_list) VALUES ($1, $2, $3)`,
			gs.ID, gs.TracksToGuess, trackList)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE lobbies SET next_game_settings_id = $2 WHERE id = $1`, lobbyID, gs.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return notFoundOr(err, "lobby", lobbyID.String())
	}
	return nil
}
