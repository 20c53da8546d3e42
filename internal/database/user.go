// internal/database/user.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// CreateUser inserts u, generating its id when unset. The password must already
// be hashed.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	q := `INSERT INTO users (id, email, password, username, created_at)
	      VALUES ($1, NULLIF($2, ''), $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, u.ID, u.Email, u.Password, u.Username, u.CreatedAt)
	if err != nil {
		return conflictOr(err)
	}
	return nil
}

const userColumns = `id, COALESCE(email, ''), password, username, last_logged_in, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.LastLoggedIn, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id.String())
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFoundOr(err, "user", email)
	}
	return u, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_logged_in = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundOr(pgx.ErrNoRows, "user", id.String())
	}
	return nil
}

func (s *Store) SaveSpotifyAuth(ctx context.Context, a *models.SpotifyAuth) error {
	q := `
		INSERT INTO spotify_auth (user_id, access_token, refresh_token, expires_at, scope)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = $2, refresh_token = $3, expires_at = $4, scope = $5
	`
	_, err := s.pool.Exec(ctx, q, a.UserID, a.AccessToken, a.RefreshToken, a.ExpiresAt, a.Scope)
	return conflictOr(err)
}

func (s *Store) GetSpotifyAuth(ctx context.Context, userID uuid.UUID) (*models.SpotifyAuth, error) {
	var a models.SpotifyAuth
	q := `SELECT user_id, access_token, refresh_token, expires_at, scope FROM spotify_auth WHERE user_id = $1`
	err := s.pool.QueryRow(ctx, q, userID).Scan(&a.UserID, &a.AccessToken, &a.RefreshToken, &a.ExpiresAt, &a.Scope)
	if err != nil {
		return nil, notFoundOr(err, "spotify auth", userID.String())
	}
	return &a, nil
}
