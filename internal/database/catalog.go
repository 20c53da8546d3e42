// internal/database/catalog.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// UpsertTrack reads each artist and the track by catalog identity, updating the
// ones that exist and inserting the rest, then links them. A concurrent insert of
// the same identity surfaces as apperror.ErrConflict; retrying reads it back.
func (s *Store) UpsertTrack(ctx context.Context, t *models.Track) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for i := range t.Artists {
			if err := upsertArtistTx(ctx, tx, &t.Artists[i]); err != nil {
				return err
			}
		}

		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM tracks WHERE provider = $1 AND url = $2`, t.Provider, t.URL).Scan(&id)
		switch {
		case err == nil:
			t.ID = id
			_, err = tx.Exec(ctx,
				`UPDATE tracks SET name = $2, preview_url = $3, picture_url = $4 WHERE id = $1`,
				t.ID, t.Name, t.PreviewURL, t.PictureURL)
		case errors.Is(err, pgx.ErrNoRows):
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO tracks (id, provider, url, name, preview_url, picture_url) VALUES ($1, $2, $3, $4, $5, $6)`,
				t.ID, t.Provider, t.URL, t.Name, t.PreviewURL, t.PictureURL)
		}
		if err != nil {
			return err
		}

		for pos, a := range t.Artists {
			_, err := tx.Exec(ctx, `
				INSERT INTO artist_owned_tracks (artist_id, track_id, position) VALUES ($1, $2, $3)
				ON CONFLICT (artist_id, track_id) DO UPDATE SET position = $3`,
				a.ID, t.ID, pos)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return conflictOr(err)
}

func upsertArtistTx(ctx context.Context, tx pgx.Tx, a *models.Artist) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM artists WHERE provider = $1 AND url = $2`, a.Provider, a.URL).Scan(&id)
	if err == nil {
		a.ID = id
		_, err = tx.Exec(ctx, `UPDATE artists SET name = $2 WHERE id = $1`, a.ID, a.Name)
		return err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err = tx.Exec(ctx, `INSERT INTO artists (id, provider, url, name) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Provider, a.URL, a.Name)
	return err
}

func (s *Store) UpsertPlaylist(ctx context.Context, p *models.Playlist) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	q := `
		INSERT INTO playlists (id, provider, url, name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, url) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	return conflictOr(s.pool.QueryRow(ctx, q, p.ID, p.Provider, p.URL, p.Name).Scan(&p.ID))
}

func (s *Store) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	var p models.Playlist
	err := s.pool.QueryRow(ctx, `SELECT id, provider, url, name FROM playlists WHERE id = $1`, id).
		Scan(&p.ID, &p.Provider, &p.URL, &p.Name)
	if err != nil {
		return nil, notFoundOr(err, "playlist", id.String())
	}
	return &p, nil
}

func (s *Store) AddKnownTrack(ctx context.Context, userID, trackID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_known_tracks (user_id, track_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, trackID)
	return err
}

func (s *Store) AddKnownPlaylist(ctx context.Context, userID, playlistID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_known_playlists (user_id, playlist_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, playlistID)
	return err
}

func (s *Store) ListKnownPlaylists(ctx context.Context, userID uuid.UUID) ([]models.Playlist, error) {
	q := `
		SELECT p.id, p.provider, p.url, p.name
		FROM playlists p
		JOIN user_known_playlists k ON k.playlist_id = p.id
		WHERE k.user_id = $1
		ORDER BY k.added_at
	`
	return s.queryPlaylists(ctx, q, userID)
}

// SearchPlaylists matches names case-insensitively.
func (s *Store) SearchPlaylists(ctx context.Context, query string, limit int) ([]models.Playlist, error) {
	q := `SELECT id, provider, url, name FROM playlists WHERE name ILIKE $1 ORDER BY name LIMIT $2`
	return s.queryPlaylists(ctx, q, "%"+escapeLike(query)+"%", limit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) queryPlaylists(ctx context.Context, q string, args ...any) ([]models.Playlist, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Playlist{}
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.Provider, &p.URL, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CommonTrackIDs intersects the known tracks of every given user.
func (s *Store) CommonTrackIDs(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var b strings.Builder
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		if i > 0 {
			b.WriteString(" INTERSECT ")
		}
		fmt.Fprintf(&b, "SELECT track_id FROM user_known_tracks WHERE user_id = $%d", i+1)
		args[i] = id
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetTracks loads the given tracks with their artists in credit order. Unknown
// ids are skipped.
func (s *Store) GetTracks(ctx context.Context, ids []uuid.UUID) ([]models.Track, error) {
	if len(ids) == 0 {
		return []models.Track{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider, url, name, preview_url, picture_url FROM tracks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.Track, len(ids))
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.Provider, &t.URL, &t.Name, &t.PreviewURL, &t.PictureURL); err != nil {
			rows.Close()
			return nil, err
		}
		t.Artists = []models.Artist{}
		byID[t.ID] = &t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT o.track_id, a.id, a.provider, a.url, a.name
		FROM artist_owned_tracks o
		JOIN artists a ON a.id = o.artist_id
		WHERE o.track_id = ANY($1)
		ORDER BY o.track_id, o.position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var trackID uuid.UUID
		var a models.Artist
		if err := rows.Scan(&trackID, &a.ID, &a.Provider, &a.URL, &a.Name); err != nil {
			return nil, err
		}
		if t, ok := byID[trackID]; ok {
			t.Artists = append(t.Artists, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Track, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}
