// internal/catalog/sync.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Upsert retry bounds for catalog identity races.
const (
	DefaultUpsertAttempts = 5
	DefaultUpsertBackoff  = 50 * time.Millisecond
)

// Store is what the sync writes to.
type Store interface {
	UpsertTrack(ctx context.Context, t *models.Track) error
	UpsertPlaylist(ctx context.Context, p *models.Playlist) error
	AddKnownTrack(ctx context.Context, userID, trackID uuid.UUID) error
	AddKnownPlaylist(ctx context.Context, userID, playlistID uuid.UUID) error
	SaveSpotifyAuth(ctx context.Context, a *models.SpotifyAuth) error
	GetSpotifyAuth(ctx context.Context, userID uuid.UUID) (*models.SpotifyAuth, error)
}

// Syncer keeps the local catalog in step with Spotify.
type Syncer struct {
	client *Client
	store  Store
	logger *logrus.Logger

	UpsertAttempts int
	UpsertBackoff  time.Duration
}

func NewSyncer(client *Client, store Store, logger *logrus.Logger) *Syncer {
	return &Syncer{
		client:         client,
		store:          store,
		logger:         logger,
		UpsertAttempts: DefaultUpsertAttempts,
		UpsertBackoff:  DefaultUpsertBackoff,
	}
}

// SyncResult counts what a library sync touched.
type SyncResult struct {
	Playlists int `json:"playlists"`
	Tracks    int `json:"tracks"`
	Skipped   int `json:"skipped"`
}

// UpsertTrack stores t, retrying when a concurrent writer inserted the same track
// or artist first. Each retry reads the winner back and updates it.
func (s *Syncer) UpsertTrack(ctx context.Context, t *models.Track) error {
	var err error
	for attempt := 1; attempt <= s.UpsertAttempts; attempt++ {
		err = s.store.UpsertTrack(ctx, t)
		if !errors.Is(err, apperror.ErrConflict) {
			return err
		}
		s.logger.WithField("track", t.URL).Debugf("upsert conflict, attempt %d", attempt)
		if err := sleepCtx(ctx, s.UpsertBackoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("upsert track %s after %d attempts: %w", t.URL, s.UpsertAttempts, err)
}

// resolve converts raw, refetching it first when the listing left out the preview.
func (s *Syncer) resolve(ctx context.Context, api *API, raw RawTrack) (models.Track, error) {
	if (raw.PreviewURL == nil || *raw.PreviewURL == "") && raw.ID != "" {
		full, err := api.Track(ctx, raw.ID)
		if err != nil {
			return models.Track{}, fmt.Errorf("refetch track %s: %w", raw.ID, err)
		}
		raw = *full
	}
	t, err := raw.ToTrack()
	if err != nil {
		return models.Track{}, fmt.Errorf("track %s: %w", raw.ID, err)
	}
	if err := s.UpsertTrack(ctx, &t); err != nil {
		return models.Track{}, err
	}
	return t, nil
}

// ImportPlaylist reads a public playlist with the app credentials and stores its
// tracks. fn sees every entry, with the entry's own error when it was skipped.
func (s *Syncer) ImportPlaylist(ctx context.Context, playlistID string, fn func(models.Track, error)) error {
	api := s.client.App()
	return api.EachPlaylistTrack(ctx, playlistID, func(raw RawTrack) error {
		t, err := s.resolve(ctx, api, raw)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(t, err)
		return nil
	})
}

// Link stores the tokens a user granted and returns their Spotify profile.
func (s *Syncer) Link(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) (*Profile, error) {
	api, _ := s.client.ForUser(ctx, tok)
	profile, err := api.Me(ctx)
	if err != nil {
		return nil, apperror.Upstream(err)
	}
	scope, _ := tok.Extra("scope").(string)
	err = s.store.SaveSpotifyAuth(ctx, &models.SpotifyAuth{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        scope,
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "spotify_id": profile.ID}).Info("spotify account linked")
	return profile, nil
}

// SyncUser records the user's playlists, their tracks and the user's top tracks
// as known to them. Unusable tracks are counted and skipped.
func (s *Syncer) SyncUser(ctx context.Context, userID uuid.UUID) (*SyncResult, error) {
	auth, api, ts, err := s.userAPI(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithField("user_id", userID)
	res := &SyncResult{}

	known := func(raw RawTrack) error {
		t, err := s.resolve(ctx, api, raw)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Skipped++
			log.WithError(err).Debug("skipping track")
			return nil
		}
		res.Tracks++
		return s.store.AddKnownTrack(ctx, userID, t.ID)
	}

	var playlists []models.Playlist
	err = api.EachMyPlaylist(ctx, func(raw RawPlaylist) error {
		p := models.Playlist{Provider: models.ProviderSpotify, URL: raw.ID, Name: raw.Name}
		if err := s.store.UpsertPlaylist(ctx, &p); err != nil {
			return err
		}
		if err := s.store.AddKnownPlaylist(ctx, userID, p.ID); err != nil {
			return err
		}
		playlists = append(playlists, p)
		return nil
	})
	if err != nil {
		return nil, upstreamOr(err)
	}
	res.Playlists = len(playlists)

	for _, p := range playlists {
		if err := api.EachPlaylistTrack(ctx, p.URL, known); err != nil {
			// one unreadable playlist does not sink the sync
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).WithField("playlist", p.URL).Warn("playlist sync failed")
		}
	}
	if err := api.EachTopTrack(ctx, "", known); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("top tracks sync failed")
	}

	s.persistRefreshed(ctx, userID, auth, ts)
	log.WithFields(logrus.Fields{
		"playlists": res.Playlists,
		"tracks":    res.Tracks,
		"skipped":   res.Skipped,
	}).Info("spotify library synced")
	return res, nil
}

// TopTracks returns up to count of the user's most played tracks over timeRange,
// storing each in the catalog. Unplayable entries are left out.
func (s *Syncer) TopTracks(ctx context.Context, userID uuid.UUID, count int, timeRange string) ([]models.Track, error) {
	if count < 1 {
		return nil, apperror.Validation("count", "count must be positive")
	}
	if !slices.Contains(TimeRanges, timeRange) {
		return nil, apperror.Validation("timeRange", "timeRange must be one of "+strings.Join(TimeRanges, ", "))
	}
	auth, api, ts, err := s.userAPI(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithField("user_id", userID)

	out := []models.Track{}
	err = api.EachTopTrack(ctx, timeRange, func(raw RawTrack) error {
		t, err := s.resolve(ctx, api, raw)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Debug("skipping top track")
			return nil
		}
		out = append(out, t)
		if len(out) >= count {
			return errStopPaging
		}
		return nil
	})
	if err != nil {
		return nil, upstreamOr(err)
	}
	s.persistRefreshed(ctx, userID, auth, ts)
	if len(out) < count {
		log.Debugf("only %d of %d top tracks available", len(out), count)
	}
	return out, nil
}

// userAPI opens the user's linked account. Unlinked users get a ValidationError.
func (s *Syncer) userAPI(ctx context.Context, userID uuid.UUID) (*models.SpotifyAuth, *API, oauth2.TokenSource, error) {
	auth, err := s.store.GetSpotifyAuth(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil, nil, apperror.Validation("spotify", "spotify account is not linked")
	}
	if err != nil {
		return nil, nil, nil, err
	}
	tok := &oauth2.Token{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Expiry:       auth.ExpiresAt,
		TokenType:    "Bearer",
	}
	api, ts := s.client.ForUser(ctx, tok)
	return auth, api, ts, nil
}

// persistRefreshed saves the token again when the source refreshed it.
func (s *Syncer) persistRefreshed(ctx context.Context, userID uuid.UUID, prev *models.SpotifyAuth, ts oauth2.TokenSource) {
	tok, err := ts.Token()
	if err != nil || tok.AccessToken == prev.AccessToken {
		return
	}
	next := *prev
	next.AccessToken = tok.AccessToken
	next.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if err := s.store.SaveSpotifyAuth(ctx, &next); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to persist refreshed spotify token")
	}
}

// upstreamOr tags catalog failures as UpstreamUnavailable and leaves store errors alone.
func upstreamOr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, ErrRateLimited) {
		return apperror.Upstream(err)
	}
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) {
		return apperror.Upstream(err)
	}
	return err
}
