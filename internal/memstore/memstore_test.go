// internal/memstore/memstore_test.go
package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, s *Store, name string) *models.User {
	u := &models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s, "alice")
	assert.NotEqual(t, uuid.Nil, u.ID)

	err := s.CreateUser(ctx, &models.User{Username: "other", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	at := time.Now()
	require.NoError(t, s.TouchLastLogin(ctx, u.ID, at))
	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoggedIn)
	assert.True(t, got.LastLoggedIn.Equal(at))
}

func TestUpsertTrackKeepsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := &models.Track{
		Provider: models.ProviderSpotify, URL: "4u7EnebtmKWzUH433cf5Qv", Name: "Bohemian Rhapsody",
		Artists: []models.Artist{{Provider: models.ProviderSpotify, URL: "1dfeR4HaWDbWqFHLkxsg1d", Name: "Queen"}},
	}
	require.NoError(t, s.UpsertTrack(ctx, first))

	again := &models.Track{
		Provider: models.ProviderSpotify, URL: "4u7EnebtmKWzUH433cf5Qv", Name: "Bohemian Rhapsody - Remastered 2011",
		PreviewURL: "https://p.scdn.co/mp3-preview/abc",
		Artists:    []models.Artist{{Provider: models.ProviderSpotify, URL: "1dfeR4HaWDbWqFHLkxsg1d", Name: "Queen (band)"}},
	}
	require.NoError(t, s.UpsertTrack(ctx, again))
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Artists[0].ID, again.Artists[0].ID)

	tracks, err := s.GetTracks(ctx, []uuid.UUID{first.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://p.scdn.co/mp3-preview/abc", tracks[0].PreviewURL)
	assert.Equal(t, "Queen (band)", tracks[0].Artists[0].Name)
}

func TestCommonTrackIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := newUser(t, s, "a"), newUser(t, s, "b")
	shared, onlyA := uuid.New(), uuid.New()
	require.NoError(t, s.AddKnownTrack(ctx, a.ID, shared))
	require.NoError(t, s.AddKnownTrack(ctx, a.ID, onlyA))
	require.NoError(t, s.AddKnownTrack(ctx, b.ID, shared))

	ids, err := s.CommonTrackIDs(ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{shared}, ids)

	ids, err = s.CommonTrackIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPlaylists(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s, "owner")
	p := &models.Playlist{Provider: models.ProviderSpotify, URL: "37i9dQZF1DXcBWIGoYBM5M", Name: "Today's Top Hits"}
	require.NoError(t, s.UpsertPlaylist(ctx, p))
	renamed := &models.Playlist{Provider: models.ProviderSpotify, URL: p.URL, Name: "Top Hits"}
	require.NoError(t, s.UpsertPlaylist(ctx, renamed))
	assert.Equal(t, p.ID, renamed.ID)

	require.NoError(t, s.AddKnownPlaylist(ctx, u.ID, p.ID))
	require.NoError(t, s.AddKnownPlaylist(ctx, u.ID, p.ID))
	mine, err := s.ListKnownPlaylists(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Top Hits", mine[0].Name)

	found, err := s.SearchPlaylists(ctx, "top", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)
	found, err = s.SearchPlaylists(ctx, "jazz", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLobbyLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, guest := newUser(t, s, "owner"), newUser(t, s, "guest")

	l := &models.Lobby{ID: uuid.New(), JoinCode: "ABC123"}
	gs := models.NewGameSettings()
	require.NoError(t, s.CreateLobby(ctx, l, gs, []uuid.UUID{owner.ID}))
	assert.Equal(t, gs.ID, l.NextGameSettingsID)

	err := s.CreateLobby(ctx, &models.Lobby{ID: uuid.New(), JoinCode: "ABC123"}, models.NewGameSettings(), nil)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	require.NoError(t, s.AddLobbyUser(ctx, l.ID, guest.ID))
	assert.ErrorIs(t, s.AddLobbyUser(ctx, l.ID, guest.ID), apperror.ErrConflict)
	members, err := s.ListLobbyUsers(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "owner", members[0].UserName)
	assert.Equal(t, "guest", members[1].UserName)

	fresh := models.NewGameSettings()
	require.NoError(t, s.ReplaceLobbySettings(ctx, l.ID, fresh))
	got, err := s.GetLobbyByJoinCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.NextGameSettingsID)
}

func TestGameScoresAndActiveGames(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s, "p")
	g := &models.Game{ID: uuid.New(), JoinCode: "GAME01", CurrentTrackIndex: -1}
	require.NoError(t, s.CreateGame(ctx, g, []uuid.UUID{u.ID}))
	assert.ErrorIs(t, s.CreateGame(ctx, &models.Game{ID: uuid.New(), JoinCode: "GAME01"}, nil), apperror.ErrConflict)

	score, err := s.AddGameUserScore(ctx, g.ID, u.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, score)
	score, err = s.AddGameUserScore(ctx, g.ID, u.ID, -4)
	require.NoError(t, err)
	assert.Equal(t, 6, score)

	now := time.Now()
	active, err := s.ListActiveGames(ctx, now)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	ended := now.Add(-time.Second)
	g.EndAt = &ended
	require.NoError(t, s.UpdateGame(ctx, g))
	active, err = s.ListActiveGames(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGetGameReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	g := &models.Game{ID: uuid.New(), JoinCode: "COPY01", CurrentTrackIndex: -1, Tracks: []models.GameTrack{{Track: models.Track{Name: "x"}}}}
	require.NoError(t, s.CreateGame(ctx, g, nil))

	loaded, err := s.GetGameByID(ctx, g.ID)
	require.NoError(t, err)
	id := uuid.New()
	loaded.Tracks[0].AnsweredBy = &id

	again, err := s.GetGameByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, again.Tracks[0].AnsweredBy)
}
