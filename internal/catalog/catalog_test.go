// internal/catalog/catalog_test.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/memstore"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeSpotify serves the handful of Web API routes the client uses.
type fakeSpotify struct {
	mu            sync.Mutex
	playlistItems map[string][]map[string]any
	tracks        map[string]map[string]any
	myPlaylists   []map[string]any
	topTracks     []map[string]any
	timeRange     string

	rateLimitLeft atomic.Int32
	refreshes     atomic.Int32
	trackFetches  atomic.Int32
}

func newFakeSpotify() *fakeSpotify {
	return &fakeSpotify{
		playlistItems: make(map[string][]map[string]any),
		tracks:        make(map[string]map[string]any),
	}
}

func rawTrack(id, name string, preview bool) map[string]any {
	t := map[string]any{
		"id":      id,
		"name":    name,
		"artists": []map[string]any{{"id": "artist-" + id, "name": "Artist " + id}},
		"album":   map[string]any{"images": []map[string]any{{"url": "https://img/" + id}}},
	}
	if preview {
		t["preview_url"] = "https://p.scdn.co/" + id
	} else {
		t["preview_url"] = nil
	}
	return t
}

func writePage(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	end := min(offset+limit, len(items))
	if offset > end {
		offset = end
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items[offset:end], "total": len(items)})
}

func (f *fakeSpotify) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		access := "app-token"
		if r.Form.Get("grant_type") == "refresh_token" {
			f.refreshes.Add(1)
			access = "refreshed-token"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": access,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		if f.rateLimitLeft.Load() > 0 {
			f.rateLimitLeft.Add(-1)
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		f.mu.Lock()
		items, ok := f.playlistItems[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		writePage(w, r, items)
	})
	mux.HandleFunc("GET /v1/tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.trackFetches.Add(1)
		f.mu.Lock()
		t, ok := f.tracks[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(t)
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "listener", "display_name": "Listener"})
	})
	mux.HandleFunc("GET /v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, r, f.myPlaylists)
	})
	mux.HandleFunc("GET /v1/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.timeRange = r.URL.Query().Get("time_range")
		f.mu.Unlock()
		writePage(w, r, f.topTracks)
	})
	return mux
}

func setupCatalogTest(t *testing.T) (*fakeSpotify, *Client, *Syncer, *memstore.Store) {
	t.Helper()
	fake := newFakeSpotify()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	client := NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		APIURL:       srv.URL + "/v1",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
	}, logger)
	client.RateLimitPadding = 0

	store := memstore.New()
	syncer := NewSyncer(client, store, logger)
	syncer.UpsertBackoff = time.Millisecond
	return fake, client, syncer, store
}

func playlistOf(n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := range n {
		id := fmt.Sprintf("t%03d", i)
		items = append(items, map[string]any{"track": rawTrack(id, "Song "+id, true)})
	}
	return items
}

func TestToTrack(t *testing.T) {
	preview := "https://p.scdn.co/x"
	raw := RawTrack{
		ID:         "4uLU6hMCjMI75M1A2tKUQC",
		Name:       "Never Gonna Give You Up",
		PreviewURL: &preview,
		Artists:    []RawArtist{{ID: "0gxyHStUsqpMadRV0Di1Qt", Name: "Rick Astley"}},
		Album:      RawAlbum{Images: []RawImage{{URL: "https://img/big"}, {URL: "https://img/small"}}},
	}
	track, err := raw.ToTrack()
	require.NoError(t, err)
	assert.Equal(t, models.ProviderSpotify, track.Provider)
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", track.URL)
	assert.Equal(t, "https://img/big", track.PictureURL)
	require.Len(t, track.Artists, 1)
	assert.Equal(t, "0gxyHStUsqpMadRV0Di1Qt", track.Artists[0].URL)
	assert.True(t, track.Playable())

	raw.PreviewURL = nil
	_, err = raw.ToTrack()
	assert.ErrorIs(t, err, ErrMalformedTrack)

	raw.PreviewURL = &preview
	raw.Name = ""
	_, err = raw.ToTrack()
	assert.ErrorIs(t, err, ErrMalformedTrack)
}

func TestEachPlaylistTrackPaginates(t *testing.T) {
	fake, client, _, _ := setupCatalogTest(t)
	items := playlistOf(120)
	items = append(items, map[string]any{"track": nil})
	local := rawTrack("local", "Local file", true)
	local["is_local"] = true
	items = append(items, map[string]any{"track": local})
	fake.playlistItems["big"] = items

	var seen []string
	err := client.App().EachPlaylistTrack(context.Background(), "big", func(raw RawTrack) error {
		seen = append(seen, raw.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 120)
	assert.Equal(t, "t000", seen[0])
	assert.Equal(t, "t119", seen[119])
}

func TestRateLimitedRequestsAreRetried(t *testing.T) {
	fake, client, _, _ := setupCatalogTest(t)
	fake.playlistItems["p"] = playlistOf(3)
	fake.rateLimitLeft.Store(3)

	count := 0
	err := client.App().EachPlaylistTrack(context.Background(), "p", func(RawTrack) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int32(0), fake.rateLimitLeft.Load())
}

func TestRateLimitRetriesAreBounded(t *testing.T) {
	fake, client, _, _ := setupCatalogTest(t)
	fake.playlistItems["p"] = playlistOf(1)
	fake.rateLimitLeft.Store(MaxRateLimitRetries + 5)

	err := client.App().EachPlaylistTrack(context.Background(), "p", func(RawTrack) error { return nil })
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	_, client, _, _ := setupCatalogTest(t)
	_, err := client.App().Track(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestImportPlaylist(t *testing.T) {
	fake, _, syncer, store := setupCatalogTest(t)
	items := playlistOf(4)
	// listing without preview, full object has one
	items = append(items, map[string]any{"track": rawTrack("refetch", "Refetched", false)})
	fake.tracks["refetch"] = rawTrack("refetch", "Refetched", true)
	// no preview anywhere
	items = append(items, map[string]any{"track": rawTrack("silent", "Silent", false)})
	fake.tracks["silent"] = rawTrack("silent", "Silent", false)
	fake.playlistItems["mix"] = items

	var got []models.Track
	var failed []error
	err := syncer.ImportPlaylist(context.Background(), "mix", func(track models.Track, err error) {
		if err != nil {
			failed = append(failed, err)
			return
		}
		got = append(got, track)
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], ErrMalformedTrack)
	assert.Equal(t, int32(2), fake.trackFetches.Load())

	for _, track := range got {
		assert.NotEqual(t, uuid.Nil, track.ID)
	}
	stored, err := store.GetTracks(context.Background(), []uuid.UUID{got[4].ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "refetch", stored[0].URL)
	assert.Equal(t, "https://p.scdn.co/refetch", stored[0].PreviewURL)
}

func TestImportPlaylistUnknown(t *testing.T) {
	_, _, syncer, _ := setupCatalogTest(t)
	err := syncer.ImportPlaylist(context.Background(), "nope", func(models.Track, error) {})
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

// conflictStore fails the first few upserts the way a lost insert race does.
type conflictStore struct {
	*memstore.Store
	conflicts int
	calls     int
}

func (c *conflictStore) UpsertTrack(ctx context.Context, t *models.Track) error {
	c.calls++
	if c.calls <= c.conflicts {
		return apperror.Conflict("track already exists")
	}
	return c.Store.UpsertTrack(ctx, t)
}

func TestUpsertTrackRetriesConflicts(t *testing.T) {
	logger, _ := test.NewNullLogger()
	track := models.Track{Provider: models.ProviderSpotify, URL: "x", Name: "X", PreviewURL: "p"}

	cs := &conflictStore{Store: memstore.New(), conflicts: 2}
	s := NewSyncer(nil, cs, logger)
	s.UpsertBackoff = time.Millisecond
	require.NoError(t, s.UpsertTrack(context.Background(), &track))
	assert.Equal(t, 3, cs.calls)
	assert.NotEqual(t, uuid.Nil, track.ID)

	cs = &conflictStore{Store: memstore.New(), conflicts: 100}
	s = NewSyncer(nil, cs, logger)
	s.UpsertBackoff = time.Millisecond
	err := s.UpsertTrack(context.Background(), &models.Track{Provider: models.ProviderSpotify, URL: "y"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, DefaultUpsertAttempts, cs.calls)
}

func TestAuthURL(t *testing.T) {
	_, client, _, _ := setupCatalogTest(t)
	u := client.AuthURL("state-123")
	assert.Contains(t, u, "state=state-123")
	assert.Contains(t, u, "client_id=id")
	assert.Contains(t, u, "user-top-read")
}

func linkUser(t *testing.T, syncer *Syncer, store *memstore.Store, tok *oauth2.Token) uuid.UUID {
	t.Helper()
	u := &models.User{Username: "listener"}
	require.NoError(t, store.CreateUser(context.Background(), u))
	profile, err := syncer.Link(context.Background(), u.ID, tok)
	require.NoError(t, err)
	assert.Equal(t, "listener", profile.ID)
	return u.ID
}

func TestSyncUser(t *testing.T) {
	fake, _, syncer, store := setupCatalogTest(t)
	fake.myPlaylists = []map[string]any{
		{"id": "mine1", "name": "Road trip"},
		{"id": "mine2", "name": "Gym"},
	}
	fake.playlistItems["mine1"] = playlistOf(3)
	fake.playlistItems["mine2"] = append(playlistOf(2), map[string]any{"track": rawTrack("bad", "", true)})
	fake.topTracks = []map[string]any{rawTrack("top1", "Top one", true)}

	userID := linkUser(t, syncer, store, &oauth2.Token{
		AccessToken:  "user-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	res, err := syncer.SyncUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Playlists)
	assert.Equal(t, 6, res.Tracks)
	assert.Equal(t, 1, res.Skipped)

	playlists, err := store.ListKnownPlaylists(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, playlists, 2)

	ids, err := store.CommonTrackIDs(context.Background(), []uuid.UUID{userID})
	require.NoError(t, err)
	// t000 and t001 appear in both playlists
	assert.Len(t, ids, 4)
	assert.Equal(t, int32(0), fake.refreshes.Load())
}

func TestSyncUserPersistsRefreshedToken(t *testing.T) {
	fake, _, syncer, store := setupCatalogTest(t)
	userID := linkUser(t, syncer, store, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	// expire the stored token so the sync has to refresh it
	auth, err := store.GetSpotifyAuth(context.Background(), userID)
	require.NoError(t, err)
	auth.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveSpotifyAuth(context.Background(), auth))

	_, err = syncer.SyncUser(context.Background(), userID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fake.refreshes.Load(), int32(1))

	auth, err = store.GetSpotifyAuth(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", auth.AccessToken)
	assert.Equal(t, "refresh", auth.RefreshToken)
	assert.True(t, auth.ExpiresAt.After(time.Now()))
}

func TestSyncUserNotLinked(t *testing.T) {
	_, _, syncer, _ := setupCatalogTest(t)
	_, err := syncer.SyncUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestTopTracks(t *testing.T) {
	fake, _, syncer, store := setupCatalogTest(t)
	fake.topTracks = []map[string]any{rawTrack("gone", "No preview", false)}
	for i := range 120 {
		id := fmt.Sprintf("top%03d", i)
		fake.topTracks = append(fake.topTracks, rawTrack(id, "Top "+id, true))
	}
	userID := linkUser(t, syncer, store, &oauth2.Token{
		AccessToken:  "user-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	tracks, err := syncer.TopTracks(context.Background(), userID, 60, "short_term")
	require.NoError(t, err)
	require.Len(t, tracks, 60)
	assert.Equal(t, "top000", tracks[0].URL)
	assert.Equal(t, "top059", tracks[59].URL)
	assert.NotEqual(t, uuid.Nil, tracks[0].ID)
	fake.mu.Lock()
	assert.Equal(t, "short_term", fake.timeRange)
	fake.mu.Unlock()

	// fewer available than asked is not an error
	tracks, err = syncer.TopTracks(context.Background(), userID, 500, "long_term")
	require.NoError(t, err)
	assert.Len(t, tracks, 120)
}

func TestTopTracksValidation(t *testing.T) {
	_, _, syncer, store := setupCatalogTest(t)
	userID := linkUser(t, syncer, store, &oauth2.Token{AccessToken: "user-token", Expiry: time.Now().Add(time.Hour)})

	_, err := syncer.TopTracks(context.Background(), userID, 0, "long_term")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = syncer.TopTracks(context.Background(), userID, 10, "forever")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = syncer.TopTracks(context.Background(), uuid.New(), 10, "long_term")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
