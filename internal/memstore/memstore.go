// internal/memstore/memstore.go

// Package memstore keeps every entity in process memory. It backs the tests and
// the STORAGE=memory development mode; nothing survives a restart.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
)

type Store struct {
	mu sync.Mutex

	users        map[uuid.UUID]*models.User
	spotifyAuths map[uuid.UUID]*models.SpotifyAuth

	tracks         map[uuid.UUID]*models.Track
	artists        map[uuid.UUID]*models.Artist
	playlists      map[uuid.UUID]*models.Playlist
	knownTracks    map[uuid.UUID]map[uuid.UUID]struct{}
	knownPlaylists map[uuid.UUID][]uuid.UUID

	lobbies    map[uuid.UUID]*models.Lobby
	lobbyUsers map[uuid.UUID][]*models.LobbyUser
	settings   map[uuid.UUID]*models.GameSettings

	games     map[uuid.UUID]*models.Game
	gameUsers map[uuid.UUID][]*models.GameUser

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:          make(map[uuid.UUID]*models.User),
		spotifyAuths:   make(map[uuid.UUID]*models.SpotifyAuth),
		tracks:         make(map[uuid.UUID]*models.Track),
		artists:        make(map[uuid.UUID]*models.Artist),
		playlists:      make(map[uuid.UUID]*models.Playlist),
		knownTracks:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		knownPlaylists: make(map[uuid.UUID][]uuid.UUID),
		lobbies:        make(map[uuid.UUID]*models.Lobby),
		lobbyUsers:     make(map[uuid.UUID][]*models.LobbyUser),
		settings:       make(map[uuid.UUID]*models.GameSettings),
		games:          make(map[uuid.UUID]*models.Game),
		gameUsers:      make(map[uuid.UUID][]*models.GameUser),
		now:            time.Now,
	}
}

// users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, exists := s.users[u.ID]; exists {
		return apperror.Conflict("user id already exists")
	}
	if u.Email != "" {
		for _, other := range s.users {
			if strings.EqualFold(other.Email, u.Email) {
				return apperror.Conflict("email already exists")
			}
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id.String())
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (s *Store) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperror.NotFound("user", id.String())
	}
	u.LastLoggedIn = &at
	return nil
}

func (s *Store) SaveSpotifyAuth(_ context.Context, a *models.SpotifyAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.spotifyAuths[a.UserID] = &cp
	return nil
}

func (s *Store) GetSpotifyAuth(_ context.Context, userID uuid.UUID) (*models.SpotifyAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.spotifyAuths[userID]
	if !ok {
		return nil, apperror.NotFound("spotify auth", userID.String())
	}
	cp := *a
	return &cp, nil
}

func (s *Store) userName(id uuid.UUID) string {
	if u, ok := s.users[id]; ok {
		return u.Username
	}
	return ""
}
