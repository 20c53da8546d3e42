// internal/memstore/lobby.go
package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
)

func cloneSettings(gs *models.GameSettings) *models.GameSettings {
	cp := *gs
	cp.TrackList = append([]models.Track{}, gs.TrackList...)
	return &cp
}

// CreateLobby stores the lobby, its first pending settings and its members at once.
func (s *Store) CreateLobby(_ context.Context, l *models.Lobby, gs *models.GameSettings, memberIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.lobbies {
		if other.JoinCode == l.JoinCode {
			return apperror.Conflict("lobby join code already exists")
		}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.NextGameSettingsID = gs.ID
	s.settings[gs.ID] = cloneSettings(gs)
	cp := *l
	s.lobbies[l.ID] = &cp

	now := s.now()
	members := make([]*models.LobbyUser, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, &models.LobbyUser{LobbyID: l.ID, UserID: id, JoinedAt: now})
	}
	s.lobbyUsers[l.ID] = members
	return nil
}

func (s *Store) GetLobbyByID(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	if !ok {
		return nil, apperror.NotFound("lobby", id.String())
	}
	cp := *l
	return &cp, nil
}

func (s *Store) GetLobbyByJoinCode(_ context.Context, code string) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lobbies {
		if l.JoinCode == code {
			cp := *l
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("lobby", code)
}

func (s *Store) ListLobbies(_ context.Context) ([]models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, *l)
	}
	return out, nil
}

func (s *Store) AddLobbyUser(_ context.Context, lobbyID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[lobbyID]; !ok {
		return apperror.NotFound("lobby", lobbyID.String())
	}
	for _, lu := range s.lobbyUsers[lobbyID] {
		if lu.UserID == userID {
			return apperror.Conflict("lobby user already exists")
		}
	}
	s.lobbyUsers[lobbyID] = append(s.lobbyUsers[lobbyID], &models.LobbyUser{
		LobbyID:  lobbyID,
		UserID:   userID,
		JoinedAt: s.now(),
	})
	return nil
}

func (s *Store) GetLobbyUser(_ context.Context, lobbyID, userID uuid.UUID) (*models.LobbyUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lu := range s.lobbyUsers[lobbyID] {
		if lu.UserID == userID {
			cp := *lu
			cp.UserName = s.userName(userID)
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("lobby user", userID.String())
}

func (s *Store) ListLobbyUsers(_ context.Context, lobbyID uuid.UUID) ([]models.LobbyUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LobbyUser, 0, len(s.lobbyUsers[lobbyID]))
	for _, lu := range s.lobbyUsers[lobbyID] {
		cp := *lu
		cp.UserName = s.userName(lu.UserID)
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) GetGameSettings(_ context.Context, id uuid.UUID) (*models.GameSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.settings[id]
	if !ok {
		return nil, apperror.NotFound("game settings", id.String())
	}
	return cloneSettings(gs), nil
}

func (s *Store) UpdateGameSettings(_ context.Context, gs *models.GameSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settings[gs.ID]; !ok {
		return apperror.NotFound("game settings", gs.ID.String())
	}
	s.settings[gs.ID] = cloneSettings(gs)
	return nil
}

// ReplaceLobbySettings stores gs and makes it the lobby's pending settings.
func (s *Store) ReplaceLobbySettings(_ context.Context, lobbyID uuid.UUID, gs *models.GameSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return apperror.NotFound("lobby", lobbyID.String())
	}
	s.settings[gs.ID] = cloneSettings(gs)
	l.NextGameSettingsID = gs.ID
	return nil
}

func (s *Store) ListGamesByLobby(_ context.Context, lobbyID uuid.UUID) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Game{}
	for _, g := range s.games {
		if g.LobbyID != nil && *g.LobbyID == lobbyID {
			out = append(out, *g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
