// internal/memstore/game.go
package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// CreateGame stores the game together with one participant row per member.
func (s *Store) CreateGame(_ context.Context, g *models.Game, memberIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.games {
		if other.JoinCode == g.JoinCode {
			return apperror.Conflict("game join code already exists")
		}
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	s.games[g.ID] = g.Clone()

	now := s.now()
	members := make([]*models.GameUser, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, &models.GameUser{GameID: g.ID, UserID: id, JoinedAt: now})
	}
	s.gameUsers[g.ID] = members
	return nil
}

func (s *Store) GetGameByID(_ context.Context, id uuid.UUID) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, apperror.NotFound("game", id.String())
	}
	return g.Clone(), nil
}

func (s *Store) GetGameByJoinCode(_ context.Context, code string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.JoinCode == code {
			return g.Clone(), nil
		}
	}
	return nil, apperror.NotFound("game", code)
}

func (s *Store) UpdateGame(_ context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; !ok {
		return apperror.NotFound("game", g.ID.String())
	}
	s.games[g.ID] = g.Clone()
	return nil
}

// ListActiveGames returns games that have not ended, or end after now.
func (s *Store) ListActiveGames(_ context.Context, now time.Time) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Game{}
	for _, g := range s.games {
		if g.EndAt == nil || !g.EndAt.Before(now) {
			out = append(out, *g.Clone())
		}
	}
	return out, nil
}

func (s *Store) AddGameUser(_ context.Context, gameID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return apperror.NotFound("game", gameID.String())
	}
	for _, gu := range s.gameUsers[gameID] {
		if gu.UserID == userID {
			return apperror.Conflict("game user already exists")
		}
	}
	s.gameUsers[gameID] = append(s.gameUsers[gameID], &models.GameUser{
		GameID:   gameID,
		UserID:   userID,
		JoinedAt: s.now(),
	})
	return nil
}

func (s *Store) GetGameUser(_ context.Context, gameID, userID uuid.UUID) (*models.GameUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gu := range s.gameUsers[gameID] {
		if gu.UserID == userID {
			cp := *gu
			cp.UserName = s.userName(userID)
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("game user", userID.String())
}

func (s *Store) ListGameUsers(_ context.Context, gameID uuid.UUID) ([]models.GameUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GameUser, 0, len(s.gameUsers[gameID]))
	for _, gu := range s.gameUsers[gameID] {
		cp := *gu
		cp.UserName = s.userName(gu.UserID)
		out = append(out, cp)
	}
	return out, nil
}

// AddGameUserScore adds delta to the participant's score and returns the new value.
func (s *Store) AddGameUserScore(_ context.Context, gameID, userID uuid.UUID, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gu := range s.gameUsers[gameID] {
		if gu.UserID == userID {
			gu.Score += delta
			return gu.Score, nil
		}
	}
	return 0, apperror.NotFound("game user", userID.String())
}
