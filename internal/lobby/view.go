// internal/lobby/view.go
package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
)

type GameSummary struct {
	ID         uuid.UUID        `json:"id"`
	JoinCode   string           `json:"join_code"`
	State      models.GameState `json:"state"`
	TrackCount int              `json:"track_count"`
	CreatedAt  time.Time        `json:"created_at"`
}

// View is the lobby query result: members, the pending settings and every game
// the lobby spawned, oldest first.
type View struct {
	models.Lobby
	Users    []models.LobbyUser   `json:"users"`
	Settings *models.GameSettings `json:"settings"`
	Games    []GameSummary        `json:"games"`
}

func (m *Manager) GetByJoinCode(ctx context.Context, joinCode string) (*View, error) {
	l, err := m.store.GetLobbyByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	users, err := m.store.ListLobbyUsers(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	gs, err := m.store.GetGameSettings(ctx, l.NextGameSettingsID)
	if err != nil {
		return nil, err
	}
	games, err := m.store.ListGamesByLobby(ctx, l.ID)
	if err != nil {
		return nil, err
	}

	v := &View{Lobby: *l, Users: users, Settings: gs, Games: make([]GameSummary, 0, len(games))}
	for i := range games {
		g := &games[i]
		v.Games = append(v.Games, GameSummary{
			ID:         g.ID,
			JoinCode:   g.JoinCode,
			State:      g.State(),
			TrackCount: len(g.Tracks),
			CreatedAt:  g.CreatedAt,
		})
	}
	return v, nil
}

// IsMember reports whether userID belongs to lobbyID. Unknown lobbies are NotFound.
func (m *Manager) IsMember(ctx context.Context, lobbyID, userID uuid.UUID) (bool, error) {
	if _, err := m.store.GetLobbyByID(ctx, lobbyID); err != nil {
		return false, err
	}
	err := m.member(ctx, lobbyID, userID)
	if errors.Is(err, apperror.ErrForbidden) {
		return false, nil
	}
	return err == nil, err
}
