// internal/lobby/lobby_store.go
package lobby

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/game"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// Store is the persistence the lobby manager needs. Both internal/database and
// internal/memstore satisfy it.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateLobby(ctx context.Context, l *models.Lobby, gs *models.GameSettings, memberIDs []uuid.UUID) error
	GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetLobbyByJoinCode(ctx context.Context, code string) (*models.Lobby, error)
	ListLobbies(ctx context.Context) ([]models.Lobby, error)

	AddLobbyUser(ctx context.Context, lobbyID, userID uuid.UUID) error
	GetLobbyUser(ctx context.Context, lobbyID, userID uuid.UUID) (*models.LobbyUser, error)
	ListLobbyUsers(ctx context.Context, lobbyID uuid.UUID) ([]models.LobbyUser, error)

	GetGameSettings(ctx context.Context, id uuid.UUID) (*models.GameSettings, error)
	UpdateGameSettings(ctx context.Context, gs *models.GameSettings) error
	ReplaceLobbySettings(ctx context.Context, lobbyID uuid.UUID, gs *models.GameSettings) error
	ListGamesByLobby(ctx context.Context, lobbyID uuid.UUID) ([]models.Game, error)

	GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error)
	CommonTrackIDs(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error)
	GetTracks(ctx context.Context, ids []uuid.UUID) ([]models.Track, error)
}

// Catalog streams the tracks of a provider playlist. fn receives every entry;
// a non-nil error there concerns that entry only. The returned error means the
// listing itself broke off.
type Catalog interface {
	ImportPlaylist(ctx context.Context, playlistID string, fn func(models.Track, error)) error
}

// GameCreator is the part of the game engine a lobby uses to spawn games.
type GameCreator interface {
	CreateGame(ctx context.Context, p game.CreateParams) (*models.Game, error)
}
