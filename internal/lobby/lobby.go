// internal/lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/game"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/joincode"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/jason-s-yu/blindtest/internal/selection"
	"github.com/sirupsen/logrus"
)

// Bounds accepted by UpdateSettings.
const (
	MinTracksToGuess = 1
	MaxTracksToGuess = 200
)

var (
	spotifyPlaylistRef = regexp.MustCompile(`^(?:https?://open\.spotify\.com/(?:[a-z-]+/)?playlist/|spotify:playlist:)([A-Za-z0-9]+)`)
	spotifyID          = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)
)

// CreateLobby creates a lobby owned by ownerID with the given extra members, an
// empty pending settings record and the lobby's fan-out channel.
func (m *Manager) CreateLobby(ctx context.Context, ownerID uuid.UUID, memberIDs []uuid.UUID) (*models.Lobby, error) {
	members := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	for _, id := range append([]uuid.UUID{ownerID}, memberIDs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := m.store.GetUserByID(ctx, id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}

	l := &models.Lobby{ID: uuid.New(), CreatedAt: time.Now()}
	gs := models.NewGameSettings()
	_, err := joincode.WithRetry(ctx, m.JoinCodes, func(code string) error {
		l.JoinCode = code
		return m.store.CreateLobby(ctx, l, gs, members)
	})
	if err != nil {
		return nil, fmt.Errorf("create lobby: %w", err)
	}

	m.hub.OpenChannel(l.ID, hub.LobbyKinds...)
	m.logger.WithFields(logrus.Fields{
		"lobby_id":  l.ID,
		"join_code": l.JoinCode,
		"members":   len(members),
	}).Info("lobby created")
	return l, nil
}

// JoinLobby adds userID to the lobby behind joinCode.
func (m *Manager) JoinLobby(ctx context.Context, joinCode string, userID uuid.UUID) (*models.Lobby, error) {
	user, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	l, err := m.store.GetLobbyByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.GetLobbyUser(ctx, l.ID, userID); err == nil {
		return nil, apperror.AlreadyJoined("lobby")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if err := m.store.AddLobbyUser(ctx, l.ID, userID); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.AlreadyJoined("lobby")
		}
		return nil, err
	}

	m.publish(l.ID, hub.KindUserJoined, map[string]interface{}{
		"userUuid": user.ID,
		"userName": user.Username,
	})
	return l, nil
}

// AddPlaylistTracks imports a playlist into the lobby's pending track pool and
// returns the tracks that were not pooled yet. Entries the catalog cannot convert
// are skipped. Only a listing that produced nothing at all fails the call.
func (m *Manager) AddPlaylistTracks(ctx context.Context, lobbyID, callerID uuid.UUID, playlistRef string) ([]models.Track, error) {
	if _, err := m.store.GetLobbyByID(ctx, lobbyID); err != nil {
		return nil, err
	}
	if err := m.member(ctx, lobbyID, callerID); err != nil {
		return nil, err
	}
	if m.catalog == nil {
		return nil, apperror.Upstream(errors.New("no music catalog configured"))
	}
	playlistID, err := m.resolvePlaylist(ctx, playlistRef)
	if err != nil {
		return nil, err
	}

	log := m.logger.WithFields(logrus.Fields{"lobby_id": lobbyID, "playlist": playlistID})
	var fetched []models.Track
	skipped := 0
	err = m.catalog.ImportPlaylist(ctx, playlistID, func(t models.Track, err error) {
		if err != nil {
			skipped++
			log.WithError(err).Warn("skipping playlist entry")
			return
		}
		fetched = append(fetched, t)
	})
	if err != nil {
		if len(fetched) == 0 && skipped == 0 {
			return nil, apperror.Upstream(err)
		}
		log.WithError(err).Warnf("playlist listing broke off after %d tracks, keeping them", len(fetched)+skipped)
	}

	added, err := m.poolTracks(ctx, lobbyID, fetched)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"added": len(added), "skipped": skipped}).Info("playlist imported")
	return added, nil
}

// AddCommonTracks pools every track all current members know.
func (m *Manager) AddCommonTracks(ctx context.Context, lobbyID, callerID uuid.UUID) ([]models.Track, error) {
	if _, err := m.store.GetLobbyByID(ctx, lobbyID); err != nil {
		return nil, err
	}
	if err := m.member(ctx, lobbyID, callerID); err != nil {
		return nil, err
	}
	users, err := m.store.ListLobbyUsers(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperror.Validation("lobby", "lobby has no members")
	}
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}

	trackIDs, err := m.store.CommonTrackIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	tracks, err := m.store.GetTracks(ctx, trackIDs)
	if err != nil {
		return nil, err
	}
	added, err := m.poolTracks(ctx, lobbyID, tracks)
	if err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"common":   len(tracks),
		"added":    len(added),
	}).Info("common tracks pooled")
	return added, nil
}

// poolTracks appends the unseen tracks to the pending settings and announces them.
func (m *Manager) poolTracks(ctx context.Context, lobbyID uuid.UUID, tracks []models.Track) ([]models.Track, error) {
	mu := m.lock(lobbyID)
	defer mu.Unlock()

	l, err := m.store.GetLobbyByID(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	gs, err := m.store.GetGameSettings(ctx, l.NextGameSettingsID)
	if err != nil {
		return nil, err
	}
	added := gs.AppendNew(tracks)
	if len(added) == 0 {
		return added, nil
	}
	if err := m.store.UpdateGameSettings(ctx, gs); err != nil {
		return nil, err
	}
	m.publish(lobbyID, hub.KindNewTracks, map[string]interface{}{"tracks": added})
	return added, nil
}

// UpdateSettings changes how many tracks the next game will sample.
func (m *Manager) UpdateSettings(ctx context.Context, lobbyID, callerID uuid.UUID, tracksToGuess int) (*models.GameSettings, error) {
	if tracksToGuess < MinTracksToGuess || tracksToGuess > MaxTracksToGuess {
		return nil, apperror.Validation("tracksToGuess", fmt.Sprintf("must be between %d and %d", MinTracksToGuess, MaxTracksToGuess))
	}
	if err := m.member(ctx, lobbyID, callerID); err != nil {
		return nil, err
	}

	mu := m.lock(lobbyID)
	defer mu.Unlock()
	l, err := m.store.GetLobbyByID(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	gs, err := m.store.GetGameSettings(ctx, l.NextGameSettingsID)
	if err != nil {
		return nil, err
	}
	gs.TracksToGuess = tracksToGuess
	if err := m.store.UpdateGameSettings(ctx, gs); err != nil {
		return nil, err
	}
	return gs, nil
}

// FinalizeGame turns the pending settings into a game for the current members
// and gives the lobby fresh settings.
func (m *Manager) FinalizeGame(ctx context.Context, lobbyID, callerID uuid.UUID) (*models.Game, error) {
	if err := m.member(ctx, lobbyID, callerID); err != nil {
		return nil, err
	}

	mu := m.lock(lobbyID)
	defer mu.Unlock()

	l, err := m.store.GetLobbyByID(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	gs, err := m.store.GetGameSettings(ctx, l.NextGameSettingsID)
	if err != nil {
		return nil, err
	}
	if len(gs.TrackList) < gs.TracksToGuess {
		return nil, apperror.Validation("trackList", fmt.Sprintf("need at least %d tracks, have %d", gs.TracksToGuess, len(gs.TrackList)))
	}
	tracks := selection.SelectTracks(m.Rand, gs.TrackList, gs.TracksToGuess)
	if len(tracks) == 0 {
		return nil, apperror.Validation("trackList", "no playable track in the pool")
	}

	users, err := m.store.ListLobbyUsers(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	memberIDs := make([]uuid.UUID, len(users))
	for i, u := range users {
		memberIDs[i] = u.UserID
	}

	g, err := m.games.CreateGame(ctx, game.CreateParams{Tracks: tracks, MemberIDs: memberIDs, LobbyID: &lobbyID, CreatorID: callerID})
	if err != nil {
		return nil, err
	}
	if err := m.store.ReplaceLobbySettings(ctx, lobbyID, models.NewGameSettings()); err != nil {
		return nil, fmt.Errorf("reset lobby settings: %w", err)
	}

	m.publish(lobbyID, hub.KindNewGame, map[string]interface{}{
		"joinCode": g.JoinCode,
		"gameUuid": g.ID,
	})
	m.logger.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"game_id":  g.ID,
		"tracks":   len(tracks),
	}).Info("lobby game finalized")
	return g, nil
}

// resolvePlaylist turns a stored playlist id, a Spotify playlist link or a bare
// Spotify id into the Spotify playlist id.
func (m *Manager) resolvePlaylist(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", apperror.Validation("playlist", "playlist reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		p, err := m.store.GetPlaylist(ctx, id)
		if err != nil {
			return "", err
		}
		if p.Provider != models.ProviderSpotify {
			return "", apperror.Validation("playlist", fmt.Sprintf("cannot import %s playlists", p.Provider))
		}
		return p.URL, nil
	}
	if match := spotifyPlaylistRef.FindStringSubmatch(ref); match != nil {
		return match[1], nil
	}
	if spotifyID.MatchString(ref) {
		return ref, nil
	}
	return "", apperror.Validation("playlist", "unrecognized playlist reference")
}
