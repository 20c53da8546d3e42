// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTracksToGuess is the target track count of a fresh GameSettings.
const DefaultTracksToGuess = 30

// Lobby is a persistent group of players. NextGameSettingsID points at the
// pending settings that the next finalized game will consume.
type Lobby struct {
	ID                 uuid.UUID `json:"id"`
	JoinCode           string    `json:"join_code"`
	NextGameSettingsID uuid.UUID `json:"next_game_settings_id"`
	CreatedAt          time.Time `json:"created_at"`
}

type LobbyUser struct {
	LobbyID  uuid.UUID `json:"lobby_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// GameSettings is the draft of the next game: a candidate track pool and the
// number of tracks to sample from it.
type GameSettings struct {
	ID            uuid.UUID `json:"id"`
	TracksToGuess int       `json:"tracks_to_guess"`
	TrackList     []Track   `json:"track_list"`
}

func NewGameSettings() *GameSettings {
	return &GameSettings{
		ID:            uuid.New(),
		TracksToGuess: DefaultTracksToGuess,
		TrackList:     []Track{},
	}
}

// Contains reports whether a track with the same identity is already pooled.
func (s *GameSettings) Contains(t Track) bool {
	for _, existing := range s.TrackList {
		if existing.SameAs(t) {
			return true
		}
	}
	return false
}

// AppendNew appends the tracks not already pooled (by provider and url) and
// returns the ones that were actually added.
func (s *GameSettings) AppendNew(tracks []Track) []Track {
	added := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if s.Contains(t) {
			continue
		}
		s.TrackList = append(s.TrackList, t)
		added = append(added, t)
	}
	return added
}
