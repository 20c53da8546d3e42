// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type GameState string

const (
	GamePending  GameState = "PENDING"
	GameRunning  GameState = "RUNNING"
	GameFinished GameState = "FINISHED"
)

// GameTrack is a track snapshot inside a game. AnsweredBy is set at most once.
type GameTrack struct {
	Track
	AnsweredBy *uuid.UUID `json:"answered_by"`
}

type Game struct {
	ID                uuid.UUID   `json:"id"`
	JoinCode          string      `json:"join_code"`
	LobbyID           *uuid.UUID  `json:"lobby_id,omitempty"`
	Tracks            []GameTrack `json:"tracks"`
	CurrentTrackIndex int         `json:"current_track_index"`
	StartAt           *time.Time  `json:"start_at"`
	NextTrackAt       *time.Time  `json:"next_track_at"`
	EndAt             *time.Time  `json:"end_at"`
	CreatedAt         time.Time   `json:"created_at"`
}

func (g *Game) State() GameState {
	switch {
	case g.EndAt != nil:
		return GameFinished
	case g.CurrentTrackIndex < 0:
		return GamePending
	default:
		return GameRunning
	}
}

// Clone returns a copy whose track slice and markers can be mutated freely.
func (g *Game) Clone() *Game {
	c := *g
	c.Tracks = make([]GameTrack, len(g.Tracks))
	for i, t := range g.Tracks {
		c.Tracks[i] = t
		if t.AnsweredBy != nil {
			id := *t.AnsweredBy
			c.Tracks[i].AnsweredBy = &id
		}
	}
	return &c
}

type GameUser struct {
	GameID   uuid.UUID `json:"game_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}
