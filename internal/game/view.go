// internal/game/view.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// TrackView is a game track as players may see it. Name and artists stay hidden
// until the round is over.
type TrackView struct {
	Index      int             `json:"index"`
	Name       string          `json:"name,omitempty"`
	Artists    []models.Artist `json:"artists,omitempty"`
	PreviewURL string          `json:"preview_url,omitempty"`
	PictureURL string          `json:"picture_url,omitempty"`
	AnsweredBy *uuid.UUID      `json:"answered_by,omitempty"`
}

type View struct {
	ID                uuid.UUID         `json:"id"`
	JoinCode          string            `json:"join_code"`
	LobbyID           *uuid.UUID        `json:"lobby_id,omitempty"`
	State             models.GameState  `json:"state"`
	CurrentTrackIndex int               `json:"current_track_index"`
	TrackCount        int               `json:"track_count"`
	StartAt           *time.Time        `json:"start_at"`
	NextTrackAt       *time.Time        `json:"next_track_at"`
	EndAt             *time.Time        `json:"end_at"`
	CreatedAt         time.Time         `json:"created_at"`
	Tracks            []TrackView       `json:"tracks"`
	Users             []models.GameUser `json:"users"`
}

// NewView reveals finished rounds fully, the current round's audio only, and
// nothing about later rounds.
func NewView(g *models.Game, users []models.GameUser) *View {
	v := &View{
		ID:                g.ID,
		JoinCode:          g.JoinCode,
		LobbyID:           g.LobbyID,
		State:             g.State(),
		CurrentTrackIndex: g.CurrentTrackIndex,
		TrackCount:        len(g.Tracks),
		StartAt:           g.StartAt,
		NextTrackAt:       g.NextTrackAt,
		EndAt:             g.EndAt,
		CreatedAt:         g.CreatedAt,
		Tracks:            []TrackView{},
		Users:             users,
	}
	if v.Users == nil {
		v.Users = []models.GameUser{}
	}

	finished := v.State == models.GameFinished
	for i, t := range g.Tracks {
		switch {
		case finished || i < g.CurrentTrackIndex || t.AnsweredBy != nil:
			v.Tracks = append(v.Tracks, TrackView{
				Index:      i,
				Name:       t.Name,
				Artists:    t.Artists,
				PreviewURL: t.PreviewURL,
				PictureURL: t.PictureURL,
				AnsweredBy: t.AnsweredBy,
			})
		case i == g.CurrentTrackIndex:
			v.Tracks = append(v.Tracks, TrackView{
				Index:      i,
				PreviewURL: t.PreviewURL,
				PictureURL: t.PictureURL,
			})
		}
	}
	return v
}

// GetByJoinCode is the read-only game query: state, participants and the revealed
// part of the track list.
func (e *Engine) GetByJoinCode(ctx context.Context, joinCode string) (*View, error) {
	g, err := e.store.GetGameByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	users, err := e.store.ListGameUsers(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	return NewView(g, users), nil
}

// IsParticipant reports whether userID joined gameID. Unknown games are NotFound.
func (e *Engine) IsParticipant(ctx context.Context, gameID, userID uuid.UUID) (bool, error) {
	if _, err := e.store.GetGameByID(ctx, gameID); err != nil {
		return false, err
	}
	if _, err := e.participant(ctx, gameID, userID); err != nil {
		return false, nil
	}
	return true, nil
}
