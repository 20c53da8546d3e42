// internal/handlers/game.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/game"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/jason-s-yu/blindtest/internal/selection"
)

type createGameRequest struct {
	UserIDs        []uuid.UUID    `json:"userIds"`
	Tracks         []models.Track `json:"tracks"`
	LobbyID        *uuid.UUID     `json:"lobbyId"`
	NumberOfTracks int            `json:"numberOfTracks"`
}

// handleCreateGame samples an ad-hoc game out of the supplied tracks. The caller
// is always a participant.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	count := req.NumberOfTracks
	if count <= 0 {
		count = len(req.Tracks)
	}
	picked := selection.SelectTracks(s.Rand, req.Tracks, count)
	if len(picked) == 0 {
		s.writeError(w, r, apperror.Validation("tracks", "no playable track supplied"))
		return
	}
	members := append([]uuid.UUID{callerID(r)}, req.UserIDs...)

	g, err := s.games.CreateGame(r.Context(), game.CreateParams{
		Tracks:    picked,
		MemberIDs: members,
		LobbyID:   req.LobbyID,
		CreatorID: callerID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, game.NewView(g, nil))
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.JoinCode))
	if code == "" {
		s.writeError(w, r, apperror.Validation("joinCode", "joinCode is required"))
		return
	}
	if _, err := s.games.JoinGame(r.Context(), code, callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.games.GetByJoinCode(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	view, err := s.games.GetByJoinCode(r.Context(), strings.ToUpper(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.games.StartGame(r.Context(), gameID, callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type answerRequest struct {
	TrackIndex *int   `json:"trackIndex"`
	Answer     string `json:"answer"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TrackIndex == nil {
		s.writeError(w, r, apperror.Validation("trackIndex", "trackIndex is required"))
		return
	}
	accepted, err := s.games.ProposeAnswer(r.Context(), gameID, callerID(r), *req.TrackIndex, req.Answer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}
