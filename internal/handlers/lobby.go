// internal/handlers/lobby.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/game"
	"github.com/jason-s-yu/blindtest/internal/models"
)

type createLobbyRequest struct {
	MemberIDs []uuid.UUID `json:"memberIds"`
}

type joinRequest struct {
	JoinCode string `json:"joinCode"`
}

type tracksResponse struct {
	Tracks []models.Track `json:"tracks"`
}

func (s *Server) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.lobbies.CreateLobby(r.Context(), callerID(r), req.MemberIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.lobbies.GetByJoinCode(r.Context(), l.JoinCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
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
	if _, err := s.lobbies.JoinLobby(r.Context(), code, callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.lobbies.GetByJoinCode(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetLobby(w http.ResponseWriter, r *http.Request) {
	view, err := s.lobbies.GetByJoinCode(r.Context(), strings.ToUpper(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAddPlaylist(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Playlist string `json:"playlist"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	added, err := s.lobbies.AddPlaylistTracks(r.Context(), lobbyID, callerID(r), strings.TrimSpace(req.Playlist))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tracksResponse{Tracks: added})
}

func (s *Server) handleAddCommon(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	added, err := s.lobbies.AddCommonTracks(r.Context(), lobbyID, callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tracksResponse{Tracks: added})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		TracksToGuess int `json:"tracksToGuess"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	settings, err := s.lobbies.UpdateSettings(r.Context(), lobbyID, callerID(r), req.TracksToGuess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

// handleFinalizeGame turns the lobby's pending settings into a game.
func (s *Server) handleFinalizeGame(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.lobbies.FinalizeGame(r.Context(), lobbyID, callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, game.NewView(g, nil))
}
