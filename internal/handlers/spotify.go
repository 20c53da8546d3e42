// internal/handlers/spotify.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
)

const (
	spotifyStateCookie  = "spotify_state"
	playlistSearchLimit = 10
	defaultTopTracks    = 50
	maxTopTracks        = 200
)

func (s *Server) spotifyDisabled(w http.ResponseWriter, r *http.Request) bool {
	if s.Spotify == nil || s.Syncer == nil {
		s.writeError(w, r, apperror.Upstream(errSpotifyNotConfigured))
		return true
	}
	return false
}

// handleSpotifyLogin sends the caller to Spotify's consent page. The state is
// bound to the caller through a short-lived cookie.
func (s *Server) handleSpotifyLogin(w http.ResponseWriter, r *http.Request) {
	if s.spotifyDisabled(w, r) {
		return
	}
	state := callerID(r).String() + "." + uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     spotifyStateCookie,
		Value:    state,
		Path:     "/spotify",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.Spotify.AuthURL(state), http.StatusTemporaryRedirect)
}

func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	if s.spotifyDisabled(w, r) {
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.writeError(w, r, apperror.Validation("error", "spotify authorization denied: "+e))
		return
	}
	cookie, err := r.Cookie(spotifyStateCookie)
	state := q.Get("state")
	if err != nil || state == "" || cookie.Value != state || !strings.HasPrefix(state, callerID(r).String()+".") {
		s.writeError(w, r, apperror.Validation("state", "oauth state mismatch"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: spotifyStateCookie, Path: "/spotify", MaxAge: -1})

	tok, err := s.Spotify.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		s.writeError(w, r, apperror.Upstream(err))
		return
	}
	profile, err := s.Syncer.Link(r.Context(), callerID(r), tok)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleSpotifySync(w http.ResponseWriter, r *http.Request) {
	if s.spotifyDisabled(w, r) {
		return
	}
	res, err := s.Syncer.SyncUser(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMyPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.users.ListKnownPlaylists(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleSearchPlaylists(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, r, apperror.Validation("q", "search query is required"))
		return
	}
	limit := playlistSearchLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < playlistSearchLimit {
		limit = v
	}
	playlists, err := s.users.SearchPlaylists(r.Context(), q, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playlists)
}

// handleTopTracks lists the caller's most played tracks straight from Spotify.
// count defaults to 50 and timeRange to long_term.
func (s *Server) handleTopTracks(w http.ResponseWriter, r *http.Request) {
	if s.spotifyDisabled(w, r) {
		return
	}
	q := r.URL.Query()
	count := defaultTopTracks
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTopTracks {
			s.writeError(w, r, apperror.Validation("count", "count must be between 1 and "+strconv.Itoa(maxTopTracks)))
			return
		}
		count = n
	}
	timeRange := q.Get("timeRange")
	if timeRange == "" {
		timeRange = "long_term"
	}
	tracks, err := s.Syncer.TopTracks(r.Context(), callerID(r), count, timeRange)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}
