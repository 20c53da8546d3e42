// internal/handlers/user.go
package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/auth"
	"github.com/jason-s-yu/blindtest/internal/models"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.writeError(w, r, apperror.Validation("email", "invalid email address"))
		return
	}
	if len(req.Password) < 8 {
		s.writeError(w, r, apperror.Validation("password", "password must be at least 8 characters"))
		return
	}
	if req.Username == "" {
		s.writeError(w, r, apperror.Validation("username", "username is required"))
		return
	}

	hash, err := auth.HashPassword(req.Password, s.HashParams)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user := models.User{Email: req.Email, Password: hash, Username: req.Username}
	if err := s.users.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			err = apperror.Conflict("email already exists")
		}
		s.writeError(w, r, err)
		return
	}
	user.Password = ""
	s.writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin trades credentials for an access/refresh pair. The access token is
// also set as the auth cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	unauthorized := func() {
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "invalid email or password"})
	}

	user, err := s.users.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, apperror.ErrNotFound) {
		unauthorized()
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := auth.CheckPassword(req.Password, user.Password)
	if err != nil || !ok {
		if err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("stored password hash is unusable")
		}
		unauthorized()
		return
	}

	access, err := s.tokens.CreateAccess(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	refresh, err := s.tokens.CreateRefresh(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.TouchLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to record login time")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    access,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.tokens.AccessTTL.Seconds()),
	})
	s.writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.tokens.Authenticate(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "invalid refresh token"})
		return
	}
	access, err := s.tokens.CreateAccess(userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user.Password = ""
	s.writeJSON(w, http.StatusOK, user)
}
