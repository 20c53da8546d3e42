// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	LastLoggedIn *time.Time `json:"last_logged_in,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SpotifyAuth holds the OAuth tokens a user granted us on their Spotify account.
type SpotifyAuth struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
}
