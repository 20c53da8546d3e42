// internal/models/track.go
package models

import "github.com/google/uuid"

type Provider string

const (
	ProviderSpotify Provider = "spotify"
	ProviderRawURL  Provider = "raw_url"
)

// Artist identity is (Provider, URL). For Spotify the URL is the artist id.
type Artist struct {
	ID       uuid.UUID `json:"id"`
	Provider Provider  `json:"provider"`
	URL      string    `json:"url"`
	Name     string    `json:"name"`
}

// Track identity is (Provider, URL). For Spotify the URL is the track id.
type Track struct {
	ID         uuid.UUID `json:"id"`
	Provider   Provider  `json:"provider"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	PreviewURL string    `json:"preview_url"`
	PictureURL string    `json:"picture_url,omitempty"`
	Artists    []Artist  `json:"artists"`
}

// SameAs compares catalog identity, ignoring the internal id.
func (t Track) SameAs(o Track) bool {
	return t.Provider == o.Provider && t.URL == o.URL
}

// Playable reports whether the track can be used in a game round.
func (t Track) Playable() bool {
	return t.PreviewURL != "" && t.Name != "" && len(t.Artists) > 0
}

type Playlist struct {
	ID       uuid.UUID `json:"id"`
	Provider Provider  `json:"provider"`
	URL      string    `json:"url"`
	Name     string    `json:"name"`
}
