// internal/catalog/track.go
package catalog

import (
	"errors"

	"github.com/jason-s-yu/blindtest/internal/models"
)

// ErrMalformedTrack marks a catalog entry that cannot be played in a round.
var ErrMalformedTrack = errors.New("malformed track")

type RawImage struct {
	URL string `json:"url"`
}

type RawArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RawAlbum struct {
	Images []RawImage `json:"images"`
}

// RawTrack is a track object of the Spotify Web API, reduced to what we keep.
type RawTrack struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	PreviewURL *string     `json:"preview_url"`
	Artists    []RawArtist `json:"artists"`
	Album      RawAlbum    `json:"album"`
	IsLocal    bool        `json:"is_local"`
}

type RawPlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile is the current user's Spotify account.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
}

// ToTrack converts t to the canonical model. Internal ids are left for the store
// to assign.
func (t RawTrack) ToTrack() (models.Track, error) {
	if t.ID == "" || t.Name == "" || t.PreviewURL == nil || *t.PreviewURL == "" {
		return models.Track{}, ErrMalformedTrack
	}
	track := models.Track{
		Provider:   models.ProviderSpotify,
		URL:        t.ID,
		Name:       t.Name,
		PreviewURL: *t.PreviewURL,
		Artists:    make([]models.Artist, 0, len(t.Artists)),
	}
	if len(t.Album.Images) > 0 {
		track.PictureURL = t.Album.Images[0].URL
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, models.Artist{
			Provider: models.ProviderSpotify,
			URL:      a.ID,
			Name:     a.Name,
		})
	}
	return track, nil
}
