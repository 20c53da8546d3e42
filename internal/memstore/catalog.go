// internal/memstore/catalog.go
package memstore

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/models"
)

// UpsertTrack inserts or refreshes the track and its artists by catalog identity,
// filling in their internal ids.
func (s *Store) UpsertTrack(_ context.Context, t *models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range t.Artists {
		a := &t.Artists[i]
		if existing := s.findArtist(a.Provider, a.URL); existing != nil {
			existing.Name = a.Name
			a.ID = existing.ID
			continue
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		cp := *a
		s.artists[a.ID] = &cp
	}

	if existing := s.findTrack(t.Provider, t.URL); existing != nil {
		t.ID = existing.ID
	} else if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	cp.Artists = append([]models.Artist(nil), t.Artists...)
	s.tracks[t.ID] = &cp
	return nil
}

func (s *Store) findTrack(p models.Provider, url string) *models.Track {
	for _, t := range s.tracks {
		if t.Provider == p && t.URL == url {
			return t
		}
	}
	return nil
}

func (s *Store) findArtist(p models.Provider, url string) *models.Artist {
	for _, a := range s.artists {
		if a.Provider == p && a.URL == url {
			return a
		}
	}
	return nil
}

func (s *Store) UpsertPlaylist(_ context.Context, p *models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.playlists {
		if existing.Provider == p.Provider && existing.URL == p.URL {
			existing.Name = p.Name
			p.ID = existing.ID
			return nil
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	s.playlists[p.ID] = &cp
	return nil
}

func (s *Store) GetPlaylist(_ context.Context, id uuid.UUID) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[id]
	if !ok {
		return nil, apperror.NotFound("playlist", id.String())
	}
	cp := *p
	return &cp, nil
}

func (s *Store) AddKnownTrack(_ context.Context, userID, trackID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	known, ok := s.knownTracks[userID]
	if !ok {
		known = make(map[uuid.UUID]struct{})
		s.knownTracks[userID] = known
	}
	known[trackID] = struct{}{}
	return nil
}

func (s *Store) AddKnownPlaylist(_ context.Context, userID, playlistID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.knownPlaylists[userID] {
		if id == playlistID {
			return nil
		}
	}
	s.knownPlaylists[userID] = append(s.knownPlaylists[userID], playlistID)
	return nil
}

func (s *Store) ListKnownPlaylists(_ context.Context, userID uuid.UUID) ([]models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Playlist{}
	for _, id := range s.knownPlaylists[userID] {
		if p, ok := s.playlists[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) SearchPlaylists(_ context.Context, query string, limit int) ([]models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	out := []models.Playlist{}
	for _, p := range s.playlists {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, *p)
		}
	}
	return out, nil
}

// CommonTrackIDs returns the tracks every given user knows.
func (s *Store) CommonTrackIDs(_ context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(userIDs) == 0 {
		return nil, nil
	}
	out := []uuid.UUID{}
	for trackID := range s.knownTracks[userIDs[0]] {
		shared := true
		for _, other := range userIDs[1:] {
			if _, ok := s.knownTracks[other][trackID]; !ok {
				shared = false
				break
			}
		}
		if shared {
			out = append(out, trackID)
		}
	}
	return out, nil
}

func (s *Store) GetTracks(_ context.Context, ids []uuid.UUID) ([]models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		t, ok := s.tracks[id]
		if !ok {
			continue
		}
		cp := *t
		cp.Artists = make([]models.Artist, len(t.Artists))
		for i, a := range t.Artists {
			if current, ok := s.artists[a.ID]; ok {
				cp.Artists[i] = *current
			} else {
				cp.Artists[i] = a
			}
		}
		out = append(out, cp)
	}
	return out, nil
}
