// internal/selection/selection.go

// Package selection samples a game playlist out of a candidate pool.
package selection

import (
	"math/rand/v2"

	"github.com/jason-s-yu/blindtest/internal/models"
)

// Source is the subset of *rand.Rand needed for sampling. Pass a seeded
// *rand.Rand for reproducible picks, or nil for the global generator.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// SelectTracks picks up to count playable tracks from pool uniformly without
// replacement, in random order. Unplayable candidates (no preview, name or
// artists) are skipped without counting, and a track identity is never picked
// twice. A pool with fewer valid tracks than count yields all of them.
func SelectTracks(src Source, pool []models.Track, count int) []models.Track {
	if count <= 0 {
		return []models.Track{}
	}
	if src == nil {
		src = globalSource{}
	}
	remaining := make([]models.Track, len(pool))
	copy(remaining, pool)

	picked := make([]models.Track, 0, min(count, len(pool)))
	for len(picked) < count && len(remaining) > 0 {
		i := src.IntN(len(remaining))
		candidate := remaining[i]
		remaining[i] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]

		if !candidate.Playable() || alreadyPicked(picked, candidate) {
			continue
		}
		picked = append(picked, candidate)
	}
	return picked
}

func alreadyPicked(picked []models.Track, t models.Track) bool {
	for _, p := range picked {
		if p.SameAs(t) {
			return true
		}
	}
	return false
}
