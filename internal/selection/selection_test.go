// internal/selection/selection_test.go
package selection

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePool(valid, invalid int) []models.Track {
	var pool []models.Track
	for i := 0; i < valid; i++ {
		pool = append(pool, models.Track{
			Provider:   models.ProviderSpotify,
			URL:        fmt.Sprintf("valid-%d", i),
			Name:       fmt.Sprintf("Song %d", i),
			PreviewURL: "https://p.scdn.co/mp3-preview/x",
			Artists:    []models.Artist{{Name: "Artist"}},
		})
	}
	for i := 0; i < invalid; i++ {
		t := models.Track{Provider: models.ProviderSpotify, URL: fmt.Sprintf("invalid-%d", i), Name: "No preview"}
		switch i % 3 {
		case 1:
			t = models.Track{Provider: models.ProviderSpotify, URL: fmt.Sprintf("invalid-%d", i), PreviewURL: "x", Artists: []models.Artist{{Name: "A"}}}
		case 2:
			t = models.Track{Provider: models.ProviderSpotify, URL: fmt.Sprintf("invalid-%d", i), Name: "No artists", PreviewURL: "x"}
		}
		pool = append(pool, t)
	}
	return pool
}

func TestSelectTracksSkipsInvalidAndNeverDuplicates(t *testing.T) {
	pool := makePool(20, 15)
	src := rand.New(rand.NewPCG(42, 7))

	for round := 0; round < 50; round++ {
		got := SelectTracks(src, pool, 10)
		require.Len(t, got, 10)

		seen := map[string]bool{}
		for _, tr := range got {
			assert.True(t, tr.Playable(), "picked unplayable track %s", tr.URL)
			assert.False(t, seen[tr.URL], "duplicate %s", tr.URL)
			seen[tr.URL] = true
		}
	}
}

func TestSelectTracksReturnsAllValidWhenPoolIsSmall(t *testing.T) {
	pool := makePool(4, 6)
	got := SelectTracks(rand.New(rand.NewPCG(1, 1)), pool, 30)
	assert.Len(t, got, 4)
}

func TestSelectTracksDeduplicatesIdentity(t *testing.T) {
	pool := makePool(3, 0)
	pool = append(pool, pool[0], pool[1])
	got := SelectTracks(nil, pool, 10)
	assert.Len(t, got, 3)
}

func TestSelectTracksIsDeterministicForSeed(t *testing.T) {
	pool := makePool(30, 5)
	a := SelectTracks(rand.New(rand.NewPCG(9, 9)), pool, 12)
	b := SelectTracks(rand.New(rand.NewPCG(9, 9)), pool, 12)
	assert.Equal(t, a, b)
}

func TestSelectTracksDoesNotMutatePool(t *testing.T) {
	pool := makePool(10, 0)
	before := make([]models.Track, len(pool))
	copy(before, pool)

	SelectTracks(nil, pool, 5)
	assert.Equal(t, before, pool)
}

func TestSelectTracksZeroCount(t *testing.T) {
	assert.Empty(t, SelectTracks(nil, makePool(5, 0), 0))
	assert.Empty(t, SelectTracks(nil, nil, 5))
}
