// internal/answer/answer_test.go
package answer

import (
	"testing"

	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/stretchr/testify/assert"
)

func track(name string, artists ...string) models.Track {
	t := models.Track{Name: name, Provider: models.ProviderSpotify, URL: "id-" + name}
	for _, a := range artists {
		t.Artists = append(t.Artists, models.Artist{Name: a})
	}
	return t
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bohemian Rhapsody", "bohemian rhapsody"},
		{"Bohemian Rhapsody - Remastered 2011", "bohemian rhapsody"},
		{"  Déjà Vu  ", "deja vu"},
		{"Où est l'amour?", "ou est lamour"},
		{"Don't Stop Me Now!", "dont stop me now"},
		{"AC/DC", "acdc"},
		{"Señorita (feat. X)", "senorita feat x"},
		{"-leading hyphen", ""},
		{"Beyoncé & Jay-Z", "beyonce  jay"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		name  string
		guess string
		track models.Track
		want  bool
	}{
		{"exact title", "Bohemian Rhapsody", track("Bohemian Rhapsody"), true},
		{"case insensitive", "bohemian RHAPSODY", track("Bohemian Rhapsody"), true},
		{"suffix after hyphen stripped", "bohemian rhapsody - remastered 2011", track("Bohemian Rhapsody"), true},
		{"title with remaster suffix", "bohemian rhapsody", track("Bohemian Rhapsody - Remastered 2011"), true},
		{"accents ignored", "deja vu", track("Déjà Vu"), true},
		{"first word of title", "bohemian", track("Bohemian Rhapsody"), true},
		{"second word alone is wrong", "rhapsody", track("Bohemian Rhapsody"), false},
		{"artist raw", "queen", track("X", "Queen"), true},
		{"artist normalized", "beyonce", track("Halo", "Beyoncé"), true},
		{"second artist", "jay z", track("Crazy in Love", "Beyoncé", "Jay Z"), true},
		{"wrong", "wrong", track("X"), false},
		{"wrong with artists", "abba", track("Bohemian Rhapsody", "Queen"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorrect(tt.guess, tt.track))
		})
	}
}
