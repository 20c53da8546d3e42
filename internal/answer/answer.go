// internal/answer/answer.go

// Package answer decides whether a free-text guess names the current track.
package answer

import (
	"strings"

	"github.com/jason-s-yu/blindtest/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation is removed from both guesses and titles before comparison.
const punctuation = `.,-|;:()!?'"/+°#<>~*^¨@&`

// Normalize lowercases s, strips accents, drops everything from the first hyphen
// on (" - Remastered 2011", " - Live"), removes punctuation and trims.
func Normalize(s string) string {
	s = stripAccents(s)
	s = strings.ToLower(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isCombiningDiacritic)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// isCombiningDiacritic matches the Combining Diacritical Marks block (U+0300..U+036F).
func isCombiningDiacritic(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
}

// shortTitle keeps the first word of an already normalized title. Anything after
// the first space, bracketed parts included, is dropped.
func shortTitle(normalized string) string {
	if i := strings.IndexByte(normalized, ' '); i >= 0 {
		normalized = normalized[:i]
	}
	return strings.TrimSpace(normalized)
}

// IsCorrect reports whether guess names the track or one of its artists. Matching is
// lenient on purpose: exact title, normalized title, the title's first word, or any
// artist name (raw or normalized) is accepted.
func IsCorrect(guess string, track models.Track) bool {
	lowered := strings.ToLower(guess)
	if lowered == strings.ToLower(track.Name) {
		return true
	}

	cleanGuess := Normalize(guess)
	cleanName := Normalize(track.Name)
	if lowered == cleanName || cleanGuess == cleanName {
		return true
	}
	if cleanGuess == shortTitle(cleanName) {
		return true
	}

	for _, artist := range track.Artists {
		if lowered == strings.ToLower(artist.Name) || cleanGuess == Normalize(artist.Name) {
			return true
		}
	}
	return false
}
