// internal/joincode/joincode.go

// Package joincode generates the short codes players type to find a lobby or game.
package joincode

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/jason-s-yu/blindtest/internal/apperror"
)

const (
	DefaultLength = 6
	Alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Source is the subset of *rand.Rand used here. A nil Source uses the global generator.
type Source interface {
	IntN(n int) int
}

// Generate draws length characters uniformly from Alphabet.
func Generate(src Source, length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		var n int
		if src == nil {
			n = rand.IntN(len(Alphabet))
		} else {
			n = src.IntN(len(Alphabet))
		}
		b.WriteByte(Alphabet[n])
	}
	return b.String()
}

// WithRetry calls create with fresh codes until it stops failing with
// apperror.ErrConflict. Any other error, or ctx being done, ends the loop.
func WithRetry(ctx context.Context, src Source, create func(code string) error) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("join code retry: %w", err)
		}
		code := Generate(src, DefaultLength)
		err := create(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return "", err
		}
	}
}
