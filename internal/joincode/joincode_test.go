// internal/joincode/joincode_test.go
package joincode

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUsesAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := Generate(nil, DefaultLength)
		require.Len(t, code, DefaultLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q in %s", r, code)
		}
	}
}

func TestGenerateIsDeterministicWithSeed(t *testing.T) {
	a := Generate(rand.New(rand.NewPCG(1, 2)), 8)
	b := Generate(rand.New(rand.NewPCG(1, 2)), 8)
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestWithRetryRetriesOnConflict(t *testing.T) {
	taken := map[string]bool{}
	attempts := 0
	create := func(code string) error {
		attempts++
		if attempts < 3 {
			taken[code] = true
			return apperror.Conflict("join code taken")
		}
		if taken[code] {
			return apperror.Conflict("join code taken")
		}
		return nil
	}

	code, err := WithRetry(context.Background(), nil, create)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 3)
	assert.False(t, taken[code])
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("db down")
	calls := 0
	_, err := WithRetry(context.Background(), nil, func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, nil, func(string) error {
		calls++
		if calls == 5 {
			cancel()
		}
		return apperror.Conflict("taken")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, calls)
}
