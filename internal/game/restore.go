// internal/game/restore.go
package game

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/sirupsen/logrus"
)

// Restore rebuilds the in-memory side of every unfinished game after a restart:
// one fan-out channel each, and the round timer of running games re-armed for
// whatever is left of the round. A round whose deadline already passed advances
// immediately.
func (e *Engine) Restore(ctx context.Context) error {
	now := e.Clock.Now()
	games, err := e.store.ListActiveGames(ctx, now)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}

	rearmed := 0
	for i := range games {
		g := &games[i]
		e.hub.OpenChannel(g.ID, hub.GameKinds...)
		if g.State() != models.GameRunning || g.NextTrackAt == nil {
			continue
		}

		delay := g.NextTrackAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s := e.lock(g.ID)
		e.armTimer(s, g.ID, delay)
		e.unlock(g.ID, s)
		rearmed++

		e.logger.WithFields(logrus.Fields{
			"game_id":     g.ID,
			"track_index": g.CurrentTrackIndex,
			"delay":       delay,
		}).Debug("round timer restored")
	}

	e.logger.Infof("restored %d games (%d running)", len(games), rearmed)
	return nil
}
