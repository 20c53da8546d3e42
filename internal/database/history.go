// internal/database/history.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/blindtest/internal/cache"
)

// InsertActions stores a batch of game actions in a single transaction.
func (s *Store) InsertActions(ctx context.Context, batch []cache.ActionRecord) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert action %s/%d: %w", rec.GameID, rec.ActionIndex, err)
			}
		}
		return nil
	})
}

func insertActionTx(ctx context.Context, tx pgx.Tx, rec cache.ActionRecord) error {
	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	var actor *uuid.UUID
	if rec.ActorUserID != uuid.Nil {
		actor = &rec.ActorUserID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO game_actions (game_id, action_index, actor_user_id, action_type, action_payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.GameID, rec.ActionIndex, actor, rec.ActionType, payload, time.UnixMilli(rec.Timestamp))
	return err
}
