// internal/game/actions.go
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/answer"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/cache"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/joincode"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/sirupsen/logrus"
)

// CreateParams describes a new game. Tracks are used as given, in order. A game
// made for a lobby needs a CreatorID that belongs to that lobby.
type CreateParams struct {
	Tracks    []models.Track
	MemberIDs []uuid.UUID
	LobbyID   *uuid.UUID
	CreatorID uuid.UUID
}

// CreateGame persists a PENDING game with one participant per member and opens
// its fan-out channel.
func (e *Engine) CreateGame(ctx context.Context, p CreateParams) (*models.Game, error) {
	if len(p.Tracks) == 0 {
		return nil, apperror.Validation("tracks", "a game needs at least one track")
	}
	if p.LobbyID != nil {
		if _, err := e.store.GetLobbyByID(ctx, *p.LobbyID); err != nil {
			return nil, err
		}
		if _, err := e.store.GetLobbyUser(ctx, *p.LobbyID, p.CreatorID); errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden("only lobby members can start a game for the lobby")
		} else if err != nil {
			return nil, err
		}
	}
	members := make([]uuid.UUID, 0, len(p.MemberIDs))
	seen := make(map[uuid.UUID]bool, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := e.store.GetUserByID(ctx, id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}

	g := &models.Game{
		ID:                uuid.New(),
		LobbyID:           p.LobbyID,
		Tracks:            make([]models.GameTrack, len(p.Tracks)),
		CurrentTrackIndex: -1,
		CreatedAt:         e.Clock.Now(),
	}
	for i, t := range p.Tracks {
		g.Tracks[i] = models.GameTrack{Track: t}
	}

	_, err := joincode.WithRetry(ctx, e.JoinCodes, func(code string) error {
		g.JoinCode = code
		return e.store.CreateGame(ctx, g, members)
	})
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	e.hub.OpenChannel(g.ID, hub.GameKinds...)
	e.logger.WithFields(logrus.Fields{
		"game_id":   g.ID,
		"join_code": g.JoinCode,
		"tracks":    len(g.Tracks),
		"members":   len(members),
	}).Info("game created")
	return g, nil
}

// JoinGame adds userID to the game behind joinCode and announces it on the game
// channel and, when the game came from a lobby, on the lobby channel.
func (e *Engine) JoinGame(ctx context.Context, joinCode string, userID uuid.UUID) (*models.Game, error) {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	g, err := e.store.GetGameByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	if g.State() == models.GameFinished {
		return nil, apperror.Validation("joinCode", "game is already finished")
	}
	if _, err := e.store.GetGameUser(ctx, g.ID, userID); err == nil {
		return nil, apperror.AlreadyJoined("game")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if err := e.store.AddGameUser(ctx, g.ID, userID); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.AlreadyJoined("game")
		}
		return nil, err
	}

	payload := map[string]interface{}{
		"userUuid": user.ID,
		"userName": user.Username,
	}
	e.publish(g.ID, hub.KindUserJoined, payload)
	if g.LobbyID != nil {
		e.publish(*g.LobbyID, hub.KindUserJoined, map[string]interface{}{
			"userUuid": user.ID,
			"userName": user.Username,
			"gameUuid": g.ID,
		})
	}
	return g, nil
}

// StartGame opens the first round of a PENDING game.
func (e *Engine) StartGame(ctx context.Context, gameID, userID uuid.UUID) error {
	s := e.lock(gameID)
	defer e.unlock(gameID, s)

	g, err := e.store.GetGameByID(ctx, gameID)
	if err != nil {
		return err
	}
	if _, err := e.participant(ctx, gameID, userID); err != nil {
		return err
	}
	if g.State() != models.GamePending {
		return apperror.Conflict("game already started")
	}
	e.logAction(s, gameID, userID, "start", nil)
	return e.advanceLocked(ctx, s, g, nil)
}

// ProposeAnswer checks a guess for the current track. A wrong guess costs the
// caller WrongAnswerPenalty points and returns false. The first right guess marks
// the track, awards CorrectAnswerPoints, ends the round early and returns true.
// Once the track is marked the round always moves on, either right away or
// through the retry timer, even if the caller goes away.
func (e *Engine) ProposeAnswer(ctx context.Context, gameID, userID uuid.UUID, trackIndex int, text string) (bool, error) {
	s := e.lock(gameID)
	defer e.unlock(gameID, s)

	g, err := e.store.GetGameByID(ctx, gameID)
	if err != nil {
		return false, err
	}
	player, err := e.participant(ctx, gameID, userID)
	if err != nil {
		return false, err
	}
	if g.State() != models.GameRunning {
		return false, apperror.InvalidTrackIndex(fmt.Sprintf("game is %s", g.State()))
	}
	if trackIndex != g.CurrentTrackIndex {
		return false, apperror.InvalidTrackIndex(fmt.Sprintf("track %d is not the current track (%d)", trackIndex, g.CurrentTrackIndex))
	}
	if trackIndex < 0 || trackIndex >= len(g.Tracks) {
		return false, apperror.IndexOutOfRange(trackIndex, len(g.Tracks))
	}
	if g.Tracks[trackIndex].AnsweredBy != nil {
		return false, apperror.AlreadyAnswered(trackIndex)
	}

	log := e.logger.WithFields(logrus.Fields{
		"game_id":     gameID,
		"user_id":     userID,
		"track_index": trackIndex,
	})

	if !answer.IsCorrect(text, g.Tracks[trackIndex].Track) {
		score, err := e.store.AddGameUserScore(ctx, gameID, userID, -WrongAnswerPenalty)
		if err != nil {
			return false, err
		}
		e.publish(gameID, hub.KindAnswerRejected, map[string]interface{}{
			"userUuid":   userID,
			"userName":   player.UserName,
			"answerText": text,
			"trackIndex": trackIndex,
			"score":      score,
		})
		e.logAction(s, gameID, userID, "answer_rejected", map[string]interface{}{"answer": text, "trackIndex": trackIndex})
		log.Debug("answer rejected")
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	marked := g.Clone()
	marked.Tracks[trackIndex].AnsweredBy = &userID
	if err := e.store.UpdateGame(ctx, marked); err != nil {
		return false, err
	}
	*g = *marked

	score, scoreErr := e.store.AddGameUserScore(ctx, gameID, userID, CorrectAnswerPoints)
	if scoreErr != nil {
		log.WithError(scoreErr).Error("could not award points for accepted answer")
	} else {
		e.publish(gameID, hub.KindAnswerAccepted, map[string]interface{}{
			"userUuid":   userID,
			"userName":   player.UserName,
			"trackIndex": trackIndex,
			"score":      score,
		})
	}
	e.logAction(s, gameID, userID, "answer_accepted", map[string]interface{}{"answer": text, "trackIndex": trackIndex})
	log.Info("answer accepted")

	if err := e.advanceLocked(ctx, s, g, player); err != nil {
		log.WithError(err).Error("advance after accepted answer failed")
	}
	if scoreErr != nil {
		return true, fmt.Errorf("award points: %w", scoreErr)
	}
	return true, nil
}

func (e *Engine) participant(ctx context.Context, gameID, userID uuid.UUID) (*models.GameUser, error) {
	gu, err := e.store.GetGameUser(ctx, gameID, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Forbidden("user is not part of the game")
	}
	return gu, err
}

// publish logs fan-out failures instead of returning them: the operation that
// triggered the event already succeeded.
func (e *Engine) publish(key uuid.UUID, kind hub.Kind, payload map[string]interface{}) {
	err := e.hub.Publish(key, hub.Event{Kind: kind, Payload: payload})
	if err == nil {
		return
	}
	entry := e.logger.WithError(err).WithFields(logrus.Fields{"channel": key, "kind": kind})
	if errors.Is(err, apperror.ErrMissingChannel) {
		entry.Error("publish to missing fan-out channel")
		return
	}
	entry.Warn("publish failed")
}

// logAction sends an entry to the action history without blocking the game.
// Assumes s.mu is held.
func (e *Engine) logAction(s *session, gameID, actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	if e.History == nil {
		return
	}
	s.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	rec := cache.ActionRecord{
		GameID:        gameID,
		ActionIndex:   s.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     e.Clock.Now().UnixMilli(),
	}
	go func(rec cache.ActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.History.Record(ctx, rec); err != nil {
			e.logger.WithError(err).WithField("game_id", rec.GameID).Warn("failed to record game action")
		}
	}(rec)
}
