// internal/game/game.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/cache"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/joincode"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultRoundDuration is how long a track stays open for guesses.
const DefaultRoundDuration = 31 * time.Second

// DefaultRetryDelay is how soon a round transition that failed to persist is
// tried again.
const DefaultRetryDelay = time.Second

// Score changes applied by ProposeAnswer.
const (
	CorrectAnswerPoints = 10
	WrongAnswerPenalty  = 4
)

// Store is the persistence the engine needs.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetLobbyUser(ctx context.Context, lobbyID, userID uuid.UUID) (*models.LobbyUser, error)

	CreateGame(ctx context.Context, g *models.Game, memberIDs []uuid.UUID) error
	GetGameByID(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByJoinCode(ctx context.Context, code string) (*models.Game, error)
	UpdateGame(ctx context.Context, g *models.Game) error
	ListActiveGames(ctx context.Context, now time.Time) ([]models.Game, error)

	AddGameUser(ctx context.Context, gameID, userID uuid.UUID) error
	GetGameUser(ctx context.Context, gameID, userID uuid.UUID) (*models.GameUser, error)
	ListGameUsers(ctx context.Context, gameID uuid.UUID) ([]models.GameUser, error)
	AddGameUserScore(ctx context.Context, gameID, userID uuid.UUID, delta int) (int, error)
}

// Publisher is the fan-out side of the hub.
type Publisher interface {
	OpenChannel(key uuid.UUID, kinds ...hub.Kind) bool
	CloseChannel(key uuid.UUID)
	Publish(key uuid.UUID, ev hub.Event) error
}

// ActionRecorder receives the game's action history.
type ActionRecorder interface {
	Record(ctx context.Context, rec cache.ActionRecord) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine runs every game of the process. Operations on one game are serialized by
// that game's session lock; different games proceed in parallel.
type Engine struct {
	store  Store
	hub    Publisher
	logger *logrus.Logger

	Clock         Clock
	History       ActionRecorder // optional
	RoundDuration time.Duration
	RetryDelay    time.Duration
	JoinCodes     joincode.Source // nil uses the global generator

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// session is the in-memory companion of a persisted game: its lock and its single
// outstanding round timer. refs counts callers holding or waiting on mu and is
// guarded by Engine.mu.
type session struct {
	mu          sync.Mutex
	timer       *time.Timer
	round       uint64
	actionIndex int
	refs        int
}

func NewEngine(store Store, pub Publisher, logger *logrus.Logger) *Engine {
	return &Engine{
		store:         store,
		hub:           pub,
		logger:        logger,
		Clock:         systemClock{},
		RoundDuration: DefaultRoundDuration,
		RetryDelay:    DefaultRetryDelay,
		sessions:      make(map[uuid.UUID]*session),
	}
}

// lock returns the game's session with its lock held. Release it with unlock.
func (e *Engine) lock(gameID uuid.UUID) *session {
	e.mu.Lock()
	s, ok := e.sessions[gameID]
	if !ok {
		s = &session{}
		e.sessions[gameID] = s
	}
	s.refs++
	e.mu.Unlock()

	s.mu.Lock()
	return s
}

// unlock releases s. A session with no armed timer and no other caller is
// dropped, so ids of unknown, pending or finished games leave nothing behind.
func (e *Engine) unlock(gameID uuid.UUID, s *session) {
	idle := s.timer == nil
	s.mu.Unlock()

	e.mu.Lock()
	s.refs--
	if idle && s.refs == 0 && e.sessions[gameID] == s {
		delete(e.sessions, gameID)
	}
	e.mu.Unlock()
}

// forget drops the session of a finished game unless another caller still
// holds it; the last unlock drops it then. Assumes s.mu is held.
func (e *Engine) forget(gameID uuid.UUID, s *session) {
	e.mu.Lock()
	if s.refs == 0 && e.sessions[gameID] == s {
		delete(e.sessions, gameID)
	}
	e.mu.Unlock()
}

func (e *Engine) sessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// stopTimer cancels the pending advance and invalidates a callback that already
// fired but is still waiting for the lock. Assumes s.mu is held.
func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.round++
}

// armTimer replaces any pending advance with one firing after d. Assumes s.mu is held.
func (e *Engine) armTimer(s *session, gameID uuid.UUID, d time.Duration) {
	s.stopTimer()
	round := s.round
	s.timer = time.AfterFunc(d, func() {
		e.onRoundTimeout(s, gameID, round)
	})
}

// onRoundTimeout ends an unanswered round. A panic here is logged and swallowed,
// leaving the game in its last persisted state.
func (e *Engine) onRoundTimeout(s *session, gameID uuid.UUID, round uint64) {
	log := e.logger.WithField("game_id", gameID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic in round timer: %v", r)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round != round {
		log.Debugf("stale round timer fired (round %d, current %d), ignoring", round, s.round)
		return
	}
	s.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, err := e.store.GetGameByID(ctx, gameID)
	if errors.Is(err, apperror.ErrNotFound) {
		log.Warn("round timer fired for a game that no longer exists")
		e.forget(gameID, s)
		return
	}
	if err != nil {
		log.WithError(err).Errorf("round timer could not load game, retrying in %s", e.RetryDelay)
		e.armTimer(s, gameID, e.RetryDelay)
		return
	}
	if g.State() != models.GameRunning {
		log.Debug("round timer fired for a game that is not running")
		e.forget(gameID, s)
		return
	}
	log.WithField("track_index", g.CurrentTrackIndex).Info("round timed out, advancing")
	if err := e.advanceLocked(ctx, s, g, nil); err != nil {
		log.WithError(err).Error("automatic advance failed")
	}
}

// advanceLocked moves the game to its next track, or finishes it after the last
// one. answeredBy names whoever ended the previous round, nil on timeout.
// When a running game cannot be moved on, the round timer is re-armed with
// RetryDelay so the transition is tried again. Assumes s.mu is held.
func (e *Engine) advanceLocked(ctx context.Context, s *session, g *models.Game, answeredBy *models.GameUser) error {
	s.stopTimer()
	if g.State() == models.GameFinished {
		return nil
	}
	if g.CurrentTrackIndex >= len(g.Tracks)-1 {
		return e.finishLocked(ctx, s, g)
	}

	now := e.Clock.Now()
	next := g.Clone()
	if next.CurrentTrackIndex == -1 {
		next.StartAt = &now
	}
	next.CurrentTrackIndex++
	deadline := now.Add(e.RoundDuration)
	next.NextTrackAt = &deadline

	if err := e.store.UpdateGame(ctx, next); err != nil {
		e.retryLocked(s, g)
		return fmt.Errorf("advance to track %d: %w", next.CurrentTrackIndex, err)
	}
	*g = *next
	e.armTimer(s, g.ID, e.RoundDuration)

	payload := map[string]interface{}{
		"trackIndex":  g.CurrentTrackIndex,
		"nextTrackAt": deadline,
		"answeredBy":  nil,
	}
	actor := uuid.Nil
	if answeredBy != nil {
		payload["answeredBy"] = answeredBy.UserName
		actor = answeredBy.UserID
	}
	e.publish(g.ID, hub.KindNextTrack, payload)
	if g.LobbyID != nil {
		e.publish(*g.LobbyID, hub.KindNextTrack, map[string]interface{}{
			"gameUuid":   g.ID,
			"trackIndex": g.CurrentTrackIndex,
		})
	}
	e.logAction(s, g.ID, actor, "next_track", map[string]interface{}{"trackIndex": g.CurrentTrackIndex})
	return nil
}

// finishLocked sets endAt, publishes the final scores and closes the game channel.
// Assumes s.mu is held.
func (e *Engine) finishLocked(ctx context.Context, s *session, g *models.Game) error {
	s.stopTimer()
	now := e.Clock.Now()
	next := g.Clone()
	next.EndAt = &now
	next.NextTrackAt = nil
	if err := e.store.UpdateGame(ctx, next); err != nil {
		e.retryLocked(s, g)
		return fmt.Errorf("finish game: %w", err)
	}
	*g = *next

	scores := []map[string]interface{}{}
	if users, err := e.store.ListGameUsers(ctx, g.ID); err == nil {
		for _, u := range users {
			scores = append(scores, map[string]interface{}{
				"userUuid": u.UserID,
				"userName": u.UserName,
				"score":    u.Score,
			})
		}
	} else {
		e.logger.WithError(err).WithField("game_id", g.ID).Warn("could not load final scores")
	}

	e.publish(g.ID, hub.KindGameFinished, map[string]interface{}{"scores": scores})
	e.logAction(s, g.ID, uuid.Nil, "game_finished", nil)
	e.hub.CloseChannel(g.ID)
	e.forget(g.ID, s)
	e.logger.WithField("game_id", g.ID).Info("game finished")
	return nil
}

// retryLocked schedules another transition attempt for a running game whose
// update failed. A pending game stays pending for the caller to start again.
// Assumes s.mu is held.
func (e *Engine) retryLocked(s *session, g *models.Game) {
	if g.State() != models.GameRunning {
		return
	}
	e.logger.WithField("game_id", g.ID).Warnf("round transition failed, retrying in %s", e.RetryDelay)
	e.armTimer(s, g.ID, e.RetryDelay)
}
