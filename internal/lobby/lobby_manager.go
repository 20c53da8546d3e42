// internal/lobby/lobby_manager.go

package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/joincode"
	"github.com/jason-s-yu/blindtest/internal/selection"
	"github.com/sirupsen/logrus"
)

// Publisher is the fan-out side of the hub.
type Publisher interface {
	OpenChannel(key uuid.UUID, kinds ...hub.Kind) bool
	Publish(key uuid.UUID, ev hub.Event) error
}

// Manager runs every lobby of the process. Mutations of one lobby's pending
// settings are serialized by that lobby's lock.
type Manager struct {
	store   Store
	hub     Publisher
	games   GameCreator
	catalog Catalog // nil disables playlist imports
	logger  *logrus.Logger

	Rand      selection.Source // nil uses the global generator
	JoinCodes joincode.Source

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewManager(store Store, pub Publisher, games GameCreator, catalog Catalog, logger *logrus.Logger) *Manager {
	return &Manager{
		store:   store,
		hub:     pub,
		games:   games,
		catalog: catalog,
		logger:  logger,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// lock returns the lobby's mutex, held.
func (m *Manager) lock(lobbyID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	l, ok := m.locks[lobbyID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[lobbyID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l
}

// Restore opens a fan-out channel for every stored lobby.
func (m *Manager) Restore(ctx context.Context) error {
	lobbies, err := m.store.ListLobbies(ctx)
	if err != nil {
		return fmt.Errorf("list lobbies: %w", err)
	}
	for _, l := range lobbies {
		m.hub.OpenChannel(l.ID, hub.LobbyKinds...)
	}
	m.logger.Infof("restored %d lobbies", len(lobbies))
	return nil
}

func (m *Manager) member(ctx context.Context, lobbyID, userID uuid.UUID) error {
	_, err := m.store.GetLobbyUser(ctx, lobbyID, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.Forbidden("user is not a member of the lobby")
	}
	return err
}

func (m *Manager) publish(lobbyID uuid.UUID, kind hub.Kind, payload map[string]interface{}) {
	err := m.hub.Publish(lobbyID, hub.Event{Kind: kind, Payload: payload})
	if err == nil {
		return
	}
	entry := m.logger.WithError(err).WithFields(logrus.Fields{"lobby_id": lobbyID, "kind": kind})
	if errors.Is(err, apperror.ErrMissingChannel) {
		entry.Error("publish to missing fan-out channel")
		return
	}
	entry.Warn("publish failed")
}
