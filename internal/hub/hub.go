// internal/hub/hub.go
package hub

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/sirupsen/logrus"
)

// Kind names an event type a channel may carry.
type Kind string

const (
	KindUserJoined     Kind = "USER_JOINED"
	KindNewTracks      Kind = "NEW_TRACKS"
	KindNewGame        Kind = "NEW_GAME"
	KindNextTrack      Kind = "NEXT_TRACK"
	KindAnswerRejected Kind = "ANSWER_REJECTED"
	KindAnswerAccepted Kind = "ANSWER_ACCEPTED"
	KindGameFinished   Kind = "GAME_FINISHED"
)

// LobbyKinds are the events a lobby channel carries, including the game events
// proxied to the lobby.
var LobbyKinds = []Kind{KindUserJoined, KindNewTracks, KindNewGame, KindNextTrack}

// GameKinds are the events a game channel carries.
var GameKinds = []Kind{KindUserJoined, KindAnswerRejected, KindAnswerAccepted, KindNextTrack, KindGameFinished}

// Event is what subscribers receive.
type Event struct {
	Kind    Kind                   `json:"kind"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// DefaultBufferSize is the per-subscriber queue length. A subscriber that falls
// further behind loses events rather than blocking publishers.
const DefaultBufferSize = 32

// Hub maps a lobby or game id to its broadcast channel.
type Hub struct {
	mu         sync.RWMutex
	channels   map[uuid.UUID]*channel
	logger     *logrus.Logger
	bufferSize int
}

type channel struct {
	kinds map[Kind]struct{}
	subs  map[*Subscription]struct{}
}

// Subscription delivers events published after it was created. C is closed when
// the subscription or its channel is closed.
type Subscription struct {
	C   <-chan Event
	ch  chan Event
	key uuid.UUID
	hub *Hub
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		channels:   make(map[uuid.UUID]*channel),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
}

// OpenChannel creates the channel for key restricted to kinds. It returns false,
// leaving the existing channel untouched, when key already has one.
func (h *Hub) OpenChannel(key uuid.UUID, kinds ...Kind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.channels[key]; exists {
		h.logger.WithField("channel", key).Debug("fan-out channel already open")
		return false
	}
	c := &channel{
		kinds: make(map[Kind]struct{}, len(kinds)),
		subs:  make(map[*Subscription]struct{}),
	}
	for _, k := range kinds {
		c.kinds[k] = struct{}{}
	}
	h.channels[key] = c
	return true
}

// CloseChannel removes the channel and closes every subscription on it.
func (h *Hub) CloseChannel(key uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[key]
	if !ok {
		return
	}
	for sub := range c.subs {
		close(sub.ch)
	}
	delete(h.channels, key)
}

func (h *Hub) HasChannel(key uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[key]
	return ok
}

// Publish fans ev out to the current subscribers of key. Publishing to a key with
// no channel returns apperror.ErrMissingChannel.
func (h *Hub) Publish(key uuid.UUID, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.channels[key]
	if !ok {
		return apperror.MissingChannel(key.String())
	}
	if _, allowed := c.kinds[ev.Kind]; !allowed {
		return apperror.Validation("kind", fmt.Sprintf("channel %s does not carry %s events", key, ev.Kind))
	}
	for sub := range c.subs {
		select {
		case sub.ch <- ev:
		default:
			h.logger.WithFields(logrus.Fields{
				"channel": key,
				"kind":    ev.Kind,
			}).Warn("subscriber queue full, dropping event")
		}
	}
	return nil
}

func (h *Hub) Subscribe(key uuid.UUID) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[key]
	if !ok {
		return nil, apperror.MissingChannel(key.String())
	}
	ch := make(chan Event, h.bufferSize)
	sub := &Subscription{C: ch, ch: ch, key: key, hub: h}
	c.subs[sub] = struct{}{}
	return sub, nil
}

// Close detaches the subscription. It is safe to call more than once and after
// the channel itself was closed.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	c, ok := s.hub.channels[s.key]
	if !ok {
		return
	}
	if _, ok := c.subs[s]; ok {
		delete(c.subs, s)
		close(s.ch)
	}
}

// Subscribers returns the number of live subscriptions on key.
func (h *Hub) Subscribers(key uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.channels[key]; ok {
		return len(c.subs)
	}
	return 0
}
