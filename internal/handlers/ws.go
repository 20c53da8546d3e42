// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	lobbyProtocol = "lobby"
	gameProtocol  = "game"
	pingInterval  = 30 * time.Second
)

// handleLobbyWS streams the lobby's events to one of its members.
func (s *Server) handleLobbyWS(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.lobbies.IsMember(r.Context(), lobbyID, callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, apperror.Forbidden("not a member of this lobby"))
		return
	}
	s.serveSubscription(w, r, lobbyID, lobbyProtocol)
}

// handleGameWS streams the game's events to one of its participants.
func (s *Server) handleGameWS(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.games.IsParticipant(r.Context(), gameID, callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, apperror.Forbidden("not a participant of this game"))
		return
	}
	s.serveSubscription(w, r, gameID, gameProtocol)
}

// serveSubscription upgrades the request and forwards every event published on
// key until the client leaves or the channel closes. Client frames are ignored.
func (s *Server) serveSubscription(w http.ResponseWriter, r *http.Request, key uuid.UUID, protocol string) {
	sub, err := s.hub.Subscribe(key)
	if err != nil {
		if errors.Is(err, apperror.ErrMissingChannel) {
			err = apperror.NotFound(protocol+" channel", key.String())
		}
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{protocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != protocol {
		c.Close(BadSubprotocolError, "client must speak the "+protocol+" subprotocol")
		return
	}

	log := s.logger.WithFields(logrus.Fields{"channel": key, "user_id": callerID(r)})
	middleware.LogWebSocketConnect(s.logger, r, protocol)
	err = s.pump(c.CloseRead(r.Context()), c, sub.C, log)
	middleware.LogWebSocketDisconnect(s.logger, r, protocol, err)
}

func (s *Server) pump(ctx context.Context, c *websocket.Conn, events <-chan hub.Event, log *logrus.Entry) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// client went away
			return nil

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, s.WriteTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}

		case ev, ok := <-events:
			if !ok {
				log.Debug("channel closed, ending subscription")
				return c.Close(websocket.StatusNormalClosure, "channel closed")
			}
			wctx, cancel := context.WithTimeout(ctx, s.WriteTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					c.Close(SlowConsumerError, "write timeout")
				}
				return err
			}
		}
	}
}
