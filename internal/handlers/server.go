// internal/handlers/server.go

// Package handlers exposes the lobby and game engines over HTTP and WebSocket.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/jason-s-yu/blindtest/internal/auth"
	"github.com/jason-s-yu/blindtest/internal/catalog"
	"github.com/jason-s-yu/blindtest/internal/game"
	"github.com/jason-s-yu/blindtest/internal/hub"
	"github.com/jason-s-yu/blindtest/internal/lobby"
	"github.com/jason-s-yu/blindtest/internal/middleware"
	"github.com/jason-s-yu/blindtest/internal/models"
	"github.com/jason-s-yu/blindtest/internal/selection"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// UserStore is the account storage the user and playlist endpoints need.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	ListKnownPlaylists(ctx context.Context, userID uuid.UUID) ([]models.Playlist, error)
	SearchPlaylists(ctx context.Context, query string, limit int) ([]models.Playlist, error)
}

// Spotify is the account linking side of the catalog.
type Spotify interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// LibrarySyncer links accounts and imports a user's library.
type LibrarySyncer interface {
	Link(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) (*catalog.Profile, error)
	SyncUser(ctx context.Context, userID uuid.UUID) (*catalog.SyncResult, error)
	TopTracks(ctx context.Context, userID uuid.UUID, count int, timeRange string) ([]models.Track, error)
}

// Server carries the dependencies of every handler. Spotify and Syncer are nil
// when no app credentials are configured.
type Server struct {
	users   UserStore
	lobbies *lobby.Manager
	games   *game.Engine
	hub     *hub.Hub
	tokens  *auth.Issuer
	logger  *logrus.Logger

	Spotify Spotify
	Syncer  LibrarySyncer

	Rand           selection.Source
	HashParams     auth.HashParams
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

func NewServer(users UserStore, lobbies *lobby.Manager, games *game.Engine, h *hub.Hub, tokens *auth.Issuer, logger *logrus.Logger) *Server {
	return &Server{
		users:          users,
		lobbies:        lobbies,
		games:          games,
		hub:            h,
		tokens:         tokens,
		logger:         logger,
		HashParams:     auth.DefaultHashParams,
		AllowedOrigins: []string{"https://*", "http://*"},
		WriteTimeout:   3 * time.Second,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/user/create", s.handleCreateUser)
	r.Post("/user/login", s.handleLogin)
	r.Post("/user/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.RequireAuth)

		r.Get("/user/me", s.handleMe)

		r.Route("/lobby", func(r chi.Router) {
			r.Post("/create", s.handleCreateLobby)
			r.Post("/join", s.handleJoinLobby)
			r.Get("/ws/{id}", s.handleLobbyWS)
			r.Get("/{id}", s.handleGetLobby)
			r.Post("/{id}/playlist", s.handleAddPlaylist)
			r.Post("/{id}/common", s.handleAddCommon)
			r.Post("/{id}/settings", s.handleUpdateSettings)
			r.Post("/{id}/game", s.handleFinalizeGame)
		})

		r.Route("/game", func(r chi.Router) {
			r.Post("/create", s.handleCreateGame)
			r.Post("/join", s.handleJoinGame)
			r.Get("/ws/{id}", s.handleGameWS)
			r.Get("/{id}", s.handleGetGame)
			r.Post("/{id}/start", s.handleStartGame)
			r.Post("/{id}/answer", s.handleAnswer)
		})

		r.Get("/spotify/login", s.handleSpotifyLogin)
		r.Get("/spotify/callback", s.handleSpotifyCallback)
		r.Post("/spotify/sync", s.handleSpotifySync)

		r.Get("/playlists/mine", s.handleMyPlaylists)
		r.Get("/playlists/search", s.handleSearchPlaylists)
		r.Get("/playlists/top", s.handleTopTracks)
	})
	return r
}

// pathUUID parses the named URL parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperror.Validation(name, name+" must be a uuid")
	}
	return id, nil
}
