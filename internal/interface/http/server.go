// Package http exposes the social graph over a JSON REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alem-hub/socialgraph/internal/application/command"
	"github.com/alem-hub/socialgraph/internal/application/query"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/internal/interface/http/handlers"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	// AllowedOrigins for CORS. Empty disables CORS handling.
	AllowedOrigins []string

	// Version is reported by the health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   64 << 10,
		AllowedOrigins: []string{"*"},
		Version:        "dev",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command handlers (write side)
	CreateAccount *command.CreateAccountHandler
	CreateProfile *command.CreateProfileHandler
	Follow        *command.FollowHandler
	Unfollow      *command.UnfollowHandler
	Like          *command.LikeHandler
	Unlike        *command.UnlikeHandler
	CreateReview  *command.CreateReviewHandler
	DeleteReview  *command.DeleteReviewHandler

	// Query handlers (read side)
	GetAccount   *query.GetAccountHandler
	GetProfile   *query.GetProfileHandler
	GetFollowers *query.GetFollowersHandler
	GetFollowing *query.GetFollowingHandler
	IsFollowing  *query.IsFollowingHandler
	IsLiked      *query.IsLikedHandler
	GetReviews   *query.GetReviewsHandler
	GetMembers   *query.GetMembersHandler

	Logger *logger.Logger

	// Health backs /ready. Nil means always ready.
	Health handlers.HealthChecker

	// Metrics records request metrics and serves /metrics when set.
	Metrics MetricsProvider
}

// MetricsProvider is the slice of the metrics registry the server needs.
type MetricsProvider interface {
	handlers.HTTPObserver
	Handler() http.Handler
}

// NewDependencies builds every command and query handler over one store.
// cache may be nil.
func NewDependencies(
	store graph.Store,
	publisher shared.EventPublisher,
	cache graph.RelationCache,
	bcryptCost int,
	log *logger.Logger,
) Dependencies {
	return Dependencies{
		CreateAccount: command.NewCreateAccountHandler(store, publisher, bcryptCost),
		CreateProfile: command.NewCreateProfileHandler(store, publisher),
		Follow:        command.NewFollowHandler(store, publisher).WithRelationCache(cache),
		Unfollow:      command.NewUnfollowHandler(store, publisher).WithRelationCache(cache),
		Like:          command.NewLikeHandler(store, publisher).WithRelationCache(cache),
		Unlike:        command.NewUnlikeHandler(store, publisher).WithRelationCache(cache),
		CreateReview:  command.NewCreateReviewHandler(store, publisher),
		DeleteReview:  command.NewDeleteReviewHandler(store, publisher),

		GetAccount:   query.NewGetAccountHandler(store),
		GetProfile:   query.NewGetProfileHandler(store),
		GetFollowers: query.NewGetFollowersHandler(store),
		GetFollowing: query.NewGetFollowingHandler(store),
		IsFollowing:  query.NewIsFollowingHandler(store, cache),
		IsLiked:      query.NewIsLikedHandler(store, cache),
		GetReviews:   query.NewGetReviewsHandler(store),
		GetMembers:   query.NewGetMembersHandler(store),

		Logger: log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	s.router = s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the root handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(handlers.HTTPMetrics(s.deps.Metrics))
	}
	r.Use(handlers.SecurityHeadersMiddleware)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if s.config.MaxBodyBytes > 0 {
			r.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
		}

		r.Post("/follow", s.handleFollow)
		r.Post("/unfollow", s.handleUnfollow)
		r.Get("/followers/{targetId}", s.handleGetFollowers)
		r.Get("/following/{userId}", s.handleGetFollowing)
		r.Get("/is-following", s.handleIsFollowing)

		r.Post("/like", s.handleLike)
		r.Post("/unlike", s.handleUnlike)
		r.Get("/is-liked", s.handleIsLiked)

		// GET takes a target id, DELETE a review id.
		r.Get("/reviews/{id}", s.handleGetReviews)
		r.Post("/reviews", s.handleCreateReview)
		r.Delete("/reviews/{id}", s.handleDeleteReview)

		r.Get("/members/{profileId}", s.handleGetMembers)

		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts/{id}", s.handleGetAccount)
		r.Post("/profiles", s.handleCreateProfile)
		r.Get("/profiles/{id}", s.handleGetProfile)
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
