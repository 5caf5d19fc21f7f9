package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/catalog"
	"github.com/terra-clan/challenge-tracker/internal/completion"
	"github.com/terra-clan/challenge-tracker/internal/config"
	"github.com/terra-clan/challenge-tracker/internal/health"
	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/models"
)

// UserLookup loads user records
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Leaderboard serves the top of the points ranking
type Leaderboard interface {
	Top(ctx context.Context, limit int64) ([]models.PointsEntry, error)
}

// Deps are the collaborators of the HTTP server. Leaderboard, Health and
// Metrics are optional.
type Deps struct {
	Completions *completion.Service
	Users       UserLookup
	Catalog     *catalog.Loader
	Tokens      TokenValidator
	Leaderboard Leaderboard
	Health      *health.Registry
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	csrf           config.CSRFConfig
	router         *chi.Mux
	completions    *completion.Service
	users          UserLookup
	catalog        *catalog.Loader
	leaderboard    Leaderboard
	health         *health.Registry
	metrics        *metrics.Metrics
	authMiddleware *AuthMiddleware
	logger         zerolog.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, csrfCfg config.CSRFConfig, deps Deps) *Server {
	logger := deps.Logger.With().Str("component", "api").Logger()

	healthRegistry := deps.Health
	if healthRegistry == nil {
		healthRegistry = health.NewRegistry(0)
	}

	s := &Server{
		config:         cfg,
		csrf:           csrfCfg,
		completions:    deps.Completions,
		users:          deps.Users,
		catalog:        deps.Catalog,
		leaderboard:    deps.Leaderboard,
		health:         healthRegistry,
		metrics:        deps.Metrics,
		authMiddleware: NewAuthMiddleware(deps.Tokens, logger),
		logger:         logger,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(s.authMiddleware.Identify)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Completion API
	r.Group(func(r chi.Router) {
		if s.csrf.AuthKey != "" {
			r.Use(csrf.Protect(
				[]byte(s.csrf.AuthKey),
				csrf.Secure(s.csrf.Secure),
				csrf.Path("/"),
				csrf.RequestHeader("X-CSRF-Token"),
				csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
			))
			r.Get("/csrf-token", s.handleCSRFToken)
		}

		r.Post("/modern-challenge-completed", s.completionHandler(completion.VariantModern))
		r.Post("/challenge-completed", s.completionHandler(completion.VariantSimple))
		r.Post("/completed-challenge", s.completionHandler(completion.VariantSimple)) // deprecated alias
		r.Post("/project-completed", s.completionHandler(completion.VariantProject))
		r.Post("/completed-zipline-or-basejump", s.completionHandler(completion.VariantProject)) // deprecated alias
		r.Post("/backend-challenge-completed", s.completionHandler(completion.VariantBackend))
	})

	// Learn site redirects
	r.Get("/challenges/current-challenge", s.handleCurrentChallenge)
	r.Get("/challenges", s.handleRedirectToLearn)
	r.Get("/challenges/*", s.handleRedirectToLearn)
	r.Get("/map", s.handleRedirectToLearn)

	if s.leaderboard != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/leaderboard", s.handleLeaderboard)
		})
	}

	s.router = r
}
