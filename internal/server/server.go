// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: the only place that knows how the
// pieces are built and connected.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → New():
//	  sqlstore.Open  → AdviceDB, UserDB        (repositories)
//	  session.Redis  → revocation list          (optional)
//	  auth.*         → TokenService, Verifier, PasswordService, GitHubProvider
//	  service.*      → AdviceService, AuthService
//	  handler.*      → AdviceHandler, AuthHandler, HealthHandler
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get service interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/advice-board/internal/auth"
	"github.com/sakif/advice-board/internal/config"
	"github.com/sakif/advice-board/internal/handler"
	"github.com/sakif/advice-board/internal/middleware"
	"github.com/sakif/advice-board/internal/repository/sqlstore"
	"github.com/sakif/advice-board/internal/service"
	"github.com/sakif/advice-board/internal/session"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database and (when configured) the Redis client.
// Close releases both; Start calls it on the way out.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db    *sqlstore.DB
	redis *session.RedisStore // nil when REDIS_URL is unset
}

// New opens the backing stores and wires every route.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	driver, err := sqlstore.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}

	db, err := sqlstore.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.RedisURL != "" {
		store, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s.redis = store
	} else {
		logger.Warn("REDIS_URL not set: logout cannot revoke tokens before they expire")
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/health                              → store and Redis ping
//	POST   /api/user/register                       → create account
//	POST   /api/user/login                          → token
//	POST   /api/user/logout                 [auth]  → revoke token
//	GET    /api/user/me                     [auth]  → profile
//	GET    /api/advices                     [opt]   → list
//	GET    /api/advices/search              [opt]   → search
//	GET    /api/advices/{id}                [opt]   → one advice
//	POST   /api/advices                     [auth]  → create
//	PUT    /api/advices/{id}                [auth]  → update
//	DELETE /api/advices/{id}                [auth]  → delete
//	POST   /api/advices/{id}/replies        [auth]  → add reply
//	PUT    /api/advices/{id}/replies/{replyId} [auth] → update reply
//	DELETE /api/advices/{id}/replies/{replyId} [auth] → delete reply
//	GET    /auth/github/login, /auth/github/callback  → GitHub sign-in
//
// [opt] routes accept an unauthenticated viewer; a valid token only adds
// _isMine. [auth] routes answer 401 without one.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns the id the logger prints
//  2. RealIP: client IP from proxy headers
//  3. Logger
//  4. Recoverer: a panic becomes a 500 instead of a crash
//  5. CORS: preflights are answered before routing
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.CORSOrigin))

	tokens, err := auth.NewTokenService(s.config.TokenSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// A nil *RedisStore must not become a non-nil interface value.
	var revocations auth.RevocationList
	health := map[string]handler.Pinger{"database": s.db}
	if s.redis != nil {
		revocations = s.redis
		health["redis"] = s.redis
	}
	verifier := auth.NewVerifier(tokens, revocations, s.logger)

	var github handler.GitHubAuthenticator
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	adviceService := service.NewAdviceService(s.db.Advices(), s.logger)
	authService := service.NewAuthService(s.db.Users(), tokens, auth.NewPasswordService(), verifier, s.logger)

	adviceHandler := handler.NewAdviceHandler(adviceService, s.logger)
	authHandler := handler.NewAuthHandler(authService, github, tokens.TTL(), s.logger)
	healthHandler := handler.NewHealthHandler(health, s.logger)

	requireAuth := auth.RequireAuth(verifier)
	optionalAuth := auth.OptionalAuth(verifier)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.With(requireAuth).Post("/logout", authHandler.HandleLogout)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)
		})

		r.Route("/advices", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/", adviceHandler.HandleList)
				r.Get("/search", adviceHandler.HandleSearch)
				r.Get("/{id}", adviceHandler.HandleGet)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", adviceHandler.HandleCreate)
				r.Put("/{id}", adviceHandler.HandleUpdate)
				r.Delete("/{id}", adviceHandler.HandleDelete)
				r.Post("/{id}/replies", adviceHandler.HandleAddReply)
				r.Put("/{id}/replies/{replyId}", adviceHandler.HandleUpdateReply)
				r.Delete("/{id}/replies/{replyId}", adviceHandler.HandleDeleteReply)
			})
		})
	})

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases Redis and the database.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close Redis and the database
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("db_driver", s.config.DBDriver),
			slog.Bool("revocation", s.redis != nil),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
