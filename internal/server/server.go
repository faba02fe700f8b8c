// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and
// routes, and decides:
//   - which store backs the services (Postgres or SQLite)
//   - whether posts are cached in Redis
//   - whether GitHub sign-in is offered
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go: config.Load() → server.New(cfg, logger)
//	server.New: Store → Gate → services → handlers → routes
//
// This is the "composition root": every dependency is built here and
// nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/forum/internal/auth"
	"github.com/sakif/forum/internal/cache"
	"github.com/sakif/forum/internal/config"
	"github.com/sakif/forum/internal/handler"
	"github.com/sakif/forum/internal/metrics"
	"github.com/sakif/forum/internal/middleware"
	"github.com/sakif/forum/internal/repository"
	"github.com/sakif/forum/internal/repository/postgres"
	sqliteRepo "github.com/sakif/forum/internal/repository/sqlite"
	"github.com/sakif/forum/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and, when configured, the Redis client. Both
// are closed in Start after the HTTP server has drained.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	cache  *cache.PostCache // nil when REDIS_ADDR is unset
}

// New opens the store and cache named by cfg and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var pc *cache.PostCache
	if cfg.RedisAddr != "" {
		pc = cache.NewPostCache(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pc.Ping(pingCtx)
		cancel()
		if err != nil {
			// The cache is optional. Run without it rather than refuse to start.
			logger.Warn("redis unavailable, post cache disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			pc.Close()
			pc = nil
		} else {
			logger.Info("post cache enabled", slog.String("addr", cfg.RedisAddr))
		}
	}

	s, err := newServer(cfg, store, pc, logger)
	if err != nil {
		if pc != nil {
			pc.Close()
		}
		store.Close()
		return nil, err
	}
	return s, nil
}

// newServer wires an already-open store. Tests call it with an in-memory
// SQLite database.
func newServer(cfg *config.Config, store repository.Store, pc *cache.PostCache, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
		cache:  pc,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.Options{
			MaxConns:       int32(cfg.DBMaxConns),
			ConnectTimeout: cfg.DBConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("using postgres store")
		return db, nil
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	return db, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the real client IP from proxy headers
//  3. Logger: logs each request with timing info
//  4. Metrics: records latency per route pattern
//  5. Recoverer: turns panics into 500s
//  6. Timeout: gives every request a deadline the store respects
//  7. OptionalAuth: puts the caller's email in the context when a valid token is sent
//
// Access rules are not expressed as route groups. Each service operation
// checks its own tier, so a route cannot be mounted with the wrong guard.
func (s *Server) setupRoutes() error {
	var tokens *auth.TokenService
	if s.config.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
	} else {
		s.logger.Warn("JWT_SECRET not set, every request is anonymous")
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(s.config.RequestTimeout))
	s.router.Use(auth.OptionalAuth(tokens))

	// A typed nil *cache.PostCache must not reach the services as a
	// non-nil interface.
	var postCache service.PostCache
	if s.cache != nil {
		postCache = s.cache
	}

	gate := service.NewGate(s.store)
	postService := service.NewPostService(s.store, s.store, s.store, gate, s.logger, service.PostServiceOptions{
		Cache:           postCache,
		EnrichChunkSize: s.config.EnrichChunkSize,
	})
	voteService := service.NewVoteService(s.store, postCache, s.logger)
	userService := service.NewUserService(s.store, gate, s.logger)
	commentService := service.NewCommentService(s.store, gate, s.logger)
	paymentService := service.NewPaymentService(s.store, s.store, gate, s.logger)
	statsService := service.NewStatsService(s.store, gate)
	authService := service.NewAuthService(s.store, tokens, s.logger)

	healthHandler := handler.NewHealthHandler(s.logger)
	postHandler := handler.NewPostHandler(postService, voteService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	commentHandler := handler.NewCommentHandler(commentService, s.logger)
	adminHandler := handler.NewAdminHandler(paymentService, statsService, s.logger)

	s.router.Get("/", healthHandler.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// === Auth Routes ===
	// Only registered when GitHub OAuth and JWT are both configured.
	var github handler.GitHubExchanger
	if s.config.OAuthEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(github, authService, s.secureCookies(), s.logger)
	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.logger.Info("GitHub OAuth enabled", slog.String("callback", s.config.GitHubCallbackURL))
	}
	s.router.Post("/auth/logout", authHandler.HandleLogout)
	s.router.With(auth.RequireAuth(tokens)).Get("/api/me", authHandler.HandleMe)

	// === Posts ===
	s.router.Post("/post", postHandler.HandleCreate)
	s.router.Get("/post/{id}", postHandler.HandleGet)
	s.router.Patch("/post/upVote/{id}", postHandler.HandleUpVote)
	s.router.Patch("/post/downVote/{id}", postHandler.HandleDownVote)
	s.router.Delete("/post/delete/{id}", postHandler.HandleDelete)
	s.router.Get("/posts", postHandler.HandleList)
	s.router.Get("/posts/{email}", postHandler.HandleListByAuthor)
	s.router.Get("/postsCount", postHandler.HandleCount)
	s.router.Get("/badge/{email}", postHandler.HandleBadge)

	// === Users ===
	s.router.Post("/users", userHandler.HandleRegister)
	s.router.Get("/users", userHandler.HandleList)
	s.router.Get("/user/{email}", userHandler.HandleGet)
	s.router.Patch("/user/role/{id}", userHandler.HandleSetRole)

	// === Comments and moderation ===
	s.router.Post("/comment", commentHandler.HandleCreate)
	s.router.Get("/comment/{title}", commentHandler.HandleListByTitle)
	s.router.Post("/comment/report/{id}", commentHandler.HandleReport)
	s.router.Get("/reports", commentHandler.HandleListReports)
	s.router.Delete("/reports/{id}", commentHandler.HandleResolveReport)

	// === Payments and dashboard ===
	s.router.Post("/payments", adminHandler.HandleRecordPayment)
	s.router.Get("/admin-stats", adminHandler.HandleStats)

	return nil
}

// secureCookies marks cookies Secure unless the callback is plain http,
// which only happens in local development.
func (s *Server) secureCookies() bool {
	return strings.HasPrefix(s.config.GitHubCallbackURL, "https://")
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the Redis client and the store
func (s *Server) Start() error {
	defer s.store.Close()
	if s.cache != nil {
		defer s.cache.Close()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
