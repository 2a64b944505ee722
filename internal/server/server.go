package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gatehouseio/gatehouse/internal/config"
	"github.com/gatehouseio/gatehouse/internal/handler"
	"github.com/gatehouseio/gatehouse/internal/identity"
	"github.com/gatehouseio/gatehouse/internal/ratelimit"
	"github.com/gatehouseio/gatehouse/internal/server/middleware"
	"github.com/gatehouseio/gatehouse/internal/service"
	"github.com/gatehouseio/gatehouse/internal/storage"
	"github.com/gatehouseio/gatehouse/internal/store"
)

// authRequestsPerMinute is the coarse per-IP ceiling on the auth surface.
const authRequestsPerMinute = 20

// Server is the top-level HTTP server. It owns the Chi router and the
// services the handlers depend on.
type Server struct {
	cfg        *config.Config
	version    string
	router     chi.Router
	store      *store.Store
	ident      *identity.Service
	tokens     *service.TokenService
	objects    storage.ObjectStore
	limiter    ratelimit.Limiter
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware wired, ready to
// listen. Call ListenAndServe to start accepting connections.
func New(cfg *config.Config, version string, st *store.Store, ident *identity.Service,
	tokens *service.TokenService, objects storage.ObjectStore, limiter ratelimit.Limiter,
	logger *slog.Logger) *Server {

	s := &Server{
		cfg:     cfg,
		version: version,
		store:   st,
		ident:   ident,
		tokens:  tokens,
		objects: objects,
		limiter: limiter,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	production := s.cfg.Production()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(production))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.TrustedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(s.limiter, middleware.DefaultRouteLimits()))

	authH := handler.NewAuthHandler(s.ident, s.logger, production)
	tokenH := handler.NewTokenHandler(s.tokens, s.logger, production)
	settingsH := handler.NewSettingsHandler(s.store, s.ident, s.logger, production)
	sessionH := handler.NewSessionHandler(s.store, s.logger, production)
	orgH := handler.NewOrganizationHandler(s.store, s.logger, production)
	avatarH := handler.NewAvatarHandler(s.store, s.objects, s.logger, production)
	systemH := handler.NewSystemHandler(s.store, s.objects, s.version, s.cfg.Environment)

	// --- Public routes ---
	r.Get("/api/health", systemH.Health)
	r.Get("/api/avatar/{userID}", avatarH.Serve)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.AuthThrottle(authRequestsPerMinute))

		r.Post("/sign-up", authH.SignUp)
		r.Post("/sign-in", authH.SignIn)
		r.Post("/sign-out", authH.SignOut)
		r.Get("/session", authH.Session)
		r.Post("/request-password-reset", authH.RequestPasswordReset)
		r.Post("/reset-password", authH.ResetPassword)
		r.Get("/verify", authH.Verify)
		r.Get("/google", authH.GoogleStart)
		r.Get("/google/callback", authH.GoogleCallback)
	})

	// --- Authenticated routes ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(s.ident, s.tokens))

		r.Route("/api/api-tokens", func(r chi.Router) {
			r.Get("/", tokenH.List)
			r.Post("/", tokenH.Create)
			r.Delete("/{id}", tokenH.Delete)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Patch("/profile", settingsH.UpdateProfile)
			r.Get("/preferences", settingsH.GetPreferences)
			r.Patch("/preferences", settingsH.UpdatePreferences)
			r.Post("/password", settingsH.ChangePassword)
			r.Post("/email", settingsH.ChangeEmail)
			r.Delete("/account", settingsH.DeleteAccount)
			r.Post("/avatar", avatarH.Upload)
			r.Delete("/avatar", avatarH.Remove)
			r.Get("/sessions", sessionH.List)
			r.Delete("/sessions", sessionH.DeleteAll)
			r.Delete("/sessions/{id}", sessionH.Delete)
		})

		r.Route("/api/organization", func(r chi.Router) {
			r.Get("/", orgH.Get)
			r.Patch("/", orgH.Update)
		})
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "environment", s.cfg.Environment)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing database", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
