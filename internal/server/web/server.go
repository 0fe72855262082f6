// Package web is the HTTP adapter of the gatekeeper server. It turns guard
// decisions into responses and hosts the bootstrap, login and session
// routes.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/csrf"
	"github.com/dmitrijs2005/gatekeeper/internal/server/gate"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// ConnectionAsserter fails fast when the database is unreachable.
type ConnectionAsserter interface {
	AssertConnected(ctx context.Context) error
}

// AdminCreator creates the first administrator account.
type AdminCreator interface {
	CreateInitialAdmin(ctx context.Context, creds auth.Credentials) (*models.User, error)
}

// Configurer stores database credentials and migrates the schema.
type Configurer interface {
	Authorize(ctx context.Context, entropy string, authenticated bool) error
	Configure(ctx context.Context, cfg vault.DatabaseConfig) error
}

// UserLookup resolves the account an authenticated session belongs to.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Deps are the components a Server routes requests to.
type Deps struct {
	Gate   *gate.Gate
	Auth   *auth.Authenticator
	CSRF   *csrf.Guard
	Probe  ConnectionAsserter
	Admins AdminCreator
	Setup  Configurer
	Users  UserLookup
}

type Server struct {
	addr            string
	setupPath       string
	adminPath       string
	loginPath       string
	shutdownTimeout time.Duration

	gate   *gate.Gate
	auth   *auth.Authenticator
	csrf   *csrf.Guard
	probe  ConnectionAsserter
	admins AdminCreator
	setup  Configurer
	users  UserLookup
	logger logging.Logger
}

func NewServer(cfg *config.Config, deps Deps, logger logging.Logger) *Server {
	return &Server{
		addr:            cfg.HTTPAddr,
		setupPath:       cfg.SetupPath,
		adminPath:       cfg.AdminCreationPath,
		loginPath:       cfg.LoginPath,
		shutdownTimeout: cfg.ShutdownTimeout,
		gate:            deps.Gate,
		auth:            deps.Auth,
		csrf:            deps.CSRF,
		probe:           deps.Probe,
		admins:          deps.Admins,
		setup:           deps.Setup,
		users:           deps.Users,
		logger:          logger.With("module", "http_server"),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/csrf", s.handleCSRFToken)

	// guards run first so a token is only consumed by a route that runs
	r.Post(s.setupPath, s.RunIfSetup(s.protect(s.handleSetup)))
	r.Post(s.adminPath, s.RunIfAdminCreation(s.protect(s.handleAdminCreate)))
	r.Post(s.loginPath, s.RunIfUnauthenticated(s.protect(s.handleLogin)))
	r.Post("/logout", s.RunIfSessionPresent(s.protect(s.handleLogout)))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.failFast)
		r.Get("/session", s.RunIfReadyAndAuthenticated(s.handleSession, http.StatusUnauthorized))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusNotFound, statusResponse{Status: false, Error: "not found"})
	})

	return r
}

// protect checks the CSRF token before action.
func (s *Server) protect(action http.HandlerFunc) http.HandlerFunc {
	return s.csrf.Protect(s.auth, s.writeErr)(action).ServeHTTP
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
