// Package server wires the gatekeeper components together and runs the HTTP
// server until the process is signalled.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/csrf"
	"github.com/dmitrijs2005/gatekeeper/internal/server/datastore"
	"github.com/dmitrijs2005/gatekeeper/internal/server/gate"
	"github.com/dmitrijs2005/gatekeeper/internal/server/probe"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessions"
	"github.com/dmitrijs2005/gatekeeper/internal/server/web"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	source   *datastore.Source
	sessions *sessions.MemoryStore
	server   *web.Server
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	length, err := csrf.NewTokenLength(c.CSRFTokenLength)
	if err != nil {
		return nil, fmt.Errorf("csrf token length: %w", err)
	}

	v := vault.New(c.CredentialsDir)
	source := datastore.NewSource(v, c.Entropy, logger)
	rm := repomanager.NewPostgresRepositoryManager()
	p := probe.New(source, c.ProbeTimeout, logger)

	us := services.NewUserService(source, rm, logger)
	ss := services.NewSetupService(v, source, rm, c.Entropy, c.EnvFile, logger)

	// the env file is derived state; rebuild it from the vault on every start
	if err := ss.RefreshEnvFile(context.Background()); err != nil {
		logger.Warn(context.Background(), "env file not generated", "path", c.EnvFile, "error", err)
	}

	store := sessions.NewMemoryStore()
	authenticator := auth.New(us, store, auth.Options{
		SessionLifetime:  c.SessionLifetime,
		MaxLoginAttempts: c.MaxLoginAttempts,
		TrustProxy:       c.TrustProxy,
	}, logger)

	g := gate.New(v, p, us, authenticator, gate.Paths{
		Setup:         c.SetupPath,
		AdminCreation: c.AdminCreationPath,
	}, logger)

	srv := web.NewServer(c, web.Deps{
		Gate:   g,
		Auth:   authenticator,
		CSRF:   csrf.New(store, length, logger),
		Probe:  p,
		Admins: us,
		Setup:  ss,
		Users:  us,
	}, logger)

	return &App{config: c, logger: logger, source: source, sessions: store, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until the context is cancelled or a signal arrives, then
// waits for the HTTP server and the session sweeper to stop.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.SessionSweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.sessions.RunSweeper(ctx, app.config.SessionSweepInterval, app.logger)
		}()
	}

	wg.Wait()

	if err := app.source.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
