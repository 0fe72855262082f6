// Package gate decides, per request, whether the application is ready to
// serve and whether a guarded route may run.
//
// The readiness cascade checks, in order: the database credential set
// exists, the database answers, the schema is present, an administrator
// account exists. The first failing check decides. Nothing is cached
// between requests.
package gate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/probe"
)

type CredentialChecker interface {
	Exists(name string) bool
}

type Prober interface {
	Probe(ctx context.Context) (bool, error)
}

type AdminCounter interface {
	CountAdmins(ctx context.Context) (int, error)
}

type SessionChecker interface {
	Authenticated(ctx context.Context, r *http.Request) bool
}

// Paths are the bootstrap routes the cascade redirects to.
type Paths struct {
	Setup         string
	AdminCreation string
}

// Evaluation is the cascade result for one request.
type Evaluation struct {
	State    State
	Decision Decision
}

type Gate struct {
	credentials CredentialChecker
	probe       Prober
	admins      AdminCounter
	sessions    SessionChecker
	paths       Paths
	logger      logging.Logger
}

func New(credentials CredentialChecker, p Prober, admins AdminCounter, sessions SessionChecker, paths Paths, logger logging.Logger) *Gate {
	return &Gate{
		credentials: credentials,
		probe:       p,
		admins:      admins,
		sessions:    sessions,
		paths:       paths,
		logger:      logger.With("module", "gate"),
	}
}

// Evaluate runs the readiness cascade for a request to path. Redirects use
// code (302 when 0). Requests already on the target of a redirect proceed.
// Errors that are neither connectivity nor schema problems are returned.
func (g *Gate) Evaluate(ctx context.Context, path string, code int) (Evaluation, error) {
	toSetup := func(state State) Evaluation {
		if path == g.paths.Setup {
			return Evaluation{State: state, Decision: Proceed()}
		}
		g.logger.Debug(ctx, "gate redirect", "state", state.String(), "path", path)
		return Evaluation{State: state, Decision: RedirectTo(g.paths.Setup, code)}
	}

	if !g.credentials.Exists(common.DatabaseVaultName) {
		return toSetup(StateCredentialsMissing), nil
	}

	ok, err := g.probe.Probe(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("probe: %w", err)
	}
	if !ok {
		return toSetup(StateConnectivityFailure), nil
	}

	n, err := g.admins.CountAdmins(ctx)
	if err != nil {
		switch probe.Classify(err) {
		case probe.KindSchemaMissing:
			return toSetup(StateSchemaMissing), nil
		case probe.KindConnectivity:
			return toSetup(StateConnectivityFailure), nil
		case probe.KindConfigurationMissing:
			return toSetup(StateCredentialsMissing), nil
		default:
			return Evaluation{}, fmt.Errorf("count admins: %w", err)
		}
	}

	if n == 0 {
		if path == g.paths.AdminCreation {
			return Evaluation{State: StateNoAdminUser, Decision: Proceed()}, nil
		}
		g.logger.Debug(ctx, "gate redirect", "state", StateNoAdminUser.String(), "path", path)
		return Evaluation{State: StateNoAdminUser, Decision: RedirectTo(g.paths.AdminCreation, code)}, nil
	}

	return Evaluation{State: StateReady, Decision: Proceed()}, nil
}

// ReadyAndAuthenticated runs the cascade first and returns its redirect
// regardless of the session. Otherwise the route runs only for an
// authenticated session and is skipped, without redirect, for anyone else.
func (g *Gate) ReadyAndAuthenticated(ctx context.Context, r *http.Request, code int) (Decision, error) {
	ev, err := g.Evaluate(ctx, r.URL.Path, code)
	if err != nil {
		return Decision{}, err
	}
	if ev.Decision.Action != ActionProceed {
		return ev.Decision, nil
	}
	if !g.sessions.Authenticated(ctx, r) {
		return Skip(), nil
	}
	return Proceed(), nil
}

// Unauthenticated runs the cascade first; the route then runs only when no
// authenticated session exists.
func (g *Gate) Unauthenticated(ctx context.Context, r *http.Request) (Decision, error) {
	ev, err := g.Evaluate(ctx, r.URL.Path, http.StatusFound)
	if err != nil {
		return Decision{}, err
	}
	if ev.Decision.Action != ActionProceed {
		return ev.Decision, nil
	}
	if g.sessions.Authenticated(ctx, r) {
		return Skip(), nil
	}
	return Proceed(), nil
}

// SessionPresent skips the cascade and only checks for an authenticated
// session, for routes that must work mid-setup.
func (g *Gate) SessionPresent(ctx context.Context, r *http.Request) Decision {
	if g.sessions.Authenticated(ctx, r) {
		return Proceed()
	}
	return Skip()
}

// Setup guards the setup route. While the application is not configured
// anyone may run setup; once it is ready, only an authenticated user may
// run it again.
func (g *Gate) Setup(ctx context.Context, r *http.Request) (Decision, error) {
	ev, err := g.Evaluate(ctx, r.URL.Path, http.StatusFound)
	if err != nil {
		return Decision{}, err
	}
	if ev.Decision.Action != ActionProceed {
		return ev.Decision, nil
	}
	if ev.State == StateReady && !g.sessions.Authenticated(ctx, r) {
		return Skip(), nil
	}
	return Proceed(), nil
}

// AdminCreation guards the first-administrator route: it runs only while no
// administrator exists.
func (g *Gate) AdminCreation(ctx context.Context, r *http.Request) (Decision, error) {
	ev, err := g.Evaluate(ctx, r.URL.Path, http.StatusFound)
	if err != nil {
		return Decision{}, err
	}
	if ev.Decision.Action != ActionProceed {
		return ev.Decision, nil
	}
	if ev.State != StateNoAdminUser {
		return Skip(), nil
	}
	return Proceed(), nil
}
