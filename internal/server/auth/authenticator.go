// Package auth authenticates users against stored Argon2id password hashes
// and binds them to cookie sessions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessions"
	"github.com/google/uuid"
)

const maxCredentialsBody = 1 << 16

// UserStore is the part of user management the authenticator reads and
// updates.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	RecordFailedAttempt(ctx context.Context, id uuid.UUID) (int, error)
	ResetAttempts(ctx context.Context, id uuid.UUID) error
}

type Options struct {
	SessionLifetime  time.Duration
	MaxLoginAttempts int
	// TrustProxy lets X-Forwarded-Proto mark the session cookie Secure.
	TrustProxy bool
}

type Authenticator struct {
	users       UserStore
	store       sessions.Store
	lifetime    time.Duration
	maxAttempts int
	trustProxy  bool
	logger      logging.Logger
}

func New(users UserStore, store sessions.Store, opts Options, logger logging.Logger) *Authenticator {
	return &Authenticator{
		users:       users,
		store:       store,
		lifetime:    opts.SessionLifetime,
		maxAttempts: opts.MaxLoginAttempts,
		trustProxy:  opts.TrustProxy,
		logger:      logger.With("module", "auth"),
	}
}

// Credentials is a login or account-creation submission.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate applies the username and password policies.
func (c Credentials) Validate() error {
	if err := ValidateUsername(c.Username); err != nil {
		return err
	}
	return ValidatePassword(c.Password)
}

// ReadCredentials takes username and password from a JSON body or from
// form fields, depending on the request content type.
func ReadCredentials(r *http.Request) (Credentials, error) {
	var c Credentials

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxCredentialsBody))
		if err := dec.Decode(&c); err != nil {
			return Credentials{}, fmt.Errorf("%w: malformed credentials: %v", common.ErrValidation, err)
		}
		return c, nil
	}

	c.Username = r.PostFormValue("username")
	c.Password = r.PostFormValue("password")
	return c, nil
}

// dummyHash is verified against when no usable account exists, so response
// time does not reveal whether a username is registered.
var dummyHash = sync.OnceValue(func() string {
	h, err := HashPassword(common.NewUUID().String() + "a!")
	if err != nil {
		panic(err)
	}
	return h
})

// CaptureCredentials reads username and password from r and, if they match
// an active account, starts an authenticated session and sets its cookie.
//
// Input that breaks the username or password policy is a common.ErrValidation
// error. Wrong credentials, as well as blocked, inactive or locked-out
// accounts, yield false with a nil error.
func (a *Authenticator) CaptureCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request) (bool, error) {
	creds, err := ReadCredentials(r)
	if err != nil {
		return false, err
	}
	if err := creds.Validate(); err != nil {
		return false, err
	}

	user, ok, err := a.verify(ctx, creds)
	if err != nil || !ok {
		return false, err
	}

	if old, found := a.Current(ctx, r); found {
		// a fresh id on login; the pre-login id may be known to someone else
		_ = a.store.Delete(ctx, old.ID)
	}

	sess, err := a.store.Create(ctx, user.ID, a.lifetime)
	if err != nil {
		return false, err
	}
	a.setCookie(w, r, sess)

	a.logger.Info(ctx, "user logged in", "user", user.ID)
	return true, nil
}

func (a *Authenticator) verify(ctx context.Context, creds Credentials) (*models.User, bool, error) {
	user, err := a.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = VerifyPassword(creds.Password, dummyHash())
			a.logger.Info(ctx, "login for unknown user")
			return nil, false, nil
		}
		return nil, false, err
	}

	match, err := VerifyPassword(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, false, fmt.Errorf("stored hash of user %s: %w", user.ID, err)
	}

	switch {
	case user.IsBlocked, !user.IsActive:
		a.logger.Warn(ctx, "login refused for disabled account", "user", user.ID)
		return nil, false, nil
	case a.maxAttempts > 0 && user.Attempts >= a.maxAttempts:
		a.logger.Warn(ctx, "login refused after too many attempts", "user", user.ID, "attempts", user.Attempts)
		return nil, false, nil
	}

	if !match {
		attempts, err := a.users.RecordFailedAttempt(ctx, user.ID)
		if err != nil {
			return nil, false, err
		}
		a.logger.Info(ctx, "wrong password", "user", user.ID, "attempts", attempts)
		return nil, false, nil
	}

	if user.Attempts > 0 {
		if err := a.users.ResetAttempts(ctx, user.ID); err != nil {
			return nil, false, err
		}
	}
	return user, true, nil
}

// Logout deletes the server-side session, if any, and expires the cookie.
func (a *Authenticator) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if sess, ok := a.Current(ctx, r); ok {
		if err := a.store.Delete(ctx, sess.ID); err != nil {
			return err
		}
		a.logger.Info(ctx, "user logged out", "user", sess.UserID)
	}
	a.clearCookie(w, r)
	return nil
}

// Current returns the live session named by the request cookie, anonymous
// or not.
func (a *Authenticator) Current(ctx context.Context, r *http.Request) (*sessions.Session, bool) {
	c, err := r.Cookie(common.SessionCookieName)
	if err != nil {
		return nil, false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return nil, false
	}
	sess, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, false
	}
	return sess, true
}

// Authenticated reports whether the request carries a session bound to a
// user.
func (a *Authenticator) Authenticated(ctx context.Context, r *http.Request) bool {
	sess, ok := a.Current(ctx, r)
	return ok && sess.Authenticated()
}

// EnsureSession returns the current session or starts an anonymous one,
// so CSRF tokens can be issued before login.
func (a *Authenticator) EnsureSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*sessions.Session, error) {
	if sess, ok := a.Current(ctx, r); ok {
		return sess, nil
	}
	sess, err := a.store.Create(ctx, uuid.Nil, a.lifetime)
	if err != nil {
		return nil, err
	}
	a.setCookie(w, r, sess)
	return sess, nil
}
