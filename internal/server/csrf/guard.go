// Package csrf issues per-session CSRF tokens and checks them on
// state-changing requests.
//
// A token lives in a session field and is created lazily on first use with a
// compare-and-swap, so concurrent first requests agree on a single token.
package csrf

import (
	"context"
	"crypto/subtle"
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessions"
)

const maxSwapAttempts = 3

type Guard struct {
	store   sessions.Store
	length  TokenLength
	pattern *regexp.Regexp
	logger  logging.Logger
}

func New(store sessions.Store, length TokenLength, logger logging.Logger) *Guard {
	return &Guard{
		store:   store,
		length:  length,
		pattern: regexp.MustCompile(fmt.Sprintf(`^[0-9a-f]{%d}$`, length.Chars())),
		logger:  logger.With("module", "csrf"),
	}
}

// Length is the configured token length in hex characters.
func (g *Guard) Length() int {
	return g.length.Chars()
}

// GetToken returns the token stored in field of sess, generating one if the
// field is empty or does not look like a token of the configured length.
func (g *Guard) GetToken(ctx context.Context, sess *sessions.Session, field string) (string, error) {
	if sess == nil {
		return "", common.ErrNoSession
	}
	field = fieldOrDefault(field)

	for i := 0; i < maxSwapAttempts; i++ {
		current, err := g.store.Get(ctx, sess.ID)
		if err != nil {
			return "", err
		}
		stored := current.Values[field]
		if g.pattern.MatchString(stored) {
			setValue(sess, field, stored)
			return stored, nil
		}

		token, err := common.MakeRandHexString(g.length.bytes())
		if err != nil {
			return "", err
		}
		swapped, err := g.store.CompareAndSwap(ctx, sess.ID, field, stored, token)
		if err != nil {
			return "", err
		}
		if swapped {
			setValue(sess, field, token)
			return token, nil
		}
		// another request stored a token first; read it back
	}
	return "", fmt.Errorf("%w: csrf token kept changing", common.ErrSecurity)
}

// Validate compares submitted with the stored token in constant time. The
// token stays valid afterwards.
func (g *Guard) Validate(ctx context.Context, sess *sessions.Session, submitted, field string) error {
	_, err := g.check(ctx, sess, submitted, fieldOrDefault(field))
	return err
}

// Consume is Validate followed by clearing the token, so a submitted form
// cannot be replayed. Of two concurrent submissions only one succeeds.
func (g *Guard) Consume(ctx context.Context, sess *sessions.Session, submitted, field string) error {
	field = fieldOrDefault(field)

	stored, err := g.check(ctx, sess, submitted, field)
	if err != nil {
		return err
	}

	swapped, err := g.store.CompareAndSwap(ctx, sess.ID, field, stored, "")
	if err != nil {
		return err
	}
	if !swapped {
		g.logger.Warn(ctx, "csrf token reused", "session", sess.ID)
		return fmt.Errorf("%w: csrf token already used", common.ErrSecurity)
	}
	delete(sess.Values, field)
	return nil
}

func (g *Guard) check(ctx context.Context, sess *sessions.Session, submitted, field string) (string, error) {
	if sess == nil {
		return "", common.ErrNoSession
	}
	current, err := g.store.Get(ctx, sess.ID)
	if err != nil {
		return "", err
	}

	stored := current.Values[field]
	if stored == "" {
		return "", fmt.Errorf("%w: no csrf token issued", common.ErrSecurity)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) != 1 {
		g.logger.Warn(ctx, "csrf token mismatch", "session", sess.ID)
		return "", fmt.Errorf("%w: csrf token mismatch", common.ErrSecurity)
	}
	return stored, nil
}

func fieldOrDefault(field string) string {
	if field == "" {
		return common.CSRFFieldName
	}
	return field
}

func setValue(sess *sessions.Session, field, value string) {
	if sess.Values == nil {
		sess.Values = make(map[string]string)
	}
	sess.Values[field] = value
}
