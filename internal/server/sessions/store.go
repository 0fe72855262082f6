// Package sessions keeps server-side session state keyed by the id carried
// in the session cookie.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is the server-side half of a cookie session. UserID is uuid.Nil
// for anonymous sessions.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Values    map[string]string
	ExpiresAt time.Time
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != uuid.Nil
}

// Store persists sessions. Get never returns an expired session: it reports
// common.ErrNoSession instead. Returned sessions are copies.
type Store interface {
	Create(ctx context.Context, userID uuid.UUID, lifetime time.Duration) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// CompareAndSwap sets field to next only if its current value equals old
	// ("" meaning absent). It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, id uuid.UUID, field, old, next string) (bool, error)
}
