package sessions

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/google/uuid"
)

// MemoryStore is a Store held in process memory behind a mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, userID uuid.UUID, lifetime time.Duration) (*Session, error) {
	if lifetime <= 0 {
		return nil, fmt.Errorf("%w: session lifetime must be positive", common.ErrInvalidArgument)
	}

	s := &Session{
		ID:        common.NewUUID(),
		UserID:    userID,
		Values:    make(map[string]string),
		ExpiresAt: m.now().Add(lifetime),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return clone(s), nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(id)
	if err != nil {
		return nil, err
	}
	return clone(s), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, id uuid.UUID, field, old, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(id)
	if err != nil {
		return false, err
	}
	if s.Values[field] != old {
		return false, nil
	}
	if next == "" {
		delete(s.Values, field)
	} else {
		s.Values[field] = next
	}
	return true, nil
}

// DeleteExpired drops every expired session and returns how many went.
func (m *MemoryStore) DeleteExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls DeleteExpired every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, logger logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.DeleteExpired(ctx); n > 0 {
				logger.Debug(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}

// live must be called with mu held.
func (m *MemoryStore) live(id uuid.UUID) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, common.ErrNoSession
	}
	if !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return nil, common.ErrNoSession
	}
	return s, nil
}

func clone(s *Session) *Session {
	c := *s
	c.Values = maps.Clone(s.Values)
	return &c
}
