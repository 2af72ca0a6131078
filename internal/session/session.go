package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

const DefaultTTL = 12 * time.Hour

// Session binds a user to a writing domain for a bounded time.
type Session struct {
	ID        uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	Expire(ctx context.Context, id uuid.UUID) error
}

// Memory keeps sessions in process and drops them after their TTL.
type Memory struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{sessions: make(map[uuid.UUID]Session), ttl: ttl, now: time.Now}
}

// Start creates and stores a new session for user in domain.
func (m *Memory) Start(ctx context.Context, userID uuid.UUID, domain string) (Session, error) {
	now := m.now().UTC()
	s := Session{
		ID:        uuid.New(),
		UserID:    userID,
		Domain:    domain,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	return s, m.Put(ctx, s)
}

func (m *Memory) Put(_ context.Context, s Session) error {
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = m.now().UTC().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return Session{}, fmt.Errorf("session %s expired: %w", id, models.ErrNotFound)
	}
	return s, nil
}

func (m *Memory) Expire(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep removes expired sessions and reports how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Authorize loads a session and checks it belongs to userID.
func Authorize(ctx context.Context, st Store, id, userID uuid.UUID) (Session, error) {
	s, err := st.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.UserID != userID {
		return Session{}, fmt.Errorf("session %s: %w", id, models.ErrForbidden)
	}
	return s, nil
}
