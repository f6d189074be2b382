// Package session owns who is signed in. Records are only ever written whole:
// login stores a complete session and logout removes it.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/google/uuid"
)

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Position       string    `json:"position"`
	CompanyID      string    `json:"company_id"`
	CompanyName    string    `json:"company_name"`
	Token          string    `json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

type Session struct {
	ID           string            `json:"id"`
	Version      uint64            `json:"version"`
	User         User              `json:"user"`
	ButtonGrants permission.Grants `json:"button_grants"`
	PageGrants   permission.Grants `json:"page_grants"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Expired reports whether the upstream token of the session has lapsed.
func (s Session) Expired(now time.Time) bool {
	return !s.User.TokenExpiresAt.IsZero() && !now.Before(s.User.TokenExpiresAt)
}

func (s Session) Subject() permission.Subject {
	return permission.Subject{
		UserID:       s.User.ID,
		ButtonGrants: s.ButtonGrants,
		PageGrants:   s.PageGrants,
	}
}

// Clone returns a deep copy; readers never share slices with the store.
func (s Session) Clone() Session {
	c := s
	c.ButtonGrants = cloneGrants(s.ButtonGrants)
	c.PageGrants = cloneGrants(s.PageGrants)
	return c
}

func cloneGrants(in permission.Grants) permission.Grants {
	if in == nil {
		return nil
	}
	out := make(permission.Grants, len(in))
	for i, g := range in {
		g.UserIDs = append(permission.UserIDs(nil), g.UserIDs...)
		out[i] = g
	}
	return out
}

// Repository persists whole session records. Find returns
// internal.ErrSessionNotFound for unknown ids.
type Repository interface {
	Save(ctx context.Context, s Session) error
	Find(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// Store is the only writer of sessions. Every transition takes the next value
// of a process-wide version.
type Store struct {
	repo    Repository
	version atomic.Uint64
	now     func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Login stores sess as a new record and returns what was stored.
func (s *Store) Login(ctx context.Context, sess Session) (Session, error) {
	rec := sess.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = s.now()
	rec.Version = s.version.Add(1)

	if err := s.repo.Save(ctx, rec); err != nil {
		return Session{}, err
	}
	return rec.Clone(), nil
}

// Logout removes the session and returns the record that was removed.
func (s *Store) Logout(ctx context.Context, id string) (Session, error) {
	rec, err := s.repo.Find(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return Session{}, err
	}
	s.version.Add(1)
	return rec, nil
}

// Current returns a copy of the live session. An expired session is reported
// as internal.ErrTokenExpired.
func (s *Store) Current(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, internal.ErrSessionNotFound
	}
	rec, err := s.repo.Find(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if rec.Expired(s.now()) {
		return Session{}, internal.ErrTokenExpired
	}
	return rec.Clone(), nil
}

type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]Session)}
}

func (m *MemoryRepository) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryRepository) Find(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, internal.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	ctx = internal.ContextWithActor(ctx, internal.Actor{SessionID: s.ID, UserID: s.User.ID})
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

// SubjectFromContext resolves the permission subject of a request.
func SubjectFromContext(ctx context.Context) (permission.Subject, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return permission.Subject{}, false
	}
	return s.Subject(), true
}
