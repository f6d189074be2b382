// Package registry keeps server-held objects that belong to one session, such
// as open forms and list views, and releases them when the session ends.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/google/uuid"
)

type Closer interface {
	Close()
}

type item[T Closer] struct {
	sessionID string
	value     T
}

type Registry[T Closer] struct {
	mu        sync.RWMutex
	items     map[string]item[T]
	bySession map[string]map[string]struct{}
	expiry    map[string]time.Time
	kind      string
	logger    *slog.Logger
}

func New[T Closer](kind string, logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{
		items:     make(map[string]item[T]),
		bySession: make(map[string]map[string]struct{}),
		expiry:    make(map[string]time.Time),
		kind:      kind,
		logger:    logger,
	}
}

// Add stores value for the session and returns its new id. The value lives
// until it is removed or the session ends.
func (r *Registry[T]) Add(sessionID string, value T) string {
	return r.AddUntil(sessionID, time.Time{}, value)
}

// AddUntil is Add for a session that lapses at expiresAt; Sweep releases it
// after that. A zero time never lapses.
func (r *Registry[T]) AddUntil(sessionID string, expiresAt time.Time, value T) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = item[T]{sessionID: sessionID, value: value}
	if r.bySession[sessionID] == nil {
		r.bySession[sessionID] = make(map[string]struct{})
	}
	r.bySession[sessionID][id] = struct{}{}
	if !expiresAt.IsZero() {
		r.expiry[sessionID] = expiresAt
	}
	return id
}

// Get returns the value only to the session that owns it.
func (r *Registry[T]) Get(sessionID, id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok || it.sessionID != sessionID {
		var zero T
		return zero, false
	}
	return it.value, true
}

// Remove closes and forgets one value. It reports whether the session owned it.
func (r *Registry[T]) Remove(sessionID, id string) bool {
	r.mu.Lock()
	it, ok := r.items[id]
	if !ok || it.sessionID != sessionID {
		r.mu.Unlock()
		return false
	}
	delete(r.items, id)
	delete(r.bySession[sessionID], id)
	if len(r.bySession[sessionID]) == 0 {
		delete(r.bySession, sessionID)
		delete(r.expiry, sessionID)
	}
	r.mu.Unlock()

	it.value.Close()
	return true
}

// EndSession closes everything the session owns.
func (r *Registry[T]) EndSession(sessionID string) int {
	r.mu.Lock()
	ids := r.bySession[sessionID]
	delete(r.bySession, sessionID)
	delete(r.expiry, sessionID)
	values := make([]T, 0, len(ids))
	for id := range ids {
		values = append(values, r.items[id].value)
		delete(r.items, id)
	}
	r.mu.Unlock()

	for _, v := range values {
		v.Close()
	}
	if len(values) > 0 {
		r.logger.Debug("released session objects", "kind", r.kind, "session_id", sessionID, "count", len(values))
	}
	return len(values)
}

// Sweep ends every session that lapsed at or before now and returns how many
// values were released.
func (r *Registry[T]) Sweep(now time.Time) int {
	r.mu.RLock()
	var lapsed []string
	for sessionID, at := range r.expiry {
		if !now.Before(at) {
			lapsed = append(lapsed, sessionID)
		}
	}
	r.mu.RUnlock()

	released := 0
	for _, sessionID := range lapsed {
		released += r.EndSession(sessionID)
	}
	return released
}

// Run sweeps every interval until ctx ends.
func (r *Registry[T]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Info("released objects of expired sessions", "kind", r.kind, "count", n)
			}
		}
	}
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Attach releases a session's objects when session.ended is published.
func (r *Registry[T]) Attach(bus *events.EventBus) {
	bus.Subscribe(events.SessionEnded, func(ctx context.Context, event events.Event) error {
		if id := events.SessionID(event); id != "" {
			r.EndSession(id)
		}
		return nil
	})
}
