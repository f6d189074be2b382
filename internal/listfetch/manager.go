package listfetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/core/registry"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/session"
)

// View is one open list view.
type View struct {
	*Fetcher
	Source Source
}

// Manager opens list views for sessions. All views share one cache.
type Manager struct {
	views  *registry.Registry[*View]
	loader Loader
	cache  *Cache
	opts   Options
	logger *slog.Logger
}

func NewManager(loader Loader, cache *Cache, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		views:  registry.New[*View]("list view", logger),
		loader: loader,
		cache:  cache,
		opts:   opts,
		logger: logger,
	}
}

// Open starts a view on page one after checking the page grant of the list.
func (m *Manager) Open(sess session.Session, src Source) (string, *View, error) {
	if !permission.CanVisit(sess.User.ID, src.Page, src.PageURL, sess.PageGrants) {
		m.logger.Warn("list view denied", "user_id", sess.User.ID, "list", src.Tag)
		return "", nil, internal.ErrPermissionDenied
	}

	v := &View{
		Fetcher: NewFetcher(src, sess.User.Token, m.loader, m.cache, m.opts, m.logger),
		Source:  src,
	}
	return m.views.AddUntil(sess.ID, sess.User.TokenExpiresAt, v), v, nil
}

func (m *Manager) Get(sessionID, id string) (*View, error) {
	v, ok := m.views.Get(sessionID, id)
	if !ok {
		return nil, internal.ErrViewNotFound
	}
	return v, nil
}

func (m *Manager) Discard(sessionID, id string) error {
	if !m.views.Remove(sessionID, id) {
		return internal.ErrViewNotFound
	}
	return nil
}

func (m *Manager) Len() int {
	return m.views.Len()
}

func (m *Manager) Attach(bus *events.EventBus) {
	m.views.Attach(bus)
}

// Sweep closes the views of sessions whose token lapsed by now, so they stop
// reloading on invalidations.
func (m *Manager) Sweep(now time.Time) int {
	return m.views.Sweep(now)
}

func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	m.views.Run(ctx, interval)
}
