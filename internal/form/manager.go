package form

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

// Manager opens form containers for sessions and keeps them addressable by id.
type Manager struct {
	forms     *registry.Registry[*Controller]
	backend   Backend
	publisher events.Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

func NewManager(backend Backend, publisher events.Publisher, timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		forms:     registry.New[*Controller]("form", logger),
		backend:   backend,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Open checks the entity's create or edit grant and opens a container. Edit
// forms start fetching the record immediately.
func (m *Manager) Open(sess session.Session, entity *Entity, mode Mode, recordID string) (string, *Controller, error) {
	if !mode.Valid() {
		return "", nil, internal.NewValidationFieldError("mode", "mode must be create or edit", internal.ErrCodeValidationFailed)
	}
	if mode == ModeEdit && recordID == "" {
		return "", nil, internal.NewValidationFieldError("id", "id is required when editing", internal.ErrCodeMissingField)
	}
	if !permission.CanAct(sess.User.ID, entity.Action(mode), sess.ButtonGrants) {
		m.logger.Warn("form open denied", "user_id", sess.User.ID, "entity", entity.Slug, "mode", mode)
		return "", nil, internal.ErrPermissionDenied
	}

	c := NewController(entity, sess.User.Token, m.backend, m.publisher, m.timeout, m.logger)
	if mode == ModeEdit {
		c.OpenEdit(recordID)
	} else {
		c.OpenCreate()
	}
	return m.forms.AddUntil(sess.ID, sess.User.TokenExpiresAt, c), c, nil
}

func (m *Manager) Get(sessionID, id string) (*Controller, error) {
	c, ok := m.forms.Get(sessionID, id)
	if !ok {
		return nil, internal.ErrFormNotFound
	}
	return c, nil
}

// Discard closes the container and forgets it.
func (m *Manager) Discard(sessionID, id string) error {
	if !m.forms.Remove(sessionID, id) {
		return internal.ErrFormNotFound
	}
	return nil
}

// Settle forgets a form that closed on its own, after a save or a failed
// load, once its final state has been read.
func (m *Manager) Settle(sessionID, id string, c *Controller) bool {
	if c.Phase() != PhaseClosed {
		return false
	}
	return m.forms.Remove(sessionID, id)
}

func (m *Manager) Len() int {
	return m.forms.Len()
}

func (m *Manager) Attach(bus *events.EventBus) {
	m.forms.Attach(bus)
}

// Sweep closes the forms of sessions whose token lapsed by now.
func (m *Manager) Sweep(now time.Time) int {
	return m.forms.Sweep(now)
}

func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	m.forms.Run(ctx, interval)
}
