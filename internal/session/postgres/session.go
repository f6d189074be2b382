package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/trading-panel/internal"
	sessionDatamodel "github.com/frahmantamala/trading-panel/internal/core/datamodel/session"
	"github.com/frahmantamala/trading-panel/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSessionRepository(db *gorm.DB, logger *slog.Logger) session.Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRepository{db: db, logger: logger}
}

// Save writes the whole record, replacing any previous row with the same id.
func (r *SessionRepository) Save(ctx context.Context, s session.Session) error {
	rec, err := session.ToDataModel(s)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (r *SessionRepository) Find(ctx context.Context, id string) (session.Session, error) {
	var rec sessionDatamodel.PanelSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return session.Session{}, internal.ErrSessionNotFound
		}
		return session.Session{}, err
	}

	s, err := session.FromDataModel(&rec)
	if err != nil {
		r.logger.WarnContext(ctx, "stored grants unreadable, denying all", "session_id", id, "error", err)
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionDatamodel.PanelSession{}).Error
}
