package session

import (
	"encoding/json"
	"fmt"
	"time"

	sessionDatamodel "github.com/frahmantamala/trading-panel/internal/core/datamodel/session"
	"github.com/frahmantamala/trading-panel/internal/permission"
)

func ToDataModel(s Session) (*sessionDatamodel.PanelSession, error) {
	buttons, err := json.Marshal(s.ButtonGrants)
	if err != nil {
		return nil, fmt.Errorf("encode button grants: %w", err)
	}
	pages, err := json.Marshal(s.PageGrants)
	if err != nil {
		return nil, fmt.Errorf("encode page grants: %w", err)
	}

	var expiresAt *time.Time
	if !s.User.TokenExpiresAt.IsZero() {
		t := s.User.TokenExpiresAt.UTC()
		expiresAt = &t
	}

	return &sessionDatamodel.PanelSession{
		ID:             s.ID,
		Version:        int64(s.Version),
		UserID:         s.User.ID,
		UserName:       s.User.Name,
		UserEmail:      s.User.Email,
		UserPosition:   s.User.Position,
		CompanyID:      s.User.CompanyID,
		CompanyName:    s.User.CompanyName,
		UpstreamToken:  s.User.Token,
		TokenExpiresAt: expiresAt,
		ButtonGrants:   string(buttons),
		PageGrants:     string(pages),
		CreatedAt:      s.CreatedAt.UTC(),
	}, nil
}

// FromDataModel rebuilds a session. Stored grants go through the same
// defensive decode as login payloads; unreadable tables deny all.
func FromDataModel(m *sessionDatamodel.PanelSession) (Session, error) {
	s := Session{
		ID:      m.ID,
		Version: uint64(m.Version),
		User: User{
			ID:          m.UserID,
			Name:        m.UserName,
			Email:       m.UserEmail,
			Position:    m.UserPosition,
			CompanyID:   m.CompanyID,
			CompanyName: m.CompanyName,
			Token:       m.UpstreamToken,
		},
		CreatedAt: m.CreatedAt,
	}
	if m.TokenExpiresAt != nil {
		s.User.TokenExpiresAt = *m.TokenExpiresAt
	}

	var errs []error
	var err error
	if s.ButtonGrants, err = permission.DecodeGrantsString(m.ButtonGrants); err != nil {
		errs = append(errs, fmt.Errorf("button grants: %w", err))
	}
	if s.PageGrants, err = permission.DecodeGrantsString(m.PageGrants); err != nil {
		errs = append(errs, fmt.Errorf("page grants: %w", err))
	}
	if len(errs) > 0 {
		return s, fmt.Errorf("session %s: %v", m.ID, errs)
	}
	return s, nil
}
