package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/core/common/validation"
	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/upstream"
)

// Authenticator is the upstream side of login and logout.
type Authenticator interface {
	Login(ctx context.Context, creds upstream.Credentials) (*upstream.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.LabeledField("email", "Email", d.Email).Required().MaxLength(255)
	v.LabeledField("password", "Password", d.Password).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Session   Session   `json:"session"`
}

type Service struct {
	store     *Store
	tokens    *TokenService
	upstream  Authenticator
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(store *Store, tokens *TokenService, auth Authenticator, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		tokens:    tokens,
		upstream:  auth,
		publisher: publisher,
		logger:    logger,
	}
}

// Login authenticates against the backend and opens a session. Unreadable
// permission tables are logged and leave the session with no grants.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	result, err := s.upstream.Login(ctx, upstream.Credentials{Email: dto.Email, Password: dto.Password})
	if err != nil {
		var rejected *upstream.ResponseError
		if errors.As(err, &rejected) {
			if rejected.Msg == "" {
				return nil, internal.ErrInvalidCredentials
			}
			return nil, internal.NewUnauthorizedError(rejected.Msg, internal.ErrCodeInvalidCredentials).WithCause(err)
		}
		s.logger.ErrorContext(ctx, "login: upstream unavailable", "error", err)
		return nil, upstream.AppError(err)
	}

	buttons, err := permission.DecodeGrants(result.Permissions)
	if err != nil {
		s.logger.WarnContext(ctx, "login: malformed button permissions, denying all", "user_id", string(result.User.ID), "error", err)
	}
	pages, err := permission.DecodeGrants(result.PagePermissions)
	if err != nil {
		s.logger.WarnContext(ctx, "login: malformed page permissions, denying all", "user_id", string(result.User.ID), "error", err)
	}

	sess, err := s.store.Login(ctx, Session{
		User: User{
			ID:             string(result.User.ID),
			Name:           result.User.Name,
			Email:          result.User.Email,
			Position:       result.User.Position,
			CompanyID:      string(result.User.CompanyID),
			CompanyName:    result.User.CompanyName,
			Token:          result.Token,
			TokenExpiresAt: result.TokenExpiry.Time,
		},
		ButtonGrants: buttons,
		PageGrants:   pages,
	})
	if err != nil {
		return nil, internal.NewInternalError("failed to store session", err)
	}

	token, expiresAt, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, internal.NewInternalError("failed to issue session token", err)
	}

	s.logger.InfoContext(ctx, "session opened", "session_id", sess.ID, "user_id", sess.User.ID, "version", sess.Version)
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, Session: sess}, nil
}

// Logout tells the backend and always clears the local session, even when the
// backend call fails.
func (s *Service) Logout(ctx context.Context, sess Session) error {
	if err := s.upstream.Logout(ctx, sess.User.Token); err != nil {
		s.logger.WarnContext(ctx, "logout: upstream logout failed, clearing local session anyway",
			"session_id", sess.ID, "error", err)
	}

	removed, err := s.store.Logout(ctx, sess.ID)
	if err != nil {
		return err
	}

	s.end(ctx, removed)

	s.logger.InfoContext(ctx, "session closed", "session_id", removed.ID, "user_id", removed.User.ID)
	return nil
}

// Authenticate resolves a panel token to its live session. A session whose
// upstream token has lapsed is removed and its forms and views released.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, internal.ErrTokenExpired) && claims != nil {
			s.expire(ctx, claims.SessionID)
		}
		return Session{}, err
	}
	sess, err := s.store.Current(ctx, claims.SessionID)
	if errors.Is(err, internal.ErrTokenExpired) {
		s.expire(ctx, claims.SessionID)
	}
	return sess, err
}

// expire removes a lapsed session. Stores with their own expiry may already
// have dropped the record; its forms and views are released either way.
func (s *Service) expire(ctx context.Context, id string) {
	removed, err := s.store.Logout(ctx, id)
	if errors.Is(err, internal.ErrSessionNotFound) {
		s.end(ctx, Session{ID: id})
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to remove expired session", "session_id", id, "error", err)
		return
	}
	s.end(ctx, removed)
	s.logger.InfoContext(ctx, "session expired", "session_id", removed.ID, "user_id", removed.User.ID)
}

func (s *Service) end(ctx context.Context, removed Session) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, events.NewSessionEnded(removed.ID, removed.User.ID)); err != nil {
		s.logger.ErrorContext(ctx, "failed to release session resources", "session_id", removed.ID, "error", err)
	}
}
