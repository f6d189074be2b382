// Package redis stores sessions in Redis, expiring each key with the upstream
// token it carries.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	sessionDatamodel "github.com/frahmantamala/trading-panel/internal/core/datamodel/session"
	"github.com/frahmantamala/trading-panel/internal/session"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "panel:session:"
	fallbackTTL   = 24 * time.Hour
)

type SessionRepository struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewClient parses a redis:// url and checks the server is reachable.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func NewSessionRepository(client *goredis.Client, prefix string, logger *slog.Logger) *SessionRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRepository{client: client, prefix: prefix, logger: logger}
}

func (r *SessionRepository) key(id string) string {
	return r.prefix + id
}

func (r *SessionRepository) Save(ctx context.Context, s session.Session) error {
	rec, err := session.ToDataModel(s)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := fallbackTTL
	if rec.TokenExpiresAt != nil {
		ttl = time.Until(*rec.TokenExpiresAt)
		if ttl <= 0 {
			return internal.ErrTokenExpired
		}
	}

	if err := r.client.Set(ctx, r.key(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Find(ctx context.Context, id string) (session.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Session{}, internal.ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("lookup session: %w", err)
	}

	var rec sessionDatamodel.PanelSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	s, err := session.FromDataModel(&rec)
	if err != nil {
		r.logger.WarnContext(ctx, "stored grants unreadable, denying all", "session_id", id, "error", err)
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
